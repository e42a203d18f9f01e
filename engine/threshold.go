package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"argus/core"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

const (
	// maxWindowTimestamps caps per-window memory for flapping sources
	maxWindowTimestamps = 10000
	// windowIdleFactor controls eviction of windows with no recent activity,
	// expressed as a multiple of the rule's own window
	windowIdleFactor = 2
)

// windowEntry holds the matching-event timestamps for one rule x group
type windowEntry struct {
	times      []time.Time
	lastAccess time.Time
	span       time.Duration
}

// thresholdTracker maintains in-process sliding windows per rule x group.
// Contract: a threshold fires at most once per distinct (rule, window)
// satisfaction - the window is consumed on fire so subsequent events start
// a fresh count instead of re-triggering the same occurrence.
type thresholdTracker struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	logger  *zap.SugaredLogger

	cleanupCancel context.CancelFunc
	cleanupWg     sync.WaitGroup
}

func newThresholdTracker(logger *zap.SugaredLogger) *thresholdTracker {
	tt := &thresholdTracker{
		windows: make(map[string]*windowEntry),
		logger:  logger,
	}
	ctx, cancel := context.WithCancel(context.Background())
	tt.cleanupCancel = cancel
	tt.startCleanup(ctx)
	return tt
}

// observe records a conditions-matching event for the rule and reports
// whether the threshold is now satisfied. groupValue is empty for ungrouped
// thresholds; callers must exclude events whose groupBy field is absent
// before calling (they never fall into an "undefined" bucket).
func (tt *thresholdTracker) observe(rule *core.Rule, groupValue string, at time.Time) bool {
	th := rule.Threshold
	if th == nil {
		return true
	}
	span := core.ParseWindow(th.Window)

	tt.mu.Lock()
	defer tt.mu.Unlock()

	key := rule.ID + "\x00" + groupValue
	entry, ok := tt.windows[key]
	if !ok {
		entry = &windowEntry{span: span}
		tt.windows[key] = entry
	}
	entry.lastAccess = time.Now()
	entry.span = span

	times := entry.times
	if len(times) >= maxWindowTimestamps {
		times = times[len(times)-maxWindowTimestamps+1:]
	}

	// Insert keeping sorted order; events can arrive out of order
	idx := sort.Search(len(times), func(i int) bool { return times[i].After(at) })
	times = append(times, time.Time{})
	copy(times[idx+1:], times[idx:])
	times[idx] = at

	// Trim everything outside the trailing window
	cutoff := at.Add(-span)
	start := sort.Search(len(times), func(i int) bool { return !times[i].Before(cutoff) })
	times = times[start:]
	entry.times = times

	if len(times) < th.Count {
		return false
	}

	// Consume the satisfied window so the next event starts a fresh count
	entry.times = nil
	return true
}

// reset clears all window state
func (tt *thresholdTracker) reset() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.windows = make(map[string]*windowEntry)
}

// stop stops the cleanup goroutine and waits for it to finish
func (tt *thresholdTracker) stop() {
	if tt.cleanupCancel != nil {
		tt.cleanupCancel()
	}
	done := make(chan struct{})
	go func() {
		tt.cleanupWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if tt.logger != nil {
			tt.logger.Warn("threshold-window-cleanup goroutine did not stop within 5s")
		}
	}
}

// startCleanup runs periodic eviction of idle and expired windows
func (tt *thresholdTracker) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	tt.cleanupWg.Add(1)
	go func() {
		defer tt.cleanupWg.Done()
		defer goroutine.Recover("threshold-window-cleanup", tt.logger)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tt.evictStale()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictStale drops windows whose contents have all expired and windows
// with no activity for windowIdleFactor x their span
func (tt *thresholdTracker) evictStale() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range tt.windows {
		if now.Sub(entry.lastAccess) > entry.span*windowIdleFactor {
			delete(tt.windows, key)
			removed++
			continue
		}
		cutoff := now.Add(-entry.span)
		start := sort.Search(len(entry.times), func(i int) bool { return entry.times[i].After(cutoff) })
		if start >= len(entry.times) {
			entry.times = nil
		} else if start > 0 {
			entry.times = entry.times[start:]
		}
	}
	if removed > 0 && tt.logger != nil {
		tt.logger.Debugw("Evicted idle threshold windows",
			"removed", removed,
			"remaining", len(tt.windows))
	}
}
