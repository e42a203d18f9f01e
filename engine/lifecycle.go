package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"argus/core"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// ErrAlertNotActive reports a lifecycle operation against an alert that
// is not in the active index (unknown or already evicted)
var ErrAlertNotActive = errors.New("alert not in active index")

// AlertSink is the slice of alert persistence the engine depends on.
// Declared here so tests can substitute a mock without pulling in storage.
type AlertSink interface {
	InsertAlert(ctx context.Context, alert *core.Alert) error
	UpdateAlert(ctx context.Context, alert *core.Alert) error
}

// defaultResolvedRetention keeps resolved alerts queryable in the active
// index for a grace period before eviction; persisted history is the
// store's job.
const defaultResolvedRetention = 5 * time.Minute

// lifecycleManager owns the active-alert index and the alert state machine.
// It is an explicit store on the engine instance - no module-level
// singletons - so independent engines can coexist in tests.
type lifecycleManager struct {
	mu     sync.RWMutex
	active map[string]*core.Alert

	sink              AlertSink
	logger            *zap.SugaredLogger
	resolvedRetention time.Duration
	resolvedAt        map[string]time.Time

	cleanupCancel context.CancelFunc
	cleanupWg     sync.WaitGroup
}

func newLifecycleManager(sink AlertSink, resolvedRetention time.Duration, logger *zap.SugaredLogger) *lifecycleManager {
	if resolvedRetention <= 0 {
		resolvedRetention = defaultResolvedRetention
	}
	lm := &lifecycleManager{
		active:            make(map[string]*core.Alert),
		sink:              sink,
		logger:            logger,
		resolvedRetention: resolvedRetention,
		resolvedAt:        make(map[string]time.Time),
	}
	ctx, cancel := context.WithCancel(context.Background())
	lm.cleanupCancel = cancel
	lm.startEviction(ctx)
	return lm
}

// findCorrelated returns a non-terminal alert for the rule whose triggering
// event shares the same source identity within the correlation window, or
// nil when the new event should open a fresh alert.
func (lm *lifecycleManager) findCorrelated(ruleID, source string, now time.Time, window time.Duration) *core.Alert {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	for _, alert := range lm.active {
		if alert.IsTerminal() {
			continue
		}
		if alert.RuleID != ruleID || alert.TriggerEvent.Source != source {
			continue
		}
		if now.Sub(alert.LastOccurrence) <= window {
			return alert
		}
	}
	return nil
}

// create indexes and persists a new alert. A persistence failure is
// surfaced to the caller - alert durability is a correctness requirement -
// but the in-memory index keeps the alert so lifecycle tracking proceeds.
func (lm *lifecycleManager) create(ctx context.Context, alert *core.Alert) error {
	lm.mu.Lock()
	lm.active[alert.AlertID] = alert
	lm.mu.Unlock()

	if err := lm.sink.InsertAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// merge records a repeat occurrence on an existing alert and persists the
// update. Notifications are not re-dispatched for merges.
func (lm *lifecycleManager) merge(ctx context.Context, alert *core.Alert, event *core.Event) error {
	lm.mu.Lock()
	alert.RecordOccurrence(event)
	lm.mu.Unlock()

	if err := lm.sink.UpdateAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist occurrence merge for alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// get returns an alert from the active index
func (lm *lifecycleManager) get(alertID string) (*core.Alert, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	alert, ok := lm.active[alertID]
	return alert, ok
}

// acknowledge transitions an active alert to acknowledged
func (lm *lifecycleManager) acknowledge(ctx context.Context, alertID, by string) (*core.Alert, error) {
	lm.mu.Lock()
	alert, ok := lm.active[alertID]
	if !ok {
		lm.mu.Unlock()
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrAlertNotActive)
	}
	if err := alert.Acknowledge(by); err != nil {
		lm.mu.Unlock()
		return nil, err
	}
	lm.mu.Unlock()

	if err := lm.sink.UpdateAlert(ctx, alert); err != nil {
		return alert, fmt.Errorf("failed to persist acknowledgement for alert %s: %w", alertID, err)
	}
	return alert, nil
}

// resolve transitions an active alert to its terminal state. The alert
// stays queryable for the retention grace period before eviction.
func (lm *lifecycleManager) resolve(ctx context.Context, alertID, by, notes string) (*core.Alert, error) {
	lm.mu.Lock()
	alert, ok := lm.active[alertID]
	if !ok {
		lm.mu.Unlock()
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrAlertNotActive)
	}
	if err := alert.Resolve(by, notes); err != nil {
		lm.mu.Unlock()
		return nil, err
	}
	lm.resolvedAt[alertID] = time.Now()
	lm.mu.Unlock()

	if err := lm.sink.UpdateAlert(ctx, alert); err != nil {
		return alert, fmt.Errorf("failed to persist resolution for alert %s: %w", alertID, err)
	}
	return alert, nil
}

// activeCount returns the size of the active index
func (lm *lifecycleManager) activeCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.active)
}

// stop stops the eviction goroutine and waits for it to finish
func (lm *lifecycleManager) stop() {
	if lm.cleanupCancel != nil {
		lm.cleanupCancel()
	}
	done := make(chan struct{})
	go func() {
		lm.cleanupWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if lm.logger != nil {
			lm.logger.Warn("alert-eviction goroutine did not stop within 5s")
		}
	}
}

// startEviction periodically drops resolved alerts whose grace period has
// elapsed from the active index
func (lm *lifecycleManager) startEviction(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	lm.cleanupWg.Add(1)
	go func() {
		defer lm.cleanupWg.Done()
		defer goroutine.Recover("alert-eviction", lm.logger)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				lm.evictResolved()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (lm *lifecycleManager) evictResolved() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	evicted := 0
	for alertID, resolvedAt := range lm.resolvedAt {
		if now.Sub(resolvedAt) > lm.resolvedRetention {
			delete(lm.active, alertID)
			delete(lm.resolvedAt, alertID)
			evicted++
		}
	}
	if evicted > 0 && lm.logger != nil {
		lm.logger.Debugw("Evicted resolved alerts from active index",
			"evicted", evicted,
			"remaining", len(lm.active))
	}
}
