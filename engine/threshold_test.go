package engine

import (
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestTracker(t *testing.T) *thresholdTracker {
	t.Helper()
	tt := newThresholdTracker(zap.NewNop().Sugar())
	t.Cleanup(tt.stop)
	return tt
}

func thresholdRule(count int, window, groupBy string) *core.Rule {
	return &core.Rule{
		ID:        "r1",
		Name:      "r1",
		Severity:  core.SeverityMedium,
		Threshold: &core.Threshold{Count: count, Window: window, GroupBy: groupBy},
	}
}

func TestObserveNoThresholdAlwaysFires(t *testing.T) {
	tracker := newTestTracker(t)
	rule := &core.Rule{ID: "r1"}
	assert.True(t, tracker.observe(rule, "", time.Now()))
	assert.True(t, tracker.observe(rule, "", time.Now()))
}

func TestObserveCountWithinWindow(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(3, "5m", "")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "", base))
	assert.False(t, tracker.observe(rule, "", base.Add(time.Second)))
	assert.True(t, tracker.observe(rule, "", base.Add(2*time.Second)))
}

func TestObserveWindowSlides(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(3, "1m", "")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "", base))
	assert.False(t, tracker.observe(rule, "", base.Add(50*time.Second)))
	// Third event arrives after the first left the window: count is 2, not 3
	assert.False(t, tracker.observe(rule, "", base.Add(70*time.Second)))
	// But a fourth close behind reaches 3 within the trailing minute
	assert.True(t, tracker.observe(rule, "", base.Add(75*time.Second)))
}

func TestObserveConsumesWindowOnFire(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(2, "5m", "")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "", base))
	assert.True(t, tracker.observe(rule, "", base.Add(time.Second)))
	// The satisfied window was consumed: the count restarts
	assert.False(t, tracker.observe(rule, "", base.Add(2*time.Second)))
	assert.True(t, tracker.observe(rule, "", base.Add(3*time.Second)))
}

func TestObserveGroupsTrackedSeparately(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(2, "5m", "actor")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "alice", base))
	assert.False(t, tracker.observe(rule, "bob", base))
	assert.True(t, tracker.observe(rule, "alice", base.Add(time.Second)))
	assert.True(t, tracker.observe(rule, "bob", base.Add(time.Second)))
}

func TestObserveOutOfOrderTimestamps(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(3, "1m", "")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "", base.Add(20*time.Second)))
	assert.False(t, tracker.observe(rule, "", base.Add(40*time.Second)))
	// A late-arriving event inside the window still completes the count
	assert.True(t, tracker.observe(rule, "", base.Add(30*time.Second)))
}

func TestObserveCountOne(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(1, "5m", "")
	assert.True(t, tracker.observe(rule, "", time.Now()))
	assert.True(t, tracker.observe(rule, "", time.Now()))
}

func TestTrackerReset(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(2, "5m", "")
	base := time.Now()

	assert.False(t, tracker.observe(rule, "", base))
	tracker.reset()
	assert.False(t, tracker.observe(rule, "", base.Add(time.Second)))
	assert.True(t, tracker.observe(rule, "", base.Add(2*time.Second)))
}

func TestEvictStaleDropsIdleWindows(t *testing.T) {
	tracker := newTestTracker(t)
	rule := thresholdRule(5, "1s", "")
	tracker.observe(rule, "", time.Now().Add(-time.Minute))

	tracker.mu.Lock()
	for _, entry := range tracker.windows {
		entry.lastAccess = time.Now().Add(-time.Minute)
	}
	tracker.mu.Unlock()

	tracker.evictStale()

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.windows)
}
