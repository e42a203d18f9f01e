package engine

import (
	"context"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLifecycle(t *testing.T, sink AlertSink, retention time.Duration) *lifecycleManager {
	t.Helper()
	lm := newLifecycleManager(sink, retention, zap.NewNop().Sugar())
	t.Cleanup(lm.stop)
	return lm
}

func lifecycleAlert(t *testing.T, ruleID, source string, at time.Time) *core.Alert {
	t.Helper()
	rule := simpleRule(ruleID)
	event := loginFailureEvent("alice", source, at)
	alert, err := core.NewAlert(&rule, event)
	require.NoError(t, err)
	return alert
}

func TestFindCorrelatedMatchesSameRuleAndSource(t *testing.T) {
	lm := newTestLifecycle(t, &mockSink{}, 0)
	now := time.Now()
	alert := lifecycleAlert(t, "r1", "auth", now)
	require.NoError(t, lm.create(context.Background(), alert))

	found := lm.findCorrelated("r1", "auth", now.Add(time.Minute), time.Hour)
	require.NotNil(t, found)
	assert.Equal(t, alert.AlertID, found.AlertID)
}

func TestFindCorrelatedRespectsBoundaries(t *testing.T) {
	lm := newTestLifecycle(t, &mockSink{}, 0)
	now := time.Now()
	alert := lifecycleAlert(t, "r1", "auth", now)
	require.NoError(t, lm.create(context.Background(), alert))

	assert.Nil(t, lm.findCorrelated("r2", "auth", now.Add(time.Minute), time.Hour), "different rule")
	assert.Nil(t, lm.findCorrelated("r1", "other-host", now.Add(time.Minute), time.Hour), "different source")
	assert.Nil(t, lm.findCorrelated("r1", "auth", now.Add(2*time.Hour), time.Hour), "outside window")
}

func TestFindCorrelatedSkipsTerminalAlerts(t *testing.T) {
	lm := newTestLifecycle(t, &mockSink{}, 0)
	now := time.Now()
	alert := lifecycleAlert(t, "r1", "auth", now)
	require.NoError(t, lm.create(context.Background(), alert))
	_, err := lm.resolve(context.Background(), alert.AlertID, "op", "")
	require.NoError(t, err)

	assert.Nil(t, lm.findCorrelated("r1", "auth", now.Add(time.Minute), time.Hour))
}

func TestMergePersistsUpdate(t *testing.T) {
	sink := &mockSink{}
	lm := newTestLifecycle(t, sink, 0)
	now := time.Now()
	alert := lifecycleAlert(t, "r1", "auth", now)
	require.NoError(t, lm.create(context.Background(), alert))

	event := loginFailureEvent("alice", "auth", now.Add(time.Minute))
	require.NoError(t, lm.merge(context.Background(), alert, event))
	assert.Equal(t, 2, alert.OccurrenceCount)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 1, sink.updates)
}

func TestEvictResolvedAfterRetention(t *testing.T) {
	lm := newTestLifecycle(t, &mockSink{}, 50*time.Millisecond)
	now := time.Now()
	alert := lifecycleAlert(t, "r1", "auth", now)
	require.NoError(t, lm.create(context.Background(), alert))
	_, err := lm.resolve(context.Background(), alert.AlertID, "op", "")
	require.NoError(t, err)

	// Resolved alerts stay queryable for the grace period
	_, ok := lm.get(alert.AlertID)
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	lm.evictResolved()

	_, ok = lm.get(alert.AlertID)
	assert.False(t, ok, "resolved alert evicted after retention")
	assert.Zero(t, lm.activeCount())
}

func TestCreateSurfacesPersistenceFailureButKeepsIndex(t *testing.T) {
	sink := &mockSink{failInsert: true}
	lm := newTestLifecycle(t, sink, 0)
	alert := lifecycleAlert(t, "r1", "auth", time.Now())

	err := lm.create(context.Background(), alert)
	assert.Error(t, err)

	_, ok := lm.get(alert.AlertID)
	assert.True(t, ok, "in-memory tracking proceeds despite the sink failure")
}
