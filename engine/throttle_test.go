package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func throttleRule(cooldown string) *core.Rule {
	return &core.Rule{ID: "r1", Name: "r1", Severity: core.SeverityLow, Throttle: cooldown}
}

func groupedThrottleRule(cooldown string) *core.Rule {
	rule := throttleRule(cooldown)
	rule.Threshold = &core.Threshold{Count: 1, Window: "1m", GroupBy: "actor"}
	return rule
}

func TestThrottleAllowsFirstFiring(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)

	assert.True(t, tc.allow(throttleRule("5m"), "", time.Now()))
}

func TestThrottleSuppressesWithinCooldown(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := throttleRule("5m")
	base := time.Now()

	assert.True(t, tc.allow(rule, "", base))
	assert.False(t, tc.allow(rule, "", base.Add(time.Minute)))
	assert.False(t, tc.allow(rule, "", base.Add(4*time.Minute)))
	assert.True(t, tc.allow(rule, "", base.Add(5*time.Minute+time.Second)))
}

func TestThrottleSuppressionKeepsOriginalClock(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := throttleRule("5m")
	base := time.Now()

	assert.True(t, tc.allow(rule, "", base))
	// Suppressed attempts do not refresh lastFiredAt
	assert.False(t, tc.allow(rule, "", base.Add(4*time.Minute)))
	assert.True(t, tc.allow(rule, "", base.Add(5*time.Minute+time.Second)),
		"cooldown measured from the original firing, not the suppressed one")
}

func TestThrottlePerGroupIndependence(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := groupedThrottleRule("5m")
	base := time.Now()

	assert.True(t, tc.allow(rule, "alice", base))
	assert.True(t, tc.allow(rule, "bob", base), "groups throttle independently")
	assert.False(t, tc.allow(rule, "alice", base.Add(time.Minute)))
	assert.False(t, tc.allow(rule, "bob", base.Add(time.Minute)))
}

func TestThrottleEmptyGroupIsItsOwnBucket(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := groupedThrottleRule("5m")
	base := time.Now()

	// A group value of "global" and an empty group value are three-way
	// distinct from the ungrouped cooldown of another rule
	assert.True(t, tc.allow(rule, "global", base))
	assert.True(t, tc.allow(rule, "", base), "empty group value throttles independently")
	assert.False(t, tc.allow(rule, "", base.Add(time.Minute)))
	assert.False(t, tc.allow(rule, "global", base.Add(time.Minute)))
}

func TestThrottleConcurrentFiringsAdmitOne(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := groupedThrottleRule("5m")
	now := time.Now()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tc.allow(rule, "alice", now) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, admitted.Load(), "one cooldown window admits exactly one firing")
}

func TestThrottlePerRuleIndependence(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	base := time.Now()

	r1 := throttleRule("5m")
	r2 := &core.Rule{ID: "r2", Name: "r2", Severity: core.SeverityLow, Throttle: "5m"}

	assert.True(t, tc.allow(r1, "", base))
	assert.True(t, tc.allow(r2, "", base))
}

func TestThrottleDefaultCooldown(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := throttleRule("") // default 5m applies
	base := time.Now()

	assert.True(t, tc.allow(rule, "", base))
	assert.False(t, tc.allow(rule, "", base.Add(4*time.Minute)))
	assert.True(t, tc.allow(rule, "", base.Add(6*time.Minute)))
}

func TestThrottleReset(t *testing.T) {
	tc, err := newThrottleController()
	require.NoError(t, err)
	rule := throttleRule("5m")
	base := time.Now()

	assert.True(t, tc.allow(rule, "", base))
	tc.reset()
	assert.True(t, tc.allow(rule, "", base.Add(time.Second)))
}
