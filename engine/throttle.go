package engine

import (
	"sync"
	"time"

	"argus/core"

	lru "github.com/hashicorp/golang-lru/v2"
)

// throttleCacheSize bounds the throttle table; entries beyond it are the
// least recently fired rule x group pairs, which are safe to forget.
const throttleCacheSize = 16384

// globalThrottleKey is used when a rule has no groupBy partitioning
const globalThrottleKey = "global"

// throttleController suppresses re-firing the same rule (optionally per
// group value) more often than its configured cooldown. Independent from
// dedup: it governs creation of new alerts, not occurrence merging.
// The mutex makes the check-then-set atomic; the engine's correlation
// locks key on source, not group, so two sources can race one group key.
type throttleController struct {
	mu      sync.Mutex
	entries *lru.Cache[string, time.Time]
}

func newThrottleController() (*throttleController, error) {
	entries, err := lru.New[string, time.Time](throttleCacheSize)
	if err != nil {
		return nil, err
	}
	return &throttleController{entries: entries}, nil
}

// throttleKey partitions cooldowns per rule, and per group value when the
// rule is grouped. Grouped keys carry their own prefix so a group value
// that is empty (or literally "global") never shares the ungrouped key.
func throttleKey(rule *core.Rule, groupValue string) string {
	if rule.Threshold == nil || rule.Threshold.GroupBy == "" {
		return rule.ID + "\x00" + globalThrottleKey
	}
	return rule.ID + "\x00group:" + groupValue
}

// allow reports whether a fresh alert for the rule x group may be created.
// Within the cooldown it suppresses silently and does not touch
// lastFiredAt; on an allowed firing lastFiredAt is set unconditionally.
func (tc *throttleController) allow(rule *core.Rule, groupValue string, now time.Time) bool {
	key := throttleKey(rule, groupValue)

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if lastFired, ok := tc.entries.Get(key); ok {
		if now.Sub(lastFired) < rule.ThrottleWindow() {
			return false
		}
	}
	tc.entries.Add(key, now)
	return true
}

// reset clears all throttle entries
func (tc *throttleController) reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries.Purge()
}
