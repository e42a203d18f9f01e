package engine

import (
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
)

func conditionTestEngine(t *testing.T) *CorrelationEngine {
	t.Helper()
	ce, _, _ := newTestEngine(t, Options{})
	return ce
}

func conditionEvent() *core.Event {
	return &core.Event{
		EventID:   "evt-1",
		Timestamp: time.Now(),
		Source:    "auth-service",
		EventType: "authentication",
		Action:    "login_failure",
		Actor:     "Alice",
		Resource:  "portal",
		RiskLevel: "high",
		Fields: map[string]interface{}{
			"attempts": float64(7),
			"ip":       "10.1.2.3",
			"http": map[string]interface{}{
				"status": float64(403),
			},
		},
	}
}

func TestMatchConditionOperators(t *testing.T) {
	ce := conditionTestEngine(t)
	event := conditionEvent()

	tests := []struct {
		name string
		cond core.Condition
		want bool
	}{
		{"equals match", core.Condition{Field: "action", Operator: core.OpEquals, Value: "login_failure"}, true},
		{"equals mismatch", core.Condition{Field: "action", Operator: core.OpEquals, Value: "login_success"}, false},
		{"equals numeric cross-type", core.Condition{Field: "attempts", Operator: core.OpEquals, Value: 7}, true},
		{"not_equals", core.Condition{Field: "action", Operator: core.OpNotEquals, Value: "logout"}, true},
		{"not_equals same", core.Condition{Field: "action", Operator: core.OpNotEquals, Value: "login_failure"}, false},
		{"contains case-insensitive", core.Condition{Field: "actor", Operator: core.OpContains, Value: "LIC"}, true},
		{"contains no", core.Condition{Field: "actor", Operator: core.OpContains, Value: "bob"}, false},
		{"starts_with", core.Condition{Field: "ip", Operator: core.OpStartsWith, Value: "10."}, true},
		{"starts_with no", core.Condition{Field: "ip", Operator: core.OpStartsWith, Value: "192."}, false},
		{"ends_with", core.Condition{Field: "source", Operator: core.OpEndsWith, Value: "-service"}, true},
		{"ends_with no", core.Condition{Field: "source", Operator: core.OpEndsWith, Value: "-daemon"}, false},
		{"regex", core.Condition{Field: "ip", Operator: core.OpRegex, Value: `^10\.\d+\.`}, true},
		{"regex case-insensitive", core.Condition{Field: "actor", Operator: core.OpRegex, Value: "^alice$"}, true},
		{"regex no match", core.Condition{Field: "ip", Operator: core.OpRegex, Value: `^192\.`}, false},
		{"in", core.Condition{Field: "action", Operator: core.OpIn, Value: []interface{}{"logout", "login_failure"}}, true},
		{"in absent", core.Condition{Field: "action", Operator: core.OpIn, Value: []interface{}{"logout"}}, false},
		{"not_in", core.Condition{Field: "action", Operator: core.OpNotIn, Value: []interface{}{"logout"}}, true},
		{"not_in present", core.Condition{Field: "action", Operator: core.OpNotIn, Value: []interface{}{"login_failure"}}, false},
		{"greater_than", core.Condition{Field: "attempts", Operator: core.OpGreaterThan, Value: 5}, true},
		{"greater_than equal is false", core.Condition{Field: "attempts", Operator: core.OpGreaterThan, Value: 7}, false},
		{"less_than", core.Condition{Field: "attempts", Operator: core.OpLessThan, Value: 10}, true},
		{"less_than no", core.Condition{Field: "attempts", Operator: core.OpLessThan, Value: 3}, false},
		{"nested field", core.Condition{Field: "http.status", Operator: core.OpEquals, Value: 403}, true},
		{"exists", core.Condition{Field: "ip", Operator: core.OpExists}, true},
		{"exists absent", core.Condition{Field: "session", Operator: core.OpExists}, false},
		{"not_exists", core.Condition{Field: "session", Operator: core.OpNotExists}, true},
		{"not_exists present", core.Condition{Field: "ip", Operator: core.OpNotExists}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ce.matchCondition(tt.cond, event))
		})
	}
}

func TestMatchConditionFailsClosed(t *testing.T) {
	ce := conditionTestEngine(t)
	event := conditionEvent()

	tests := []struct {
		name string
		cond core.Condition
	}{
		{"missing field", core.Condition{Field: "no_such", Operator: core.OpEquals, Value: "x"}},
		{"unknown operator", core.Condition{Field: "action", Operator: "matches", Value: "x"}},
		{"invalid regex", core.Condition{Field: "action", Operator: core.OpRegex, Value: "["}},
		{"in with non-list", core.Condition{Field: "action", Operator: core.OpIn, Value: "login_failure"}},
		{"not_in with non-list", core.Condition{Field: "action", Operator: core.OpNotIn, Value: "logout"}},
		{"greater_than non-numeric field", core.Condition{Field: "action", Operator: core.OpGreaterThan, Value: 5}},
		{"greater_than non-numeric value", core.Condition{Field: "attempts", Operator: core.OpGreaterThan, Value: "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, ce.matchCondition(tt.cond, event), "must resolve to no-match, never error")
		})
	}
}

func TestMatchConditionNumericStrings(t *testing.T) {
	ce := conditionTestEngine(t)
	event := &core.Event{
		Fields: map[string]interface{}{"port": "8080"},
	}
	assert.True(t, ce.matchCondition(core.Condition{Field: "port", Operator: core.OpGreaterThan, Value: 1024}, event))
	assert.True(t, ce.matchCondition(core.Condition{Field: "port", Operator: core.OpEquals, Value: 8080}, event))
}

func TestMatchRuleAndSemantics(t *testing.T) {
	ce := conditionTestEngine(t)
	event := conditionEvent()

	rule := &core.Rule{
		ID: "r1", Name: "r1", Severity: core.SeverityLow,
		Conditions: []core.Condition{
			{Field: "event_type", Operator: core.OpEquals, Value: "authentication"},
			{Field: "action", Operator: core.OpEquals, Value: "login_failure"},
		},
	}
	assert.True(t, ce.matchRule(rule, event))

	// One failing condition fails the whole rule
	rule.Conditions = append(rule.Conditions, core.Condition{
		Field: "actor", Operator: core.OpEquals, Value: "bob",
	})
	assert.False(t, ce.matchRule(rule, event))

	// Zero conditions never match
	rule.Conditions = nil
	assert.False(t, ce.matchRule(rule, event))
}

func TestRegexCacheReusesCompiledPattern(t *testing.T) {
	rc := newRegexCache()
	first := rc.get(`^abc`)
	second := rc.get(`^abc`)
	assert.Same(t, first, second)

	// Bad patterns are cached as nil
	assert.Nil(t, rc.get("["))
	assert.Nil(t, rc.get("["))
}
