package core

import (
	"fmt"
	"time"
)

// Severity levels for rules and the alerts they generate
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityRank orders severities for filtering; unknown severities rank lowest.
var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank returns the numeric rank of a severity (0 for unknown)
func SeverityRank(severity string) int {
	return severityRank[severity]
}

// IsValidSeverity checks if the severity is one of the known levels
func IsValidSeverity(severity string) bool {
	_, ok := severityRank[severity]
	return ok
}

// Operator is the closed set of condition operators. Unknown operators
// evaluate to false (fail-closed) rather than erroring.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpRegex       Operator = "regex"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// IsValid checks if the operator is one of the supported set
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpRegex, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpExists, OpNotExists:
		return true
	default:
		return false
	}
}

// Condition matches a single event field against a value.
// All conditions in a rule are ANDed.
type Condition struct {
	Field    string      `json:"field" yaml:"field" validate:"required"`
	Operator Operator    `json:"operator" yaml:"operator" validate:"required"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Threshold defines "count matching events within window", optionally
// partitioned by the value at GroupBy.
type Threshold struct {
	Count   int    `json:"count" yaml:"count" validate:"min=1"`
	Window  string `json:"window" yaml:"window" validate:"required"`
	GroupBy string `json:"group_by,omitempty" yaml:"group_by,omitempty"`
}

// Action is a notification channel binding on a rule
type Action struct {
	Type   string                 `json:"type" yaml:"type" validate:"required,oneof=webhook email chat pager log"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// Rule is a declarative detection rule: ANDed field conditions plus an
// optional sliding-window threshold and a per-rule notification throttle.
type Rule struct {
	ID          string      `json:"id" yaml:"id" validate:"required,max=128"`
	Name        string      `json:"name" yaml:"name" validate:"required,max=256"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Severity    string      `json:"severity" yaml:"severity" validate:"required,oneof=low medium high critical"`
	Category    string      `json:"category,omitempty" yaml:"category,omitempty"`
	Conditions  []Condition `json:"conditions" yaml:"conditions" validate:"required,min=1,dive"`
	Threshold   *Threshold  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Throttle    string      `json:"throttle,omitempty" yaml:"throttle,omitempty"` // duration string, default "5m"
	Actions     []Action    `json:"actions,omitempty" yaml:"actions,omitempty" validate:"omitempty,dive"`
	CreatedAt   time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"-"`
}

// DefaultThrottle is applied when a rule does not set its own cooldown.
const DefaultThrottle = "5m"

// ThrottleWindow returns the parsed throttle cooldown for the rule
func (r *Rule) ThrottleWindow() time.Duration {
	if r.Throttle == "" {
		return ParseWindow(DefaultThrottle)
	}
	return ParseWindow(r.Throttle)
}

// Validate checks rule invariants: at least one condition, known severity,
// a sane threshold when present. Duration strings are not rejected here
// because the parser falls back to a default for malformed input.
func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot validate nil rule")
	}
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s must have at least one condition", r.ID)
	}
	if !IsValidSeverity(r.Severity) {
		return fmt.Errorf("rule %s has unknown severity %q", r.ID, r.Severity)
	}
	for i, cond := range r.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("rule %s condition %d has empty field", r.ID, i)
		}
		if !cond.Operator.IsValid() {
			return fmt.Errorf("rule %s condition %d has unknown operator %q", r.ID, i, cond.Operator)
		}
	}
	if r.Threshold != nil {
		if r.Threshold.Count < 1 {
			return fmt.Errorf("rule %s threshold count must be >= 1", r.ID)
		}
		if r.Threshold.Window == "" {
			return fmt.Errorf("rule %s threshold window cannot be empty", r.ID)
		}
	}
	return nil
}
