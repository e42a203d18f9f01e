package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"argus/core"

	"github.com/dlclark/regexp2"
)

// regexMatchTimeout bounds pathological patterns supplied by rule authors.
const regexMatchTimeout = 100 * time.Millisecond

// regexCache caches compiled patterns per rule-authored expression.
// Compilation failures are cached as nil so bad patterns fail closed
// without recompiling on every event.
type regexCache struct {
	mu       sync.RWMutex
	patterns map[string]*regexp2.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{patterns: make(map[string]*regexp2.Regexp)}
}

func (rc *regexCache) get(pattern string) *regexp2.Regexp {
	rc.mu.RLock()
	re, ok := rc.patterns[pattern]
	rc.mu.RUnlock()
	if ok {
		return re
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if re, ok := rc.patterns[pattern]; ok {
		return re
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		re = nil
	} else {
		re.MatchTimeout = regexMatchTimeout
	}
	rc.patterns[pattern] = re
	return re
}

// matchCondition evaluates a single condition against the event.
// Evaluation errors (missing field, type mismatch, bad pattern) resolve to
// "no match", never an error: one bad rule must not halt the others.
func (ce *CorrelationEngine) matchCondition(cond core.Condition, event *core.Event) bool {
	value := event.Field(cond.Field)

	switch cond.Operator {
	case core.OpExists:
		return value != nil
	case core.OpNotExists:
		return value == nil
	}

	// Remaining operators require a present field
	if value == nil {
		return false
	}

	switch cond.Operator {
	case core.OpEquals:
		return looseEqual(value, cond.Value)
	case core.OpNotEquals:
		return !looseEqual(value, cond.Value)
	case core.OpContains:
		return strings.Contains(lowerText(value), lowerText(cond.Value))
	case core.OpStartsWith:
		return strings.HasPrefix(lowerText(value), lowerText(cond.Value))
	case core.OpEndsWith:
		return strings.HasSuffix(lowerText(value), lowerText(cond.Value))
	case core.OpRegex:
		re := ce.regexes.get(asText(cond.Value))
		if re == nil {
			return false
		}
		ok, err := re.MatchString(asText(value))
		return err == nil && ok
	case core.OpIn:
		return inList(value, cond.Value)
	case core.OpNotIn:
		list, ok := asList(cond.Value)
		if !ok {
			// Rule-authoring error: non-list value fails closed
			return false
		}
		return !containsValue(list, value)
	case core.OpGreaterThan:
		return compareNumbers(value, cond.Value, func(a, b float64) bool { return a > b })
	case core.OpLessThan:
		return compareNumbers(value, cond.Value, func(a, b float64) bool { return a < b })
	}

	// Unknown operator fails closed
	return false
}

// matchRule checks if every condition matches (logical AND, short-circuit)
func (ce *CorrelationEngine) matchRule(rule *core.Rule, event *core.Event) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !ce.matchCondition(cond, event) {
			return false
		}
	}
	return true
}

// looseEqual compares values, treating numerically-equal values of
// different Go numeric kinds as equal (JSON decodes everything to float64).
func looseEqual(a, b interface{}) bool {
	if fa, okA := asNumber(a); okA {
		if fb, okB := asNumber(b); okB {
			return fa == fb
		}
	}
	return asText(a) == asText(b)
}

// inList tests membership; a non-list value is a rule-authoring error and
// fails closed.
func inList(value, listVal interface{}) bool {
	list, ok := asList(listVal)
	if !ok {
		return false
	}
	return containsValue(list, value)
}

func containsValue(list []interface{}, value interface{}) bool {
	for _, item := range list {
		if looseEqual(item, value) {
			return true
		}
	}
	return false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// asText coerces a field or rule value to its text form
func asText(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func lowerText(v interface{}) string {
	return strings.ToLower(asText(v))
}

// asNumber coerces a value to float64, including numeric strings
func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// compareNumbers compares two values as numbers; non-numeric operands
// compare as failed rather than erroring.
func compareNumbers(a, b interface{}, cmp func(float64, float64) bool) bool {
	fa, ok := asNumber(a)
	if !ok {
		return false
	}
	fb, ok := asNumber(b)
	if !ok {
		return false
	}
	return cmp(fa, fb)
}
