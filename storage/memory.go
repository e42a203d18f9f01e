package storage

import (
	"context"
	"sort"
	"sync"

	"argus/core"
)

// Memory is an in-memory Store used in tests and for ephemeral
// deployments. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	rules  map[string]core.Rule
	alerts map[string]core.Alert
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		rules:  make(map[string]core.Rule),
		alerts: make(map[string]core.Alert),
	}
}

// Close is a no-op for the in-memory store
func (m *Memory) Close() error {
	return nil
}

// InsertRule stores a new rule
func (m *Memory) InsertRule(_ context.Context, rule *core.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.ID]; exists {
		return ErrDuplicateRule
	}
	m.rules[rule.ID] = *rule
	return nil
}

// UpdateRule replaces an existing rule
func (m *Memory) UpdateRule(_ context.Context, rule *core.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.ID]; !exists {
		return ErrRuleNotFound
	}
	m.rules[rule.ID] = *rule
	return nil
}

// DeleteRule removes a rule
func (m *Memory) DeleteRule(_ context.Context, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[ruleID]; !exists {
		return ErrRuleNotFound
	}
	delete(m.rules, ruleID)
	return nil
}

// GetRule retrieves a rule by ID
func (m *Memory) GetRule(_ context.Context, ruleID string) (*core.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, exists := m.rules[ruleID]
	if !exists {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

// ListRules retrieves all rules ordered by creation time
func (m *Memory) ListRules(_ context.Context) ([]core.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := make([]core.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// InsertAlert stores a new alert
func (m *Memory) InsertAlert(_ context.Context, alert *core.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.AlertID] = *alert
	return nil
}

// UpdateAlert replaces an existing alert record
func (m *Memory) UpdateAlert(_ context.Context, alert *core.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.alerts[alert.AlertID]; !exists {
		return ErrAlertNotFound
	}
	m.alerts[alert.AlertID] = *alert
	return nil
}

// GetAlert retrieves an alert by ID
func (m *Memory) GetAlert(_ context.Context, alertID string) (*core.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, exists := m.alerts[alertID]
	if !exists {
		return nil, ErrAlertNotFound
	}
	return &alert, nil
}

// ListAlerts retrieves alerts matching the filters, newest first
func (m *Memory) ListAlerts(_ context.Context, filters *AlertFilters) ([]core.Alert, int64, error) {
	if filters == nil {
		filters = &AlertFilters{}
	}

	m.mu.RLock()
	var matched []core.Alert
	for _, alert := range m.alerts {
		if filters.Status != "" && string(alert.Status) != filters.Status {
			continue
		}
		if filters.Severity != "" && alert.Severity != filters.Severity {
			continue
		}
		if filters.RuleID != "" && alert.RuleID != filters.RuleID {
			continue
		}
		matched = append(matched, alert)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	offset := filters.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}
