package storage

import (
	"context"

	"argus/core"
)

// AlertFilters narrows ListAlerts results
type AlertFilters struct {
	Status   string
	Severity string
	RuleID   string
	Limit    int
	Offset   int
}

// RuleStore is the durable configuration store for detection rules
type RuleStore interface {
	InsertRule(ctx context.Context, rule *core.Rule) error
	UpdateRule(ctx context.Context, rule *core.Rule) error
	DeleteRule(ctx context.Context, ruleID string) error
	GetRule(ctx context.Context, ruleID string) (*core.Rule, error)
	ListRules(ctx context.Context) ([]core.Rule, error)
}

// AlertStore persists alerts for audit and UI consumption. The engine
// writes on create, occurrence-merge, acknowledge and resolve.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *core.Alert) error
	UpdateAlert(ctx context.Context, alert *core.Alert) error
	GetAlert(ctx context.Context, alertID string) (*core.Alert, error)
	ListAlerts(ctx context.Context, filters *AlertFilters) ([]core.Alert, int64, error)
}

// Store bundles the stores a deployment provides
type Store interface {
	RuleStore
	AlertStore
	Close() error
}
