package storage

import (
	"context"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageRule(id string, createdAt time.Time) *core.Rule {
	return &core.Rule{
		ID:       id,
		Name:     "Rule " + id,
		Enabled:  true,
		Severity: core.SeverityMedium,
		Conditions: []core.Condition{
			{Field: "action", Operator: core.OpEquals, Value: "login_failure"},
		},
		CreatedAt: createdAt,
	}
}

func storageAlert(id, ruleID, severity string, status core.AlertStatus, createdAt time.Time) *core.Alert {
	return &core.Alert{
		AlertID:         id,
		RuleID:          ruleID,
		RuleName:        "Rule " + ruleID,
		Severity:        severity,
		Status:          status,
		CreatedAt:       createdAt,
		LastOccurrence:  createdAt,
		OccurrenceCount: 1,
	}
}

func TestMemoryRuleCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rule := storageRule("r1", time.Now())

	require.NoError(t, m.InsertRule(ctx, rule))
	assert.ErrorIs(t, m.InsertRule(ctx, rule), ErrDuplicateRule)

	got, err := m.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)

	rule.Name = "Renamed"
	require.NoError(t, m.UpdateRule(ctx, rule))
	got, err = m.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, m.DeleteRule(ctx, "r1"))
	_, err = m.GetRule(ctx, "r1")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, m.UpdateRule(ctx, rule), ErrRuleNotFound)
	assert.ErrorIs(t, m.DeleteRule(ctx, "r1"), ErrRuleNotFound)
}

func TestMemoryListRulesOrdered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, m.InsertRule(ctx, storageRule("newer", base.Add(time.Hour))))
	require.NoError(t, m.InsertRule(ctx, storageRule("older", base)))

	rules, err := m.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "older", rules[0].ID)
	assert.Equal(t, "newer", rules[1].ID)
}

func TestMemoryAlertCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	alert := storageAlert("a1", "r1", core.SeverityHigh, core.AlertStatusOpen, time.Now())

	require.NoError(t, m.InsertAlert(ctx, alert))

	got, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RuleID)

	alert.Status = core.AlertStatusAcknowledged
	require.NoError(t, m.UpdateAlert(ctx, alert))
	got, err = m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusAcknowledged, got.Status)

	_, err = m.GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	assert.ErrorIs(t, m.UpdateAlert(ctx, storageAlert("missing", "r", core.SeverityLow, core.AlertStatusOpen, time.Now())), ErrAlertNotFound)
}

func TestMemoryListAlertsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, m.InsertAlert(ctx, storageAlert("a1", "r1", core.SeverityHigh, core.AlertStatusOpen, base)))
	require.NoError(t, m.InsertAlert(ctx, storageAlert("a2", "r1", core.SeverityLow, core.AlertStatusResolved, base.Add(time.Minute))))
	require.NoError(t, m.InsertAlert(ctx, storageAlert("a3", "r2", core.SeverityHigh, core.AlertStatusOpen, base.Add(2*time.Minute))))

	alerts, total, err := m.ListAlerts(ctx, &AlertFilters{Status: "open"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a3", alerts[0].AlertID, "newest first")

	alerts, total, err = m.ListAlerts(ctx, &AlertFilters{Severity: core.SeverityHigh, RuleID: "r2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a3", alerts[0].AlertID)

	// nil filters returns everything
	alerts, total, err = m.ListAlerts(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, alerts, 3)
}

func TestMemoryListAlertsPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.InsertAlert(ctx, storageAlert(
			string(rune('a'+i)), "r1", core.SeverityLow, core.AlertStatusOpen, base.Add(time.Duration(i)*time.Minute))))
	}

	alerts, total, err := m.ListAlerts(ctx, &AlertFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total, "total counts before pagination")
	require.Len(t, alerts, 2)
	assert.Equal(t, "d", alerts[0].AlertID)
	assert.Equal(t, "c", alerts[1].AlertID)

	// Offset beyond the result set yields an empty page
	alerts, total, err = m.ListAlerts(ctx, &AlertFilters{Offset: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Empty(t, alerts)
}

func TestMemoryStoreIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	alert := storageAlert("a1", "r1", core.SeverityHigh, core.AlertStatusOpen, time.Now())
	require.NoError(t, m.InsertAlert(ctx, alert))

	// Mutating the returned copy must not affect the stored record
	got, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	got.Status = core.AlertStatusResolved

	again, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusOpen, again.Status)
}
