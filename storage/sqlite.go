package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"argus/core"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite persists rules and alerts. Nested structures (conditions,
// actions, acknowledgements, notification records) are stored as JSON
// blobs; filterable columns are denormalized.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	enabled     INTEGER NOT NULL DEFAULT 1,
	severity    TEXT NOT NULL,
	category    TEXT,
	throttle    TEXT,
	body        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	alert_id        TEXT PRIMARY KEY,
	rule_id         TEXT NOT NULL,
	severity        TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	last_occurrence TIMESTAMP NOT NULL,
	body            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_rule_id ON alerts(rule_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
`

// NewSQLite opens (creating if needed) the database at path and applies
// the schema. WAL mode allows concurrent reads alongside the single writer.
func NewSQLite(path string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// WAL mode's single-writer model wants exactly one write connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Infof("SQLite storage ready at %s", path)
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertRule stores a new rule
func (s *SQLite) InsertRule(ctx context.Context, rule *core.Rule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, enabled, severity, category, throttle, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, boolToInt(rule.Enabled), rule.Severity, rule.Category,
		rule.Throttle, string(body), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRule
		}
		return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}
	return nil
}

// UpdateRule replaces an existing rule
func (s *SQLite) UpdateRule(ctx context.Context, rule *core.Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name=?, enabled=?, severity=?, category=?, throttle=?, body=?, updated_at=?
		 WHERE id=?`,
		rule.Name, boolToInt(rule.Enabled), rule.Severity, rule.Category,
		rule.Throttle, string(body), rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", rule.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule
func (s *SQLite) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id=?`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", ruleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetRule retrieves a rule by ID
func (s *SQLite) GetRule(ctx context.Context, ruleID string) (*core.Rule, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rules WHERE id=?`, ruleID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule %s: %w", ruleID, err)
	}

	var rule core.Rule
	if err := json.Unmarshal([]byte(body), &rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule %s: %w", ruleID, err)
	}
	return &rule, nil
}

// ListRules retrieves all rules
func (s *SQLite) ListRules(ctx context.Context) ([]core.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		var rule core.Rule
		if err := json.Unmarshal([]byte(body), &rule); err != nil {
			s.logger.Warnw("Skipping undecodable rule row", "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// InsertAlert stores a new alert
func (s *SQLite) InsertAlert(ctx context.Context, alert *core.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", alert.AlertID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, rule_id, severity, status, created_at, last_occurrence, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.AlertID, alert.RuleID, alert.Severity, string(alert.Status),
		alert.CreatedAt, alert.LastOccurrence, string(body))
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// UpdateAlert replaces an existing alert record
func (s *SQLite) UpdateAlert(ctx context.Context, alert *core.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %w", alert.AlertID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET severity=?, status=?, last_occurrence=?, body=? WHERE alert_id=?`,
		alert.Severity, string(alert.Status), alert.LastOccurrence, string(body), alert.AlertID)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.AlertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// GetAlert retrieves an alert by ID
func (s *SQLite) GetAlert(ctx context.Context, alertID string) (*core.Alert, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM alerts WHERE alert_id=?`, alertID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %s: %w", alertID, err)
	}

	var alert core.Alert
	if err := json.Unmarshal([]byte(body), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert %s: %w", alertID, err)
	}
	return &alert, nil
}

// ListAlerts retrieves alerts matching the filters, newest first, with the
// total count before pagination.
func (s *SQLite) ListAlerts(ctx context.Context, filters *AlertFilters) ([]core.Alert, int64, error) {
	if filters == nil {
		filters = &AlertFilters{}
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	if filters.Status != "" {
		where += " AND status=?"
		args = append(args, filters.Status)
	}
	if filters.Severity != "" {
		where += " AND severity=?"
		args = append(args, filters.Severity)
	}
	if filters.RuleID != "" {
		where += " AND rule_id=?"
		args = append(args, filters.RuleID)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT body FROM alerts " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filters.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert row: %w", err)
		}
		var alert core.Alert
		if err := json.Unmarshal([]byte(body), &alert); err != nil {
			s.logger.Warnw("Skipping undecodable alert row", "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, total, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
