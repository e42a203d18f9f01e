package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	// AlertStatusOpen indicates a fired alert that hasn't been reviewed
	AlertStatusOpen AlertStatus = "open"
	// AlertStatusAcknowledged indicates an alert an operator has taken ownership of
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	// AlertStatusResolved is the terminal state
	AlertStatusResolved AlertStatus = "resolved"
)

// String returns the string representation
func (s AlertStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusOpen, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	default:
		return false
	}
}

// Acknowledgement records who acknowledged an alert and when
type Acknowledgement struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

// Resolution records the terminal disposition of an alert
type Resolution struct {
	By    string    `json:"by"`
	Notes string    `json:"notes,omitempty"`
	At    time.Time `json:"at"`
}

// EventSummary is the slice of the triggering event carried on an alert
// and in notification payloads.
type EventSummary struct {
	EventID   string    `json:"event_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Resource  string    `json:"resource"`
	Source    string    `json:"source"`
	RiskLevel string    `json:"risk_level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SummarizeEvent builds an EventSummary from an event
func SummarizeEvent(event *Event) EventSummary {
	if event == nil {
		return EventSummary{}
	}
	return EventSummary{
		EventID:   event.EventID,
		Action:    event.Action,
		Actor:     event.Actor,
		Resource:  event.Resource,
		Source:    event.Source,
		RiskLevel: event.RiskLevel,
		Timestamp: event.Timestamp,
	}
}

// NotificationRecord captures the per-channel outcome of a dispatch.
// Delivery is at-least-once best-effort; failures are flagged here and
// logged, never retried by the engine itself.
type NotificationRecord struct {
	Channel    string        `json:"channel"`
	Target     string        `json:"target,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
	Dispatched time.Time     `json:"dispatched"`
}

// Alert is a fired rule instance tracked through its lifecycle.
// Invariants: OccurrenceCount >= 1; status transitions are monotonic.
type Alert struct {
	AlertID          string               `json:"alert_id"`
	RuleID           string               `json:"rule_id"`
	RuleName         string               `json:"rule_name"`
	Severity         string               `json:"severity"`
	Category         string               `json:"category,omitempty"`
	Status           AlertStatus          `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	TriggerEvent     EventSummary         `json:"trigger_event"`
	GroupValue       string               `json:"group_value,omitempty"`
	OccurrenceCount  int                  `json:"occurrence_count"`
	LastOccurrence   time.Time            `json:"last_occurrence"`
	Acknowledgements []Acknowledgement    `json:"acknowledgements,omitempty"`
	Resolution       *Resolution          `json:"resolution,omitempty"`
	Notifications    []NotificationRecord `json:"notifications,omitempty"`
}

// NewAlert creates an open alert for a rule firing on the given event
func NewAlert(rule *Rule, event *Event) (*Alert, error) {
	if rule == nil {
		return nil, fmt.Errorf("cannot create alert for nil rule")
	}
	if event == nil {
		return nil, fmt.Errorf("cannot create alert for nil event")
	}
	now := time.Now().UTC()
	return &Alert{
		AlertID:         uuid.New().String(),
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		Severity:        rule.Severity,
		Category:        rule.Category,
		Status:          AlertStatusOpen,
		CreatedAt:       now,
		TriggerEvent:    SummarizeEvent(event),
		OccurrenceCount: 1,
		LastOccurrence:  event.Timestamp,
	}, nil
}

// IsTerminal reports whether the alert has reached its final state
func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusResolved
}

// RecordOccurrence merges a repeat firing into the alert
func (a *Alert) RecordOccurrence(event *Event) {
	a.OccurrenceCount++
	if event != nil {
		a.LastOccurrence = event.Timestamp
	}
}
