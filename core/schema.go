package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event represents the common schema for all ingested security events.
// The engine never interprets fields beyond what rule conditions and
// groupBy paths reference.
type Event struct {
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	EventType string                 `json:"event_type"`
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`
	Resource  string                 `json:"resource"`
	RiskLevel string                 `json:"risk_level,omitempty"`
	Fields    map[string]interface{} `json:"fields"`
}

// NewEvent creates a new Event with a generated UUID
func NewEvent() *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Fields:    make(map[string]interface{}),
	}
}

// Field extracts a value from the event using dot notation (e.g. "actor.id").
// Top-level struct fields are merged with the free-form Fields map; struct
// fields win on collision. Returns nil when any path segment is absent.
func (e *Event) Field(path string) interface{} {
	if e == nil || path == "" {
		return nil
	}

	current := map[string]interface{}{
		"event_id":   e.EventID,
		"timestamp":  e.Timestamp,
		"source":     e.Source,
		"event_type": e.EventType,
		"action":     e.Action,
		"actor":      e.Actor,
		"resource":   e.Resource,
		"risk_level": e.RiskLevel,
	}
	for k, v := range e.Fields {
		if _, taken := current[k]; !taken {
			current[k] = v
		}
	}

	parts := strings.Split(path, ".")
	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return val
		}
		m, ok := val.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m
	}
	return nil
}
