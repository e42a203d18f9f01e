package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent()
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Fields)

	other := NewEvent()
	assert.NotEqual(t, event.EventID, other.EventID)
}

func TestEventFieldTopLevel(t *testing.T) {
	event := &Event{
		Source:    "auth-service",
		EventType: "authentication",
		Action:    "login_failure",
		Actor:     "alice",
		Resource:  "portal",
	}

	assert.Equal(t, "auth-service", event.Field("source"))
	assert.Equal(t, "login_failure", event.Field("action"))
	assert.Equal(t, "alice", event.Field("actor"))
	assert.Nil(t, event.Field("no_such_field"))
}

func TestEventFieldNested(t *testing.T) {
	event := &Event{
		Fields: map[string]interface{}{
			"http": map[string]interface{}{
				"status": 403,
				"request": map[string]interface{}{
					"path": "/admin",
				},
			},
			"count": 5,
		},
	}

	assert.Equal(t, 403, event.Field("http.status"))
	assert.Equal(t, "/admin", event.Field("http.request.path"))
	assert.Equal(t, 5, event.Field("count"))

	// Any absent segment yields nil
	assert.Nil(t, event.Field("http.missing"))
	assert.Nil(t, event.Field("http.status.deeper"))
	assert.Nil(t, event.Field("missing.path"))
}

func TestEventFieldStructWinsCollision(t *testing.T) {
	event := &Event{
		Actor: "struct-actor",
		Fields: map[string]interface{}{
			"actor": "map-actor",
		},
	}
	assert.Equal(t, "struct-actor", event.Field("actor"))
}

func TestEventFieldNilEvent(t *testing.T) {
	var event *Event
	assert.Nil(t, event.Field("source"))

	event = &Event{Source: "x"}
	assert.Nil(t, event.Field(""))
}
