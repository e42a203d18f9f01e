package api

import (
	"encoding/json"
	"net/http"
	"time"

	"argus/core"

	"github.com/google/uuid"
)

// eventResponse is the ingestion result: the normalized event identity
// plus the alerts the event created or merged into
type eventResponse struct {
	EventID string        `json:"event_id"`
	Alerts  []*core.Alert `json:"alerts"`
}

// ingestEvent accepts one event, runs it through the correlation engine
// and returns any alerts it produced. Missing event_id and timestamp are
// filled in server-side.
func (a *API) ingestEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.JSONBodyLimit)

	var event core.Event
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event payload", err, a.logger)
		return
	}

	if event.Source == "" {
		writeError(w, http.StatusBadRequest, "Event source cannot be empty", nil, a.logger)
		return
	}
	if event.EventType == "" {
		writeError(w, http.StatusBadRequest, "Event type cannot be empty", nil, a.logger)
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	alerts, err := a.engine.Evaluate(r.Context(), &event)
	if err != nil {
		// Persistence trouble: the alerts still exist in the engine, so
		// report them alongside a 500 in the logs rather than failing
		// the ingestion outright
		a.logger.Errorw("Event evaluated with persistence errors",
			"event_id", event.EventID,
			"error", err)
	}
	if alerts == nil {
		alerts = []*core.Alert{}
	}

	a.respondJSON(w, eventResponse{EventID: event.EventID, Alerts: alerts}, http.StatusAccepted)
}
