package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"argus/core"
	"argus/engine"
	"argus/storage"

	"github.com/gorilla/mux"
)

// alertListResponse pairs a page of alerts with the unpaginated total
type alertListResponse struct {
	Alerts []core.Alert `json:"alerts"`
	Total  int64        `json:"total"`
}

// lifecycleRequest carries the operator identity for acknowledge/resolve
type lifecycleRequest struct {
	By    string `json:"by"`
	Notes string `json:"notes,omitempty"`
}

// getAlerts lists alerts with optional status/severity/rule filters
func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &storage.AlertFilters{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		RuleID:   q.Get("rule_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000", nil, a.logger)
			return
		}
		filters.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be non-negative", nil, a.logger)
			return
		}
		filters.Offset = n
	}
	if filters.Status != "" && !core.AlertStatus(filters.Status).IsValid() {
		writeError(w, http.StatusBadRequest, "unknown status filter", nil, a.logger)
		return
	}
	if filters.Severity != "" && !core.IsValidSeverity(filters.Severity) {
		writeError(w, http.StatusBadRequest, "unknown severity filter", nil, a.logger)
		return
	}

	alerts, total, err := a.store.ListAlerts(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve alerts", err, a.logger)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	a.respondJSON(w, alertListResponse{Alerts: alerts, Total: total}, http.StatusOK)
}

// getAlert retrieves a single alert from the store
func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := a.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found", nil, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to retrieve alert", err, a.logger)
		return
	}
	a.respondJSON(w, alert, http.StatusOK)
}

// acknowledgeAlert transitions an active alert to acknowledged
func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, ok := a.decodeLifecycleRequest(w, r)
	if !ok {
		return
	}

	alert, err := a.engine.Acknowledge(r.Context(), id, req.By)
	if err != nil {
		a.writeLifecycleError(w, err)
		return
	}
	a.respondJSON(w, alert, http.StatusOK)
}

// resolveAlert transitions an active alert to its terminal state
func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, ok := a.decodeLifecycleRequest(w, r)
	if !ok {
		return
	}

	alert, err := a.engine.Resolve(r.Context(), id, req.By, req.Notes)
	if err != nil {
		a.writeLifecycleError(w, err)
		return
	}
	a.respondJSON(w, alert, http.StatusOK)
}

func (a *API) decodeLifecycleRequest(w http.ResponseWriter, r *http.Request) (*lifecycleRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.JSONBodyLimit)

	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload", err, a.logger)
		return nil, false
	}
	if req.By == "" {
		writeError(w, http.StatusBadRequest, "Field 'by' cannot be empty", nil, a.logger)
		return nil, false
	}
	return &req, true
}

// writeLifecycleError maps lifecycle failures onto HTTP status codes:
// unknown alert is 404, a disallowed transition is 409, the rest 500
func (a *API) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrAlertNotActive):
		writeError(w, http.StatusNotFound, "Alert not found or no longer active", nil, a.logger)
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Alert state does not allow this transition", nil, a.logger)
	default:
		writeError(w, http.StatusInternalServerError, "Alert update failed", err, a.logger)
	}
}
