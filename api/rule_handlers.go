package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"argus/core"
	"argus/storage"

	"github.com/gorilla/mux"
)

// getRules lists all rules from the store
func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rules", err, a.logger)
		return
	}
	if rules == nil {
		rules = []core.Rule{}
	}
	a.respondJSON(w, rules, http.StatusOK)
}

// getRule retrieves a single rule
func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, err := a.store.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found", nil, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to retrieve rule", err, a.logger)
		return
	}
	a.respondJSON(w, rule, http.StatusOK)
}

// createRule stores a new rule and reloads the engine snapshot
func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.decodeRule(w, r)
	if !ok {
		return
	}

	if err := a.store.InsertRule(r.Context(), rule); err != nil {
		if errors.Is(err, storage.ErrDuplicateRule) {
			writeError(w, http.StatusConflict, "Rule already exists", nil, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create rule", err, a.logger)
		return
	}

	a.reloadEngineRules(r)
	a.respondJSON(w, rule, http.StatusCreated)
}

// updateRule replaces an existing rule and reloads the engine snapshot
func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok := a.decodeRule(w, r)
	if !ok {
		return
	}
	if rule.ID != "" && rule.ID != id {
		writeError(w, http.StatusBadRequest, "Rule ID in body does not match URL", nil, a.logger)
		return
	}
	rule.ID = id

	if err := a.store.UpdateRule(r.Context(), rule); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found", nil, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update rule", err, a.logger)
		return
	}

	a.reloadEngineRules(r)
	a.respondJSON(w, rule, http.StatusOK)
}

// deleteRule removes a rule and reloads the engine snapshot
func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "Rule not found", nil, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete rule", err, a.logger)
		return
	}

	a.reloadEngineRules(r)
	w.WriteHeader(http.StatusNoContent)
}

// decodeRule parses and validates a rule payload. Structural validation
// runs first (tags), then the rule's own semantic checks.
func (a *API) decodeRule(w http.ResponseWriter, r *http.Request) (*core.Rule, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.JSONBodyLimit)

	var rule core.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule payload", err, a.logger)
		return nil, false
	}

	if err := a.validate.Struct(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Rule validation failed: "+err.Error(), nil, a.logger)
		return nil, false
	}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Rule validation failed: "+err.Error(), nil, a.logger)
		return nil, false
	}

	// Malformed duration strings are accepted but fall back to the 1h
	// default at evaluation time; flag them at write time
	if rule.Throttle != "" && !core.IsValidWindow(rule.Throttle) {
		a.logger.Warnw("Rule throttle does not parse, the default window applies",
			"rule_id", rule.ID,
			"throttle", rule.Throttle)
	}
	if rule.Threshold != nil && !core.IsValidWindow(rule.Threshold.Window) {
		a.logger.Warnw("Rule threshold window does not parse, the default window applies",
			"rule_id", rule.ID,
			"window", rule.Threshold.Window)
	}
	return &rule, true
}

// reloadEngineRules pushes the current store contents into the engine so
// rule changes take effect without a restart
func (a *API) reloadEngineRules(r *http.Request) {
	rules, err := a.store.ListRules(r.Context())
	if err != nil {
		a.logger.Errorw("Rule change saved but engine reload failed", "error", err)
		return
	}
	a.engine.ReloadRules(rules)
}
