package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"socforge/core"
	"socforge/storage"
)

func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.rules.ListRules(r.Context())
	if err != nil {
		a.logger.Errorw("Failed to list rules", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"total": len(rules),
	})
}

func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, err := a.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			a.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to get rule", "rule_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}
	a.writeJSON(w, http.StatusOK, rule)
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var rule core.DetectionRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.rules.CreateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, storage.ErrDuplicateRule) {
			a.writeError(w, http.StatusConflict, "rule with this name already exists")
			return
		}
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.writeJSON(w, http.StatusCreated, rule)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var rule core.DetectionRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = id
	if err := a.rules.UpdateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			a.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, rule)
}

func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.rules.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			a.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to delete rule", "rule_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) enableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, true)
}

func (a *API) disableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, false)
}

func (a *API) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := mux.Vars(r)["id"]
	if err := a.rules.SetEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, storage.ErrRuleNotFound) {
			a.writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to toggle rule", "rule_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": enabled})
}

func (a *API) importRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	result, err := a.rules.ImportYAML(r.Context(), body)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}
