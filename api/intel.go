package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"socforge/mitre"
	"socforge/storage"
)

func (a *API) enrichIP(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if net.ParseIP(ip) == nil {
		a.writeError(w, http.StatusBadRequest, "invalid IP address")
		return
	}
	if !a.intel.IsConfigured() {
		a.writeError(w, http.StatusServiceUnavailable, "no threat intelligence providers configured")
		return
	}
	intel := a.intel.EnrichIP(r.Context(), ip)
	a.writeJSON(w, http.StatusOK, intel)
}

func (a *API) getMitreTactics(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tactics": mitre.AllTactics(),
	})
}

func (a *API) getMitreTechniques(w http.ResponseWriter, r *http.Request) {
	techniques := mitre.AllTechniques()
	resp := map[string]interface{}{
		"techniques": techniques,
	}

	// ?coverage=true folds in which techniques the enabled rule set detects.
	if r.URL.Query().Get("coverage") == "true" {
		rules, err := a.rules.ListRules(r.Context())
		if err != nil {
			a.logger.Errorw("Failed to list rules for coverage", "error", err)
			a.writeError(w, http.StatusInternalServerError, "failed to compute coverage")
			return
		}
		var detected []string
		for _, rule := range rules {
			if rule.Enabled && rule.MitreTechniqueID != "" {
				detected = append(detected, rule.MitreTechniqueID)
			}
		}
		resp["coverage"] = mitre.CoverageMatrix(detected)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type reportRequest struct {
	Title       string `json:"title"`
	GeneratedBy string `json:"generated_by"`
}

func (a *API) generateIncidentReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req reportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.GeneratedBy == "" {
		req.GeneratedBy = "api"
	}

	rep, err := a.reports.GenerateIncidentReport(r.Context(), id, req.Title, req.GeneratedBy)
	if err != nil {
		if errors.Is(err, storage.ErrIncidentNotFound) {
			a.writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		a.logger.Errorw("Failed to generate report", "incident_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to generate report")
		return
	}
	a.writeJSON(w, http.StatusOK, rep)
}
