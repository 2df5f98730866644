package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"socforge/core"
	"socforge/storage"
)

func (a *API) getIncidents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	incidents, err := a.incidents.ListIncidents(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorw("Failed to list incidents", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"limit":     limit,
		"offset":    offset,
	})
}

func (a *API) getIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	incident, err := a.incidents.GetIncident(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrIncidentNotFound) {
			a.writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		a.logger.Errorw("Failed to get incident", "incident_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to get incident")
		return
	}
	a.writeJSON(w, http.StatusOK, incident)
}

func (a *API) getIncidentTimeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entries, err := a.timelines.Build(r.Context(), id)
	if err != nil {
		a.logger.Errorw("Failed to build timeline", "incident_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to build timeline")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"incident_id": id,
		"timeline":    entries,
		"total":       len(entries),
	})
}

type incidentStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) updateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req incidentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case core.IncidentStatusOpen, core.IncidentStatusInvestigating, core.IncidentStatusContained,
		core.IncidentStatusResolved, core.IncidentStatusClosed:
	default:
		a.writeError(w, http.StatusBadRequest, "invalid incident status")
		return
	}

	if err := a.incidents.UpdateIncidentStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrIncidentNotFound) {
			a.writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		a.logger.Errorw("Failed to update incident status", "incident_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}
