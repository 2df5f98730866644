package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"socforge/core"
	"socforge/storage"
)

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)
	alerts, err := a.alerts.ListAlerts(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorw("Failed to list alerts", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := a.alerts.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			a.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		a.logger.Errorw("Failed to get alert", "alert_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	a.writeJSON(w, http.StatusOK, alert)
}

type alertStatusRequest struct {
	Status        string `json:"status"`
	FalsePositive bool   `json:"false_positive"`
}

func (a *API) updateAlertStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req alertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case core.AlertStatusOpen, core.AlertStatusInvestigating, core.AlertStatusResolved,
		core.AlertStatusClosed, core.AlertStatusFalsePositive:
	default:
		a.writeError(w, http.StatusBadRequest, "invalid alert status")
		return
	}

	if err := a.alerts.UpdateAlertStatus(r.Context(), id, req.Status, req.FalsePositive); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			a.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		a.logger.Errorw("Failed to update alert status", "alert_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}
