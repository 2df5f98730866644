package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"socforge/core"
)

type ingestRequest struct {
	Events []*core.Event `json:"events"`
	Source string        `json:"source"`
}

func (a *API) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Events) == 0 {
		a.writeError(w, http.StatusBadRequest, "no events provided")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	result, err := a.ingester.IngestBatch(r.Context(), req.Events, req.Source)
	if err != nil {
		a.logger.Errorw("Batch ingest failed", "error", err, "events", len(req.Events))
		a.writeError(w, http.StatusInternalServerError, "failed to ingest events")
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) getEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100)
	events, err := a.events.ListEvents(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorw("Failed to list events", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	total, err := a.events.CountEvents(r.Context())
	if err != nil {
		a.logger.Errorw("Failed to count events", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// pagination reads limit/offset query params with a per-endpoint default limit.
func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
