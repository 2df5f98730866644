package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"socforge/simulate"
)

func (a *API) runSimulation(w http.ResponseWriter, r *http.Request) {
	var params simulate.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !simulate.IsValidScenario(params.Scenario) {
		a.writeError(w, http.StatusBadRequest, "unknown scenario")
		return
	}

	run, err := a.simulator.Run(r.Context(), params)
	if err != nil {
		a.logger.Errorw("Simulation failed", "scenario", params.Scenario, "error", err)
		a.writeError(w, http.StatusInternalServerError, "simulation failed")
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *API) getScenarios(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": simulate.Scenarios(),
	})
}

func (a *API) getSimulation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run := a.simulator.GetRun(id)
	if run == nil {
		a.writeError(w, http.StatusNotFound, "simulation not found")
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}
