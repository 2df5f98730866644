package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/config"
	"socforge/core"
	"socforge/enrich"
	"socforge/report"
	"socforge/service"
	"socforge/simulate"
	"socforge/storage"
)

type fakeIngester struct {
	lastSource string
	lastBatch  []*core.Event
	result     *service.BatchResult
	err        error
}

func (f *fakeIngester) IngestBatch(ctx context.Context, events []*core.Event, source string) (*service.BatchResult, error) {
	f.lastBatch = events
	f.lastSource = source
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEventReader struct {
	events []*core.Event
}

func (f *fakeEventReader) ListEvents(ctx context.Context, limit, offset int) ([]*core.Event, error) {
	if offset >= len(f.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.events) {
		end = len(f.events)
	}
	return f.events[offset:end], nil
}

func (f *fakeEventReader) CountEvents(ctx context.Context) (int64, error) {
	return int64(len(f.events)), nil
}

type fakeAlertReader struct {
	alerts       map[string]*core.Alert
	statusCalls  []string
	lastStatus   string
	lastFalsePos bool
}

func (f *fakeAlertReader) ListAlerts(ctx context.Context, limit, offset int) ([]*core.Alert, error) {
	var out []*core.Alert
	for _, a := range f.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAlertReader) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return nil, storage.ErrAlertNotFound
	}
	return alert, nil
}

func (f *fakeAlertReader) UpdateAlertStatus(ctx context.Context, id, status string, falsePositive bool) error {
	if _, ok := f.alerts[id]; !ok {
		return storage.ErrAlertNotFound
	}
	f.statusCalls = append(f.statusCalls, id)
	f.lastStatus = status
	f.lastFalsePos = falsePositive
	return nil
}

type fakeIncidentReader struct {
	incidents  map[string]*core.Incident
	lastStatus string
}

func (f *fakeIncidentReader) ListIncidents(ctx context.Context, limit, offset int) ([]*core.Incident, error) {
	var out []*core.Incident
	for _, inc := range f.incidents {
		out = append(out, inc)
	}
	return out, nil
}

func (f *fakeIncidentReader) GetIncident(ctx context.Context, id string) (*core.Incident, error) {
	incident, ok := f.incidents[id]
	if !ok {
		return nil, storage.ErrIncidentNotFound
	}
	return incident, nil
}

func (f *fakeIncidentReader) UpdateIncidentStatus(ctx context.Context, id, status string) error {
	if _, ok := f.incidents[id]; !ok {
		return storage.ErrIncidentNotFound
	}
	f.lastStatus = status
	return nil
}

type fakeTimelines struct {
	entries []core.TimelineEntry
}

func (f *fakeTimelines) Build(ctx context.Context, incidentID string) ([]core.TimelineEntry, error) {
	return f.entries, nil
}

type fakeRuleManager struct {
	rules        map[string]*core.DetectionRule
	createErr    error
	importResult *service.ImportResult
}

func (f *fakeRuleManager) CreateRule(ctx context.Context, rule *core.DetectionRule) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleManager) GetRule(ctx context.Context, id string) (*core.DetectionRule, error) {
	rule, ok := f.rules[id]
	if !ok {
		return nil, storage.ErrRuleNotFound
	}
	return rule, nil
}

func (f *fakeRuleManager) ListRules(ctx context.Context) ([]*core.DetectionRule, error) {
	var out []*core.DetectionRule
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuleManager) UpdateRule(ctx context.Context, rule *core.DetectionRule) error {
	if _, ok := f.rules[rule.ID]; !ok {
		return storage.ErrRuleNotFound
	}
	f.rules[rule.ID] = rule
	return nil
}

func (f *fakeRuleManager) DeleteRule(ctx context.Context, id string) error {
	if _, ok := f.rules[id]; !ok {
		return storage.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleManager) SetEnabled(ctx context.Context, id string, enabled bool) error {
	rule, ok := f.rules[id]
	if !ok {
		return storage.ErrRuleNotFound
	}
	rule.Enabled = enabled
	return nil
}

func (f *fakeRuleManager) ImportYAML(ctx context.Context, data []byte) (*service.ImportResult, error) {
	return f.importResult, nil
}

type fakeSimulator struct {
	runs map[string]*simulate.Run
}

func (f *fakeSimulator) Run(ctx context.Context, params simulate.Params) (*simulate.Run, error) {
	run := &simulate.Run{
		ID:              "run-1",
		Status:          "completed",
		Scenario:        params.Scenario,
		StartedAt:       time.Now().UTC(),
		EventsGenerated: 42,
		AlertsTriggered: 3,
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeSimulator) GetRun(id string) *simulate.Run {
	return f.runs[id]
}

type fakeReports struct{}

func (f *fakeReports) GenerateIncidentReport(ctx context.Context, incidentID, title, generatedBy string) (*report.Report, error) {
	if incidentID == "missing" {
		return nil, storage.ErrIncidentNotFound
	}
	return &report.Report{ID: "rep-1", IncidentID: incidentID, Title: title, GeneratedBy: generatedBy}, nil
}

type fakeIntel struct {
	configured bool
}

func (f *fakeIntel) EnrichIP(ctx context.Context, ip string) *enrich.IPIntel {
	return &enrich.IPIntel{IP: ip, Enriched: true, Sources: []string{"virustotal"}, ThreatScore: 60}
}

func (f *fakeIntel) IsConfigured() bool { return f.configured }

type apiFixture struct {
	api       *API
	server    *httptest.Server
	ingester  *fakeIngester
	alerts    *fakeAlertReader
	incidents *fakeIncidentReader
	rules     *fakeRuleManager
}

func setupTestAPI(t *testing.T) *apiFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.API.RateLimit.RequestsPerSecond = 1000
	cfg.API.RateLimit.Burst = 1000

	f := &apiFixture{
		ingester: &fakeIngester{result: &service.BatchResult{EventsIngested: 2, AlertsGenerated: 1}},
		alerts: &fakeAlertReader{alerts: map[string]*core.Alert{
			"alert-1": {ID: "alert-1", Title: "[HIGH] SSH Brute Force Detection — 203.0.113.5", Severity: core.SeverityHigh},
		}},
		incidents: &fakeIncidentReader{incidents: map[string]*core.Incident{
			"inc-1": {ID: "inc-1", Title: "Correlated Attack Activity from 203.0.113.5", Status: core.IncidentStatusOpen},
		}},
		rules: &fakeRuleManager{
			rules: map[string]*core.DetectionRule{
				"rule-1": {ID: "rule-1", Name: "SSH Brute Force Detection", Enabled: true, MitreTechniqueID: "T1110.001"},
			},
			importResult: &service.ImportResult{Imported: 2, Skipped: 1},
		},
	}

	hub := NewHub(context.Background(), logger)
	f.api = NewAPI(Deps{
		Hub:       hub,
		Ingester:  f.ingester,
		Events:    &fakeEventReader{events: []*core.Event{{ID: "ev-1", EventType: "ssh_login_failed"}}},
		Alerts:    f.alerts,
		Incidents: f.incidents,
		Timelines: &fakeTimelines{entries: []core.TimelineEntry{{Kind: core.TimelineKindEvent, EventType: "ssh_login_failed"}}},
		Rules:     f.rules,
		Simulator: &fakeSimulator{runs: make(map[string]*simulate.Run)},
		Reports:   &fakeReports{},
		Intel:     &fakeIntel{configured: true},
	}, cfg, logger)
	t.Cleanup(func() {
		f.api.Shutdown(context.Background())
	})

	f.server = httptest.NewServer(f.api.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealthCheck(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(0), health["ws_clients"])
}

func TestIngestEvents(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/events/ingest", map[string]interface{}{
		"events": []map[string]interface{}{
			{"event_type": "ssh_login_failed", "source_ip": "203.0.113.5"},
			{"event_type": "ssh_login_failed", "source_ip": "203.0.113.5"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result service.BatchResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 2, result.EventsIngested)
	assert.Equal(t, 1, result.AlertsGenerated)
	assert.Equal(t, "api", f.ingester.lastSource, "source defaults to api")
	assert.Len(t, f.ingester.lastBatch, 2)
}

func TestIngestEvents_EmptyBatchRejected(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodPost, "/api/events/ingest", map[string]interface{}{"events": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetEvents_Pagination(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/events?limit=10&offset=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Events []json.RawMessage `json:"events"`
		Total  int               `json:"total"`
		Limit  int               `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, 10, out.Limit)

	// Out-of-range limits fall back to the endpoint default.
	resp, body = f.do(t, http.MethodGet, "/api/events?limit=99999", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 100, out.Limit)
}

func TestGetAlert_NotFound(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/alerts/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "alert not found", errResp.Error)
}

func TestUpdateAlertStatus(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodPost, "/api/alerts/alert-1/status", map[string]interface{}{
		"status":         core.AlertStatusFalsePositive,
		"false_positive": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.AlertStatusFalsePositive, f.alerts.lastStatus)
	assert.True(t, f.alerts.lastFalsePos)
}

func TestUpdateAlertStatus_InvalidStatus(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodPost, "/api/alerts/alert-1/status", map[string]interface{}{
		"status": "escalated_to_mars",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.alerts.statusCalls)
}

func TestRuleCRUD(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/rules", map[string]interface{}{
		"id":   "rule-2",
		"name": "DNS Tunneling Detection",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/rules/rule-2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/rules/rule-2/disable", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, f.rules.rules["rule-2"].Enabled)

	resp, _ = f.do(t, http.MethodDelete, "/api/rules/rule-2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/rules/rule-2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRule_DuplicateConflict(t *testing.T) {
	f := setupTestAPI(t)
	f.rules.createErr = storage.ErrDuplicateRule

	resp, _ := f.do(t, http.MethodPost, "/api/rules", map[string]interface{}{"name": "SSH Brute Force Detection"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestImportRules(t *testing.T) {
	f := setupTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/rules/import",
		bytes.NewReader([]byte("rules:\n  - name: Example\n")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result service.ImportResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
}

func TestIncidentTimeline(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/incidents/inc-1/timeline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		IncidentID string            `json:"incident_id"`
		Total      int               `json:"total"`
		Timeline   []json.RawMessage `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "inc-1", out.IncidentID)
	assert.Equal(t, 1, out.Total)
}

func TestUpdateIncidentStatus(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodPost, "/api/incidents/inc-1/status", map[string]interface{}{
		"status": core.IncidentStatusContained,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.IncidentStatusContained, f.incidents.lastStatus)

	resp, _ = f.do(t, http.MethodPost, "/api/incidents/missing/status", map[string]interface{}{
		"status": core.IncidentStatusResolved,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunSimulation(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/simulate", map[string]interface{}{
		"scenario": simulate.ScenarioSSHBruteForce,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var run simulate.Run
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 42, run.EventsGenerated)

	resp, _ = f.do(t, http.MethodGet, "/api/simulate/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunSimulation_UnknownScenario(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodPost, "/api/simulate", map[string]interface{}{"scenario": "zombie_outbreak"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetScenarios(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/simulate/scenarios", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Scenarios []simulate.ScenarioInfo `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Scenarios, 5)
}

func TestGenerateReport(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/reports/incident/inc-1", map[string]interface{}{
		"title": "Custom Title", "generated_by": "analyst",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep report.Report
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, "Custom Title", rep.Title)
	assert.Equal(t, "analyst", rep.GeneratedBy)

	resp, _ = f.do(t, http.MethodPost, "/api/reports/incident/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnrichIP(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/enrich/203.0.113.5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var intel enrich.IPIntel
	require.NoError(t, json.Unmarshal(body, &intel))
	assert.Equal(t, "203.0.113.5", intel.IP)
	assert.True(t, intel.Enriched)

	resp, _ = f.do(t, http.MethodGet, "/api/enrich/not-an-ip", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnrichIP_Unconfigured(t *testing.T) {
	f := setupTestAPI(t)
	f.api.intel = &fakeIntel{configured: false}

	resp, _ := f.do(t, http.MethodGet, "/api/enrich/203.0.113.5", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMitreEndpoints(t *testing.T) {
	f := setupTestAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/mitre/tactics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tactics struct {
		Tactics []json.RawMessage `json:"tactics"`
	}
	require.NoError(t, json.Unmarshal(body, &tactics))
	assert.Len(t, tactics.Tactics, 13)

	resp, body = f.do(t, http.MethodGet, "/api/mitre/techniques?coverage=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var techniques map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &techniques))
	assert.Contains(t, techniques, "techniques")
	assert.Contains(t, techniques, "coverage")
}

func TestCORSHeaders(t *testing.T) {
	f := setupTestAPI(t)

	resp, _ := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/alerts", nil)
	require.NoError(t, err)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	preflight.Body.Close()
	assert.Equal(t, http.StatusNoContent, preflight.StatusCode)
}

func TestRateLimit(t *testing.T) {
	logger := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.API.RateLimit.RequestsPerSecond = 1
	cfg.API.RateLimit.Burst = 2

	a := NewAPI(Deps{
		Hub:   NewHub(context.Background(), logger),
		Intel: &fakeIntel{},
	}, cfg, logger)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	server := httptest.NewServer(a.Router())
	t.Cleanup(server.Close)

	statuses := make(map[int]int)
	for i := 0; i < 5; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/health", server.URL))
		require.NoError(t, err)
		resp.Body.Close()
		statuses[resp.StatusCode]++
	}
	assert.Positive(t, statuses[http.StatusTooManyRequests], "burst exhaustion returns 429")
}
