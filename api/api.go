// Package api exposes the detection pipeline over HTTP: event ingest, rule
// management, alert and incident queries, simulations, reports, and a
// WebSocket feed for live alerts.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"socforge/config"
	"socforge/core"
	"socforge/enrich"
	"socforge/report"
	"socforge/service"
	"socforge/simulate"
)

// Ingester runs event batches through the pipeline.
type Ingester interface {
	IngestBatch(ctx context.Context, events []*core.Event, source string) (*service.BatchResult, error)
}

// EventReader serves event queries.
type EventReader interface {
	ListEvents(ctx context.Context, limit, offset int) ([]*core.Event, error)
	CountEvents(ctx context.Context) (int64, error)
}

// AlertReader serves alert queries and triage updates.
type AlertReader interface {
	ListAlerts(ctx context.Context, limit, offset int) ([]*core.Alert, error)
	GetAlert(ctx context.Context, id string) (*core.Alert, error)
	UpdateAlertStatus(ctx context.Context, id, status string, falsePositive bool) error
}

// IncidentReader serves incident queries and lifecycle updates.
type IncidentReader interface {
	ListIncidents(ctx context.Context, limit, offset int) ([]*core.Incident, error)
	GetIncident(ctx context.Context, id string) (*core.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id, status string) error
}

// TimelineBuilder rebuilds incident chronologies on demand.
type TimelineBuilder interface {
	Build(ctx context.Context, incidentID string) ([]core.TimelineEntry, error)
}

// RuleManager serves the rule catalog.
type RuleManager interface {
	CreateRule(ctx context.Context, rule *core.DetectionRule) error
	GetRule(ctx context.Context, id string) (*core.DetectionRule, error)
	ListRules(ctx context.Context) ([]*core.DetectionRule, error)
	UpdateRule(ctx context.Context, rule *core.DetectionRule) error
	DeleteRule(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	ImportYAML(ctx context.Context, data []byte) (*service.ImportResult, error)
}

// Simulator runs attack simulations.
type Simulator interface {
	Run(ctx context.Context, params simulate.Params) (*simulate.Run, error)
	GetRun(id string) *simulate.Run
}

// ReportGenerator assembles incident reports.
type ReportGenerator interface {
	GenerateIncidentReport(ctx context.Context, incidentID, title, generatedBy string) (*report.Report, error)
}

// IntelProvider enriches IP addresses with threat intelligence.
type IntelProvider interface {
	EnrichIP(ctx context.Context, ip string) *enrich.IPIntel
	IsConfigured() bool
}

// API is the HTTP server over the pipeline.
type API struct {
	router    *mux.Router
	server    *http.Server
	hub       *Hub
	ingester  Ingester
	events    EventReader
	alerts    AlertReader
	incidents IncidentReader
	timelines TimelineBuilder
	rules     RuleManager
	simulator Simulator
	reports   ReportGenerator
	intel     IntelProvider
	config    *config.Config
	logger    *zap.SugaredLogger

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// Deps bundles the API's collaborators.
type Deps struct {
	Hub       *Hub
	Ingester  Ingester
	Events    EventReader
	Alerts    AlertReader
	Incidents IncidentReader
	Timelines TimelineBuilder
	Rules     RuleManager
	Simulator Simulator
	Reports   ReportGenerator
	Intel     IntelProvider
}

// NewAPI creates the API server and registers its routes.
func NewAPI(deps Deps, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		hub:          deps.Hub,
		ingester:     deps.Ingester,
		events:       deps.Events,
		alerts:       deps.Alerts,
		incidents:    deps.Incidents,
		timelines:    deps.Timelines,
		rules:        deps.Rules,
		simulator:    deps.Simulator,
		reports:      deps.Reports,
		intel:        deps.Intel,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/events", a.getEvents).Methods("GET")
	a.router.HandleFunc("/api/events/ingest", a.ingestEvents).Methods("POST")

	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}", a.getAlert).Methods("GET")
	a.router.HandleFunc("/api/alerts/{id}/status", a.updateAlertStatus).Methods("POST")

	a.router.HandleFunc("/api/rules", a.getRules).Methods("GET")
	a.router.HandleFunc("/api/rules", a.createRule).Methods("POST")
	a.router.HandleFunc("/api/rules/import", a.importRules).Methods("POST")
	a.router.HandleFunc("/api/rules/{id}", a.getRule).Methods("GET")
	a.router.HandleFunc("/api/rules/{id}", a.updateRule).Methods("PUT")
	a.router.HandleFunc("/api/rules/{id}", a.deleteRule).Methods("DELETE")
	a.router.HandleFunc("/api/rules/{id}/enable", a.enableRule).Methods("POST")
	a.router.HandleFunc("/api/rules/{id}/disable", a.disableRule).Methods("POST")

	a.router.HandleFunc("/api/incidents", a.getIncidents).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}", a.getIncident).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}/timeline", a.getIncidentTimeline).Methods("GET")
	a.router.HandleFunc("/api/incidents/{id}/status", a.updateIncidentStatus).Methods("POST")

	a.router.HandleFunc("/api/simulate", a.runSimulation).Methods("POST")
	a.router.HandleFunc("/api/simulate/scenarios", a.getScenarios).Methods("GET")
	a.router.HandleFunc("/api/simulate/{id}", a.getSimulation).Methods("GET")

	a.router.HandleFunc("/api/reports/incident/{id}", a.generateIncidentReport).Methods("POST")

	a.router.HandleFunc("/api/enrich/{ip}", a.enrichIP).Methods("GET")

	a.router.HandleFunc("/api/mitre/tactics", a.getMitreTactics).Methods("GET")
	a.router.HandleFunc("/api/mitre/techniques", a.getMitreTechniques).Methods("GET")

	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")

	a.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(a.hub, a.logger, w, r)
	})
}

// Start begins serving. Blocks until the server stops.
func (a *API) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.API.Host, a.config.API.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	a.logger.Infow("API server listening", "addr", addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (a *API) Shutdown(ctx context.Context) error {
	close(a.stopCh)
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (a *API) Router() http.Handler {
	return a.router
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": a.hub.ClientCount(),
	})
}
