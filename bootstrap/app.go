// Package bootstrap assembles the socforge application: configuration,
// logging, storage, the detection pipeline, delivery sinks, and the API
// server.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"socforge/api"
	"socforge/config"
	"socforge/correlate"
	"socforge/detect"
	"socforge/enrich"
	"socforge/notify"
	"socforge/report"
	"socforge/service"
	"socforge/siem"
	"socforge/simulate"
	"socforge/storage"
	"socforge/timeline"
)

// App holds the assembled application components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite         *storage.SQLite
	EventStore     *storage.EventStore
	AlertStore     *storage.AlertStore
	RuleStore      *storage.RuleStore
	IncidentStore  *storage.IncidentStore
	Pipeline       *service.Pipeline
	RuleService    *service.RuleService
	TimelineBuild  *timeline.Builder
	Simulator      *simulate.Engine
	Enricher       *enrich.Enricher
	ReportGen      *report.Generator
	Hub            *api.Hub
	APIServer      *api.API
	natsTarget     *siem.NATS
	cancelHub      context.CancelFunc
	apiErrCh       chan error
}

// NewApp creates the application and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := InitConfig()
	if err != nil {
		return nil, err
	}

	logger, sugar, err := InitLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Sugar:    sugar,
		apiErrCh: make(chan error, 1),
	}

	sugar.Info("socforge starting...")
	LogConfigSource(sugar)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlite, err := storage.NewSQLite(cfg.Database.Path, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.SQLite = sqlite

	app.EventStore = storage.NewEventStore(sqlite, sugar)
	app.AlertStore = storage.NewAlertStore(sqlite, sugar)
	app.RuleStore = storage.NewRuleStore(sqlite, sugar)
	app.IncidentStore = storage.NewIncidentStore(sqlite, sugar)

	detector := detect.NewEngine(sugar)
	correlator := correlate.NewEngine(app.IncidentStore, app.AlertStore, sugar)
	app.Pipeline = service.NewPipeline(sqlite, app.EventStore, app.AlertStore, app.RuleStore, detector, correlator, sugar)
	app.RuleService = service.NewRuleService(app.RuleStore, sugar)
	app.TimelineBuild = timeline.NewBuilder(app.IncidentStore, app.AlertStore, app.EventStore, sugar)

	if cfg.Detection.SeedBuiltinRules {
		if err := detect.SeedBuiltinRules(ctx, app.RuleStore, sugar); err != nil {
			return nil, fmt.Errorf("failed to seed builtin rules: %w", err)
		}
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	app.Hub = api.NewHub(hubCtx, sugar)
	app.cancelHub = cancelHub

	if err := app.wireSinks(); err != nil {
		return nil, err
	}

	cache := enrich.NewCache(cfg.Enrichment, sugar)
	app.Enricher = enrich.NewEnricher(cfg.Enrichment, cache, sugar)
	app.Simulator = simulate.NewEngine(app.Pipeline, time.Now().UnixNano(), sugar)
	app.ReportGen = report.NewGenerator(app.IncidentStore, app.AlertStore, app.TimelineBuild, sugar)

	app.APIServer = api.NewAPI(api.Deps{
		Hub:       app.Hub,
		Ingester:  app.Pipeline,
		Events:    app.EventStore,
		Alerts:    app.AlertStore,
		Incidents: app.IncidentStore,
		Timelines: app.TimelineBuild,
		Rules:     app.RuleService,
		Simulator: app.Simulator,
		Reports:   app.ReportGen,
		Intel:     app.Enricher,
	}, cfg, sugar)

	return app, nil
}

// wireSinks attaches notification, SIEM, and WebSocket delivery to the
// pipeline.
func (a *App) wireSinks() error {
	cfg := a.Config

	if len(cfg.Notifications) > 0 {
		notifier := notify.NewNotifier(cfg.Notifications, a.Sugar)
		a.Pipeline.AddAlertSink(notifier)
		a.Pipeline.AddIncidentSink(notifier)
	}

	var targets []siem.Target
	if cfg.SIEM.Splunk.Enabled {
		targets = append(targets, siem.NewSplunk(cfg.SIEM.Splunk.Config))
	}
	if cfg.SIEM.OpenSearch.Enabled {
		os, err := siem.NewOpenSearch(cfg.SIEM.OpenSearch.Config)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenSearch target: %w", err)
		}
		targets = append(targets, os)
	}
	if cfg.SIEM.NATS.Enabled {
		nc, err := siem.NewNATS(cfg.SIEM.NATS.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsTarget = nc
		targets = append(targets, nc)
	}
	exporter := siem.NewExporter(a.Sugar, targets...)
	if len(targets) > 0 {
		a.Pipeline.AddAlertSink(exporter)
	}

	a.Pipeline.AddAlertSink(a.Hub)
	a.Pipeline.AddIncidentSink(a.Hub)
	return nil
}

// Start launches the WebSocket hub and the API server.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Start()

	go func() {
		if err := a.APIServer.Start(); err != nil {
			a.apiErrCh <- err
		}
	}()

	a.Sugar.Infow("socforge started",
		"host", a.Config.API.Host,
		"port", a.Config.API.Port,
		"database", a.Config.Database.Path,
	)
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or the API
// server fails.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
		a.Sugar.Info("Shutdown signal received")
	case err := <-a.apiErrCh:
		a.Sugar.Errorw("API server failed", "error", err)
	}
}

// Shutdown stops components in reverse dependency order.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.APIServer != nil {
		if err := a.APIServer.Shutdown(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.cancelHub != nil {
		a.cancelHub()
	}

	if a.natsTarget != nil {
		a.natsTarget.Close()
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close database", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
