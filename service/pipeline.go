package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socforge/core"
	"socforge/correlate"
	"socforge/detect"
	"socforge/metrics"
	"socforge/mitre"
	"socforge/storage"
)

// AlertSink receives the alerts of a committed batch. Sinks run after the
// batch transaction commits and must tolerate failure; the pipeline logs sink
// errors and moves on.
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, alerts []*core.Alert) error
}

// IncidentSink receives incidents created by a committed batch.
type IncidentSink interface {
	Name() string
	DeliverIncidents(ctx context.Context, incidents []*core.Incident) error
}

// BatchResult summarizes one pipeline pass.
type BatchResult struct {
	EventsIngested   int              `json:"events_ingested"`
	AlertsGenerated  int              `json:"alerts_generated"`
	IncidentsCreated int              `json:"incidents_created"`
	Alerts           []*core.Alert    `json:"alerts,omitempty"`
	Incidents        []*core.Incident `json:"incidents,omitempty"`
}

// Pipeline runs event batches through detection and correlation inside one
// transaction. Either the whole batch lands (events, alerts, rule counters,
// incident changes) or none of it does.
type Pipeline struct {
	sqlite        *storage.SQLite
	events        *storage.EventStore
	alerts        *storage.AlertStore
	rules         *storage.RuleStore
	detector      *detect.Engine
	correlator    *correlate.Engine
	alertSinks    []AlertSink
	incidentSinks []IncidentSink
	logger        *zap.SugaredLogger
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(
	sqlite *storage.SQLite,
	events *storage.EventStore,
	alerts *storage.AlertStore,
	rules *storage.RuleStore,
	detector *detect.Engine,
	correlator *correlate.Engine,
	logger *zap.SugaredLogger,
) *Pipeline {
	return &Pipeline{
		sqlite:     sqlite,
		events:     events,
		alerts:     alerts,
		rules:      rules,
		detector:   detector,
		correlator: correlator,
		logger:     logger,
	}
}

// AddAlertSink registers a post-commit alert consumer.
func (p *Pipeline) AddAlertSink(sink AlertSink) {
	p.alertSinks = append(p.alertSinks, sink)
}

// AddIncidentSink registers a post-commit incident consumer.
func (p *Pipeline) AddIncidentSink(sink IncidentSink) {
	p.incidentSinks = append(p.incidentSinks, sink)
}

// IngestBatch persists a batch of events, evaluates the enabled rules over
// it, and correlates the resulting alerts, all within a single transaction.
// Sinks are notified only after the transaction commits so no external system
// ever sees an alert that later rolled back.
func (p *Pipeline) IngestBatch(ctx context.Context, events []*core.Event, source string) (*BatchResult, error) {
	for _, event := range events {
		p.normalizeEvent(event)
	}

	rules, err := p.rules.GetEnabledRules(ctx)
	if err != nil {
		metrics.PipelineBatches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load enabled rules: %w", err)
	}

	result := &BatchResult{EventsIngested: len(events)}

	err = p.sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		for _, event := range events {
			if err := p.events.CreateEventTx(ctx, tx, event); err != nil {
				return err
			}
		}

		alerts := p.detector.Detect(events, rules)
		for _, alert := range alerts {
			if err := p.alerts.CreateAlertTx(ctx, tx, alert); err != nil {
				return err
			}
			if err := p.rules.IncrementTriggerCountersTx(ctx, tx, alert.RuleID, 1, 1); err != nil {
				return err
			}
		}

		incidents, err := p.correlator.Correlate(ctx, tx, alerts)
		if err != nil {
			return err
		}

		result.AlertsGenerated = len(alerts)
		result.IncidentsCreated = len(incidents)
		result.Alerts = alerts
		result.Incidents = incidents
		return nil
	})
	if err != nil {
		metrics.PipelineBatches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("batch ingest failed: %w", err)
	}

	metrics.PipelineBatches.WithLabelValues("ok").Inc()
	metrics.EventsIngested.WithLabelValues(source).Add(float64(len(events)))

	p.fanOut(ctx, result)

	p.logger.Infow("batch processed",
		"source", source,
		"events", result.EventsIngested,
		"alerts", result.AlertsGenerated,
		"incidents", result.IncidentsCreated,
	)
	return result, nil
}

// normalizeEvent fills identity, timing, and MITRE context for events that
// arrive without them.
func (p *Pipeline) normalizeEvent(event *core.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = core.SeverityInfo
	}
	if event.MitreTechniqueID == "" {
		if m := mitre.MapEventType(event.EventType); m.TechniqueID != "" {
			event.MitreTactic = m.Tactic
			event.MitreTechnique = m.Technique
			event.MitreTechniqueID = m.TechniqueID
		}
	}
}

// fanOut delivers a committed batch to the registered sinks. Sink errors are
// logged, never propagated: delivery is best effort once the data is durable.
func (p *Pipeline) fanOut(ctx context.Context, result *BatchResult) {
	if len(result.Alerts) > 0 {
		for _, sink := range p.alertSinks {
			if err := sink.Deliver(ctx, result.Alerts); err != nil {
				p.logger.Warnw("alert sink delivery failed", "sink", sink.Name(), "error", err)
			}
		}
	}
	if len(result.Incidents) > 0 {
		for _, sink := range p.incidentSinks {
			if err := sink.DeliverIncidents(ctx, result.Incidents); err != nil {
				p.logger.Warnw("incident sink delivery failed", "sink", sink.Name(), "error", err)
			}
		}
	}
}
