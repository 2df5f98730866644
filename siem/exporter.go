// Package siem forwards alerts to external security platforms. Every target
// is optional and fail-safe: an unreachable SIEM is logged and counted but
// never blocks the pipeline.
package siem

import (
	"context"
	"time"

	"go.uber.org/zap"

	"socforge/core"
	"socforge/metrics"
)

// Target is one external destination for alerts.
type Target interface {
	Name() string
	Export(ctx context.Context, alerts []*core.Alert) error
}

// alertDocument is the flattened form alerts take on the wire.
type alertDocument struct {
	AlertID          string `json:"alert_id"`
	Title            string `json:"title"`
	Severity         string `json:"severity"`
	SourceIP         string `json:"source_ip,omitempty"`
	DestIP           string `json:"dest_ip,omitempty"`
	MitreTactic      string `json:"mitre_tactic,omitempty"`
	MitreTechnique   string `json:"mitre_technique,omitempty"`
	MitreTechniqueID string `json:"mitre_technique_id,omitempty"`
	EventCount       int    `json:"event_count"`
	Timestamp        string `json:"timestamp"`
	Source           string `json:"source"`
}

func toDocument(alert *core.Alert) alertDocument {
	return alertDocument{
		AlertID:          alert.ID,
		Title:            alert.Title,
		Severity:         alert.Severity,
		SourceIP:         alert.SourceIP,
		DestIP:           alert.DestIP,
		MitreTactic:      alert.MitreTactic,
		MitreTechnique:   alert.MitreTechnique,
		MitreTechniqueID: alert.MitreTechniqueID,
		EventCount:       alert.EventCount,
		Timestamp:        alert.CreatedAt.UTC().Format(time.RFC3339Nano),
		Source:           "socforge",
	}
}

// Exporter fans alerts out to every configured target.
type Exporter struct {
	targets []Target
	logger  *zap.SugaredLogger
}

// NewExporter creates an exporter over the given targets.
func NewExporter(logger *zap.SugaredLogger, targets ...Target) *Exporter {
	if len(targets) == 0 {
		logger.Info("no SIEM targets configured, running standalone")
	}
	return &Exporter{targets: targets, logger: logger}
}

// Name implements the pipeline sink interface.
func (e *Exporter) Name() string { return "siem" }

// Deliver exports alerts to all targets, logging per-target failures.
func (e *Exporter) Deliver(ctx context.Context, alerts []*core.Alert) error {
	for _, target := range e.targets {
		if err := target.Export(ctx, alerts); err != nil {
			metrics.SIEMExports.WithLabelValues(target.Name(), "error").Inc()
			e.logger.Errorw("SIEM export failed", "target", target.Name(), "error", err)
			continue
		}
		metrics.SIEMExports.WithLabelValues(target.Name(), "ok").Inc()
		e.logger.Infow("exported alerts", "target", target.Name(), "count", len(alerts))
	}
	return nil
}
