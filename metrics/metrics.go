package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_events_ingested_total",
			Help: "Total number of events ingested",
		},
		[]string{"source"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_alerts_generated_total",
			Help: "Total number of alerts generated by the detection engine",
		},
		[]string{"severity"},
	)

	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_incidents_created_total",
			Help: "Total number of incidents created by the correlation engine",
		},
		[]string{"category"},
	)

	IncidentsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socforge_incidents_merged_total",
			Help: "Total number of alert groups merged into existing incidents",
		},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socforge_detection_duration_seconds",
			Help:    "Time taken to evaluate one batch against the rule set",
			Buckets: prometheus.DefBuckets,
		},
	)

	PipelineBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_pipeline_batches_total",
			Help: "Total number of pipeline batches by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"channel", "outcome"},
	)

	SIEMExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socforge_siem_exports_total",
			Help: "Total number of alert exports to external SIEMs",
		},
		[]string{"target", "outcome"},
	)
)
