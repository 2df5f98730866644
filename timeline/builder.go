package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socforge/core"
	"socforge/storage"
)

// IncidentStore is the incident access the builder needs.
type IncidentStore interface {
	GetIncident(ctx context.Context, id string) (*core.Incident, error)
	SaveTimeline(ctx context.Context, incidentID string, timeline []core.TimelineEntry, eventCount int) error
}

// AlertStore resolves an incident's linked alerts.
type AlertStore interface {
	GetAlertsByIncident(ctx context.Context, incidentID string) ([]*core.Alert, error)
}

// EventStore resolves events referenced by alerts.
type EventStore interface {
	GetEventsByIDs(ctx context.Context, ids []string) ([]*core.Event, error)
}

// Builder reconstructs incident chronologies from persisted alerts and their
// source events.
type Builder struct {
	incidents IncidentStore
	alerts    AlertStore
	events    EventStore
	logger    *zap.SugaredLogger
}

// NewBuilder creates a timeline builder.
func NewBuilder(incidents IncidentStore, alerts AlertStore, events EventStore, logger *zap.SugaredLogger) *Builder {
	return &Builder{incidents: incidents, alerts: alerts, events: events, logger: logger}
}

// Build reconstructs and persists the chronological timeline for an incident.
// The result interleaves source events with the alerts that fired on them,
// ordered ascending by timestamp. An unknown incident yields an empty
// timeline, not an error. Rebuilding over unchanged data returns the same
// entries.
func (b *Builder) Build(ctx context.Context, incidentID string) ([]core.TimelineEntry, error) {
	_, err := b.incidents.GetIncident(ctx, incidentID)
	if errors.Is(err, storage.ErrIncidentNotFound) {
		return []core.TimelineEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", incidentID, err)
	}

	alerts, err := b.alerts.GetAlertsByIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts for incident %s: %w", incidentID, err)
	}

	eventIDs := b.collectEventIDs(alerts)

	var entries []core.TimelineEntry
	if len(eventIDs) > 0 {
		events, err := b.events.GetEventsByIDs(ctx, eventIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load events for incident %s: %w", incidentID, err)
		}
		for _, event := range events {
			entries = append(entries, eventEntry(event))
		}
	}
	for _, alert := range alerts {
		entries = append(entries, alertEntry(alert))
	}

	entries = SortEntries(entries)

	eventCount := len(entries) - len(alerts)
	if err := b.incidents.SaveTimeline(ctx, incidentID, entries, eventCount); err != nil {
		return nil, fmt.Errorf("failed to persist timeline for incident %s: %w", incidentID, err)
	}

	b.logger.Infow("rebuilt incident timeline",
		"incident_id", incidentID,
		"entries", len(entries),
		"events", eventCount,
		"alerts", len(alerts),
	)
	return entries, nil
}

// collectEventIDs gathers the distinct, well-formed event IDs referenced by
// the alerts. Malformed IDs are skipped so one bad reference cannot sink the
// whole reconstruction.
func (b *Builder) collectEventIDs(alerts []*core.Alert) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, alert := range alerts {
		for _, id := range alert.RelatedEventIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if _, err := uuid.Parse(id); err != nil {
				b.logger.Warnw("skipping malformed event reference",
					"alert_id", alert.ID, "event_id", id)
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

func eventEntry(event *core.Event) core.TimelineEntry {
	description := event.NormalizedMessage
	if description == "" {
		description = fmt.Sprintf("%s from %s", event.EventType, event.SourceIP)
	}
	return core.TimelineEntry{
		Timestamp:        event.Timestamp,
		Kind:             core.TimelineKindEvent,
		EventType:        event.EventType,
		Severity:         event.Severity,
		Description:      description,
		SourceIP:         event.SourceIP,
		DestIP:           event.DestIP,
		DestPort:         event.DestPort,
		MitreTactic:      event.MitreTactic,
		MitreTechnique:   event.MitreTechnique,
		MitreTechniqueID: event.MitreTechniqueID,
		RiskScore:        event.RiskScore,
	}
}

func alertEntry(alert *core.Alert) core.TimelineEntry {
	return core.TimelineEntry{
		Timestamp:        alert.CreatedAt,
		Kind:             core.TimelineKindAlert,
		EventType:        "alert_generated",
		Severity:         alert.Severity,
		Description:      alert.Title,
		SourceIP:         alert.SourceIP,
		DestIP:           alert.DestIP,
		MitreTactic:      alert.MitreTactic,
		MitreTechnique:   alert.MitreTechnique,
		MitreTechniqueID: alert.MitreTechniqueID,
	}
}

// SortEntries orders timeline entries ascending by timestamp. The sort is
// stable so entries sharing a timestamp keep their relative order and
// repeated rebuilds stay deterministic.
func SortEntries(entries []core.TimelineEntry) []core.TimelineEntry {
	sorted := make([]core.TimelineEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
