// Package detect implements the rule-driven detection engine. It evaluates
// batches of normalized events against the enabled rule set and emits
// alerts for every group that crosses its rule's threshold.
package detect

import (
	"time"

	"go.uber.org/zap"

	"socforge/core"
	"socforge/metrics"
	"socforge/mitre"
)

// Engine evaluates detection rules against event batches. It holds no state
// between batches: grouping and thresholding operate purely over the batch
// handed to Detect, and each rule's declared time window stays descriptive
// metadata.
type Engine struct {
	logger *zap.SugaredLogger
}

// NewEngine creates a detection engine.
func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Detect runs every enabled rule in the given set against the batch and
// returns the generated alerts. For each triggering group the rule's
// total-trigger and true-positive counters are incremented in place; the
// caller persists both alerts and counter updates in one atomic unit. An
// empty result is a successful outcome, never an error.
func (e *Engine) Detect(events []*core.Event, rules []*core.DetectionRule) []*core.Alert {
	start := time.Now()
	var alerts []*core.Alert

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		matching := filterEvents(events, rule)
		if len(matching) == 0 {
			continue
		}

		for _, group := range groupEvents(matching, rule.GroupByField) {
			if len(group.events) < rule.EffectiveThreshold() {
				continue
			}

			alert := core.NewAlertFromRule(rule, group.events, group.key)
			backfillMitre(alert, group.events[0])
			alerts = append(alerts, alert)

			// One increment per triggering group, not per event.
			rule.TotalTriggers++
			rule.TruePositiveCount++

			metrics.AlertsGenerated.WithLabelValues(alert.Severity).Inc()
			e.logger.Infow("rule triggered",
				"rule", rule.Name,
				"group", group.key,
				"events", len(group.events),
				"severity", alert.Severity,
			)
		}
	}

	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	return alerts
}

// filterEvents applies the rule's event-type filter. An unset filter passes
// every event through.
func filterEvents(events []*core.Event, rule *core.DetectionRule) []*core.Event {
	if rule.EventTypeFilter == "" {
		return events
	}
	var out []*core.Event
	for _, ev := range events {
		if rule.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// eventGroup is one partition of the filtered batch, keyed by the rule's
// group-by field value.
type eventGroup struct {
	key    string
	events []*core.Event
}

// groupEvents partitions events by the group-by field. With no field
// configured the whole batch forms a single group. Group iteration order
// follows first appearance in the batch so alert output is deterministic.
func groupEvents(events []*core.Event, field core.GroupByField) []eventGroup {
	if field == "" {
		return []eventGroup{{key: "all", events: events}}
	}

	index := make(map[string]int)
	var groups []eventGroup
	for _, ev := range events {
		key := ev.GroupKey(field)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, eventGroup{key: key})
		}
		groups[i].events = append(groups[i].events, ev)
	}
	return groups
}

// backfillMitre fills each ATT&CK field the rule left empty from the static
// event-type mapping. Fields the rule carries are kept as-is.
func backfillMitre(alert *core.Alert, first *core.Event) {
	m := mitre.MapEventType(first.EventType)
	if alert.MitreTactic == "" {
		alert.MitreTactic = m.Tactic
	}
	if alert.MitreTechnique == "" {
		alert.MitreTechnique = m.Technique
	}
	if alert.MitreTechniqueID == "" {
		alert.MitreTechniqueID = m.TechniqueID
	}
}
