package correlate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"socforge/core"
	"socforge/metrics"
)

// IncidentStore is the incident persistence the engine needs. Methods take
// the batch transaction so correlation observes the alerts written earlier in
// the same batch.
type IncidentStore interface {
	FindActiveIncidentByHostTx(ctx context.Context, tx *sql.Tx, host string) (*core.Incident, error)
	CreateIncidentTx(ctx context.Context, tx *sql.Tx, incident *core.Incident) error
	UpdateIncidentTx(ctx context.Context, tx *sql.Tx, incident *core.Incident) error
}

// AlertLinker attaches alerts to their incident and resolves the alerts for
// an address that are still standalone.
type AlertLinker interface {
	LinkAlertToIncidentTx(ctx context.Context, tx *sql.Tx, alertID, incidentID string) error
	GetUncorrelatedAlertsBySourceTx(ctx context.Context, tx *sql.Tx, sourceIP string) ([]*core.Alert, error)
}

// Engine clusters alerts into incidents keyed by source address. State is
// scoped to the engine instance; two engines over the same database still
// serialize through the single-writer transaction.
type Engine struct {
	incidents IncidentStore
	alerts    AlertLinker
	locks     *keyedMutex
	logger    *zap.SugaredLogger
}

// NewEngine creates a correlation engine.
func NewEngine(incidents IncidentStore, alerts AlertLinker, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		incidents: incidents,
		alerts:    alerts,
		locks:     newKeyedMutex(),
		logger:    logger,
	}
}

// Correlate clusters a batch of alerts by source address, merging each
// group into an active incident for that address or creating a fresh
// incident once the address's cluster — this batch's alerts plus any
// standalone alerts persisted earlier — reaches two alerts. Alerts with no
// source address are left standalone. Returns only the incidents created by
// this call; merged incidents are persisted but not returned.
func (e *Engine) Correlate(ctx context.Context, tx *sql.Tx, alerts []*core.Alert) ([]*core.Incident, error) {
	groups := make(map[string][]*core.Alert)
	var order []string
	for _, alert := range alerts {
		key := alert.SourceIP
		if key == "" {
			key = "unknown"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], alert)
	}

	var created []*core.Incident
	for _, sourceIP := range order {
		if sourceIP == "unknown" {
			continue
		}
		group := groups[sourceIP]

		incident, err := e.correlateGroup(ctx, tx, sourceIP, group)
		if err != nil {
			return nil, err
		}
		if incident != nil {
			created = append(created, incident)
		}
	}
	return created, nil
}

// correlateGroup runs merge-or-create for one source address while holding
// that address's lock.
func (e *Engine) correlateGroup(ctx context.Context, tx *sql.Tx, sourceIP string, group []*core.Alert) (*core.Incident, error) {
	unlock := e.locks.Lock(sourceIP)
	defer unlock()

	existing, err := e.incidents.FindActiveIncidentByHostTx(ctx, tx, sourceIP)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active incident for %s: %w", sourceIP, err)
	}

	if existing != nil {
		if err := e.mergeIntoIncident(ctx, tx, existing, group); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// The cluster for an address is every alert sharing it, not just this
	// batch's: fold in standalone alerts left behind by earlier batches
	// before testing the minimum cluster size.
	cluster, err := e.clusterWithStandalone(ctx, tx, sourceIP, group)
	if err != nil {
		return nil, err
	}
	if len(cluster) < 2 {
		return nil, nil
	}
	return e.createIncident(ctx, tx, sourceIP, cluster)
}

// clusterWithStandalone merges the batch group with the address's persisted
// standalone alerts, de-duplicated by ID. Batch pointers win so linking marks
// the alerts the caller holds.
func (e *Engine) clusterWithStandalone(ctx context.Context, tx *sql.Tx, sourceIP string, group []*core.Alert) ([]*core.Alert, error) {
	stored, err := e.alerts.GetUncorrelatedAlertsBySourceTx(ctx, tx, sourceIP)
	if err != nil {
		return nil, fmt.Errorf("failed to load standalone alerts for %s: %w", sourceIP, err)
	}

	byID := make(map[string]*core.Alert, len(group))
	for _, alert := range group {
		byID[alert.ID] = alert
	}

	seen := make(map[string]struct{}, len(stored)+len(group))
	cluster := make([]*core.Alert, 0, len(stored)+len(group))
	for _, alert := range stored {
		if batch, ok := byID[alert.ID]; ok {
			alert = batch
		}
		seen[alert.ID] = struct{}{}
		cluster = append(cluster, alert)
	}
	for _, alert := range group {
		if _, ok := seen[alert.ID]; !ok {
			cluster = append(cluster, alert)
		}
	}
	return cluster, nil
}

func (e *Engine) mergeIntoIncident(ctx context.Context, tx *sql.Tx, incident *core.Incident, group []*core.Alert) error {
	now := time.Now().UTC()

	tactics := toSet(incident.MitreTactics)
	techniques := toSet(incident.MitreTechniques)
	severity := incident.Severity
	for _, alert := range group {
		if alert.MitreTactic != "" {
			tactics[alert.MitreTactic] = struct{}{}
		}
		if alert.MitreTechnique != "" {
			techniques[alert.MitreTechnique] = struct{}{}
		}
		severity = core.MaxSeverity(severity, alert.Severity)
	}

	incident.AlertCount += len(group)
	incident.MitreTactics = setToSorted(tactics)
	incident.MitreTechniques = setToSorted(techniques)
	incident.KillChainPhase = DetermineKillChainPhase(incident.MitreTactics)
	incident.Severity = severity
	incident.LastSeen = now
	incident.UpdatedAt = now

	if err := e.incidents.UpdateIncidentTx(ctx, tx, incident); err != nil {
		return err
	}
	for _, alert := range group {
		if err := e.alerts.LinkAlertToIncidentTx(ctx, tx, alert.ID, incident.ID); err != nil {
			return err
		}
		alert.IncidentID = incident.ID
	}

	metrics.IncidentsMerged.Inc()
	e.logger.Infow("merged alerts into incident",
		"incident_id", incident.ID,
		"alerts", len(group),
		"severity", incident.Severity,
		"kill_chain_phase", incident.KillChainPhase,
	)
	return nil
}

func (e *Engine) createIncident(ctx context.Context, tx *sql.Tx, sourceIP string, group []*core.Alert) (*core.Incident, error) {
	tactics := make(map[string]struct{})
	techniques := make(map[string]struct{})
	ruleNames := make([]string, 0, len(group))
	severity := core.SeverityLow
	eventCount := 0
	firstSeen := group[0].CreatedAt
	lastSeen := group[0].CreatedAt

	for _, alert := range group {
		if alert.MitreTactic != "" {
			tactics[alert.MitreTactic] = struct{}{}
		}
		if alert.MitreTechnique != "" {
			techniques[alert.MitreTechnique] = struct{}{}
		}
		name := alert.Source
		if name == "" {
			name = "unknown"
		}
		ruleNames = append(ruleNames, name)
		severity = core.MaxSeverity(severity, alert.Severity)
		eventCount += alert.EventCount
		if alert.CreatedAt.Before(firstSeen) {
			firstSeen = alert.CreatedAt
		}
		if alert.CreatedAt.After(lastSeen) {
			lastSeen = alert.CreatedAt
		}
	}

	incident := core.NewIncident(fmt.Sprintf("Correlated Attack Activity from %s", sourceIP))
	incident.Description = fmt.Sprintf(
		"Multiple detection rules triggered for source IP %s. Alerts: %s",
		sourceIP, strings.Join(ruleNames, ", "))
	incident.Severity = severity
	incident.Priority = calculatePriority(group)
	incident.Category = determineCategory(group)
	incident.AlertCount = len(group)
	incident.EventCount = eventCount
	incident.AffectedHosts = affectedHosts(sourceIP, group)
	incident.MitreTactics = setToSorted(tactics)
	incident.MitreTechniques = setToSorted(techniques)
	incident.KillChainPhase = DetermineKillChainPhase(incident.MitreTactics)
	incident.IOCSummary = aggregateIOCs(group)
	incident.FirstSeen = firstSeen
	incident.LastSeen = lastSeen

	if err := e.incidents.CreateIncidentTx(ctx, tx, incident); err != nil {
		return nil, err
	}
	for _, alert := range group {
		if err := e.alerts.LinkAlertToIncidentTx(ctx, tx, alert.ID, incident.ID); err != nil {
			return nil, err
		}
		alert.IncidentID = incident.ID
	}

	metrics.IncidentsCreated.WithLabelValues(incident.Category).Inc()
	e.logger.Infow("created incident",
		"incident_id", incident.ID,
		"source_ip", sourceIP,
		"alerts", len(group),
		"severity", incident.Severity,
		"priority", incident.Priority,
		"category", incident.Category,
	)
	return incident, nil
}

// calculatePriority scales with cluster size, jumping straight to critical
// when any alert in the cluster is critical.
func calculatePriority(group []*core.Alert) string {
	hasCritical := false
	for _, alert := range group {
		if alert.Severity == core.SeverityCritical {
			hasCritical = true
			break
		}
	}
	switch {
	case hasCritical || len(group) >= 5:
		return core.PriorityCritical
	case len(group) >= 3:
		return core.PriorityHigh
	case len(group) >= 2:
		return core.PriorityMedium
	default:
		return core.PriorityLow
	}
}

// determineCategory infers the incident category from the triggering rule
// names, falling back to multi_stage_attack.
func determineCategory(group []*core.Alert) string {
	var sources []string
	for _, alert := range group {
		if alert.Source != "" {
			sources = append(sources, strings.ToLower(alert.Source))
		}
	}
	contains := func(sub string) bool {
		for _, s := range sources {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("brute"):
		return core.CategoryBruteForce
	case contains("reverse") || contains("shell"):
		return core.CategoryMalware
	case contains("exfil"):
		return core.CategoryDataExfiltration
	case contains("lateral"):
		return core.CategoryLateralMovement
	default:
		return core.CategoryMultiStageAttack
	}
}

// affectedHosts is the source address plus every distinct destination address
// seen across the cluster.
func affectedHosts(sourceIP string, group []*core.Alert) []string {
	set := map[string]struct{}{sourceIP: {}}
	for _, alert := range group {
		if alert.DestIP != "" {
			set[alert.DestIP] = struct{}{}
		}
	}
	hosts := setToSorted(set)
	// Keep the source address first; analysts read it as the incident's pivot.
	for i, h := range hosts {
		if h == sourceIP && i != 0 {
			copy(hosts[1:i+1], hosts[:i])
			hosts[0] = sourceIP
			break
		}
	}
	return hosts
}

func aggregateIOCs(group []*core.Alert) core.IOCSummary {
	ips := make(map[string]struct{})
	ports := make(map[int]struct{})
	hosts := make(map[string]struct{})

	for _, alert := range group {
		for _, ip := range alert.IOCIndicators.SourceIPs {
			ips[ip] = struct{}{}
		}
		for _, ip := range alert.IOCIndicators.DestIPs {
			ips[ip] = struct{}{}
		}
		for _, port := range alert.IOCIndicators.DestPorts {
			ports[port] = struct{}{}
		}
		for _, host := range alert.IOCIndicators.Hostnames {
			hosts[host] = struct{}{}
		}
	}

	summary := core.IOCSummary{
		IPAddresses: setToSorted(ips),
		Hostnames:   setToSorted(hosts),
		TotalAlerts: len(group),
	}
	for port := range ports {
		summary.Ports = append(summary.Ports, port)
	}
	sort.Ints(summary.Ports)
	return summary
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func setToSorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
