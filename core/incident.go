package core

import (
	"time"

	"github.com/google/uuid"
)

// Incident statuses.
const (
	IncidentStatusOpen          = "open"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusContained     = "contained"
	IncidentStatusResolved      = "resolved"
	IncidentStatusClosed        = "closed"
)

// Incident priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Incident categories inferred during correlation.
const (
	CategoryBruteForce       = "brute_force"
	CategoryMalware          = "malware"
	CategoryDataExfiltration = "data_exfiltration"
	CategoryLateralMovement  = "lateral_movement"
	CategoryMultiStageAttack = "multi_stage_attack"
)

// IOCSummary aggregates indicators across all alerts of an incident.
type IOCSummary struct {
	IPAddresses []string `json:"ip_addresses,omitempty"`
	Ports       []int    `json:"ports,omitempty"`
	Hostnames   []string `json:"hostnames,omitempty"`
	TotalAlerts int      `json:"total_alerts"`
}

// TimelineEntry is one step in an incident's reconstructed chronology. Kind
// is "event" for source telemetry and "alert" for detections.
type TimelineEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	Kind             string    `json:"kind"`
	EventType        string    `json:"event_type,omitempty"`
	Severity         string    `json:"severity,omitempty"`
	Description      string    `json:"description,omitempty"`
	SourceIP         string    `json:"source_ip,omitempty"`
	DestIP           string    `json:"dest_ip,omitempty"`
	DestPort         int       `json:"dest_port,omitempty"`
	MitreTactic      string    `json:"mitre_tactic,omitempty"`
	MitreTechnique   string    `json:"mitre_technique,omitempty"`
	MitreTechniqueID string    `json:"mitre_technique_id,omitempty"`
	RiskScore        float64   `json:"risk_score,omitempty"`
}

// Timeline entry kinds.
const (
	TimelineKindEvent = "event"
	TimelineKindAlert = "alert"
)

// Incident aggregates two or more correlated alerts. Severity and
// KillChainPhase only ever escalate as alerts merge in; Timeline is owned by
// the timeline builder and recomputed on demand.
type Incident struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Severity        string          `json:"severity"`
	Status          string          `json:"status"`
	Priority        string          `json:"priority"`
	Category        string          `json:"category,omitempty"`
	AlertCount      int             `json:"alert_count"`
	EventCount      int             `json:"event_count"`
	AffectedHosts   []string        `json:"affected_hosts,omitempty"`
	AffectedUsers   []string        `json:"affected_users,omitempty"`
	KillChainPhase  string          `json:"kill_chain_phase,omitempty"`
	MitreTactics    []string        `json:"mitre_tactics,omitempty"`
	MitreTechniques []string        `json:"mitre_techniques,omitempty"`
	IOCSummary      IOCSummary      `json:"ioc_summary"`
	Timeline        []TimelineEntry `json:"timeline,omitempty"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// NewIncident creates an incident shell with a generated ID and open status.
func NewIncident(title string) *Incident {
	now := time.Now().UTC()
	return &Incident{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    IncidentStatusOpen,
		Severity:  SeverityMedium,
		Priority:  PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the incident can still absorb correlated alerts.
func (i *Incident) IsActive() bool {
	return i.Status == IncidentStatusOpen || i.Status == IncidentStatusInvestigating
}

// HasAffectedHost performs an exact membership test against the incident's
// affected-host set. Substring matching is deliberately not used here: a
// host "10.0.1.1" must not match an incident affecting "10.0.1.10".
func (i *Incident) HasAffectedHost(host string) bool {
	for _, h := range i.AffectedHosts {
		if h == host {
			return true
		}
	}
	return false
}
