// Package report produces structured investigation reports for incidents.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socforge/core"
)

// Finding summarizes one alert inside a report.
type Finding struct {
	Title            string    `json:"title"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description,omitempty"`
	MitreTechnique   string    `json:"mitre_technique,omitempty"`
	MitreTechniqueID string    `json:"mitre_technique_id,omitempty"`
	SourceIP         string    `json:"source_ip,omitempty"`
	DestIP           string    `json:"dest_ip,omitempty"`
	EventCount       int       `json:"event_count"`
	Timestamp        time.Time `json:"timestamp"`
}

// IOC is one indicator entry in the report's de-duplicated IOC list.
type IOC struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Context string `json:"context"`
}

// MitreMapping summarizes the ATT&CK coverage of an incident.
type MitreMapping struct {
	Tactics        []string `json:"tactics"`
	Techniques     []string `json:"techniques"`
	KillChainPhase string   `json:"kill_chain_phase,omitempty"`
}

// Report is a structured incident investigation report.
type Report struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	ReportType      string               `json:"report_type"`
	IncidentID      string               `json:"incident_id"`
	Summary         string               `json:"summary"`
	Findings        []Finding            `json:"findings"`
	Recommendations []string             `json:"recommendations"`
	IOCList         []IOC                `json:"ioc_list"`
	MitreMapping    MitreMapping         `json:"mitre_mapping"`
	Timeline        []core.TimelineEntry `json:"timeline,omitempty"`
	GeneratedBy     string               `json:"generated_by,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// IncidentStore resolves the incident under investigation.
type IncidentStore interface {
	GetIncident(ctx context.Context, id string) (*core.Incident, error)
}

// AlertStore resolves the incident's alerts.
type AlertStore interface {
	GetAlertsByIncident(ctx context.Context, incidentID string) ([]*core.Alert, error)
}

// TimelineBuilder rebuilds the incident chronology for embedding.
type TimelineBuilder interface {
	Build(ctx context.Context, incidentID string) ([]core.TimelineEntry, error)
}

// Generator assembles incident reports.
type Generator struct {
	incidents IncidentStore
	alerts    AlertStore
	timelines TimelineBuilder
	logger    *zap.SugaredLogger
}

// NewGenerator creates a report generator.
func NewGenerator(incidents IncidentStore, alerts AlertStore, timelines TimelineBuilder, logger *zap.SugaredLogger) *Generator {
	return &Generator{incidents: incidents, alerts: alerts, timelines: timelines, logger: logger}
}

// GenerateIncidentReport builds a full investigation report for an incident.
// An empty title derives one from the incident.
func (g *Generator) GenerateIncidentReport(ctx context.Context, incidentID, title, generatedBy string) (*Report, error) {
	incident, err := g.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident for report: %w", err)
	}

	timeline, err := g.timelines.Build(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline for report: %w", err)
	}

	alerts, err := g.alerts.GetAlertsByIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts for report: %w", err)
	}

	if title == "" {
		title = fmt.Sprintf("Incident Report: %s", incident.Title)
	}

	report := &Report{
		ID:              uuid.New().String(),
		Title:           title,
		ReportType:      "incident",
		IncidentID:      incidentID,
		Summary:         executiveSummary(incident),
		Findings:        buildFindings(alerts),
		Recommendations: recommendations(incident),
		IOCList:         extractIOCs(incident, alerts),
		MitreMapping: MitreMapping{
			Tactics:        incident.MitreTactics,
			Techniques:     incident.MitreTechniques,
			KillChainPhase: incident.KillChainPhase,
		},
		Timeline:    timeline,
		GeneratedBy: generatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	g.logger.Infow("generated incident report",
		"report_id", report.ID,
		"incident_id", incidentID,
		"findings", len(report.Findings),
		"iocs", len(report.IOCList),
	)
	return report, nil
}

func executiveSummary(incident *core.Incident) string {
	severity := strings.ToUpper(incident.Severity)
	if severity == "" {
		severity = "UNKNOWN"
	}
	hosts := joinOrUnknown(capped(incident.AffectedHosts, 5))
	tactics := joinOrUnknown(capped(incident.MitreTactics, 5))
	category := incident.Category
	if category == "" {
		category = "Multi-stage attack"
	}
	phase := incident.KillChainPhase
	if phase == "" {
		phase = "Unknown"
	}

	return fmt.Sprintf(
		"EXECUTIVE SUMMARY\n\n"+
			"Incident Severity: %s\n"+
			"Status: %s\n"+
			"Category: %s\n"+
			"Kill Chain Phase: %s\n\n"+
			"This incident involves %d correlated security alerts targeting the following hosts: %s.\n\n"+
			"MITRE ATT&CK tactics observed: %s.\n\n"+
			"The attack was first detected at %s and the most recent activity was observed at %s.",
		severity, incident.Status, category, phase,
		incident.AlertCount, hosts, tactics,
		incident.FirstSeen.UTC().Format(time.RFC3339),
		incident.LastSeen.UTC().Format(time.RFC3339),
	)
}

func buildFindings(alerts []*core.Alert) []Finding {
	findings := make([]Finding, 0, len(alerts))
	for _, alert := range alerts {
		findings = append(findings, Finding{
			Title:            alert.Title,
			Severity:         alert.Severity,
			Description:      alert.Description,
			MitreTechnique:   alert.MitreTechnique,
			MitreTechniqueID: alert.MitreTechniqueID,
			SourceIP:         alert.SourceIP,
			DestIP:           alert.DestIP,
			EventCount:       alert.EventCount,
			Timestamp:        alert.CreatedAt,
		})
	}
	return findings
}

var baseRecommendations = []string{
	"Immediately isolate affected hosts from the network to prevent further lateral movement.",
	"Conduct a thorough forensic investigation on all compromised systems.",
	"Reset credentials for all affected user accounts.",
	"Review and update firewall rules to block identified malicious IP addresses.",
	"Implement enhanced monitoring for the affected network segments.",
}

var categoryRecommendations = map[string][]string{
	core.CategoryBruteForce: {
		"Implement account lockout policies after repeated failed login attempts.",
		"Deploy multi-factor authentication (MFA) for all remote access.",
		"Consider implementing fail2ban or similar automated blocking tools.",
	},
	core.CategoryMalware: {
		"Run full malware scans on all affected and adjacent systems.",
		"Check for persistence mechanisms (cron jobs, startup scripts, registry keys).",
		"Block identified C2 server IPs at the perimeter firewall.",
	},
	core.CategoryDataExfiltration: {
		"Conduct data loss assessment to determine what data was exfiltrated.",
		"Engage legal team for potential breach notification requirements.",
		"Review DLP policies and implement enhanced data monitoring.",
	},
}

func recommendations(incident *core.Incident) []string {
	recs := make([]string, 0, len(baseRecommendations)+3)
	recs = append(recs, baseRecommendations...)
	recs = append(recs, categoryRecommendations[incident.Category]...)
	return recs
}

// extractIOCs merges the incident summary with per-alert indicators into one
// de-duplicated list.
func extractIOCs(incident *core.Incident, alerts []*core.Alert) []IOC {
	var iocs []IOC
	seen := make(map[string]struct{})

	add := func(key string, ioc IOC) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		iocs = append(iocs, ioc)
	}

	for _, ip := range incident.IOCSummary.IPAddresses {
		add(ip, IOC{Type: "ip", Value: ip, Context: "Involved IP address"})
	}
	for _, port := range incident.IOCSummary.Ports {
		add(fmt.Sprintf("port:%d", port), IOC{Type: "port", Value: fmt.Sprintf("%d", port), Context: "Targeted port"})
	}

	for _, alert := range alerts {
		source := alert.Source
		if source == "" {
			source = "detection"
		}
		for _, ip := range alert.IOCIndicators.SourceIPs {
			add(ip, IOC{Type: "ip", Value: ip, Context: fmt.Sprintf("Source IP from %s", source)})
		}
		for _, proc := range alert.IOCIndicators.Processes {
			add("proc:"+proc, IOC{Type: "process", Value: proc, Context: "Suspicious process"})
		}
	}
	return iocs
}

func capped(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}

func joinOrUnknown(values []string) string {
	if len(values) == 0 {
		return "Unknown"
	}
	return strings.Join(values, ", ")
}
