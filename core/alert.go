package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alert statuses.
const (
	AlertStatusOpen          = "open"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
	AlertStatusClosed        = "closed"
	AlertStatusFalsePositive = "false_positive"
)

// IOCIndicators is the union of observable artifacts across the events that
// triggered one alert, de-duplicated per field.
type IOCIndicators struct {
	SourceIPs []string `json:"source_ips,omitempty"`
	DestIPs   []string `json:"dest_ips,omitempty"`
	DestPorts []int    `json:"dest_ports,omitempty"`
	Hostnames []string `json:"hostnames,omitempty"`
	Processes []string `json:"processes,omitempty"`
}

// Alert is produced once per (rule, group) trigger. IncidentID stays empty
// until the correlation engine links the alert to an incident.
type Alert struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Severity        string        `json:"severity"`
	Status          string        `json:"status"`
	Source          string        `json:"source,omitempty"`
	RuleID          string        `json:"rule_id"`
	IncidentID      string        `json:"incident_id,omitempty"`
	SourceIP        string        `json:"source_ip,omitempty"`
	DestIP          string        `json:"dest_ip,omitempty"`
	EventCount      int           `json:"event_count"`
	MitreTactic     string        `json:"mitre_tactic,omitempty"`
	MitreTechnique  string        `json:"mitre_technique,omitempty"`
	MitreTechniqueID string       `json:"mitre_technique_id,omitempty"`
	IOCIndicators   IOCIndicators `json:"ioc_indicators"`
	RelatedEventIDs []string      `json:"related_event_ids,omitempty"`
	FalsePositive   bool          `json:"false_positive"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewAlertFromRule builds the alert for one triggering group. The title
// encodes severity, rule name, and group key; the indicator set is the
// per-field union over the group's events; RelatedEventIDs preserves the
// group's event order.
func NewAlertFromRule(rule *DetectionRule, events []*Event, groupKey string) *Alert {
	now := time.Now().UTC()
	first := events[0]

	alert := &Alert{
		ID:               uuid.New().String(),
		Title:            fmt.Sprintf("[%s] %s — %s", strings.ToUpper(rule.Severity), rule.Name, groupKey),
		Description:      fmt.Sprintf("%s\n\nTriggered by %d events from %s.", rule.Description, len(events), groupKey),
		Severity:         rule.Severity,
		Status:           AlertStatusOpen,
		Source:           rule.Name,
		RuleID:           rule.ID,
		SourceIP:         first.SourceIP,
		DestIP:           first.DestIP,
		EventCount:       len(events),
		MitreTactic:      rule.MitreTactic,
		MitreTechnique:   rule.MitreTechnique,
		MitreTechniqueID: rule.MitreTechniqueID,
		IOCIndicators:    CollectIndicators(events),
		RelatedEventIDs:  make([]string, 0, len(events)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, e := range events {
		alert.RelatedEventIDs = append(alert.RelatedEventIDs, e.ID)
	}
	return alert
}

// CollectIndicators unions the IOC-relevant fields across a group of events,
// de-duplicating each field and sorting for stable output.
func CollectIndicators(events []*Event) IOCIndicators {
	srcIPs := make(map[string]struct{})
	dstIPs := make(map[string]struct{})
	ports := make(map[int]struct{})
	hosts := make(map[string]struct{})
	procs := make(map[string]struct{})

	for _, e := range events {
		if e.SourceIP != "" {
			srcIPs[e.SourceIP] = struct{}{}
		}
		if e.DestIP != "" {
			dstIPs[e.DestIP] = struct{}{}
		}
		if e.DestPort > 0 {
			ports[e.DestPort] = struct{}{}
		}
		if e.Hostname != "" {
			hosts[e.Hostname] = struct{}{}
		}
		if e.ProcessName != "" {
			procs[e.ProcessName] = struct{}{}
		}
	}

	ind := IOCIndicators{
		SourceIPs: sortedKeys(srcIPs),
		DestIPs:   sortedKeys(dstIPs),
		Hostnames: sortedKeys(hosts),
		Processes: sortedKeys(procs),
	}
	for p := range ports {
		ind.DestPorts = append(ind.DestPorts, p)
	}
	sort.Ints(ind.DestPorts)
	return ind
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
