package core

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is a normalized security telemetry record. Events are created by
// ingestion (or the simulation engine) and never mutated by the pipeline.
type Event struct {
	ID                string                 `json:"id"`
	Timestamp         time.Time              `json:"timestamp"`
	EventType         string                 `json:"event_type"`
	Severity          string                 `json:"severity"`
	SourceIP          string                 `json:"source_ip,omitempty"`
	SourcePort        int                    `json:"source_port,omitempty"`
	DestIP            string                 `json:"dest_ip,omitempty"`
	DestPort          int                    `json:"dest_port,omitempty"`
	Protocol          string                 `json:"protocol,omitempty"`
	Action            string                 `json:"action,omitempty"`
	UserAccount       string                 `json:"user_account,omitempty"`
	Hostname          string                 `json:"hostname,omitempty"`
	ProcessName       string                 `json:"process_name,omitempty"`
	CommandLine       string                 `json:"command_line,omitempty"`
	RawLog            string                 `json:"raw_log,omitempty"`
	NormalizedMessage string                 `json:"normalized_message,omitempty"`
	MitreTactic       string                 `json:"mitre_tactic,omitempty"`
	MitreTechnique    string                 `json:"mitre_technique,omitempty"`
	MitreTechniqueID  string                 `json:"mitre_technique_id,omitempty"`
	RiskScore         float64                `json:"risk_score"`
	ExtraData         map[string]interface{} `json:"extra_data,omitempty"`
	SimulationID      string                 `json:"simulation_id,omitempty"`
}

// NewEvent creates an Event with a generated UUID and the current UTC time.
func NewEvent(eventType string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  SeverityInfo,
	}
}

// GroupByField identifies an event attribute usable as a detection grouping
// key. The set is closed: rules reference fields by name, and only names in
// this enumeration resolve to a value. Anything else yields GroupKeyUnknown.
type GroupByField string

const (
	GroupBySourceIP    GroupByField = "source_ip"
	GroupByDestIP      GroupByField = "dest_ip"
	GroupByDestPort    GroupByField = "dest_port"
	GroupByHostname    GroupByField = "hostname"
	GroupByUserAccount GroupByField = "user_account"
	GroupByProcessName GroupByField = "process_name"
	GroupByEventType   GroupByField = "event_type"
)

// GroupKeyUnknown is the sentinel group key for events missing a value for
// the configured group-by field.
const GroupKeyUnknown = "unknown"

// IsValidGroupByField reports whether the field name is in the closed set of
// groupable fields.
func IsValidGroupByField(field GroupByField) bool {
	switch field {
	case GroupBySourceIP, GroupByDestIP, GroupByDestPort,
		GroupByHostname, GroupByUserAccount, GroupByProcessName, GroupByEventType:
		return true
	}
	return false
}

// GroupKey returns the event's value for the given group-by field, or
// GroupKeyUnknown when the field is unset or not in the closed enumeration.
func (e *Event) GroupKey(field GroupByField) string {
	var value string
	switch field {
	case GroupBySourceIP:
		value = e.SourceIP
	case GroupByDestIP:
		value = e.DestIP
	case GroupByDestPort:
		if e.DestPort > 0 {
			return strconv.Itoa(e.DestPort)
		}
	case GroupByHostname:
		value = e.Hostname
	case GroupByUserAccount:
		value = e.UserAccount
	case GroupByProcessName:
		value = e.ProcessName
	case GroupByEventType:
		value = e.EventType
	}
	if value == "" {
		return GroupKeyUnknown
	}
	return value
}
