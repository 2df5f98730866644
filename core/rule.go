package core

import (
	"time"

	"github.com/google/uuid"
)

// Rule types.
const (
	RuleTypeThreshold = "threshold"
	RuleTypePattern   = "pattern"
)

// DetectionRule describes how a batch of events is evaluated into alerts.
//
// ConditionLogic holds the rule's condition parameters (operator, field,
// value). The engine stores and validates them but evaluates only the
// event-type filter plus the count threshold; the extra operators are
// carried for rule authors and external tooling. TimeWindowSeconds is
// likewise descriptive metadata: grouping and thresholding operate over the
// batch handed to the engine, not a sliding window.
type DetectionRule struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description,omitempty" validate:"max=2000"`
	RuleType    string `json:"rule_type" validate:"required,oneof=threshold pattern"`
	Severity    string `json:"severity" validate:"required,oneof=info low medium high critical"`
	Enabled     bool   `json:"enabled"`

	EventTypeFilter   string                 `json:"event_type_filter,omitempty"`
	ConditionLogic    map[string]interface{} `json:"condition_logic,omitempty"`
	ThresholdCount    int                    `json:"threshold_count,omitempty" validate:"min=0"`
	TimeWindowSeconds int                    `json:"time_window_seconds,omitempty" validate:"min=0"`
	GroupByField      GroupByField           `json:"group_by_field,omitempty"`

	MitreTactic      string `json:"mitre_tactic,omitempty"`
	MitreTechnique   string `json:"mitre_technique,omitempty"`
	MitreTechniqueID string `json:"mitre_technique_id,omitempty"`

	FalsePositiveRate  float64 `json:"false_positive_rate"`
	TruePositiveCount  int64   `json:"true_positive_count"`
	FalsePositiveCount int64   `json:"false_positive_count"`
	TotalTriggers      int64   `json:"total_triggers"`

	Author     string    `json:"author,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	References []string  `json:"references,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewDetectionRule creates a rule with a generated ID, enabled by default.
func NewDetectionRule(name string) *DetectionRule {
	now := time.Now().UTC()
	return &DetectionRule{
		ID:        uuid.New().String(),
		Name:      name,
		Enabled:   true,
		Severity:  SeverityMedium,
		RuleType:  RuleTypeThreshold,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EffectiveThreshold returns the rule's threshold count, defaulting to 1
// when unset.
func (r *DetectionRule) EffectiveThreshold() int {
	if r.ThresholdCount < 1 {
		return 1
	}
	return r.ThresholdCount
}

// Matches reports whether an event passes the rule's event-type filter. An
// empty filter matches every event.
func (r *DetectionRule) Matches(event *Event) bool {
	return r.EventTypeFilter == "" || event.EventType == r.EventTypeFilter
}
