package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"socforge/core"
	"socforge/storage"
)

// RuleStorageOps defines the rule persistence the service needs. Defined in
// the consumer package.
type RuleStorageOps interface {
	CreateRule(ctx context.Context, rule *core.DetectionRule) error
	GetRule(ctx context.Context, id string) (*core.DetectionRule, error)
	GetRuleByName(ctx context.Context, name string) (*core.DetectionRule, error)
	GetAllRules(ctx context.Context) ([]*core.DetectionRule, error)
	UpdateRule(ctx context.Context, rule *core.DetectionRule) error
	DeleteRule(ctx context.Context, id string) error
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
}

// RuleService validates and persists detection rules.
type RuleService struct {
	store    RuleStorageOps
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewRuleService creates a rule service.
func NewRuleService(store RuleStorageOps, logger *zap.SugaredLogger) *RuleService {
	return &RuleService{
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateRule validates and stores a new rule. The rule gets a generated ID;
// duplicate names surface as storage.ErrDuplicateRule.
func (s *RuleService) CreateRule(ctx context.Context, rule *core.DetectionRule) error {
	if rule.ID == "" {
		seeded := core.NewDetectionRule(rule.Name)
		rule.ID = seeded.ID
		rule.CreatedAt = seeded.CreatedAt
		rule.UpdatedAt = seeded.UpdatedAt
	}
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return err
	}
	s.logger.Infow("rule created", "rule_id", rule.ID, "name", rule.Name)
	return nil
}

// GetRule retrieves a rule by ID.
func (s *RuleService) GetRule(ctx context.Context, id string) (*core.DetectionRule, error) {
	return s.store.GetRule(ctx, id)
}

// ListRules returns all rules.
func (s *RuleService) ListRules(ctx context.Context) ([]*core.DetectionRule, error) {
	return s.store.GetAllRules(ctx)
}

// UpdateRule validates and persists changes to an existing rule.
func (s *RuleService) UpdateRule(ctx context.Context, rule *core.DetectionRule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return err
	}
	s.logger.Infow("rule updated", "rule_id", rule.ID, "name", rule.Name)
	return nil
}

// DeleteRule removes a rule.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("rule deleted", "rule_id", id)
	return nil
}

// SetEnabled toggles whether a rule participates in detection.
func (s *RuleService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.store.SetRuleEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.logger.Infow("rule toggled", "rule_id", id, "enabled", enabled)
	return nil
}

// ImportResult reports the outcome of a YAML rule import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type ruleImportDoc struct {
	Rules []ruleImportSpec `yaml:"rules"`
}

type ruleImportSpec struct {
	Name              string                 `yaml:"name"`
	Description       string                 `yaml:"description"`
	RuleType          string                 `yaml:"rule_type"`
	Severity          string                 `yaml:"severity"`
	Enabled           *bool                  `yaml:"enabled"`
	EventTypeFilter   string                 `yaml:"event_type_filter"`
	ConditionLogic    map[string]interface{} `yaml:"condition_logic"`
	ThresholdCount    int                    `yaml:"threshold_count"`
	TimeWindowSeconds int                    `yaml:"time_window_seconds"`
	GroupByField      string                 `yaml:"group_by_field"`
	MitreTactic       string                 `yaml:"mitre_tactic"`
	MitreTechnique    string                 `yaml:"mitre_technique"`
	MitreTechniqueID  string                 `yaml:"mitre_technique_id"`
	Author            string                 `yaml:"author"`
	Tags              []string               `yaml:"tags"`
	References        []string               `yaml:"references"`
}

func (spec *ruleImportSpec) toRule() *core.DetectionRule {
	rule := core.NewDetectionRule(spec.Name)
	rule.Description = spec.Description
	if spec.RuleType != "" {
		rule.RuleType = spec.RuleType
	}
	if spec.Severity != "" {
		rule.Severity = spec.Severity
	}
	if spec.Enabled != nil {
		rule.Enabled = *spec.Enabled
	}
	rule.EventTypeFilter = spec.EventTypeFilter
	rule.ConditionLogic = spec.ConditionLogic
	rule.ThresholdCount = spec.ThresholdCount
	rule.TimeWindowSeconds = spec.TimeWindowSeconds
	rule.GroupByField = core.GroupByField(spec.GroupByField)
	rule.MitreTactic = spec.MitreTactic
	rule.MitreTechnique = spec.MitreTechnique
	rule.MitreTechniqueID = spec.MitreTechniqueID
	rule.Author = spec.Author
	rule.Tags = spec.Tags
	rule.References = spec.References
	return rule
}

// ImportYAML loads rules from a YAML document of the form
//
//	rules:
//	  - name: ...
//	    rule_type: threshold
//	    ...
//
// Rules whose name already exists are skipped; invalid rules are reported in
// the result without aborting the rest of the import.
func (s *RuleService) ImportYAML(ctx context.Context, data []byte) (*ImportResult, error) {
	var doc ruleImportDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule document: %w", err)
	}

	result := &ImportResult{}
	for _, spec := range doc.Rules {
		rule := spec.toRule()
		if err := s.CreateRule(ctx, rule); err != nil {
			if errors.Is(err, storage.ErrDuplicateRule) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rule.Name, err))
			continue
		}
		result.Imported++
	}

	s.logger.Infow("rule import finished",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *RuleService) validateRule(rule *core.DetectionRule) error {
	if err := s.validate.Struct(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if rule.GroupByField != "" && !core.IsValidGroupByField(rule.GroupByField) {
		return fmt.Errorf("rule validation failed: unknown group_by_field %q", rule.GroupByField)
	}
	return nil
}
