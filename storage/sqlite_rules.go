package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"socforge/core"
)

// RuleStore handles detection rule persistence.
type RuleStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewRuleStore creates a rule store.
func NewRuleStore(sqlite *SQLite, logger *zap.SugaredLogger) *RuleStore {
	return &RuleStore{sqlite: sqlite, logger: logger}
}

const ruleColumns = `id, name, description, rule_type, severity, enabled,
	event_type_filter, condition_logic, threshold_count, time_window_seconds,
	group_by_field, mitre_tactic, mitre_technique, mitre_technique_id,
	false_positive_rate, true_positive_count, false_positive_count, total_triggers,
	author, tags, rule_references, created_at, updated_at`

// CreateRule inserts a new rule. Returns ErrDuplicateRule when a rule of
// the same name already exists.
func (rs *RuleStore) CreateRule(ctx context.Context, rule *core.DetectionRule) error {
	conditionJSON, err := marshalJSON(rule.ConditionLogic)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(rule.Tags)
	if err != nil {
		return err
	}
	refsJSON, err := marshalJSON(rule.References)
	if err != nil {
		return err
	}

	query := `INSERT INTO rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = rs.sqlite.WriteDB.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		nullIfEmpty(rule.Description),
		rule.RuleType,
		rule.Severity,
		rule.Enabled,
		nullIfEmpty(rule.EventTypeFilter),
		conditionJSON,
		rule.ThresholdCount,
		rule.TimeWindowSeconds,
		nullIfEmpty(string(rule.GroupByField)),
		nullIfEmpty(rule.MitreTactic),
		nullIfEmpty(rule.MitreTechnique),
		nullIfEmpty(rule.MitreTechniqueID),
		rule.FalsePositiveRate,
		rule.TruePositiveCount,
		rule.FalsePositiveCount,
		rule.TotalTriggers,
		nullIfEmpty(rule.Author),
		tagsJSON,
		refsJSON,
		formatTime(rule.CreatedAt),
		formatTime(rule.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateRule
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	rs.logger.Infof("Created %s rule %q", rule.RuleType, rule.Name)
	return nil
}

// GetRule retrieves a rule by ID.
func (rs *RuleStore) GetRule(ctx context.Context, id string) (*core.DetectionRule, error) {
	row := rs.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

// GetRuleByName retrieves a rule by its unique name.
func (rs *RuleStore) GetRuleByName(ctx context.Context, name string) (*core.DetectionRule, error) {
	row := rs.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE name = ?`, name)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

// GetEnabledRules returns all enabled rules. No ordering is guaranteed.
func (rs *RuleStore) GetEnabledRules(ctx context.Context) ([]*core.DetectionRule, error) {
	rows, err := rs.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetAllRules returns every rule, newest first.
func (rs *RuleStore) GetAllRules(ctx context.Context) ([]*core.DetectionRule, error) {
	rows, err := rs.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

// CountRules returns the total number of rules.
func (rs *RuleStore) CountRules(ctx context.Context) (int64, error) {
	var n int64
	if err := rs.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return n, nil
}

// UpdateRule replaces a rule's mutable definition fields.
func (rs *RuleStore) UpdateRule(ctx context.Context, rule *core.DetectionRule) error {
	conditionJSON, err := marshalJSON(rule.ConditionLogic)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalJSON(rule.Tags)
	if err != nil {
		return err
	}

	res, err := rs.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE rules SET name = ?, description = ?, rule_type = ?, severity = ?,
			enabled = ?, event_type_filter = ?, condition_logic = ?,
			threshold_count = ?, time_window_seconds = ?, group_by_field = ?,
			mitre_tactic = ?, mitre_technique = ?, mitre_technique_id = ?,
			tags = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name,
		nullIfEmpty(rule.Description),
		rule.RuleType,
		rule.Severity,
		rule.Enabled,
		nullIfEmpty(rule.EventTypeFilter),
		conditionJSON,
		rule.ThresholdCount,
		rule.TimeWindowSeconds,
		nullIfEmpty(string(rule.GroupByField)),
		nullIfEmpty(rule.MitreTactic),
		nullIfEmpty(rule.MitreTechnique),
		nullIfEmpty(rule.MitreTechniqueID),
		tagsJSON,
		formatTime(time.Now().UTC()),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (rs *RuleStore) DeleteRule(ctx context.Context, id string) error {
	res, err := rs.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// SetRuleEnabled flips a rule's enabled flag.
func (rs *RuleStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := rs.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to set rule enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// IncrementTriggerCountersTx bumps a rule's trigger statistics inside the
// batch transaction. The increment happens in SQL, not read-modify-write, so
// concurrent batches triggering the same rule never lose counts.
func (rs *RuleStore) IncrementTriggerCountersTx(ctx context.Context, tx *sql.Tx, ruleID string, triggers, truePositives int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE rules
		SET total_triggers = total_triggers + ?,
			true_positive_count = true_positive_count + ?,
			updated_at = ?
		WHERE id = ?`,
		triggers, truePositives, formatTime(time.Now().UTC()), ruleID)
	if err != nil {
		return fmt.Errorf("failed to increment trigger counters for rule %s: %w", ruleID, err)
	}
	return nil
}

func scanRule(row rowScanner) (*core.DetectionRule, error) {
	var (
		rule      core.DetectionRule
		desc      sql.NullString
		filter    sql.NullString
		condition sql.NullString
		threshold sql.NullInt64
		window    sql.NullInt64
		groupBy   sql.NullString
		tactic    sql.NullString
		technique sql.NullString
		techID    sql.NullString
		author    sql.NullString
		tags      sql.NullString
		refs      sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&rule.ID, &rule.Name, &desc, &rule.RuleType, &rule.Severity,
		&rule.Enabled, &filter, &condition, &threshold, &window, &groupBy,
		&tactic, &technique, &techID, &rule.FalsePositiveRate,
		&rule.TruePositiveCount, &rule.FalsePositiveCount, &rule.TotalTriggers,
		&author, &tags, &refs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rule.Description = desc.String
	rule.EventTypeFilter = filter.String
	rule.ThresholdCount = int(threshold.Int64)
	rule.TimeWindowSeconds = int(window.Int64)
	rule.GroupByField = core.GroupByField(groupBy.String)
	rule.MitreTactic = tactic.String
	rule.MitreTechnique = technique.String
	rule.MitreTechniqueID = techID.String
	rule.Author = author.String

	if err := unmarshalJSON(condition, &rule.ConditionLogic); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &rule.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(refs, &rule.References); err != nil {
		return nil, err
	}

	rule.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for rule %s: %w", rule.ID, err)
	}
	rule.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]*core.DetectionRule, error) {
	var rules []*core.DetectionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
