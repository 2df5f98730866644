package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/core"
	"socforge/storage"
)

func setupRuleService(t *testing.T) *RuleService {
	t.Helper()
	logger := zap.NewNop().Sugar()

	sqlite, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return NewRuleService(storage.NewRuleStore(sqlite, logger), logger)
}

func validRule(name string) *core.DetectionRule {
	rule := core.NewDetectionRule(name)
	rule.EventTypeFilter = "ssh_login_failed"
	rule.ThresholdCount = 5
	rule.GroupByField = core.GroupBySourceIP
	return rule
}

func TestRuleService_CreateAndGet(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	rule := validRule("My Rule")
	require.NoError(t, svc.CreateRule(ctx, rule))

	got, err := svc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "My Rule", got.Name)
}

func TestRuleService_CreateRejectsInvalid(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	noName := validRule("")
	assert.Error(t, svc.CreateRule(ctx, noName))

	badSeverity := validRule("Bad Severity")
	badSeverity.Severity = "apocalyptic"
	assert.Error(t, svc.CreateRule(ctx, badSeverity))

	badType := validRule("Bad Type")
	badType.RuleType = "heuristic"
	assert.Error(t, svc.CreateRule(ctx, badType))

	badGroup := validRule("Bad Group")
	badGroup.GroupByField = core.GroupByField("favorite_color")
	err := svc.CreateRule(ctx, badGroup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_by_field")
}

func TestRuleService_CreateDuplicate(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateRule(ctx, validRule("Duplicate")))
	assert.ErrorIs(t, svc.CreateRule(ctx, validRule("Duplicate")), storage.ErrDuplicateRule)
}

func TestRuleService_SetEnabled(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	rule := validRule("Toggle")
	require.NoError(t, svc.CreateRule(ctx, rule))
	require.NoError(t, svc.SetEnabled(ctx, rule.ID, false))

	got, err := svc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

const importDoc = `
rules:
  - name: Suspicious DNS Volume
    description: Too many DNS queries from one host
    rule_type: threshold
    severity: medium
    event_type_filter: dns_query
    threshold_count: 100
    time_window_seconds: 60
    group_by_field: source_ip
    tags: [dns, volume]
  - name: Disabled On Arrival
    rule_type: pattern
    severity: low
    enabled: false
    event_type_filter: process_execution
  - name: ""
    severity: high
`

func TestRuleService_ImportYAML(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	result, err := svc.ImportYAML(ctx, []byte(importDoc))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 1, "the nameless rule is reported, not fatal")

	dns, err := svc.store.GetRuleByName(ctx, "Suspicious DNS Volume")
	require.NoError(t, err)
	assert.Equal(t, 100, dns.ThresholdCount)
	assert.Equal(t, core.GroupBySourceIP, dns.GroupByField)
	assert.True(t, dns.Enabled, "enabled defaults to true when omitted")

	disabled, err := svc.store.GetRuleByName(ctx, "Disabled On Arrival")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
}

func TestRuleService_ImportYAML_SkipsExisting(t *testing.T) {
	svc := setupRuleService(t)
	ctx := context.Background()

	first, err := svc.ImportYAML(ctx, []byte(importDoc))
	require.NoError(t, err)
	require.Equal(t, 2, first.Imported)

	second, err := svc.ImportYAML(ctx, []byte(importDoc))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Skipped)
}

func TestRuleService_ImportYAML_Malformed(t *testing.T) {
	svc := setupRuleService(t)

	_, err := svc.ImportYAML(context.Background(), []byte("rules: [not: {valid"))
	assert.Error(t, err)
}
