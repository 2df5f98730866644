package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/core"
)

func newTestEngine() *Engine {
	return NewEngine(zap.NewNop().Sugar())
}

func thresholdRule(name, eventType string, threshold int, groupBy core.GroupByField) *core.DetectionRule {
	rule := core.NewDetectionRule(name)
	rule.Severity = core.SeverityHigh
	rule.EventTypeFilter = eventType
	rule.ThresholdCount = threshold
	rule.GroupByField = groupBy
	return rule
}

func failedLogins(sourceIP string, n int) []*core.Event {
	events := make([]*core.Event, 0, n)
	for i := 0; i < n; i++ {
		ev := core.NewEvent("ssh_login_failed")
		ev.ID = fmt.Sprintf("%s-%d", sourceIP, i)
		ev.SourceIP = sourceIP
		ev.DestIP = "10.0.1.20"
		ev.DestPort = 22
		events = append(events, ev)
	}
	return events
}

func TestDetect_ThresholdBoundary(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 5, core.GroupBySourceIP)

	// One below threshold: nothing fires.
	alerts := engine.Detect(failedLogins("203.0.113.5", 4), []*core.DetectionRule{rule})
	assert.Empty(t, alerts)
	assert.Zero(t, rule.TotalTriggers)

	// Exactly at threshold: one alert for the group.
	alerts = engine.Detect(failedLogins("203.0.113.5", 5), []*core.DetectionRule{rule})
	require.Len(t, alerts, 1)
	assert.Equal(t, 5, alerts[0].EventCount)
	assert.Equal(t, "203.0.113.5", alerts[0].SourceIP)
	assert.Equal(t, int64(1), rule.TotalTriggers)
}

func TestDetect_SingleAlertPerGroup(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 5, core.GroupBySourceIP)

	// Six matching events in one group still produce exactly one alert.
	alerts := engine.Detect(failedLogins("203.0.113.5", 6), []*core.DetectionRule{rule})
	require.Len(t, alerts, 1)
	assert.Equal(t, 6, alerts[0].EventCount)
	assert.Len(t, alerts[0].RelatedEventIDs, 6)
}

func TestDetect_GroupsIndependently(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 3, core.GroupBySourceIP)

	events := append(failedLogins("203.0.113.5", 3), failedLogins("198.51.100.3", 2)...)
	alerts := engine.Detect(events, []*core.DetectionRule{rule})

	require.Len(t, alerts, 1)
	assert.Equal(t, "203.0.113.5", alerts[0].SourceIP)
}

func TestDetect_DeterministicGroupOrder(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 2, core.GroupBySourceIP)

	events := append(failedLogins("203.0.113.5", 2), failedLogins("198.51.100.3", 2)...)
	alerts := engine.Detect(events, []*core.DetectionRule{rule})

	// Alert order follows first appearance of each group in the batch.
	require.Len(t, alerts, 2)
	assert.Equal(t, "203.0.113.5", alerts[0].SourceIP)
	assert.Equal(t, "198.51.100.3", alerts[1].SourceIP)
}

func TestDetect_DisabledRuleSkipped(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 1, core.GroupBySourceIP)
	rule.Enabled = false

	alerts := engine.Detect(failedLogins("203.0.113.5", 5), []*core.DetectionRule{rule})
	assert.Empty(t, alerts)
}

func TestDetect_UnknownGroupKey(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("No Source", "dns_query", 2, core.GroupBySourceIP)

	ev1 := core.NewEvent("dns_query")
	ev2 := core.NewEvent("dns_query")
	alerts := engine.Detect([]*core.Event{ev1, ev2}, []*core.DetectionRule{rule})

	// Events without the group-by value collect under the sentinel key.
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Title, core.GroupKeyUnknown)
}

func TestDetect_NoGroupByField(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("Any Exfil", "data_exfiltration", 2, "")

	ev1 := core.NewEvent("data_exfiltration")
	ev1.SourceIP = "10.0.1.5"
	ev2 := core.NewEvent("data_exfiltration")
	ev2.SourceIP = "10.0.1.6"

	alerts := engine.Detect([]*core.Event{ev1, ev2}, []*core.DetectionRule{rule})
	require.Len(t, alerts, 1)
	assert.Equal(t, 2, alerts[0].EventCount)
}

func TestDetect_MitreBackfill(t *testing.T) {
	engine := newTestEngine()

	// A rule with no ATT&CK mapping inherits the event type's mapping.
	rule := thresholdRule("Bare Rule", "ssh_login_failed", 1, core.GroupBySourceIP)
	alerts := engine.Detect(failedLogins("203.0.113.5", 1), []*core.DetectionRule{rule})
	require.Len(t, alerts, 1)
	assert.Equal(t, "Credential Access", alerts[0].MitreTactic)
	assert.Equal(t, "T1110.001", alerts[0].MitreTechniqueID)

	// A rule that carries its own mapping keeps it.
	mapped := thresholdRule("Mapped Rule", "ssh_login_failed", 1, core.GroupBySourceIP)
	mapped.MitreTactic = "Credential Access"
	mapped.MitreTechnique = "Brute Force"
	mapped.MitreTechniqueID = "T1110"
	alerts = engine.Detect(failedLogins("203.0.113.5", 1), []*core.DetectionRule{mapped})
	require.Len(t, alerts, 1)
	assert.Equal(t, "T1110", alerts[0].MitreTechniqueID)
}

func TestDetect_MitreBackfillPerField(t *testing.T) {
	engine := newTestEngine()

	// A rule carrying only a tactic keeps it while the empty technique
	// fields still inherit the event type's mapping.
	partial := thresholdRule("Tactic Only", "ssh_login_failed", 1, core.GroupBySourceIP)
	partial.MitreTactic = "Initial Access"

	alerts := engine.Detect(failedLogins("203.0.113.5", 1), []*core.DetectionRule{partial})
	require.Len(t, alerts, 1)
	assert.Equal(t, "Initial Access", alerts[0].MitreTactic)
	assert.Equal(t, "Password Guessing", alerts[0].MitreTechnique)
	assert.Equal(t, "T1110.001", alerts[0].MitreTechniqueID)
}

func TestDetect_EmptyInputs(t *testing.T) {
	engine := newTestEngine()
	rule := thresholdRule("SSH Brute Force", "ssh_login_failed", 1, core.GroupBySourceIP)

	assert.Empty(t, engine.Detect(nil, []*core.DetectionRule{rule}))
	assert.Empty(t, engine.Detect(failedLogins("203.0.113.5", 3), nil))
}

func TestDetect_WorkedScenario(t *testing.T) {
	engine := newTestEngine()
	rules := BuiltinRules()

	// Six failed SSH logins from one attacker trip exactly the brute-force
	// rule and nothing else.
	alerts := engine.Detect(failedLogins("203.0.113.5", 6), rules)
	require.Len(t, alerts, 1)
	assert.Equal(t, 6, alerts[0].EventCount)
	assert.Equal(t, core.SeverityHigh, alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "SSH Brute Force Detection")
}

func TestBuiltinRules_Shape(t *testing.T) {
	rules := BuiltinRules()
	require.Len(t, rules, 6)

	names := make(map[string]bool)
	for _, rule := range rules {
		assert.True(t, rule.Enabled)
		assert.NotEmpty(t, rule.MitreTechniqueID)
		assert.True(t, core.IsValidSeverity(rule.Severity))
		names[rule.Name] = true
	}
	assert.True(t, names["SSH Brute Force Detection"])
	assert.True(t, names["Reverse Shell Detection"])
}
