package detect

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"socforge/core"
	"socforge/storage"
)

// RuleSeedStore is the subset of rule storage needed for seeding, defined
// here in the consumer package.
type RuleSeedStore interface {
	GetRuleByName(ctx context.Context, name string) (*core.DetectionRule, error)
	CreateRule(ctx context.Context, rule *core.DetectionRule) error
}

// BuiltinRules returns the built-in detection rule set. A fresh slice is
// returned on every call so callers may mutate counters freely.
func BuiltinRules() []*core.DetectionRule {
	mk := func(name string) *core.DetectionRule {
		r := core.NewDetectionRule(name)
		r.Author = "socforge"
		return r
	}

	ssh := mk("SSH Brute Force Detection")
	ssh.Description = "Detects multiple failed SSH login attempts from the same source IP within a short time window, indicating a brute force attack."
	ssh.RuleType = core.RuleTypeThreshold
	ssh.Severity = core.SeverityHigh
	ssh.EventTypeFilter = "ssh_login_failed"
	ssh.ConditionLogic = map[string]interface{}{"field": "action", "operator": "equals", "value": "failed"}
	ssh.ThresholdCount = 5
	ssh.TimeWindowSeconds = 60
	ssh.GroupByField = core.GroupBySourceIP
	ssh.MitreTactic = "Credential Access"
	ssh.MitreTechnique = "Brute Force"
	ssh.MitreTechniqueID = "T1110"
	ssh.Tags = []string{"brute_force", "ssh", "credential_access"}

	scan := mk("Port Scan Detection")
	scan.Description = "Detects scanning activity where a source IP targets more than 20 unique destination ports within 30 seconds."
	scan.RuleType = core.RuleTypeThreshold
	scan.Severity = core.SeverityMedium
	scan.EventTypeFilter = "port_scan"
	scan.ConditionLogic = map[string]interface{}{"field": "dest_port", "operator": "unique_count", "value": 20}
	scan.ThresholdCount = 20
	scan.TimeWindowSeconds = 30
	scan.GroupByField = core.GroupBySourceIP
	scan.MitreTactic = "Reconnaissance"
	scan.MitreTechnique = "Active Scanning"
	scan.MitreTechniqueID = "T1595"
	scan.Tags = []string{"port_scan", "reconnaissance", "network"}

	shell := mk("Reverse Shell Detection")
	shell.Description = "Detects outbound connections to uncommon ports with shell process activity, indicating a reverse shell."
	shell.RuleType = core.RuleTypePattern
	shell.Severity = core.SeverityCritical
	shell.EventTypeFilter = "reverse_shell"
	shell.ConditionLogic = map[string]interface{}{
		"field": "process_name", "operator": "in",
		"value": []string{"/bin/sh", "/bin/bash", "cmd.exe", "powershell.exe", "nc", "ncat"},
	}
	shell.ThresholdCount = 1
	shell.TimeWindowSeconds = 10
	shell.GroupByField = core.GroupBySourceIP
	shell.MitreTactic = "Execution"
	shell.MitreTechnique = "Unix Shell"
	shell.MitreTechniqueID = "T1059.004"
	shell.Tags = []string{"reverse_shell", "execution", "critical"}

	beacon := mk("C2 Beaconing Detection")
	beacon.Description = "Detects regular-interval network connections to the same external IP, indicating command-and-control beaconing behavior."
	beacon.RuleType = core.RuleTypePattern
	beacon.Severity = core.SeverityHigh
	beacon.EventTypeFilter = "c2_beacon"
	beacon.ConditionLogic = map[string]interface{}{"field": "dest_ip", "operator": "repeated_contact", "value": 5, "interval_tolerance": 0.3}
	beacon.ThresholdCount = 5
	beacon.TimeWindowSeconds = 300
	beacon.GroupByField = core.GroupByDestIP
	beacon.MitreTactic = "Command and Control"
	beacon.MitreTechnique = "Application Layer Protocol"
	beacon.MitreTechniqueID = "T1071"
	beacon.Tags = []string{"c2", "beaconing", "network"}

	web := mk("Web Attack Detection")
	web.Description = "Detects SQL injection, XSS, and path traversal patterns in HTTP request logs."
	web.RuleType = core.RuleTypePattern
	web.Severity = core.SeverityHigh
	web.EventTypeFilter = "web_exploit"
	web.ConditionLogic = map[string]interface{}{
		"field": "raw_log", "operator": "regex_match",
		"value": `(union\s+select|<script>|\.\.\/|etc\/passwd|cmd\.exe|eval\()`,
	}
	web.ThresholdCount = 1
	web.TimeWindowSeconds = 60
	web.GroupByField = core.GroupBySourceIP
	web.MitreTactic = "Initial Access"
	web.MitreTechnique = "Exploit Public-Facing Application"
	web.MitreTechniqueID = "T1190"
	web.Tags = []string{"web_attack", "sqli", "xss", "initial_access"}

	lateral := mk("Lateral Movement Detection")
	lateral.Description = "Detects internal host-to-host connections with authentication attempts, indicating lateral movement."
	lateral.RuleType = core.RuleTypePattern
	lateral.Severity = core.SeverityHigh
	lateral.EventTypeFilter = "lateral_movement"
	lateral.ConditionLogic = map[string]interface{}{"field": "source_ip", "operator": "internal_to_internal", "value": true}
	lateral.ThresholdCount = 3
	lateral.TimeWindowSeconds = 120
	lateral.GroupByField = core.GroupBySourceIP
	lateral.MitreTactic = "Lateral Movement"
	lateral.MitreTechnique = "Remote Services"
	lateral.MitreTechniqueID = "T1021"
	lateral.Tags = []string{"lateral_movement", "pivoting", "internal"}

	return []*core.DetectionRule{ssh, scan, shell, beacon, web, lateral}
}

// SeedBuiltinRules inserts each built-in rule unless a rule of the same
// name already exists. The operation is idempotent and safe to run on every
// startup or detection pass.
func SeedBuiltinRules(ctx context.Context, store RuleSeedStore, logger *zap.SugaredLogger) error {
	seeded := 0
	for _, rule := range BuiltinRules() {
		_, err := store.GetRuleByName(ctx, rule.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrRuleNotFound) {
			return fmt.Errorf("failed to check rule %q: %w", rule.Name, err)
		}
		if err := store.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", rule.Name, err)
		}
		seeded++
	}
	if seeded > 0 {
		logger.Infof("Seeded %d built-in detection rules", seeded)
	}
	return nil
}
