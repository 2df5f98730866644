package storage

import "fmt"

// migrate creates the base schema. Statements are idempotent so startup can
// always run them.
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'info',
			source_ip TEXT,
			source_port INTEGER,
			dest_ip TEXT,
			dest_port INTEGER,
			protocol TEXT,
			action TEXT,
			user_account TEXT,
			hostname TEXT,
			process_name TEXT,
			command_line TEXT,
			raw_log TEXT,
			normalized_message TEXT,
			mitre_tactic TEXT,
			mitre_technique TEXT,
			mitre_technique_id TEXT,
			risk_score REAL NOT NULL DEFAULT 0,
			extra_data TEXT,
			simulation_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_source_ip ON events(source_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_events_simulation_id ON events(simulation_id)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			rule_type TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'medium',
			enabled INTEGER NOT NULL DEFAULT 1,
			event_type_filter TEXT,
			condition_logic TEXT,
			threshold_count INTEGER,
			time_window_seconds INTEGER,
			group_by_field TEXT,
			mitre_tactic TEXT,
			mitre_technique TEXT,
			mitre_technique_id TEXT,
			false_positive_rate REAL NOT NULL DEFAULT 0,
			true_positive_count INTEGER NOT NULL DEFAULT 0,
			false_positive_count INTEGER NOT NULL DEFAULT 0,
			total_triggers INTEGER NOT NULL DEFAULT 0,
			author TEXT,
			tags TEXT,
			rule_references TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(enabled)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			source TEXT,
			rule_id TEXT NOT NULL,
			incident_id TEXT,
			source_ip TEXT,
			dest_ip TEXT,
			event_count INTEGER NOT NULL DEFAULT 0,
			mitre_tactic TEXT,
			mitre_technique TEXT,
			mitre_technique_id TEXT,
			ioc_indicators TEXT,
			related_event_ids TEXT,
			false_positive INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_incident_id ON alerts(incident_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_rule_id ON alerts(rule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity)`,

		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			priority TEXT NOT NULL DEFAULT 'medium',
			category TEXT,
			alert_count INTEGER NOT NULL DEFAULT 0,
			event_count INTEGER NOT NULL DEFAULT 0,
			affected_hosts TEXT,
			affected_users TEXT,
			kill_chain_phase TEXT,
			mitre_tactics TEXT,
			mitre_techniques TEXT,
			ioc_summary TEXT,
			timeline TEXT,
			first_seen TEXT,
			last_seen TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			resolved_at TEXT,
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.WriteDB.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
