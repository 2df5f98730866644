package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"socforge/core"
)

// IncidentStore handles incident persistence.
type IncidentStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewIncidentStore creates an incident store.
func NewIncidentStore(sqlite *SQLite, logger *zap.SugaredLogger) *IncidentStore {
	return &IncidentStore{sqlite: sqlite, logger: logger}
}

const incidentColumns = `id, title, description, severity, status, priority,
	category, alert_count, event_count, affected_hosts, affected_users,
	kill_chain_phase, mitre_tactics, mitre_techniques, ioc_summary, timeline,
	first_seen, last_seen, created_at, updated_at, resolved_at, notes`

// CreateIncidentTx inserts an incident inside the batch transaction.
func (is *IncidentStore) CreateIncidentTx(ctx context.Context, tx *sql.Tx, incident *core.Incident) error {
	return is.createIncident(ctx, tx, incident)
}

// CreateIncident inserts an incident using the write pool.
func (is *IncidentStore) CreateIncident(ctx context.Context, incident *core.Incident) error {
	return is.createIncident(ctx, is.sqlite.WriteDB, incident)
}

func (is *IncidentStore) createIncident(ctx context.Context, db dbtx, incident *core.Incident) error {
	hostsJSON, err := marshalJSON(incident.AffectedHosts)
	if err != nil {
		return err
	}
	usersJSON, err := marshalJSON(incident.AffectedUsers)
	if err != nil {
		return err
	}
	tacticsJSON, err := marshalJSON(incident.MitreTactics)
	if err != nil {
		return err
	}
	techniquesJSON, err := marshalJSON(incident.MitreTechniques)
	if err != nil {
		return err
	}
	iocJSON, err := marshalJSON(incident.IOCSummary)
	if err != nil {
		return err
	}
	timelineJSON, err := marshalJSON(incident.Timeline)
	if err != nil {
		return err
	}

	query := `INSERT INTO incidents (` + incidentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.ExecContext(ctx, query,
		incident.ID,
		incident.Title,
		nullIfEmpty(incident.Description),
		incident.Severity,
		incident.Status,
		incident.Priority,
		nullIfEmpty(incident.Category),
		incident.AlertCount,
		incident.EventCount,
		hostsJSON,
		usersJSON,
		nullIfEmpty(incident.KillChainPhase),
		tacticsJSON,
		techniquesJSON,
		iocJSON,
		timelineJSON,
		formatTime(incident.FirstSeen),
		formatTime(incident.LastSeen),
		formatTime(incident.CreatedAt),
		formatTime(incident.UpdatedAt),
		formatTimePtr(incident.ResolvedAt),
		nullIfEmpty(incident.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx rewrites an incident's mutable fields inside the batch
// transaction. Used by the correlation merge path.
func (is *IncidentStore) UpdateIncidentTx(ctx context.Context, tx *sql.Tx, incident *core.Incident) error {
	return is.updateIncident(ctx, tx, incident)
}

// UpdateIncident rewrites an incident using the write pool.
func (is *IncidentStore) UpdateIncident(ctx context.Context, incident *core.Incident) error {
	return is.updateIncident(ctx, is.sqlite.WriteDB, incident)
}

func (is *IncidentStore) updateIncident(ctx context.Context, db dbtx, incident *core.Incident) error {
	hostsJSON, err := marshalJSON(incident.AffectedHosts)
	if err != nil {
		return err
	}
	usersJSON, err := marshalJSON(incident.AffectedUsers)
	if err != nil {
		return err
	}
	tacticsJSON, err := marshalJSON(incident.MitreTactics)
	if err != nil {
		return err
	}
	techniquesJSON, err := marshalJSON(incident.MitreTechniques)
	if err != nil {
		return err
	}
	iocJSON, err := marshalJSON(incident.IOCSummary)
	if err != nil {
		return err
	}
	timelineJSON, err := marshalJSON(incident.Timeline)
	if err != nil {
		return err
	}

	query := `UPDATE incidents SET
		title = ?, description = ?, severity = ?, status = ?, priority = ?,
		category = ?, alert_count = ?, event_count = ?, affected_hosts = ?,
		affected_users = ?, kill_chain_phase = ?, mitre_tactics = ?,
		mitre_techniques = ?, ioc_summary = ?, timeline = ?, first_seen = ?,
		last_seen = ?, updated_at = ?, resolved_at = ?, notes = ?
		WHERE id = ?`

	res, err := db.ExecContext(ctx, query,
		incident.Title,
		nullIfEmpty(incident.Description),
		incident.Severity,
		incident.Status,
		incident.Priority,
		nullIfEmpty(incident.Category),
		incident.AlertCount,
		incident.EventCount,
		hostsJSON,
		usersJSON,
		nullIfEmpty(incident.KillChainPhase),
		tacticsJSON,
		techniquesJSON,
		iocJSON,
		timelineJSON,
		formatTime(incident.FirstSeen),
		formatTime(incident.LastSeen),
		formatTime(incident.UpdatedAt),
		formatTimePtr(incident.ResolvedAt),
		nullIfEmpty(incident.Notes),
		incident.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident %s: %w", incident.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (is *IncidentStore) GetIncident(ctx context.Context, id string) (*core.Incident, error) {
	row := is.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrIncidentNotFound
	}
	return incident, err
}

// GetIncidentTx retrieves an incident inside the batch transaction so the
// timeline builder and correlation see uncommitted writes.
func (is *IncidentStore) GetIncidentTx(ctx context.Context, tx *sql.Tx, id string) (*core.Incident, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrIncidentNotFound
	}
	return incident, err
}

// ListIncidents retrieves incidents newest-first with pagination.
func (is *IncidentStore) ListIncidents(ctx context.Context, limit, offset int) ([]*core.Incident, error) {
	rows, err := is.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()
	return scanIncidents(rows)
}

// FindActiveIncidentByHostTx returns the most recent open or investigating
// incident whose affected-host set contains host exactly, or nil when none
// matches. Candidates are narrowed with a status filter in SQL; the host
// membership test runs in Go over the decoded set because a serialized-text
// containment check would let "10.0.1.1" match "10.0.1.10".
func (is *IncidentStore) FindActiveIncidentByHostTx(ctx context.Context, tx *sql.Tx, host string) (*core.Incident, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		WHERE status IN ('open', 'investigating') AND affected_hosts IS NOT NULL
		ORDER BY last_seen DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active incidents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		if incident.HasAffectedHost(host) {
			return incident, nil
		}
	}
	return nil, rows.Err()
}

// SaveTimeline persists a rebuilt timeline and the derived event count.
func (is *IncidentStore) SaveTimeline(ctx context.Context, incidentID string, timeline []core.TimelineEntry, eventCount int) error {
	timelineJSON, err := marshalJSON(timeline)
	if err != nil {
		return err
	}
	res, err := is.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE incidents SET timeline = ?, event_count = ?, updated_at = ? WHERE id = ?`,
		timelineJSON, eventCount, formatTime(time.Now().UTC()), incidentID)
	if err != nil {
		return fmt.Errorf("failed to save timeline for incident %s: %w", incidentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// UpdateIncidentStatus transitions incident lifecycle state, stamping
// resolved_at on resolution.
func (is *IncidentStore) UpdateIncidentStatus(ctx context.Context, id, status string) error {
	now := time.Now().UTC()
	var resolvedAt interface{}
	if status == core.IncidentStatusResolved || status == core.IncidentStatusClosed {
		resolvedAt = formatTime(now)
	}
	res, err := is.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE incidents SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?`,
		status, resolvedAt, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// CountIncidents returns the total number of incidents.
func (is *IncidentStore) CountIncidents(ctx context.Context) (int64, error) {
	var n int64
	if err := is.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return n, nil
}

func scanIncident(row rowScanner) (*core.Incident, error) {
	var (
		incident   core.Incident
		desc       sql.NullString
		category   sql.NullString
		hosts      sql.NullString
		users      sql.NullString
		phase      sql.NullString
		tactics    sql.NullString
		techniques sql.NullString
		ioc        sql.NullString
		timeline   sql.NullString
		firstSeen  sql.NullString
		lastSeen   sql.NullString
		createdAt  string
		updatedAt  string
		resolvedAt sql.NullString
		notes      sql.NullString
	)

	err := row.Scan(&incident.ID, &incident.Title, &desc, &incident.Severity,
		&incident.Status, &incident.Priority, &category, &incident.AlertCount,
		&incident.EventCount, &hosts, &users, &phase, &tactics, &techniques,
		&ioc, &timeline, &firstSeen, &lastSeen, &createdAt, &updatedAt,
		&resolvedAt, &notes)
	if err != nil {
		return nil, err
	}

	incident.Description = desc.String
	incident.Category = category.String
	incident.KillChainPhase = phase.String
	incident.Notes = notes.String

	if err := unmarshalJSON(hosts, &incident.AffectedHosts); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(users, &incident.AffectedUsers); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tactics, &incident.MitreTactics); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(techniques, &incident.MitreTechniques); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(ioc, &incident.IOCSummary); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(timeline, &incident.Timeline); err != nil {
		return nil, err
	}

	if firstSeen.Valid {
		if incident.FirstSeen, err = parseTime(firstSeen.String); err != nil {
			return nil, fmt.Errorf("failed to parse first_seen for incident %s: %w", incident.ID, err)
		}
	}
	if lastSeen.Valid {
		if incident.LastSeen, err = parseTime(lastSeen.String); err != nil {
			return nil, fmt.Errorf("failed to parse last_seen for incident %s: %w", incident.ID, err)
		}
	}
	if incident.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for incident %s: %w", incident.ID, err)
	}
	if incident.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for incident %s: %w", incident.ID, err)
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse resolved_at for incident %s: %w", incident.ID, err)
		}
		incident.ResolvedAt = &t
	}
	return &incident, nil
}

func scanIncidents(rows *sql.Rows) ([]*core.Incident, error) {
	var incidents []*core.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}
