package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"socforge/core"
)

// AlertStore handles alert persistence.
type AlertStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewAlertStore creates an alert store.
func NewAlertStore(sqlite *SQLite, logger *zap.SugaredLogger) *AlertStore {
	return &AlertStore{sqlite: sqlite, logger: logger}
}

const alertColumns = `id, title, description, severity, status, source, rule_id,
	incident_id, source_ip, dest_ip, event_count, mitre_tactic, mitre_technique,
	mitre_technique_id, ioc_indicators, related_event_ids, false_positive,
	created_at, updated_at`

// CreateAlertTx inserts an alert inside the batch transaction.
func (as *AlertStore) CreateAlertTx(ctx context.Context, tx *sql.Tx, alert *core.Alert) error {
	return as.createAlert(ctx, tx, alert)
}

// CreateAlert inserts an alert using the write pool.
func (as *AlertStore) CreateAlert(ctx context.Context, alert *core.Alert) error {
	return as.createAlert(ctx, as.sqlite.WriteDB, alert)
}

func (as *AlertStore) createAlert(ctx context.Context, db dbtx, alert *core.Alert) error {
	iocJSON, err := marshalJSON(alert.IOCIndicators)
	if err != nil {
		return err
	}
	eventIDsJSON, err := marshalJSON(alert.RelatedEventIDs)
	if err != nil {
		return err
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.ExecContext(ctx, query,
		alert.ID,
		alert.Title,
		nullIfEmpty(alert.Description),
		alert.Severity,
		alert.Status,
		nullIfEmpty(alert.Source),
		alert.RuleID,
		nullIfEmpty(alert.IncidentID),
		nullIfEmpty(alert.SourceIP),
		nullIfEmpty(alert.DestIP),
		alert.EventCount,
		nullIfEmpty(alert.MitreTactic),
		nullIfEmpty(alert.MitreTechnique),
		nullIfEmpty(alert.MitreTechniqueID),
		iocJSON,
		eventIDsJSON,
		alert.FalsePositive,
		formatTime(alert.CreatedAt),
		formatTime(alert.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (as *AlertStore) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	row := as.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	return alert, err
}

// ListAlerts retrieves alerts newest-first with pagination.
func (as *AlertStore) ListAlerts(ctx context.Context, limit, offset int) ([]*core.Alert, error) {
	rows, err := as.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// GetAlertsByIncident returns the alerts linked to an incident ordered by
// creation time.
func (as *AlertStore) GetAlertsByIncident(ctx context.Context, incidentID string) ([]*core.Alert, error) {
	rows, err := as.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE incident_id = ? ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for incident: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// GetUncorrelatedAlertsBySourceTx returns the alerts for a source address
// that are still active triage work and not linked to any incident, oldest
// first. Runs inside the batch transaction so alerts written earlier in the
// same batch are visible.
func (as *AlertStore) GetUncorrelatedAlertsBySourceTx(ctx context.Context, tx *sql.Tx, sourceIP string) ([]*core.Alert, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE source_ip = ? AND incident_id IS NULL AND status IN (?, ?)
		ORDER BY created_at`,
		sourceIP, core.AlertStatusOpen, core.AlertStatusInvestigating)
	if err != nil {
		return nil, fmt.Errorf("failed to query standalone alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// LinkAlertToIncidentTx sets an alert's incident reference inside the batch
// transaction.
func (as *AlertStore) LinkAlertToIncidentTx(ctx context.Context, tx *sql.Tx, alertID, incidentID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE alerts SET incident_id = ?, updated_at = ? WHERE id = ?`,
		incidentID, formatTime(time.Now().UTC()), alertID)
	if err != nil {
		return fmt.Errorf("failed to link alert %s to incident %s: %w", alertID, incidentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// UpdateAlertStatus updates triage state. Marking an alert false-positive
// never rewrites detection output, only the triage flags.
func (as *AlertStore) UpdateAlertStatus(ctx context.Context, id, status string, falsePositive bool) error {
	res, err := as.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE alerts SET status = ?, false_positive = ?, updated_at = ? WHERE id = ?`,
		status, falsePositive, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// CountAlerts returns the total number of alerts.
func (as *AlertStore) CountAlerts(ctx context.Context) (int64, error) {
	var n int64
	if err := as.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

func scanAlert(row rowScanner) (*core.Alert, error) {
	var (
		alert      core.Alert
		desc       sql.NullString
		source     sql.NullString
		incidentID sql.NullString
		srcIP      sql.NullString
		dstIP      sql.NullString
		tactic     sql.NullString
		technique  sql.NullString
		techID     sql.NullString
		ioc        sql.NullString
		eventIDs   sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&alert.ID, &alert.Title, &desc, &alert.Severity, &alert.Status,
		&source, &alert.RuleID, &incidentID, &srcIP, &dstIP, &alert.EventCount,
		&tactic, &technique, &techID, &ioc, &eventIDs, &alert.FalsePositive,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	alert.Description = desc.String
	alert.Source = source.String
	alert.IncidentID = incidentID.String
	alert.SourceIP = srcIP.String
	alert.DestIP = dstIP.String
	alert.MitreTactic = tactic.String
	alert.MitreTechnique = technique.String
	alert.MitreTechniqueID = techID.String

	if err := unmarshalJSON(ioc, &alert.IOCIndicators); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(eventIDs, &alert.RelatedEventIDs); err != nil {
		return nil, err
	}

	alert.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for alert %s: %w", alert.ID, err)
	}
	alert.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for alert %s: %w", alert.ID, err)
	}
	return &alert, nil
}

func scanAlerts(rows *sql.Rows) ([]*core.Alert, error) {
	var alerts []*core.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
