package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"socforge/core"
)

// EventStore handles event persistence.
type EventStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewEventStore creates an event store.
func NewEventStore(sqlite *SQLite, logger *zap.SugaredLogger) *EventStore {
	return &EventStore{sqlite: sqlite, logger: logger}
}

const eventColumns = `id, timestamp, event_type, severity, source_ip, source_port,
	dest_ip, dest_port, protocol, action, user_account, hostname, process_name,
	command_line, raw_log, normalized_message, mitre_tactic, mitre_technique,
	mitre_technique_id, risk_score, extra_data, simulation_id`

// CreateEvent inserts an event using the write pool.
func (es *EventStore) CreateEvent(ctx context.Context, event *core.Event) error {
	return es.createEvent(ctx, es.sqlite.WriteDB, event)
}

// CreateEventTx inserts an event inside a batch transaction.
func (es *EventStore) CreateEventTx(ctx context.Context, tx *sql.Tx, event *core.Event) error {
	return es.createEvent(ctx, tx, event)
}

func (es *EventStore) createEvent(ctx context.Context, db dbtx, event *core.Event) error {
	extraJSON, err := marshalJSON(event.ExtraData)
	if err != nil {
		return err
	}

	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.ExecContext(ctx, query,
		event.ID,
		formatTime(event.Timestamp),
		event.EventType,
		event.Severity,
		nullIfEmpty(event.SourceIP),
		event.SourcePort,
		nullIfEmpty(event.DestIP),
		event.DestPort,
		nullIfEmpty(event.Protocol),
		nullIfEmpty(event.Action),
		nullIfEmpty(event.UserAccount),
		nullIfEmpty(event.Hostname),
		nullIfEmpty(event.ProcessName),
		nullIfEmpty(event.CommandLine),
		nullIfEmpty(event.RawLog),
		nullIfEmpty(event.NormalizedMessage),
		nullIfEmpty(event.MitreTactic),
		nullIfEmpty(event.MitreTechnique),
		nullIfEmpty(event.MitreTechniqueID),
		event.RiskScore,
		extraJSON,
		nullIfEmpty(event.SimulationID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by ID.
func (es *EventStore) GetEvent(ctx context.Context, id string) (*core.Event, error) {
	row := es.sqlite.ReadDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	return event, err
}

// GetEventsByIDs resolves a set of event IDs to events, ordered by
// timestamp. Missing IDs are simply absent from the result.
func (es *EventStore) GetEventsByIDs(ctx context.Context, ids []string) ([]*core.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := es.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders+`) ORDER BY timestamp`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by ids: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListEvents retrieves events newest-first with pagination.
func (es *EventStore) ListEvents(ctx context.Context, limit, offset int) ([]*core.Event, error) {
	rows, err := es.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountEvents returns the total number of stored events.
func (es *EventStore) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := es.sqlite.ReadDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*core.Event, error) {
	var (
		event      core.Event
		ts         string
		srcIP      sql.NullString
		srcPort    sql.NullInt64
		dstIP      sql.NullString
		dstPort    sql.NullInt64
		protocol   sql.NullString
		action     sql.NullString
		user       sql.NullString
		host       sql.NullString
		process    sql.NullString
		cmdline    sql.NullString
		rawLog     sql.NullString
		normalized sql.NullString
		tactic     sql.NullString
		technique  sql.NullString
		techID     sql.NullString
		extra      sql.NullString
		simID      sql.NullString
	)

	err := row.Scan(&event.ID, &ts, &event.EventType, &event.Severity,
		&srcIP, &srcPort, &dstIP, &dstPort, &protocol, &action, &user, &host,
		&process, &cmdline, &rawLog, &normalized, &tactic, &technique, &techID,
		&event.RiskScore, &extra, &simID)
	if err != nil {
		return nil, err
	}

	event.Timestamp, err = parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp for event %s: %w", event.ID, err)
	}
	event.SourceIP = srcIP.String
	event.SourcePort = int(srcPort.Int64)
	event.DestIP = dstIP.String
	event.DestPort = int(dstPort.Int64)
	event.Protocol = protocol.String
	event.Action = action.String
	event.UserAccount = user.String
	event.Hostname = host.String
	event.ProcessName = process.String
	event.CommandLine = cmdline.String
	event.RawLog = rawLog.String
	event.NormalizedMessage = normalized.String
	event.MitreTactic = tactic.String
	event.MitreTechnique = technique.String
	event.MitreTechniqueID = techID.String
	event.SimulationID = simID.String
	if err := unmarshalJSON(extra, &event.ExtraData); err != nil {
		return nil, err
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*core.Event, error) {
	var events []*core.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
