package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/core"
)

func newTestAlertStore(t *testing.T) (*AlertStore, *SQLite) {
	t.Helper()
	sqlite := setupTestSQLite(t)
	return NewAlertStore(sqlite, zap.NewNop().Sugar()), sqlite
}

func sampleAlert(title string) *core.Alert {
	rule := core.NewDetectionRule("SSH Brute Force Detection")
	rule.Severity = core.SeverityHigh

	events := []*core.Event{
		{ID: "11111111-1111-1111-1111-111111111111", SourceIP: "203.0.113.5", DestIP: "10.0.1.20", DestPort: 22},
		{ID: "22222222-2222-2222-2222-222222222222", SourceIP: "203.0.113.5", DestIP: "10.0.1.21", DestPort: 22},
	}
	alert := core.NewAlertFromRule(rule, events, "203.0.113.5")
	alert.Title = title
	return alert
}

func TestAlertStore_RoundTrip(t *testing.T) {
	store, _ := newTestAlertStore(t)
	ctx := context.Background()

	alert := sampleAlert("round trip")
	require.NoError(t, store.CreateAlert(ctx, alert))

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.Title, got.Title)
	assert.Equal(t, alert.Severity, got.Severity)
	assert.Equal(t, alert.EventCount, got.EventCount)
	assert.Equal(t, alert.RelatedEventIDs, got.RelatedEventIDs)
	assert.Equal(t, alert.IOCIndicators.DestIPs, got.IOCIndicators.DestIPs)
	assert.Empty(t, got.IncidentID)
}

func TestAlertStore_GetAlertNotFound(t *testing.T) {
	store, _ := newTestAlertStore(t)

	_, err := store.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertStore_LinkAlertToIncident(t *testing.T) {
	store, sqlite := newTestAlertStore(t)
	ctx := context.Background()

	alert := sampleAlert("link me")
	require.NoError(t, store.CreateAlert(ctx, alert))

	err := sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		return store.LinkAlertToIncidentTx(ctx, tx, alert.ID, "incident-1")
	})
	require.NoError(t, err)

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "incident-1", got.IncidentID)

	err = sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		return store.LinkAlertToIncidentTx(ctx, tx, "missing", "incident-1")
	})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertStore_GetAlertsByIncident(t *testing.T) {
	store, sqlite := newTestAlertStore(t)
	ctx := context.Background()

	a1 := sampleAlert("first")
	a2 := sampleAlert("second")
	unrelated := sampleAlert("unrelated")
	require.NoError(t, store.CreateAlert(ctx, a1))
	require.NoError(t, store.CreateAlert(ctx, a2))
	require.NoError(t, store.CreateAlert(ctx, unrelated))

	err := sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.LinkAlertToIncidentTx(ctx, tx, a1.ID, "incident-1"); err != nil {
			return err
		}
		return store.LinkAlertToIncidentTx(ctx, tx, a2.ID, "incident-1")
	})
	require.NoError(t, err)

	alerts, err := store.GetAlertsByIncident(ctx, "incident-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestAlertStore_GetUncorrelatedAlertsBySource(t *testing.T) {
	store, sqlite := newTestAlertStore(t)
	ctx := context.Background()

	standalone := sampleAlert("standalone")
	linked := sampleAlert("already correlated")
	resolved := sampleAlert("resolved")
	otherSource := sampleAlert("other source")
	otherSource.SourceIP = "198.51.100.7"

	for _, alert := range []*core.Alert{standalone, linked, resolved, otherSource} {
		require.NoError(t, store.CreateAlert(ctx, alert))
	}

	err := sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		return store.LinkAlertToIncidentTx(ctx, tx, linked.ID, "inc-1")
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAlertStatus(ctx, resolved.ID, core.AlertStatusResolved, false))

	var got []*core.Alert
	err = sqlite.WithTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		got, txErr = store.GetUncorrelatedAlertsBySourceTx(ctx, tx, "203.0.113.5")
		return txErr
	})
	require.NoError(t, err)

	require.Len(t, got, 1, "only the open unlinked alert for the address qualifies")
	assert.Equal(t, standalone.ID, got[0].ID)
}

func TestAlertStore_UpdateAlertStatus(t *testing.T) {
	store, _ := newTestAlertStore(t)
	ctx := context.Background()

	alert := sampleAlert("triage me")
	require.NoError(t, store.CreateAlert(ctx, alert))

	require.NoError(t, store.UpdateAlertStatus(ctx, alert.ID, core.AlertStatusFalsePositive, true))

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusFalsePositive, got.Status)
	assert.True(t, got.FalsePositive)

	assert.ErrorIs(t, store.UpdateAlertStatus(ctx, "missing", core.AlertStatusResolved, false), ErrAlertNotFound)
}

func TestAlertStore_ListAndCount(t *testing.T) {
	store, _ := newTestAlertStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateAlert(ctx, sampleAlert("alert")))
	}

	total, err := store.CountAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	alerts, err := store.ListAlerts(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}
