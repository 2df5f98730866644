package simulate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/core"
	"socforge/service"
)

// fakeIngester captures generated batches without touching storage.
type fakeIngester struct {
	batches [][]*core.Event
	source  string
	fail    bool
}

func (f *fakeIngester) IngestBatch(ctx context.Context, events []*core.Event, source string) (*service.BatchResult, error) {
	if f.fail {
		return nil, errors.New("pipeline unavailable")
	}
	f.batches = append(f.batches, events)
	f.source = source
	return &service.BatchResult{EventsIngested: len(events), AlertsGenerated: 2}, nil
}

func newTestSimEngine(ingester Ingester) *Engine {
	return NewEngine(ingester, 42, zap.NewNop().Sugar())
}

func TestRun_SSHBruteForce(t *testing.T) {
	ingester := &fakeIngester{}
	engine := newTestSimEngine(ingester)

	run, err := engine.Run(context.Background(), Params{
		Scenario:  ScenarioSSHBruteForce,
		Intensity: "low",
	})
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, "simulation", ingester.source)
	require.Len(t, ingester.batches, 1)

	events := ingester.batches[0]
	assert.Equal(t, len(events), run.EventsGenerated)
	assert.Equal(t, 2, run.AlertsTriggered)

	// Every event is tagged with the run and enough failures exist to trip
	// a threshold-5 rule.
	failures := 0
	for _, ev := range events {
		assert.Equal(t, run.ID, ev.SimulationID)
		if ev.EventType == "ssh_login_failed" {
			failures++
		}
	}
	assert.GreaterOrEqual(t, failures, 5)
}

func TestRun_EventsChronological(t *testing.T) {
	ingester := &fakeIngester{}
	engine := newTestSimEngine(ingester)

	_, err := engine.Run(context.Background(), Params{
		Scenario:      ScenarioFullAttackChain,
		Intensity:     "medium",
		IncludeBenign: true,
	})
	require.NoError(t, err)

	events := ingester.batches[0]
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}

func TestRun_FullAttackChainCoversPhases(t *testing.T) {
	ingester := &fakeIngester{}
	engine := newTestSimEngine(ingester)

	_, err := engine.Run(context.Background(), Params{Scenario: ScenarioFullAttackChain})
	require.NoError(t, err)

	types := make(map[string]int)
	for _, ev := range ingester.batches[0] {
		types[ev.EventType]++
	}
	for _, expected := range []string{
		"port_scan", "ssh_login_failed", "ssh_login_success",
		"reverse_shell", "c2_beacon", "data_exfiltration",
	} {
		assert.Positive(t, types[expected], "scenario should emit %s events", expected)
	}
}

func TestRun_FixedSeedIsReproducible(t *testing.T) {
	params := Params{Scenario: ScenarioPortScan, Intensity: "medium"}

	first := &fakeIngester{}
	_, err := newTestSimEngine(first).Run(context.Background(), params)
	require.NoError(t, err)

	second := &fakeIngester{}
	_, err = newTestSimEngine(second).Run(context.Background(), params)
	require.NoError(t, err)

	require.Equal(t, len(first.batches[0]), len(second.batches[0]))
	for i := range first.batches[0] {
		assert.Equal(t, first.batches[0][i].EventType, second.batches[0][i].EventType)
		assert.Equal(t, first.batches[0][i].DestPort, second.batches[0][i].DestPort)
	}
}

func TestRun_IntensityScalesVolume(t *testing.T) {
	low := &fakeIngester{}
	_, err := newTestSimEngine(low).Run(context.Background(), Params{Scenario: ScenarioPortScan, Intensity: "low"})
	require.NoError(t, err)

	high := &fakeIngester{}
	_, err = newTestSimEngine(high).Run(context.Background(), Params{Scenario: ScenarioPortScan, Intensity: "high"})
	require.NoError(t, err)

	assert.Greater(t, len(high.batches[0]), len(low.batches[0]))
}

func TestRun_UnknownScenario(t *testing.T) {
	engine := newTestSimEngine(&fakeIngester{})

	_, err := engine.Run(context.Background(), Params{Scenario: "zero_day_friday"})
	assert.Error(t, err)
}

func TestRun_IngestFailureMarksRunFailed(t *testing.T) {
	engine := newTestSimEngine(&fakeIngester{fail: true})

	run, err := engine.Run(context.Background(), Params{Scenario: ScenarioSSHBruteForce})
	require.Error(t, err)
	assert.Nil(t, run)
}

func TestGetRun(t *testing.T) {
	ingester := &fakeIngester{}
	engine := newTestSimEngine(ingester)

	run, err := engine.Run(context.Background(), Params{Scenario: ScenarioWebAttack})
	require.NoError(t, err)

	got := engine.GetRun(run.ID)
	require.NotNil(t, got)
	assert.Equal(t, run.EventsGenerated, got.EventsGenerated)

	// Mutating the copy must not touch engine state.
	got.EventsGenerated = -1
	assert.Equal(t, run.EventsGenerated, engine.GetRun(run.ID).EventsGenerated)

	assert.Nil(t, engine.GetRun("nope"))
}

func TestScenarios_CatalogMatchesValidation(t *testing.T) {
	catalog := Scenarios()
	require.Len(t, catalog, 5)
	for _, s := range catalog {
		assert.True(t, IsValidScenario(s.ID), "catalog entry %s must validate", s.ID)
		assert.NotEmpty(t, s.Description)
	}
	assert.False(t, IsValidScenario("coffee_break"))
}
