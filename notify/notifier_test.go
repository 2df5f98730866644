package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"socforge/core"
)

func testAlert(severity string) *core.Alert {
	return &core.Alert{
		ID:               "alert-1",
		Title:            "[HIGH] SSH Brute Force Detection — 203.0.113.5",
		Severity:         severity,
		SourceIP:         "203.0.113.5",
		EventCount:       6,
		MitreTechniqueID: "T1110",
	}
}

func TestNotifyAlert_Webhook(t *testing.T) {
	var received *core.Alert
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Auth")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:        true,
		Type:           ChannelWebhook,
		WebhookURL:     server.URL,
		WebhookHeaders: map[string]string{"X-Auth": "token123"},
	}}, zap.NewNop().Sugar())

	notifier.NotifyAlert(context.Background(), testAlert(core.SeverityHigh))

	require.NotNil(t, received)
	assert.Equal(t, "alert-1", received.ID)
	assert.Equal(t, "token123", gotHeader)
}

func TestNotifyAlert_Slack(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:    true,
		Type:       ChannelSlack,
		WebhookURL: server.URL,
	}}, zap.NewNop().Sugar())

	notifier.NotifyAlert(context.Background(), testAlert(core.SeverityCritical))

	require.NotNil(t, payload)
	assert.Contains(t, payload["text"], "Security alert")
	attachments := payload["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	assert.Equal(t, slackColors[core.SeverityCritical], attachments[0].(map[string]interface{})["color"])
}

func TestNotifyAlert_SeverityFilter(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:     true,
		Type:        ChannelWebhook,
		WebhookURL:  server.URL,
		MinSeverity: core.SeverityHigh,
	}}, zap.NewNop().Sugar())

	ctx := context.Background()
	notifier.NotifyAlert(ctx, testAlert(core.SeverityLow))
	assert.Equal(t, 0, calls, "below-threshold alerts stay quiet")

	notifier.NotifyAlert(ctx, testAlert(core.SeverityHigh))
	notifier.NotifyAlert(ctx, testAlert(core.SeverityCritical))
	assert.Equal(t, 2, calls)
}

func TestNotifyAlert_DisabledChannelSkipped(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:    false,
		Type:       ChannelWebhook,
		WebhookURL: server.URL,
	}}, zap.NewNop().Sugar())

	notifier.NotifyAlert(context.Background(), testAlert(core.SeverityCritical))
	assert.Equal(t, 0, calls)
}

func TestDeliver_FailingChannelNeverErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:    true,
		Type:       ChannelWebhook,
		WebhookURL: server.URL,
	}}, zap.NewNop().Sugar())

	err := notifier.Deliver(context.Background(), []*core.Alert{testAlert(core.SeverityHigh)})
	assert.NoError(t, err, "delivery is best effort")
}

func TestNotifyIncident_Slack(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:    true,
		Type:       ChannelSlack,
		WebhookURL: server.URL,
	}}, zap.NewNop().Sugar())

	incident := &core.Incident{
		ID:             "inc-1",
		Title:          "Correlated Attack Activity from 203.0.113.5",
		Severity:       core.SeverityHigh,
		Priority:       core.PriorityHigh,
		AlertCount:     3,
		KillChainPhase: "credential_access",
	}
	notifier.NotifyIncident(context.Background(), incident)

	require.NotNil(t, payload)
	assert.Contains(t, payload["text"], "New incident")
	assert.Contains(t, payload["text"], incident.Title)
}

func TestDeliverIncidents_SeverityFiltered(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier([]ChannelConfig{{
		Enabled:     true,
		Type:        ChannelWebhook,
		WebhookURL:  server.URL,
		MinSeverity: core.SeverityCritical,
	}}, zap.NewNop().Sugar())

	err := notifier.DeliverIncidents(context.Background(), []*core.Incident{
		{ID: "inc-1", Severity: core.SeverityHigh},
		{ID: "inc-2", Severity: core.SeverityCritical},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestShouldNotify_NoMinSeverity(t *testing.T) {
	notifier := NewNotifier(nil, zap.NewNop().Sugar())

	assert.True(t, notifier.shouldNotify(testAlert(core.SeverityInfo), ChannelConfig{}))
	assert.False(t, notifier.shouldNotify(testAlert("unknown"), ChannelConfig{MinSeverity: core.SeverityInfo}))
}
