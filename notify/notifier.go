package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"socforge/core"
	"socforge/metrics"
)

// ChannelType identifies a notification channel.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
)

// ChannelConfig holds configuration for one notification channel.
type ChannelConfig struct {
	Enabled bool        `json:"enabled" mapstructure:"enabled"`
	Type    ChannelType `json:"type" mapstructure:"type"`

	// Email configuration.
	SMTPHost     string   `json:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort     int      `json:"smtp_port" mapstructure:"smtp_port"`
	SMTPUsername string   `json:"smtp_username" mapstructure:"smtp_username"`
	SMTPPassword string   `json:"smtp_password" mapstructure:"smtp_password"`
	FromAddress  string   `json:"from_address" mapstructure:"from_address"`
	ToAddresses  []string `json:"to_addresses" mapstructure:"to_addresses"`

	// Webhook and Slack configuration.
	WebhookURL     string            `json:"webhook_url" mapstructure:"webhook_url"`
	WebhookHeaders map[string]string `json:"webhook_headers" mapstructure:"webhook_headers"`

	// MinSeverity suppresses alerts below the given level.
	MinSeverity string `json:"min_severity" mapstructure:"min_severity"`
}

// Notifier fans alerts out to the configured channels. Delivery is best
// effort: a failing channel is logged and counted, never fatal.
type Notifier struct {
	configs []ChannelConfig
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewNotifier creates a notifier.
func NewNotifier(configs []ChannelConfig, logger *zap.SugaredLogger) *Notifier {
	return &Notifier{
		configs: configs,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Name implements the pipeline sink interface.
func (n *Notifier) Name() string { return "notifier" }

// Deliver sends each alert through every matching channel.
func (n *Notifier) Deliver(ctx context.Context, alerts []*core.Alert) error {
	for _, alert := range alerts {
		n.NotifyAlert(ctx, alert)
	}
	return nil
}

// DeliverIncidents sends each newly created incident through every matching
// channel.
func (n *Notifier) DeliverIncidents(ctx context.Context, incidents []*core.Incident) error {
	for _, incident := range incidents {
		n.NotifyIncident(ctx, incident)
	}
	return nil
}

// NotifyAlert sends one alert through all enabled channels that pass the
// severity filter.
func (n *Notifier) NotifyAlert(ctx context.Context, alert *core.Alert) {
	for _, config := range n.configs {
		if !config.Enabled || !n.shouldNotify(alert, config) {
			continue
		}

		var err error
		switch config.Type {
		case ChannelEmail:
			err = n.sendEmail(alert, config)
		case ChannelWebhook:
			err = n.sendWebhook(ctx, alert, config)
		case ChannelSlack:
			err = n.sendSlack(ctx, alert, config)
		default:
			n.logger.Warnw("unknown notification channel type", "type", config.Type)
			continue
		}

		if err != nil {
			metrics.NotificationsSent.WithLabelValues(string(config.Type), "error").Inc()
			n.logger.Errorw("notification failed",
				"channel", config.Type, "alert_id", alert.ID, "error", err)
		} else {
			metrics.NotificationsSent.WithLabelValues(string(config.Type), "ok").Inc()
		}
	}
}

// NotifyIncident announces a new incident through all enabled channels that
// pass the severity filter.
func (n *Notifier) NotifyIncident(ctx context.Context, incident *core.Incident) {
	for _, config := range n.configs {
		if !config.Enabled || !severityPasses(incident.Severity, config) {
			continue
		}

		var err error
		switch config.Type {
		case ChannelEmail:
			err = n.sendIncidentEmail(incident, config)
		case ChannelWebhook:
			err = n.sendIncidentWebhook(ctx, incident, config)
		case ChannelSlack:
			err = n.sendIncidentSlack(ctx, incident, config)
		default:
			n.logger.Warnw("unknown notification channel type", "type", config.Type)
			continue
		}

		if err != nil {
			metrics.NotificationsSent.WithLabelValues(string(config.Type), "error").Inc()
			n.logger.Errorw("incident notification failed",
				"channel", config.Type, "incident_id", incident.ID, "error", err)
		} else {
			metrics.NotificationsSent.WithLabelValues(string(config.Type), "ok").Inc()
		}
	}
}

func (n *Notifier) shouldNotify(alert *core.Alert, config ChannelConfig) bool {
	return severityPasses(alert.Severity, config)
}

func severityPasses(severity string, config ChannelConfig) bool {
	if config.MinSeverity == "" {
		return true
	}
	return core.SeverityRank(severity) >= core.SeverityRank(config.MinSeverity)
}

func (n *Notifier) sendEmail(alert *core.Alert, config ChannelConfig) error {
	if len(config.ToAddresses) == 0 {
		return fmt.Errorf("no recipients configured for email notification")
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(config.ToAddresses, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", subject)
	fmt.Fprintf(&msg, "%s\n\nSeverity: %s\nSource IP: %s\nEvents: %d\nMITRE: %s / %s (%s)\n",
		alert.Description, alert.Severity, alert.SourceIP, alert.EventCount,
		alert.MitreTactic, alert.MitreTechnique, alert.MitreTechniqueID)

	addr := fmt.Sprintf("%s:%d", config.SMTPHost, config.SMTPPort)
	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, config.FromAddress, config.ToAddresses, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

func (n *Notifier) sendIncidentEmail(incident *core.Incident, config ChannelConfig) error {
	if len(config.ToAddresses) == 0 {
		return fmt.Errorf("no recipients configured for email notification")
	}

	subject := fmt.Sprintf("[INCIDENT][%s] %s", strings.ToUpper(incident.Severity), incident.Title)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", config.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(config.ToAddresses, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", subject)
	fmt.Fprintf(&msg, "%s\n\nSeverity: %s\nPriority: %s\nCategory: %s\nAlerts: %d\nKill Chain Phase: %s\nAffected Hosts: %s\n",
		incident.Description, incident.Severity, incident.Priority, incident.Category,
		incident.AlertCount, incident.KillChainPhase, strings.Join(incident.AffectedHosts, ", "))

	addr := fmt.Sprintf("%s:%d", config.SMTPHost, config.SMTPPort)
	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, config.FromAddress, config.ToAddresses, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

func (n *Notifier) sendIncidentWebhook(ctx context.Context, incident *core.Incident, config ChannelConfig) error {
	body, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident payload: %w", err)
	}
	return n.post(ctx, config.WebhookURL, config.WebhookHeaders, body)
}

func (n *Notifier) sendIncidentSlack(ctx context.Context, incident *core.Incident, config ChannelConfig) error {
	color, ok := slackColors[incident.Severity]
	if !ok {
		color = "#439fe0"
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("New incident: %s", incident.Title),
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"fields": []map[string]interface{}{
					{"title": "Severity", "value": incident.Severity, "short": true},
					{"title": "Priority", "value": incident.Priority, "short": true},
					{"title": "Alerts", "value": fmt.Sprintf("%d", incident.AlertCount), "short": true},
					{"title": "Kill Chain Phase", "value": incident.KillChainPhase, "short": true},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}
	return n.post(ctx, config.WebhookURL, config.WebhookHeaders, body)
}

func (n *Notifier) sendWebhook(ctx context.Context, alert *core.Alert, config ChannelConfig) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	return n.post(ctx, config.WebhookURL, config.WebhookHeaders, body)
}

// slackColors maps severities to Slack attachment colors.
var slackColors = map[string]string{
	core.SeverityCritical: "#d50200",
	core.SeverityHigh:     "#e8912d",
	core.SeverityMedium:   "#daa038",
	core.SeverityLow:      "#2eb886",
	core.SeverityInfo:     "#439fe0",
}

func (n *Notifier) sendSlack(ctx context.Context, alert *core.Alert, config ChannelConfig) error {
	color, ok := slackColors[alert.Severity]
	if !ok {
		color = "#439fe0"
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("Security alert: %s", alert.Title),
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"fields": []map[string]interface{}{
					{"title": "Severity", "value": alert.Severity, "short": true},
					{"title": "Source IP", "value": alert.SourceIP, "short": true},
					{"title": "Events", "value": fmt.Sprintf("%d", alert.EventCount), "short": true},
					{"title": "MITRE Technique", "value": alert.MitreTechniqueID, "short": true},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}
	return n.post(ctx, config.WebhookURL, config.WebhookHeaders, body)
}

func (n *Notifier) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
