package siem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"socforge/core"
)

// NATSConfig configures the NATS publish target.
type NATSConfig struct {
	URL     string `json:"url" mapstructure:"url"`
	Subject string `json:"subject" mapstructure:"subject"`
}

// NATS publishes each alert as a JSON message for downstream consumers.
type NATS struct {
	config NATSConfig
	conn   *nats.Conn
}

// NewNATS connects to the broker and returns a publish target.
func NewNATS(config NATSConfig) (*NATS, error) {
	if config.Subject == "" {
		config.Subject = "socforge.alerts"
	}
	conn, err := nats.Connect(config.URL, nats.Name("socforge"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}
	return &NATS{config: config, conn: conn}, nil
}

// Name implements Target.
func (n *NATS) Name() string { return "nats" }

// Export publishes one message per alert.
func (n *NATS) Export(ctx context.Context, alerts []*core.Alert) error {
	for _, alert := range alerts {
		data, err := json.Marshal(toDocument(alert))
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", alert.ID, err)
		}
		if err := n.conn.Publish(n.config.Subject, data); err != nil {
			return fmt.Errorf("failed to publish alert %s: %w", alert.ID, err)
		}
	}
	return n.conn.Flush()
}

// Close drains the connection.
func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
