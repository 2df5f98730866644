package siem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"socforge/core"
)

// SplunkConfig configures the HTTP Event Collector target.
type SplunkConfig struct {
	HECURL string `json:"hec_url" mapstructure:"hec_url"`
	Token  string `json:"token" mapstructure:"token"`
}

// Splunk sends alerts to a Splunk HTTP Event Collector endpoint.
type Splunk struct {
	config SplunkConfig
	client *http.Client
}

// NewSplunk creates a Splunk HEC target.
func NewSplunk(config SplunkConfig) *Splunk {
	return &Splunk{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Target.
func (s *Splunk) Name() string { return "splunk" }

// Export posts alerts as newline-delimited HEC events.
func (s *Splunk) Export(ctx context.Context, alerts []*core.Alert) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, alert := range alerts {
		envelope := map[string]interface{}{
			"event":      toDocument(alert),
			"sourcetype": "socforge:alert",
			"source":     "socforge",
			"time":       alert.CreatedAt.Unix(),
		}
		if err := enc.Encode(envelope); err != nil {
			return fmt.Errorf("failed to encode HEC event: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.HECURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to build HEC request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+s.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("HEC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HEC returned status %d", resp.StatusCode)
	}
	return nil
}
