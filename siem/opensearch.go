package siem

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"socforge/core"
)

// OpenSearchConfig configures the OpenSearch bulk target.
type OpenSearchConfig struct {
	URL           string `json:"url" mapstructure:"url"`
	Username      string `json:"username" mapstructure:"username"`
	Password      string `json:"password" mapstructure:"password"`
	Index         string `json:"index" mapstructure:"index"`
	TLSSkipVerify bool   `json:"tls_skip_verify" mapstructure:"tls_skip_verify"`
}

// OpenSearch bulk-indexes alerts into an OpenSearch index.
type OpenSearch struct {
	config OpenSearchConfig
	client *opensearch.Client
}

// NewOpenSearch creates an OpenSearch target.
func NewOpenSearch(config OpenSearchConfig) (*OpenSearch, error) {
	if config.Index == "" {
		config.Index = "socforge-alerts"
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{config.URL},
		Username:  config.Username,
		Password:  config.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: config.TLSSkipVerify},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &OpenSearch{config: config, client: client}, nil
}

// Name implements Target.
func (o *OpenSearch) Name() string { return "opensearch" }

// Export indexes alerts through a bulk indexer, reporting the first indexing
// failure.
func (o *OpenSearch) Export(ctx context.Context, alerts []*core.Alert) error {
	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: o.client,
		Index:  o.config.Index,
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var firstErr error
	for _, alert := range alerts {
		data, err := json.Marshal(toDocument(alert))
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", alert.ID, err)
		}
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: alert.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				if firstErr == nil {
					if err != nil {
						firstErr = err
					} else {
						firstErr = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
					}
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to queue alert %s: %w", alert.ID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("bulk indexer close failed: %w", err)
	}
	if firstErr != nil {
		return fmt.Errorf("bulk indexing failed: %w", firstErr)
	}
	return nil
}
