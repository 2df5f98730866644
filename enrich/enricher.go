// Package enrich adds external threat intelligence to IP indicators.
// Lookups are optional and fail-safe; results are cached to keep API usage
// inside free-tier quotas.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"socforge/core"
)

// Config configures the enrichment providers.
type Config struct {
	VirusTotalAPIKey string        `json:"virustotal_api_key" mapstructure:"virustotal_api_key"`
	AbuseIPDBAPIKey  string        `json:"abuseipdb_api_key" mapstructure:"abuseipdb_api_key"`
	CacheSize        int           `json:"cache_size" mapstructure:"cache_size"`
	CacheTTL         time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
	RedisAddr        string        `json:"redis_addr" mapstructure:"redis_addr"`
}

// VirusTotalIntel is the subset of a VirusTotal IP report the service keeps.
type VirusTotalIntel struct {
	Source     string `json:"source"`
	IP         string `json:"ip"`
	Reputation int    `json:"reputation"`
	Malicious  int    `json:"malicious"`
	Suspicious int    `json:"suspicious"`
	Harmless   int    `json:"harmless"`
	Country    string `json:"country"`
	ASOwner    string `json:"as_owner"`
}

// AbuseIPDBIntel is the subset of an AbuseIPDB check the service keeps.
type AbuseIPDBIntel struct {
	Source               string `json:"source"`
	IP                   string `json:"ip"`
	AbuseConfidenceScore int    `json:"abuse_confidence_score"`
	TotalReports         int    `json:"total_reports"`
	CountryCode          string `json:"country_code"`
	ISP                  string `json:"isp"`
	IsTor                bool   `json:"is_tor"`
	IsWhitelisted        bool   `json:"is_whitelisted"`
}

// IPIntel is the merged enrichment result for one address. ThreatScore is
// the 0-100 average of the available provider scores.
type IPIntel struct {
	IP          string           `json:"ip"`
	Enriched    bool             `json:"enriched"`
	Sources     []string         `json:"sources"`
	VirusTotal  *VirusTotalIntel `json:"virustotal,omitempty"`
	AbuseIPDB   *AbuseIPDBIntel  `json:"abuseipdb,omitempty"`
	ThreatScore float64          `json:"threat_score"`
}

// AlertIntel carries enrichment for both ends of an alert.
type AlertIntel struct {
	SourceIPIntel *IPIntel `json:"source_ip_intel,omitempty"`
	DestIPIntel   *IPIntel `json:"dest_ip_intel,omitempty"`
}

// Enricher queries VirusTotal and AbuseIPDB with a local cache in front.
type Enricher struct {
	config Config
	cache  *Cache
	client *http.Client
	logger *zap.SugaredLogger

	vtBaseURL    string
	abuseBaseURL string
}

// NewEnricher creates an enricher. Providers without an API key stay
// disabled.
func NewEnricher(config Config, cache *Cache, logger *zap.SugaredLogger) *Enricher {
	if config.VirusTotalAPIKey != "" {
		logger.Info("VirusTotal enrichment enabled")
	}
	if config.AbuseIPDBAPIKey != "" {
		logger.Info("AbuseIPDB enrichment enabled")
	}
	return &Enricher{
		config:       config,
		cache:        cache,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		vtBaseURL:    "https://www.virustotal.com/api/v3",
		abuseBaseURL: "https://api.abuseipdb.com/api/v2",
	}
}

// IsConfigured reports whether at least one provider has credentials.
func (e *Enricher) IsConfigured() bool {
	return e.config.VirusTotalAPIKey != "" || e.config.AbuseIPDBAPIKey != ""
}

// EnrichAlert enriches an alert's source and destination addresses.
func (e *Enricher) EnrichAlert(ctx context.Context, alert *core.Alert) *AlertIntel {
	intel := &AlertIntel{}
	if alert.SourceIP != "" {
		intel.SourceIPIntel = e.EnrichIP(ctx, alert.SourceIP)
	}
	if alert.DestIP != "" {
		intel.DestIPIntel = e.EnrichIP(ctx, alert.DestIP)
	}
	return intel
}

// EnrichIP runs every available provider for one address and computes the
// composite threat score.
func (e *Enricher) EnrichIP(ctx context.Context, ip string) *IPIntel {
	intel := &IPIntel{IP: ip, Sources: []string{}}

	var scores []float64
	if vt := e.lookupVirusTotal(ctx, ip); vt != nil {
		intel.VirusTotal = vt
		intel.Sources = append(intel.Sources, "virustotal")
		intel.Enriched = true
		score := float64(vt.Malicious * 5)
		if score > 100 {
			score = 100
		}
		scores = append(scores, score)
	}
	if abuse := e.lookupAbuseIPDB(ctx, ip); abuse != nil {
		intel.AbuseIPDB = abuse
		intel.Sources = append(intel.Sources, "abuseipdb")
		intel.Enriched = true
		scores = append(scores, float64(abuse.AbuseConfidenceScore))
	}

	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		intel.ThreatScore = roundOne(sum / float64(len(scores)))
	}
	return intel
}

func (e *Enricher) lookupVirusTotal(ctx context.Context, ip string) *VirusTotalIntel {
	if e.config.VirusTotalAPIKey == "" {
		return nil
	}
	cacheKey := "vt:" + ip
	var cached VirusTotalIntel
	if e.cache.Get(ctx, cacheKey, &cached) {
		return &cached
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/ip_addresses/%s", e.vtBaseURL, url.PathEscape(ip)), nil)
	if err != nil {
		e.logger.Errorw("VirusTotal request build failed", "ip", ip, "error", err)
		return nil
	}
	req.Header.Set("x-apikey", e.config.VirusTotalAPIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Errorw("VirusTotal lookup failed", "ip", ip, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.logger.Warnw("VirusTotal returned non-200", "ip", ip, "status", resp.StatusCode)
		return nil
	}

	var body struct {
		Data struct {
			Attributes struct {
				Reputation        int    `json:"reputation"`
				Country           string `json:"country"`
				ASOwner           string `json:"as_owner"`
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		e.logger.Errorw("VirusTotal response decode failed", "ip", ip, "error", err)
		return nil
	}

	attrs := body.Data.Attributes
	intel := &VirusTotalIntel{
		Source:     "virustotal",
		IP:         ip,
		Reputation: attrs.Reputation,
		Malicious:  attrs.LastAnalysisStats.Malicious,
		Suspicious: attrs.LastAnalysisStats.Suspicious,
		Harmless:   attrs.LastAnalysisStats.Harmless,
		Country:    orUnknown(attrs.Country),
		ASOwner:    orUnknown(attrs.ASOwner),
	}
	e.cache.Set(ctx, cacheKey, intel)
	return intel
}

func (e *Enricher) lookupAbuseIPDB(ctx context.Context, ip string) *AbuseIPDBIntel {
	if e.config.AbuseIPDBAPIKey == "" {
		return nil
	}
	cacheKey := "abuse:" + ip
	var cached AbuseIPDBIntel
	if e.cache.Get(ctx, cacheKey, &cached) {
		return &cached
	}

	endpoint := fmt.Sprintf("%s/check?ipAddress=%s&maxAgeInDays=90", e.abuseBaseURL, url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		e.logger.Errorw("AbuseIPDB request build failed", "ip", ip, "error", err)
		return nil
	}
	req.Header.Set("Key", e.config.AbuseIPDBAPIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Errorw("AbuseIPDB lookup failed", "ip", ip, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.logger.Warnw("AbuseIPDB returned non-200", "ip", ip, "status", resp.StatusCode)
		return nil
	}

	var body struct {
		Data struct {
			AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
			TotalReports         int    `json:"totalReports"`
			CountryCode          string `json:"countryCode"`
			ISP                  string `json:"isp"`
			IsTor                bool   `json:"isTor"`
			IsWhitelisted        bool   `json:"isWhitelisted"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		e.logger.Errorw("AbuseIPDB response decode failed", "ip", ip, "error", err)
		return nil
	}

	intel := &AbuseIPDBIntel{
		Source:               "abuseipdb",
		IP:                   ip,
		AbuseConfidenceScore: body.Data.AbuseConfidenceScore,
		TotalReports:         body.Data.TotalReports,
		CountryCode:          orUnknown(body.Data.CountryCode),
		ISP:                  orUnknown(body.Data.ISP),
		IsTor:                body.Data.IsTor,
		IsWhitelisted:        body.Data.IsWhitelisted,
	}
	e.cache.Set(ctx, cacheKey, intel)
	return intel
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
