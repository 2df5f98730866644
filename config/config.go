package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"socforge/enrich"
	"socforge/notify"
	"socforge/siem"
)

// Config holds all configuration for the socforge service.
type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`

		RateLimit struct {
			RequestsPerSecond float64 `mapstructure:"requests_per_second"`
			Burst             int     `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Detection struct {
		SeedBuiltinRules bool `mapstructure:"seed_builtin_rules"`
	} `mapstructure:"detection"`

	Notifications []notify.ChannelConfig `mapstructure:"notifications"`

	SIEM struct {
		Splunk struct {
			Enabled bool              `mapstructure:"enabled"`
			Config  siem.SplunkConfig `mapstructure:",squash"`
		} `mapstructure:"splunk"`
		OpenSearch struct {
			Enabled bool                  `mapstructure:"enabled"`
			Config  siem.OpenSearchConfig `mapstructure:",squash"`
		} `mapstructure:"opensearch"`
		NATS struct {
			Enabled bool            `mapstructure:"enabled"`
			Config  siem.NATSConfig `mapstructure:",squash"`
		} `mapstructure:"nats"`
	} `mapstructure:"siem"`

	Enrichment enrich.Config `mapstructure:"enrichment"`

	Logging struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("database.path", "./data/socforge.db")

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8000)
	viper.SetDefault("api.rate_limit.requests_per_second", 50.0)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("detection.seed_builtin_rules", true)

	viper.SetDefault("siem.splunk.enabled", false)
	viper.SetDefault("siem.opensearch.enabled", false)
	viper.SetDefault("siem.opensearch.index", "socforge-alerts")
	viper.SetDefault("siem.nats.enabled", false)
	viper.SetDefault("siem.nats.subject", "socforge.alerts")

	viper.SetDefault("enrichment.cache_size", 1024)
	viper.SetDefault("enrichment.cache_ttl", time.Hour)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.development", false)
}

// LoadConfig reads configuration from config.yaml (working directory or
// ./config), environment variables prefixed SOCFORGE_, and defaults, in
// ascending priority.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("SOCFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults and env vars carry the rest.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(config *Config) error {
	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", config.API.Port)
	}
	if config.SIEM.Splunk.Enabled && config.SIEM.Splunk.Config.HECURL == "" {
		return fmt.Errorf("splunk export enabled but hec_url is empty")
	}
	if config.SIEM.OpenSearch.Enabled && config.SIEM.OpenSearch.Config.URL == "" {
		return fmt.Errorf("opensearch export enabled but url is empty")
	}
	if config.SIEM.NATS.Enabled && config.SIEM.NATS.Config.URL == "" {
		return fmt.Errorf("nats export enabled but url is empty")
	}
	return nil
}
