package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFrom resets viper and loads config with dir as the working directory.
func loadFrom(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Chdir(dir)
	return LoadConfig()
}

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := loadFrom(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "./data/socforge.db", config.Database.Path)
	assert.Equal(t, "0.0.0.0", config.API.Host)
	assert.Equal(t, 8000, config.API.Port)
	assert.Equal(t, 50.0, config.API.RateLimit.RequestsPerSecond)
	assert.Equal(t, 100, config.API.RateLimit.Burst)
	assert.True(t, config.Detection.SeedBuiltinRules)
	assert.False(t, config.SIEM.Splunk.Enabled)
	assert.Equal(t, 1024, config.Enrichment.CacheSize)
	assert.Equal(t, time.Hour, config.Enrichment.CacheTTL)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Empty(t, config.Notifications)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  path: /var/lib/socforge/events.db
api:
  port: 9090
  rate_limit:
    requests_per_second: 10
detection:
  seed_builtin_rules: false
logging:
  level: debug
  development: true
notifications:
  - enabled: true
    type: slack
    webhook_url: https://hooks.example.com/T000/B000
    min_severity: high
`)

	config, err := loadFrom(t, dir)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/socforge/events.db", config.Database.Path)
	assert.Equal(t, 9090, config.API.Port)
	assert.Equal(t, 10.0, config.API.RateLimit.RequestsPerSecond)
	assert.Equal(t, 100, config.API.RateLimit.Burst, "unset keys keep defaults")
	assert.False(t, config.Detection.SeedBuiltinRules)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.True(t, config.Logging.Development)

	require.Len(t, config.Notifications, 1)
	assert.Equal(t, "high", config.Notifications[0].MinSeverity)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SOCFORGE_API_PORT", "7777")
	t.Setenv("SOCFORGE_LOGGING_LEVEL", "warn")

	config, err := loadFrom(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7777, config.API.Port)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "api:\n  port: 0\n")

	_, err := loadFrom(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api port")
}

func TestLoadConfig_SplunkEnabledNeedsURL(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "siem:\n  splunk:\n    enabled: true\n")

	_, err := loadFrom(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hec_url")
}

func TestLoadConfig_SIEMTargets(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
siem:
  splunk:
    enabled: true
    hec_url: https://splunk.example.com:8088/services/collector
    token: hec-token
  nats:
    enabled: true
    url: nats://localhost:4222
`)

	config, err := loadFrom(t, dir)
	require.NoError(t, err)

	assert.True(t, config.SIEM.Splunk.Enabled)
	assert.Equal(t, "https://splunk.example.com:8088/services/collector", config.SIEM.Splunk.Config.HECURL)
	assert.True(t, config.SIEM.NATS.Enabled)
	assert.Equal(t, "nats://localhost:4222", config.SIEM.NATS.Config.URL)
	assert.Equal(t, "socforge.alerts", config.SIEM.NATS.Config.Subject)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "api: [not: a: map\n")

	_, err := loadFrom(t, dir)
	require.Error(t, err)
}
