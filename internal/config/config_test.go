package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "research.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.ref.dev", cfg.Ref.BaseURL)
	assert.Equal(t, "https://api.exa.ai", cfg.Exa.BaseURL)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, 10, cfg.Research.MaxSources)
	assert.Equal(t, 7, cfg.Research.MaxParallelReads)
	assert.InDelta(t, 5.0, cfg.Research.ReadRatePerSec, 0.001)
	assert.Equal(t, 2, cfg.Research.RetryAttempts)
	assert.Equal(t, 5, cfg.Research.BreakerFailures)
	assert.Equal(t, 30, cfg.Research.BreakerResetSecs)
	assert.InDelta(t, 0.10, cfg.Pricing.Workflows["direct"], 0.001)
	assert.InDelta(t, 0.30, cfg.Pricing.Workflows["synthesis"], 0.001)
	assert.InDelta(t, 0.8, cfg.Pricing.Tiers["pro"], 0.001)
	assert.InDelta(t, 0.20, cfg.Pricing.Fallback, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/research
log:
  level: debug
  format: console
server:
  port: 9090
research:
  max_sources: 15
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/research", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Research.MaxSources)
	// Defaults still apply for unset values
	assert.Equal(t, 7, cfg.Research.MaxParallelReads)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RESEARCH_STORE_DRIVER", "postgres")
	t.Setenv("RESEARCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("RESEARCH_SERVER_PORT", "3000")
	t.Setenv("RESEARCH_JINA_KEY", "jina_test_key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "jina_test_key", cfg.Jina.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all required fields populated for
// validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "research.db"
	cfg.Ref.Key = "ref-key"
	cfg.Exa.Key = "exa-key"
	cfg.Jina.Key = "jina-key"
	cfg.Perplexity.Key = "pplx-key"
	cfg.Research.MaxParallelReads = 7
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateResearch_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("research"))
}

func TestValidateResearch_MissingKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = ""
	cfg.Perplexity.Key = ""

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.Contains(t, err.Error(), "perplexity.key is required")
}

func TestValidateStore_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/research"
	assert.NoError(t, cfg.Validate("research"))
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateParallelReadBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Research.MaxParallelReads = 0
	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel_reads must be between 1 and 50")

	cfg.Research.MaxParallelReads = 51
	err = cfg.Validate("research")
	assert.Error(t, err)

	cfg.Research.MaxParallelReads = 50
	assert.NoError(t, cfg.Validate("research"))
}
