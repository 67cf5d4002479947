package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

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

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"chrome-extension://*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "store", cfg.Queue.Driver)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 8, cfg.Queue.Concurrency.FindDomain)
	assert.Equal(t, 2, cfg.Queue.Concurrency.FindExecutive)
	assert.Equal(t, 2, cfg.Queue.Concurrency.FindEmail)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout())
	assert.Equal(t, 3*time.Second, cfg.Queue.JitterMax())
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.DomainTTL())
	assert.Equal(t, 24*time.Hour, cfg.Cache.ExecutiveTTL())
	assert.Equal(t, "jina", cfg.Search.Provider)
	assert.Equal(t, []string{"duckduckgo"}, cfg.Search.Fallbacks)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "sonar", cfg.Perplexity.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 1200, cfg.Verifier.DelayMs)
	assert.True(t, cfg.Pipeline.FindExecutive)
	assert.True(t, cfg.Pipeline.FindEmail)
	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: leads.db
log:
  level: debug
  format: console
queue:
  concurrency:
    find_domain: 3
pipeline:
  find_email: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Queue.Concurrency.FindDomain)
	assert.False(t, cfg.Pipeline.FindEmail)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Queue.Concurrency.FindExecutive)
	assert.True(t, cfg.Pipeline.FindExecutive)
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

	t.Setenv("LEADS_STORE_DRIVER", "postgres")
	t.Setenv("LEADS_LOG_LEVEL", "warn")

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

	t.Setenv("LEADS_SERVER_PORT", "3000")
	t.Setenv("LEADS_QUEUE_MAX_ATTEMPTS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 9, cfg.Queue.MaxAttempts)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/leads"
	cfg.Queue.Driver = "store"
	cfg.Queue.MaxAttempts = 5
	cfg.Queue.Concurrency = ConcurrencyConfig{FindDomain: 8, FindExecutive: 2, FindEmail: 2}
	cfg.Search.Provider = "jina"
	cfg.Search.Fallbacks = []string{"duckduckgo"}
	cfg.LLM.Provider = "anthropic"
	cfg.Pipeline.FindExecutive = true
	cfg.Pipeline.FindEmail = true
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateWorker_MissingKeys(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jina.key is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "verifier.key is required")
	assert.NotContains(t, err.Error(), "perplexity.key")
}

func TestValidateWorker_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = "jina_key"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Verifier.Key = "verify-key"

	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidateEnrich_DisabledStagesSkipKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = "jina_key"
	cfg.Pipeline.FindExecutive = false
	cfg.Pipeline.FindEmail = false

	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_PerplexityLLM(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = "jina_key"
	cfg.Verifier.Key = "verify-key"
	cfg.LLM.Provider = "perplexity"

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity.key is required")
	assert.NotContains(t, err.Error(), "anthropic.key")
}

func TestValidateMigrate_NoDB(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Queue.Concurrency.FindEmail = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.concurrency.find_email must be between 1 and 64")

	cfg.Queue.Concurrency.FindEmail = 65
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Queue.Concurrency.FindEmail = 64
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnsupportedDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Queue.Driver = "redis"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
	assert.Contains(t, err.Error(), `queue.driver "redis" is not supported`)
}
