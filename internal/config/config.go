package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Verifier   VerifierConfig   `yaml:"verifier" mapstructure:"verifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the job queue and its workers.
type QueueConfig struct {
	Driver                string            `yaml:"driver" mapstructure:"driver"`
	PollIntervalMs        int               `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	VisibilityTimeoutSecs int               `yaml:"visibility_timeout_secs" mapstructure:"visibility_timeout_secs"`
	MaxAttempts           int               `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs      int               `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs          int               `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterMaxMs           int               `yaml:"jitter_max_ms" mapstructure:"jitter_max_ms"`
	JobTimeoutSecs        int               `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	Concurrency           ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
}

// ConcurrencyConfig bounds the worker count per job type.
type ConcurrencyConfig struct {
	FindDomain    int `yaml:"find_domain" mapstructure:"find_domain"`
	FindExecutive int `yaml:"find_executive" mapstructure:"find_executive"`
	FindEmail     int `yaml:"find_email" mapstructure:"find_email"`
}

// PollInterval returns the idle poll interval.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// VisibilityTimeout returns the lease granted to a claimed job.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(q.VisibilityTimeoutSecs) * time.Second
}

// JitterMax returns the upper bound of the random start delay.
func (q QueueConfig) JitterMax() time.Duration {
	return time.Duration(q.JitterMaxMs) * time.Millisecond
}

// JobTimeout returns the deadline applied to a single job execution.
func (q QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutSecs) * time.Second
}

// TemporalConfig configures the Temporal orchestration backend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// CacheConfig configures the resolver cache.
type CacheConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	DomainTTLHours    int    `yaml:"domain_ttl_hours" mapstructure:"domain_ttl_hours"`
	ExecutiveTTLHours int    `yaml:"executive_ttl_hours" mapstructure:"executive_ttl_hours"`
}

// DomainTTL returns the domain cache lifetime.
func (c CacheConfig) DomainTTL() time.Duration {
	return time.Duration(c.DomainTTLHours) * time.Hour
}

// ExecutiveTTL returns the executive cache lifetime.
func (c CacheConfig) ExecutiveTTL() time.Duration {
	return time.Duration(c.ExecutiveTTLHours) * time.Hour
}

// SearchConfig selects and bounds the web search provider.
type SearchConfig struct {
	Provider    string   `yaml:"provider" mapstructure:"provider"`
	Fallbacks   []string `yaml:"fallbacks" mapstructure:"fallbacks"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// LLMConfig selects and bounds the language model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// VerifierConfig holds email verification provider settings.
type VerifierConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DelayMs     int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PipelineConfig toggles the optional enrichment stages.
type PipelineConfig struct {
	FindExecutive bool `yaml:"find_executive" mapstructure:"find_executive"`
	FindEmail     bool `yaml:"find_email" mapstructure:"find_email"`
}

// ResolverConfig configures resolver heuristics.
type ResolverConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.driver", "store")
	v.SetDefault("queue.poll_interval_ms", 500)
	v.SetDefault("queue.visibility_timeout_secs", 300)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.initial_backoff_ms", 2000)
	v.SetDefault("queue.max_backoff_ms", 120000)
	v.SetDefault("queue.jitter_max_ms", 3000)
	v.SetDefault("queue.job_timeout_secs", 120)
	v.SetDefault("queue.concurrency.find_domain", 8)
	v.SetDefault("queue.concurrency.find_executive", 2)
	v.SetDefault("queue.concurrency.find_email", 2)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "lead-enrichment")
	v.SetDefault("cache.driver", "store")
	v.SetDefault("cache.domain_ttl_hours", 168)
	v.SetDefault("cache.executive_ttl_hours", 24)
	v.SetDefault("search.provider", "jina")
	v.SetDefault("search.fallbacks", []string{"duckduckgo"})
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.rate_per_sec", 2)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.rate_per_sec", 1)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("verifier.base_url", "https://api.emailverify.example/v1")
	v.SetDefault("verifier.timeout_secs", 15)
	v.SetDefault("verifier.delay_ms", 1200)
	v.SetDefault("verifier.rate_per_sec", 1)
	v.SetDefault("pipeline.find_executive", true)
	v.SetDefault("pipeline.find_email", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by a run mode are present and that
// numeric settings are in range. Modes: "serve", "worker", "enrich", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "worker", "enrich", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if mode == "serve" || mode == "worker" {
		switch c.Queue.Driver {
		case "store", "memory", "temporal":
		default:
			errs = append(errs, fmt.Sprintf("queue.driver %q is not supported", c.Queue.Driver))
		}
		if c.Queue.MaxAttempts < 1 {
			errs = append(errs, "queue.max_attempts must be >= 1")
		}
		for name, n := range map[string]int{
			"find_domain":    c.Queue.Concurrency.FindDomain,
			"find_executive": c.Queue.Concurrency.FindExecutive,
			"find_email":     c.Queue.Concurrency.FindEmail,
		} {
			if n < 1 || n > 64 {
				errs = append(errs, fmt.Sprintf("queue.concurrency.%s must be between 1 and 64", name))
			}
		}
	}

	if mode == "worker" || mode == "enrich" {
		for _, key := range c.missingProviderKeys() {
			errs = append(errs, key+" is required")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) missingProviderKeys() []string {
	var missing []string

	search := map[string]bool{c.Search.Provider: true}
	for _, f := range c.Search.Fallbacks {
		search[f] = true
	}
	llm := ""
	if c.Pipeline.FindExecutive {
		llm = c.LLM.Provider
	}

	if search["jina"] && c.Jina.Key == "" {
		missing = append(missing, "jina.key")
	}
	if (search["perplexity"] || llm == "perplexity") && c.Perplexity.Key == "" {
		missing = append(missing, "perplexity.key")
	}
	if llm == "anthropic" && c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key")
	}
	if llm == "gemini" && c.Gemini.Key == "" {
		missing = append(missing, "gemini.key")
	}
	if c.Pipeline.FindEmail && c.Verifier.Key == "" {
		missing = append(missing, "verifier.key")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
