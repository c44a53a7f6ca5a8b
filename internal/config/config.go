package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ref        RefConfig        `yaml:"ref" mapstructure:"ref"`
	Exa        ExaConfig        `yaml:"exa" mapstructure:"exa"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RefConfig holds Ref API settings.
type RefConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExaConfig holds Exa API settings.
type ExaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ResearchConfig configures workflow execution.
type ResearchConfig struct {
	MaxSources       int     `yaml:"max_sources" mapstructure:"max_sources"`
	MaxParallelReads int     `yaml:"max_parallel_reads" mapstructure:"max_parallel_reads"`
	ReadRatePerSec   float64 `yaml:"read_rate_per_sec" mapstructure:"read_rate_per_sec"`

	// Provider call resilience. RetryAttempts counts the first try.
	RetryAttempts    int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerFailures  int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ClassifierConfig configures query classification.
type ClassifierConfig struct {
	// RulesPath points at an optional YAML pattern overlay extending the
	// built-in rule tables.
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// PricingConfig holds the workflow fee table.
type PricingConfig struct {
	Workflows map[string]float64 `yaml:"workflows" mapstructure:"workflows"`
	Tiers     map[string]float64 `yaml:"tiers" mapstructure:"tiers"`
	Fallback  float64            `yaml:"fallback" mapstructure:"fallback"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "research.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ref.base_url", "https://api.ref.dev")
	v.SetDefault("exa.base_url", "https://api.exa.ai")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("research.max_sources", 10)
	v.SetDefault("research.max_parallel_reads", 7)
	v.SetDefault("research.read_rate_per_sec", 5.0)
	v.SetDefault("research.retry_attempts", 2)
	v.SetDefault("research.breaker_failures", 5)
	v.SetDefault("research.breaker_reset_secs", 30)
	v.SetDefault("pricing.workflows", map[string]float64{
		"direct":      0.10,
		"exploratory": 0.20,
		"synthesis":   0.30,
	})
	v.SetDefault("pricing.tiers", map[string]float64{
		"free":       1.0,
		"pro":        0.8,
		"enterprise": 0.5,
	})
	v.SetDefault("pricing.fallback", 0.20)

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

// Validate checks the configuration for the given run mode. "research"
// requires provider credentials; "serve" additionally requires a usable
// server port. Errors report every missing field at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkProviders := func() {
		if c.Jina.Key == "" {
			problems = append(problems, "jina.key is required")
		}
		if c.Perplexity.Key == "" {
			problems = append(problems, "perplexity.key is required")
		}
		if c.Ref.Key == "" {
			problems = append(problems, "ref.key is required")
		}
		if c.Exa.Key == "" {
			problems = append(problems, "exa.key is required")
		}
	}

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "research":
		checkProviders()
		checkStore()
	case "serve":
		checkProviders()
		checkStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Research.MaxParallelReads < 1 || c.Research.MaxParallelReads > 50 {
		problems = append(problems, "research.max_parallel_reads must be between 1 and 50")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
