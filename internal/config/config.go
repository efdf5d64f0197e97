package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/reconcile-cli/internal/resolve"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	PDL        PDLConfig        `yaml:"pdl" mapstructure:"pdl"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Facts      FactsConfig      `yaml:"facts" mapstructure:"facts"`
	Gather     GatherConfig     `yaml:"gather" mapstructure:"gather"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
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

// ApolloConfig holds Apollo API settings. TokenURL is optional; when set,
// short-lived tokens are refreshed from it and Key becomes the fallback.
type ApolloConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL string `yaml:"token_url" mapstructure:"token_url"`
}

// PDLConfig holds People Data Labs API settings.
type PDLConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings for the evaluator panel.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// NotionConfig holds Notion API credentials and the profile database ID.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	ProfileDB string `yaml:"profile_db" mapstructure:"profile_db"`
}

// FactsConfig points at an optional known-facts YAML file. Empty means the
// built-in table.
type FactsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GatherConfig configures the parallel source fan-out.
type GatherConfig struct {
	Sources            []string           `yaml:"sources" mapstructure:"sources"`
	PerCallTimeoutSecs int                `yaml:"per_call_timeout_secs" mapstructure:"per_call_timeout_secs"`
	OverallTimeoutSecs int                `yaml:"overall_timeout_secs" mapstructure:"overall_timeout_secs"`
	Rates              map[string]float64 `yaml:"rates" mapstructure:"rates"`
	Tiers              map[string]int     `yaml:"tiers" mapstructure:"tiers"`
}

// RetryConfig configures per-source retry backoff.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ResolverConfig configures the evaluator panel and the scoring blend.
type ResolverConfig struct {
	Model       string          `yaml:"model" mapstructure:"model"`
	Temperature float64         `yaml:"temperature" mapstructure:"temperature"`
	Weights     resolve.Weights `yaml:"weights" mapstructure:"weights"`
}

// MonitoringConfig configures background health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold" mapstructure:"min_confidence_threshold"`
	DLQDepthThreshold      int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_companies", 5)
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("pdl.base_url", "https://api.peopledatalabs.com/v5")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gather.sources", []string{"salesforce", "pdl", "apollo"})
	v.SetDefault("gather.per_call_timeout_secs", 20)
	v.SetDefault("gather.overall_timeout_secs", 30)
	v.SetDefault("gather.rates", map[string]float64{"apollo": 5, "pdl": 10, "salesforce": 5})
	v.SetDefault("gather.tiers", map[string]int{"salesforce": 1, "pdl": 2, "apollo": 3})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("resolver.model", "claude-haiku-4-5-20251001")
	v.SetDefault("resolver.temperature", 0.7)
	v.SetDefault("resolver.weights.base", 0.4)
	v.SetDefault("resolver.weights.agreement", 0.3)
	v.SetDefault("resolver.weights.confidence", 0.3)
	v.SetDefault("resolver.weights.agreement_cap", 0.3)
	v.SetDefault("resolver.weights.identity_boost", 1.1)
	v.SetDefault("resolver.weights.identity_penalty", 0.9)
	v.SetDefault("resolver.weights.panel_size", 12)
	v.SetDefault("resolver.weights.alternatives_cap", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_confidence_threshold", 0.5)
	v.SetDefault("monitoring.dlq_depth_threshold", 25)

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

// Validate checks the fields required for the given mode ("reconcile",
// "batch", or "serve") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "reconcile", "batch", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if len(c.Gather.Sources) == 0 {
		problems = append(problems, "gather.sources must name at least one source")
	}
	if c.Batch.MaxConcurrentCompanies < 1 || c.Batch.MaxConcurrentCompanies > 50 {
		problems = append(problems, "batch.max_concurrent_companies must be between 1 and 50")
	}
	if c.Resolver.Temperature < 0 || c.Resolver.Temperature > 1 {
		problems = append(problems, "resolver.temperature must be between 0 and 1")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
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
