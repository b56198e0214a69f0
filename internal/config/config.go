// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/medium-digest/internal/resilience"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Retry      RetryConfig      `mapstructure:"retry"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Slack      SlackConfig      `mapstructure:"slack"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Alert      AlertConfig      `mapstructure:"alert"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	Workers        int           `mapstructure:"workers"`
	MaxPayloadMB   int           `mapstructure:"max_payload_mb"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig tunes a single run.
type PipelineConfig struct {
	Workers      int           `mapstructure:"workers"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	OutcomeTopic string        `mapstructure:"outcome_topic"`
	RunTopic     string        `mapstructure:"run_topic"`
	ReportPrefix string        `mapstructure:"report_prefix"`
	Ledger       bool          `mapstructure:"ledger"`
}

// PolicyConfig is one named retry policy.
type PolicyConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// RetryConfig holds the per-operation retry policies.
type RetryConfig struct {
	Fetch     PolicyConfig  `mapstructure:"fetch"`
	Summarize PolicyConfig  `mapstructure:"summarize"`
	Delivery  PolicyConfig  `mapstructure:"delivery"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
}

// Policy converts p into a resilience.Policy capped by the shared max delay.
func (r RetryConfig) Policy(p PolicyConfig) resilience.Policy {
	return resilience.Policy{
		MaxRetries:    p.MaxRetries,
		BaseDelay:     p.BaseDelay,
		BackoffFactor: p.BackoffFactor,
		MaxDelay:      r.MaxDelay,
	}
}

// HTTPConfig configures article fetches.
type HTTPConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AllowedHosts []string      `mapstructure:"allowed_hosts"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WaitSelector      string        `mapstructure:"wait_selector"`
	Settle            time.Duration `mapstructure:"settle"`
	MinParagraphText  int           `mapstructure:"min_paragraph_text"`
}

// RateLimitConfig throttles requests per article host.
type RateLimitConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	PerHostRPS float64 `mapstructure:"per_host_rps"`
	Burst      int     `mapstructure:"burst"`
}

// SectionPattern overrides one digest section heading.
type SectionPattern struct {
	Hint    string `mapstructure:"hint"`
	Pattern string `mapstructure:"pattern"`
}

// ExtractorConfig overrides the digest section headings.
type ExtractorConfig struct {
	SectionPatterns []SectionPattern `mapstructure:"section_patterns"`
}

// SecretsConfig names where the Medium cookies and webhook URL come from. For
// each secret a file wins over an env var, which wins over a literal.
type SecretsConfig struct {
	CookiesFile string        `mapstructure:"cookies_file"`
	CookiesEnv  string        `mapstructure:"cookies_env"`
	Cookies     string        `mapstructure:"cookies"`
	CookieTTL   time.Duration `mapstructure:"cookie_ttl"`
	WebhookFile string        `mapstructure:"webhook_file"`
	WebhookEnv  string        `mapstructure:"webhook_env"`
	Webhook     string        `mapstructure:"webhook"`
}

// SlackConfig configures the delivery webhook.
type SlackConfig struct {
	PayloadKey string        `mapstructure:"payload_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Provider        string        `mapstructure:"provider"`
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	APIKeyEnv       string        `mapstructure:"api_key_env"`
	Model           string        `mapstructure:"model"`
	APIVersion      string        `mapstructure:"api_version"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	StaticSentences int           `mapstructure:"static_sentences"`
}

// StorageConfig selects the blob backend for payloads and archived reports.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// the ledger and outcomes in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	LedgerTable     string        `mapstructure:"ledger_table"`
	OutcomeTable    string        `mapstructure:"outcome_table"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PubSubConfig holds the Pub/Sub project. Topics live in PipelineConfig.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// AlertConfig names the admin alert webhook. Empty sources log alerts only.
type AlertConfig struct {
	WebhookFile string `mapstructure:"webhook_file"`
	WebhookEnv  string `mapstructure:"webhook_env"`
	Webhook     string `mapstructure:"webhook"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.queue_depth", 16)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.max_payload_mb", 10)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.run_timeout", "10m")
	v.SetDefault("pipeline.report_prefix", "reports")
	v.SetDefault("pipeline.ledger", true)
	setPolicyDefaults(v, "retry.fetch", resilience.FetchPolicy)
	setPolicyDefaults(v, "retry.summarize", resilience.SummarizePolicy)
	setPolicyDefaults(v, "retry.delivery", resilience.DeliveryPolicy)
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", "30s")
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.min_paragraph_text", 500)
	v.SetDefault("ratelimit.per_host_rps", 1.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("secrets.cookies_env", "MEDIUM_COOKIES")
	v.SetDefault("secrets.cookie_ttl", "1h")
	v.SetDefault("secrets.webhook_env", "SLACK_WEBHOOK_URL")
	v.SetDefault("slack.payload_key", "summary")
	v.SetDefault("slack.timeout", "10s")
	v.SetDefault("summarizer.provider", "anthropic")
	v.SetDefault("summarizer.api_key_env", "ANTHROPIC_API_KEY")
	v.SetDefault("summarizer.model", "claude-3-5-haiku-latest")
	v.SetDefault("summarizer.max_tokens", 500)
	v.SetDefault("summarizer.timeout", "60s")
	v.SetDefault("summarizer.static_sentences", 3)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.auto_migrate", false)
}

func setPolicyDefaults(v *viper.Viper, key string, p resilience.Policy) {
	v.SetDefault(key+".max_retries", p.MaxRetries)
	v.SetDefault(key+".base_delay", p.BaseDelay.String())
	v.SetDefault(key+".backoff_factor", p.BackoffFactor)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("pipeline.run_timeout must be > 0")
	}
	for name, p := range map[string]PolicyConfig{
		"fetch": c.Retry.Fetch, "summarize": c.Retry.Summarize, "delivery": c.Retry.Delivery,
	} {
		if p.MaxRetries < 0 || p.BaseDelay < 0 || p.BackoffFactor < 1 {
			return fmt.Errorf("retry.%s needs max_retries >= 0, base_delay >= 0 and backoff_factor >= 1", name)
		}
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.PerHostRPS <= 0 {
		return fmt.Errorf("ratelimit.per_host_rps must be > 0 when rate limiting is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for _, sp := range c.Extractor.SectionPatterns {
		switch sp.Hint {
		case "highlights", "following", "general":
		default:
			return fmt.Errorf("extractor.section_patterns: unknown hint %q", sp.Hint)
		}
		if _, err := regexp.Compile(sp.Pattern); err != nil {
			return fmt.Errorf("extractor.section_patterns: %w", err)
		}
	}
	switch c.Slack.PayloadKey {
	case "summary", "text":
	default:
		return fmt.Errorf("slack.payload_key must be summary or text")
	}
	switch c.Summarizer.Provider {
	case "anthropic", "static":
	default:
		return fmt.Errorf("summarizer.provider must be anthropic or static")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs")
	}
	if (c.Pipeline.OutcomeTopic != "" || c.Pipeline.RunTopic != "") && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when a topic is set")
	}
	return nil
}
