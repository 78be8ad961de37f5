// Package config loads and validates leadwatch configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/policy/ratelimit"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BlobGCS         = "gcs"
	BlobLocal       = "local"
	BlobMemory      = "memory"
	BlobNone        = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Application ApplicationConfig `mapstructure:"application"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Search      SearchConfig      `mapstructure:"search"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Retry       RetryConfig       `mapstructure:"retry"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
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

// ApplicationConfig identifies the service to telemetry backends.
type ApplicationConfig struct {
	Name          string  `mapstructure:"name"`
	Version       string  `mapstructure:"version"`
	ProjectID     string  `mapstructure:"project_id"`
	ProjectNumber string  `mapstructure:"project_number"`
	Region        string  `mapstructure:"region"`
	TraceSample   float64 `mapstructure:"trace_sample"`
}

// MonitorConfig governs cycles, workers and the per-company pipeline.
type MonitorConfig struct {
	Cron             string        `mapstructure:"cron"`
	SchedulerEnabled bool          `mapstructure:"scheduler_enabled"`
	Workers          int           `mapstructure:"workers"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	TaskTimeout      time.Duration `mapstructure:"task_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxTasks         int           `mapstructure:"max_tasks"`
	ScoutConcurrency int           `mapstructure:"scout_concurrency"`
	SeenTTL          time.Duration `mapstructure:"seen_ttl"`
	Snapshots        bool          `mapstructure:"snapshots"`
	Enrich           bool          `mapstructure:"enrich"`
	Draft            bool          `mapstructure:"draft"`
	EnqueueTimeout   time.Duration `mapstructure:"enqueue_timeout"`
}

// HTTPConfig configures the static page fetcher.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// HeadlessConfig configures chromedp rendering for JS-heavy scouts.
type HeadlessConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	ScrollPasses int           `mapstructure:"scroll_passes"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	// PromoteBelow re-renders static pages smaller than this many bytes when
	// they look script-heavy.
	PromoteBelow int `mapstructure:"promote_below"`
}

// SearchConfig configures the search API and scout discovery.
type SearchConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	Country         string        `mapstructure:"country"`
	Language        string        `mapstructure:"language"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxResults      int           `mapstructure:"max_results"`
	ResultsPerQuery int           `mapstructure:"results_per_query"`
	Recency         string        `mapstructure:"recency"`
	FetchContent    bool          `mapstructure:"fetch_content"`
	ContentRunes    int           `mapstructure:"content_runes"`
}

// LLMConfig configures the Gemini classifier and drafter.
type LLMConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	ClassifyTemperature float32 `mapstructure:"classify_temperature"`
	DraftTemperature    float32 `mapstructure:"draft_temperature"`
	MaxRunes            int     `mapstructure:"max_runes"`
	MaxWords            int     `mapstructure:"max_words"`
}

// EnrichmentConfig configures contact lookups.
type EnrichmentConfig struct {
	Apollo        ProviderConfig `mapstructure:"apollo"`
	Anymailfinder ProviderConfig `mapstructure:"anymailfinder"`
	Timeout       time.Duration  `mapstructure:"timeout"`
}

// ProviderConfig is one enrichment API.
type ProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// BreakerConfig tunes the per-service circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// RetryConfig tunes exponential backoff for outbound calls.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// RateLimitConfig holds token-bucket settings keyed by outbound service.
type RateLimitConfig struct {
	DefaultRPS   float64                   `mapstructure:"default_rps"`
	DefaultBurst int                       `mapstructure:"default_burst"`
	PerHostRPS   float64                   `mapstructure:"per_host_rps"`
	Overrides    map[string]ratelimit.Rule `mapstructure:"overrides"`
}

// StorageConfig selects the repositories and the snapshot blob store.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Blob      string `mapstructure:"blob"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
	Tables          TablesConfig  `mapstructure:"tables"`
}

// TablesConfig overrides table names.
type TablesConfig struct {
	Companies   string `mapstructure:"companies"`
	Strategies  string `mapstructure:"strategies"`
	Leads       string `mapstructure:"leads"`
	Runs        string `mapstructure:"runs"`
	ClientStats string `mapstructure:"client_stats"`
}

// RedisConfig backs the seen cache and budget counters. Disabled means in-memory.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PubSubConfig holds lead notification settings. Disabled means in-memory.
type PubSubConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	ProjectID string            `mapstructure:"project_id"`
	TopicName string            `mapstructure:"topic_name"`
	Topics    map[string]string `mapstructure:"topics"`
}

// ProgressConfig tunes the progress hub and selects its sinks.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogSink        bool          `mapstructure:"log_sink"`
	MetricsSink    bool          `mapstructure:"metrics_sink"`
	StoreSink      bool          `mapstructure:"store_sink"`
}

// ScoringConfig shapes the recency component of the deal score.
type ScoringConfig struct {
	HalfLife time.Duration `mapstructure:"half_life"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// StrategyConfig holds strategy defaults and the reload cadence.
type StrategyConfig struct {
	RefreshInterval time.Duration       `mapstructure:"refresh_interval"`
	Defaults        lead.ClientStrategy `mapstructure:"defaults"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADWATCH")
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

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("application.name", "leadwatch")
	v.SetDefault("application.version", "dev")
	v.SetDefault("application.trace_sample", 0.1)

	v.SetDefault("monitor.cron", "0 * * * *")
	v.SetDefault("monitor.scheduler_enabled", true)
	v.SetDefault("monitor.workers", 4)
	v.SetDefault("monitor.queue_depth", 256)
	v.SetDefault("monitor.task_timeout", 5*time.Minute)
	v.SetDefault("monitor.max_attempts", 2)
	v.SetDefault("monitor.max_tasks", 0)
	v.SetDefault("monitor.scout_concurrency", 3)
	v.SetDefault("monitor.seen_ttl", 30*24*time.Hour)
	v.SetDefault("monitor.snapshots", true)
	v.SetDefault("monitor.enrich", true)
	v.SetDefault("monitor.draft", true)
	v.SetDefault("monitor.enqueue_timeout", 5*time.Second)

	v.SetDefault("http.user_agent", "leadwatch-bot/0.1")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.max_body_bytes", 2<<20)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", 25*time.Second)
	v.SetDefault("headless.scroll_passes", 2)
	v.SetDefault("headless.settle_delay", 750*time.Millisecond)
	v.SetDefault("headless.promote_below", 4096)

	v.SetDefault("search.endpoint", "https://google.serper.dev")
	v.SetDefault("search.country", "us")
	v.SetDefault("search.language", "en")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.results_per_query", 10)
	v.SetDefault("search.recency", "m")
	v.SetDefault("search.fetch_content", true)
	v.SetDefault("search.content_runes", 4000)

	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.classify_temperature", 0.1)
	v.SetDefault("llm.draft_temperature", 0.7)
	v.SetDefault("llm.max_runes", 6000)
	v.SetDefault("llm.max_words", 120)

	v.SetDefault("enrichment.apollo.endpoint", "https://api.apollo.io/api/v1")
	v.SetDefault("enrichment.anymailfinder.endpoint", "https://api.anymailfinder.com/v5.0")
	v.SetDefault("enrichment.timeout", 15*time.Second)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Duration(0))
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_interval", 250*time.Millisecond)
	v.SetDefault("retry.max_interval", 5*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("ratelimit.default_rps", 5.0)
	v.SetDefault("ratelimit.default_burst", 5)
	v.SetDefault("ratelimit.per_host_rps", 1.0)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.blob", BlobMemory)
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "leadwatch:")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_name", "leadwatch-leads")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 10*time.Second)
	v.SetDefault("progress.log_sink", true)
	v.SetDefault("progress.metrics_sink", true)
	v.SetDefault("progress.store_sink", true)

	v.SetDefault("scoring.half_life", 30*24*time.Hour)
	v.SetDefault("scoring.max_age", 90*24*time.Hour)

	v.SetDefault("strategy.refresh_interval", 5*time.Minute)
	v.SetDefault("strategy.defaults.active", true)
	v.SetDefault("strategy.defaults.frequency", string(lead.FrequencyWeekly))
	v.SetDefault("strategy.defaults.min_confidence", 0.6)
	v.SetDefault("strategy.defaults.min_deal_score", 50)
	v.SetDefault("strategy.defaults.max_signal_age_days", 90)
	v.SetDefault("strategy.defaults.max_contacts", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be > 0")
	}
	if c.Monitor.QueueDepth <= 0 {
		return fmt.Errorf("monitor.queue_depth must be > 0")
	}
	if c.Monitor.MaxTasks < 0 {
		return fmt.Errorf("monitor.max_tasks must be >= 0")
	}
	if _, err := cron.ParseStandard(c.Monitor.Cron); err != nil {
		return fmt.Errorf("monitor.cron is invalid: %w", err)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendPostgres, BackendMemory)
	}
	switch c.Storage.Blob {
	case BlobMemory, BlobNone:
	case BlobGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.blob is gcs")
		}
	case BlobLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when storage.blob is local")
		}
	default:
		return fmt.Errorf("storage.blob must be one of gcs, local, memory, none")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Strategy.Defaults.MinDealScore < 0 || c.Strategy.Defaults.MinDealScore > 100 {
		return fmt.Errorf("strategy.defaults.min_deal_score must be within [0,100]")
	}
	return nil
}

// RequestTimeout returns the API handler deadline.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeout <= 0 {
		return 60 * time.Second
	}
	return c.Server.RequestTimeout
}
