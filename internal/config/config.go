// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	State      StateConfig      `mapstructure:"state"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CollectorConfig governs the source fan-out and the default window.
type CollectorConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	WindowDays    int `mapstructure:"window_days"`
}

// HTTPConfig configures the fetch engine and retry behavior.
type HTTPConfig struct {
	Engine             string `mapstructure:"engine"`
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes       int    `mapstructure:"max_body_bytes"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	BackoffInitialMs   int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs       int    `mapstructure:"backoff_max_ms"`
	RetryBudget        int    `mapstructure:"retry_budget"`
	ForbiddenThreshold int    `mapstructure:"forbidden_threshold"`
}

// PolitenessConfig paces outbound requests per host. HostIntervalsMs extends
// or overrides the built-in per-agency table.
type PolitenessConfig struct {
	DefaultIntervalMs int            `mapstructure:"default_interval_ms"`
	JitterMinMs       int            `mapstructure:"jitter_min_ms"`
	JitterMaxMs       int            `mapstructure:"jitter_max_ms"`
	HostIntervalsMs   map[string]int `mapstructure:"host_intervals_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int  `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int  `mapstructure:"promotion_threshold"`
	RenderBudget       int  `mapstructure:"render_budget"`
}

// StateConfig selects where run state (conditional cache validators, health
// counters, last-known-good snapshots, schema fingerprints) is kept.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// StorageConfig selects the blob store for schema snapshots.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// SinkConfig sets where feed and report files land.
type SinkConfig struct {
	Dir string `mapstructure:"dir"`
}

// PostgresConfig controls the optional event upsert sink. An empty DSN
// disables it.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for run-summary notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ECONCAL")
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
	v.SetDefault("collector.max_concurrent", 6)
	v.SetDefault("collector.window_days", 60)
	v.SetDefault("http.engine", "colly")
	v.SetDefault("http.user_agent", "econcal-bot/0.3")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.retry_budget", 20)
	v.SetDefault("http.forbidden_threshold", 3)
	v.SetDefault("politeness.default_interval_ms", 500)
	v.SetDefault("politeness.jitter_min_ms", 100)
	v.SetDefault("politeness.jitter_max_ms", 300)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.render_budget", 12)
	v.SetDefault("state.backend", "disk")
	v.SetDefault("state.dir", "data/state")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data/blobs")
	v.SetDefault("sink.dir", "out")
	v.SetDefault("postgres.table", "calendar_events")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Collector.MaxConcurrent <= 0 {
		return fmt.Errorf("collector.max_concurrent must be > 0")
	}
	if c.Collector.WindowDays <= 0 {
		return fmt.Errorf("collector.window_days must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.HTTP.Engine {
	case "colly", "std":
	default:
		return fmt.Errorf("http.engine must be colly or std, got %q", c.HTTP.Engine)
	}
	if c.Politeness.JitterMaxMs < c.Politeness.JitterMinMs {
		return fmt.Errorf("politeness.jitter_max_ms must be >= jitter_min_ms")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.State.Backend {
	case "disk", "memory":
	default:
		return fmt.Errorf("state.backend must be disk or memory, got %q", c.State.Backend)
	}
	if c.State.Backend == "disk" && c.State.Dir == "" {
		return fmt.Errorf("state.dir must be set for the disk backend")
	}
	switch c.Storage.Backend {
	case "local", "memory", "gcs":
	default:
		return fmt.Errorf("storage.backend must be local, memory or gcs, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial retry backoff into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the retry backoff ceiling into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
