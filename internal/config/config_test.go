package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Collector.MaxConcurrent != 6 || cfg.Collector.WindowDays != 60 {
		t.Fatalf("expected collector defaults, got %+v", cfg.Collector)
	}
	if cfg.HTTP.Engine != "colly" {
		t.Fatalf("expected colly engine by default, got %q", cfg.HTTP.Engine)
	}
	if cfg.Politeness.DefaultIntervalMs != 500 ||
		cfg.Politeness.JitterMinMs != 100 ||
		cfg.Politeness.JitterMaxMs != 300 {
		t.Fatalf("expected politeness defaults, got %+v", cfg.Politeness)
	}
	if cfg.State.Backend != "disk" || cfg.Storage.Backend != "local" {
		t.Fatalf("expected local backends by default, got state=%q storage=%q",
			cfg.State.Backend, cfg.Storage.Backend)
	}
	if cfg.Postgres.Table != "calendar_events" {
		t.Fatalf("expected default table, got %q", cfg.Postgres.Table)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
collector:
  max_concurrent: 4
  window_days: 30
http:
  engine: std
  user_agent: econcal-test
  timeout_seconds: 45
  max_attempts: 4
  backoff_initial_ms: 100
  backoff_max_ms: 900
politeness:
  default_interval_ms: 250
  host_intervals_ms:
    abs.gov.au: 3000
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 4096
state:
  backend: memory
storage:
  backend: gcs
  gcs_bucket: econcal-snapshots
postgres:
  dsn: postgres://calendar:secret@db/calendar
  table: events
pubsub:
  project_id: econcal-prod
  topic_name: calendar-runs
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Collector.MaxConcurrent != 4 || cfg.Collector.WindowDays != 30 {
		t.Fatalf("expected collector overrides to apply, got %+v", cfg.Collector)
	}
	if cfg.HTTP.Engine != "std" || cfg.HTTP.UserAgent != "econcal-test" {
		t.Fatalf("expected http overrides to apply, got %+v", cfg.HTTP)
	}
	if got := cfg.Politeness.HostIntervalsMs["abs.gov.au"]; got != 3000 {
		t.Fatalf("expected host interval override, got %d", got)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "econcal-snapshots" {
		t.Fatalf("expected gcs storage, got %+v", cfg.Storage)
	}
	if cfg.Postgres.DSN == "" || cfg.Postgres.Table != "events" {
		t.Fatalf("expected postgres overrides, got %+v", cfg.Postgres)
	}
	if cfg.PubSub.ProjectID != "econcal-prod" || cfg.PubSub.TopicName != "calendar-runs" {
		t.Fatalf("expected pubsub overrides, got %+v", cfg.PubSub)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
	if got := cfg.BackoffInitial(); got != 100*time.Millisecond {
		t.Fatalf("expected initial backoff 100ms, got %v", got)
	}
	if got := cfg.BackoffMax(); got != 900*time.Millisecond {
		t.Fatalf("expected max backoff 900ms, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Collector: CollectorConfig{MaxConcurrent: 6, WindowDays: 60},
		HTTP:      HTTPConfig{Engine: "colly", TimeoutSeconds: 10},
		State:     StateConfig{Backend: "memory"},
		Storage:   StorageConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Collector.MaxConcurrent = 0
				return c
			}(),
			want: "collector.max_concurrent",
		},
		{
			name: "invalid window",
			cfg: func() Config {
				c := base
				c.Collector.WindowDays = 0
				return c
			}(),
			want: "collector.window_days",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "unknown engine",
			cfg: func() Config {
				c := base
				c.HTTP.Engine = "curl"
				return c
			}(),
			want: "http.engine",
		},
		{
			name: "inverted jitter",
			cfg: func() Config {
				c := base
				c.Politeness.JitterMinMs = 300
				c.Politeness.JitterMaxMs = 100
				return c
			}(),
			want: "politeness.jitter_max_ms",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "unknown state backend",
			cfg: func() Config {
				c := base
				c.State.Backend = "redis"
				return c
			}(),
			want: "state.backend",
		},
		{
			name: "disk state without dir",
			cfg: func() Config {
				c := base
				c.State.Backend = "disk"
				return c
			}(),
			want: "state.dir",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "pubsub without topic",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "econcal-prod"
				return c
			}(),
			want: "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
