package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

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
monitor:
  cron: "*/15 * * * *"
  workers: 6
  task_timeout: 2m
  max_tasks: 40
storage:
  backend: postgres
  blob: gcs
  gcs_bucket: evidence
database:
  dsn: postgres://localhost/leadwatch
  tables:
    leads: client_leads
ratelimit:
  overrides:
    search:
      rps: 2
      burst: 4
pubsub:
  enabled: true
  project_id: acme-prod
  topic_name: leads
  topics:
    lead.created: hot-leads
logging:
  development: false
strategy:
  defaults:
    frequency: daily
    min_deal_score: 65
    keywords: ["series b", "hiring"]
    type_weights:
      funding: 0.95
    budgets:
      llm_calls: 200
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
	if cfg.Monitor.Workers != 6 || cfg.Monitor.TaskTimeout != 2*time.Minute || cfg.Monitor.MaxTasks != 40 {
		t.Fatalf("expected monitor overrides to apply: %+v", cfg.Monitor)
	}
	if cfg.Monitor.SeenTTL != 30*24*time.Hour {
		t.Fatalf("expected default seen ttl, got %v", cfg.Monitor.SeenTTL)
	}
	if cfg.Database.Tables.Leads != "client_leads" {
		t.Fatalf("expected table override, got %+v", cfg.Database.Tables)
	}
	if rule := cfg.RateLimit.Overrides["search"]; rule.RPS != 2 || rule.Burst != 4 {
		t.Fatalf("expected search rate override, got %+v", rule)
	}
	if cfg.PubSub.Topics["lead.created"] != "hot-leads" {
		t.Fatalf("expected topic mapping, got %+v", cfg.PubSub.Topics)
	}

	d := cfg.Strategy.Defaults
	if d.Frequency != lead.FrequencyDaily || d.MinDealScore != 65 {
		t.Fatalf("expected strategy defaults to apply: %+v", d)
	}
	if len(d.Keywords) != 2 || d.Keywords[0] != "series b" {
		t.Fatalf("expected keywords, got %v", d.Keywords)
	}
	if d.TypeWeights[lead.TriggerFunding] != 0.95 || d.Budgets.LLMCalls != 200 {
		t.Fatalf("expected nested strategy defaults, got %+v", d)
	}
	if d.MinConfidence != 0.6 || !d.Active {
		t.Fatalf("expected untouched defaults to survive, got %+v", d)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory || cfg.Storage.Blob != BlobMemory {
		t.Fatalf("expected in-memory backends by default, got %+v", cfg.Storage)
	}
	if cfg.Monitor.Cron != "0 * * * *" {
		t.Fatalf("expected hourly cron, got %q", cfg.Monitor.Cron)
	}
	if cfg.RequestTimeout() != 60*time.Second {
		t.Fatalf("expected 60s request timeout, got %v", cfg.RequestTimeout())
	}
}

func TestLoadPortOverride(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("LEADWATCH_MONITOR_WORKERS", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected PORT override, got %d", cfg.Server.Port)
	}
	if cfg.Monitor.Workers != 9 {
		t.Fatalf("expected env override for workers, got %d", cfg.Monitor.Workers)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Monitor: MonitorConfig{Cron: "0 * * * *", Workers: 1, QueueDepth: 8},
		Storage: StorageConfig{Backend: BackendMemory, Blob: BlobNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "no workers", mutate: func(c *Config) { c.Monitor.Workers = 0 }, want: "monitor.workers"},
		{name: "bad cron", mutate: func(c *Config) { c.Monitor.Cron = "hourly" }, want: "monitor.cron"},
		{
			name:   "headless missing max parallel",
			mutate: func(c *Config) { c.Headless.Enabled = true },
			want:   "headless.max_parallel",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Storage.Backend = BackendPostgres },
			want:   "database.dsn",
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "mysql" }, want: "storage.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Blob = BlobGCS }, want: "storage.gcs_bucket"},
		{name: "unknown blob", mutate: func(c *Config) { c.Storage.Blob = "s3" }, want: "storage.blob"},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			want: "redis.addr",
		},
		{name: "pubsub without project", mutate: func(c *Config) { c.PubSub.Enabled = true }, want: "pubsub.project_id"},
		{
			name:   "min deal score out of range",
			mutate: func(c *Config) { c.Strategy.Defaults.MinDealScore = 120 },
			want:   "min_deal_score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
