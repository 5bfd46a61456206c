package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  jwt_secret: secret
  callback_api_key: cb-key
store:
  driver: postgres
db:
  dsn: postgres://localhost/auditsnap
  max_conns: 20
quota:
  driver: redis
  starter_audits: 5
redis:
  addr: redis:6379
dispatch:
  driver: pubsub
pubsub:
  project_id: proj
  topic: audits
generator:
  driver: llm
  timeout_seconds: 45
  blocked_domains: ["internal.example"]
llm:
  api_key: sk-test
archive:
  driver: gcs
  bucket: reports
watch:
  interval_ms: 500
  max_wait_seconds: 30
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
	if cfg.Store.Driver != "postgres" || cfg.DB.MaxConns != 20 || !cfg.DB.Migrate {
		t.Fatalf("expected postgres store overrides, got %+v %+v", cfg.Store, cfg.DB)
	}
	if cfg.Quota.Driver != "redis" || cfg.Quota.StarterAudits != 5 || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected redis quota overrides, got %+v %+v", cfg.Quota, cfg.Redis)
	}
	if cfg.PubSub.Topic != "audits" || cfg.Dispatch.Driver != "pubsub" {
		t.Fatalf("expected pubsub dispatch, got %+v", cfg.PubSub)
	}
	if len(cfg.Generator.BlockedDomains) != 1 || cfg.Generator.BlockedDomains[0] != "internal.example" {
		t.Fatalf("expected blocked domains to load, got %v", cfg.Generator.BlockedDomains)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("expected default llm model, got %q", cfg.LLM.Model)
	}
	if got := cfg.GeneratorTimeout(); got != 45*time.Second {
		t.Fatalf("expected generator timeout 45s, got %v", got)
	}
	if cfg.WatchInterval() != 500*time.Millisecond || cfg.WatchMaxWait() != 30*time.Second {
		t.Fatalf("unexpected watch timings %v %v", cfg.WatchInterval(), cfg.WatchMaxWait())
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development override")
	}
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("AUDITSNAP_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("AUDITSNAP_DISPATCH_CONCURRENCY", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("expected secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Dispatch.Concurrency != 8 {
		t.Fatalf("expected concurrency 8 from env, got %d", cfg.Dispatch.Concurrency)
	}
	if cfg.Store.Driver != "memory" || cfg.Generator.Driver != "heuristic" || cfg.Archive.Driver != "none" {
		t.Fatalf("unexpected default drivers: %+v", cfg)
	}
	if !cfg.Quota.AutoProvision || cfg.Quota.StarterAudits != 3 {
		t.Fatalf("expected starter provisioning defaults, got %+v", cfg.Quota)
	}
	if cfg.Generator.AllowPrivateNetworks {
		t.Fatal("expected private network targets to be refused by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func validBase() Config {
	return Config{
		Server:    ServerConfig{Port: 8080},
		Auth:      AuthConfig{JWTSecret: "secret"},
		Store:     StoreConfig{Driver: "memory"},
		Quota:     QuotaConfig{Driver: "memory"},
		Dispatch:  DispatchConfig{Driver: "local", Concurrency: 1, QueueDepth: 1},
		Generator: GeneratorConfig{Driver: "heuristic", TimeoutSeconds: 10},
		Archive:   ArchiveConfig{Driver: "none"},
		Watch:     WatchConfig{IntervalMs: 100, MaxWaitSeconds: 1},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validBase().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, want: "auth.jwt_secret"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, want: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Quota.Driver = "postgres" }, want: "db.dsn"},
		{name: "redis without addr", mutate: func(c *Config) { c.Quota.Driver = "redis" }, want: "redis.addr"},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.Dispatch.Driver = "pubsub"
				c.Auth.CallbackAPIKey = "k"
			},
			want: "pubsub.project_id",
		},
		{
			name: "pubsub without callback key",
			mutate: func(c *Config) {
				c.Dispatch.Driver = "pubsub"
				c.PubSub = PubSubConfig{ProjectID: "p", Topic: "t"}
			},
			want: "auth.callback_api_key",
		},
		{name: "llm without key", mutate: func(c *Config) { c.Generator.Driver = "llm" }, want: "llm.api_key"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Driver = "gcs" }, want: "archive.bucket"},
		{
			name: "headless missing max parallel",
			mutate: func(c *Config) {
				c.Generator.HeadlessEnabled = true
			},
			want: "generator.headless_max_parallel",
		},
		{name: "zero watch interval", mutate: func(c *Config) { c.Watch.IntervalMs = 0 }, want: "watch.interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validBase()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
