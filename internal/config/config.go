// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	DB        DBConfig        `mapstructure:"db"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Generator GeneratorConfig `mapstructure:"generator"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig holds the session token secret and the generator callback key.
type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	CallbackAPIKey string `mapstructure:"callback_api_key"`
}

// StoreConfig selects the report store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// QuotaConfig selects the quota store and first-use provisioning.
type QuotaConfig struct {
	Driver        string `mapstructure:"driver"`
	StarterAudits int    `mapstructure:"starter_audits"`
	AutoProvision bool   `mapstructure:"auto_provision"`
}

// RedisConfig addresses the Redis quota backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DispatchConfig selects how reports reach the generator.
type DispatchConfig struct {
	Driver              string `mapstructure:"driver"`
	QueueDepth          int    `mapstructure:"queue_depth"`
	Concurrency         int    `mapstructure:"concurrency"`
	EnqueueTimeoutMs    int    `mapstructure:"enqueue_timeout_ms"`
	CallbackMaxAttempts int    `mapstructure:"callback_max_attempts"`
}

// PubSubConfig holds the topic used by the pubsub dispatch driver.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// GeneratorConfig selects and tunes the report generator.
type GeneratorConfig struct {
	Driver          string   `mapstructure:"driver"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	UserAgent       string   `mapstructure:"user_agent"`
	RespectRobots   bool     `mapstructure:"respect_robots"`
	FetchTimeoutSec int      `mapstructure:"fetch_timeout_seconds"`
	DomainRPS       float64  `mapstructure:"domain_rps"`
	DomainBurst     int      `mapstructure:"domain_burst"`
	BlockedDomains  []string `mapstructure:"blocked_domains"`
	HeadlessEnabled bool     `mapstructure:"headless_enabled"`
	HeadlessMax     int      `mapstructure:"headless_max_parallel"`
	HeadlessNavSec  int      `mapstructure:"headless_nav_timeout_seconds"`
	RenderThreshold int      `mapstructure:"render_threshold"`

	// AllowPrivateNetworks lets audits target localhost and internal
	// addresses. Off outside local development.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// LLMConfig configures the chat-completions generator.
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ArchiveConfig selects where completed reports are archived.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// WatchConfig tunes the poll loop behind long-poll watches.
type WatchConfig struct {
	IntervalMs     int `mapstructure:"interval_ms"`
	MaxWaitSeconds int `mapstructure:"max_wait_seconds"`
}

// ProgressConfig tunes the lifecycle event hub.
type ProgressConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogEnabled     bool `mapstructure:"log_enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUDITSNAP")
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

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal, including keys whose default is empty.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.callback_api_key", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrate", true)
	v.SetDefault("quota.driver", "memory")
	v.SetDefault("quota.starter_audits", 3)
	v.SetDefault("quota.auto_provision", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("dispatch.driver", "local")
	v.SetDefault("dispatch.queue_depth", 64)
	v.SetDefault("dispatch.concurrency", 4)
	v.SetDefault("dispatch.enqueue_timeout_ms", 2000)
	v.SetDefault("dispatch.callback_max_attempts", 3)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("generator.driver", "heuristic")
	v.SetDefault("generator.timeout_seconds", 120)
	v.SetDefault("generator.user_agent", "auditsnap-bot/0.1")
	v.SetDefault("generator.respect_robots", true)
	v.SetDefault("generator.fetch_timeout_seconds", 15)
	v.SetDefault("generator.domain_rps", 1.0)
	v.SetDefault("generator.domain_burst", 1)
	v.SetDefault("generator.blocked_domains", []string{})
	v.SetDefault("generator.headless_enabled", false)
	v.SetDefault("generator.headless_max_parallel", 1)
	v.SetDefault("generator.headless_nav_timeout_seconds", 25)
	v.SetDefault("generator.render_threshold", 60)
	v.SetDefault("generator.allow_private_networks", false)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("watch.interval_ms", 3000)
	v.SetDefault("watch.max_wait_seconds", 60)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("logging.development", true)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}

// Validate enforces required values and driver combinations.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Server.Port <= 0 {
		add(errors.New("server.port must be > 0"))
	}
	if c.Auth.JWTSecret == "" {
		add(errors.New("auth.jwt_secret is required"))
	}
	add(oneOf("store.driver", c.Store.Driver, "memory", "postgres"))
	add(oneOf("quota.driver", c.Quota.Driver, "memory", "postgres", "redis"))
	add(oneOf("dispatch.driver", c.Dispatch.Driver, "local", "pubsub"))
	add(oneOf("generator.driver", c.Generator.Driver, "heuristic", "llm"))
	add(oneOf("archive.driver", c.Archive.Driver, "none", "memory", "local", "gcs"))

	if (c.Store.Driver == "postgres" || c.Quota.Driver == "postgres") && c.DB.DSN == "" {
		add(errors.New("db.dsn is required for the postgres driver"))
	}
	if c.Quota.Driver == "redis" && c.Redis.Addr == "" {
		add(errors.New("redis.addr is required for the redis quota driver"))
	}
	if c.Quota.AutoProvision && c.Quota.StarterAudits <= 0 {
		add(errors.New("quota.starter_audits must be > 0 when auto_provision is enabled"))
	}
	switch c.Dispatch.Driver {
	case "local":
		if c.Dispatch.Concurrency <= 0 || c.Dispatch.QueueDepth <= 0 {
			add(errors.New("dispatch.concurrency and dispatch.queue_depth must be > 0"))
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			add(errors.New("pubsub.project_id and pubsub.topic are required for the pubsub driver"))
		}
		if c.Auth.CallbackAPIKey == "" {
			add(errors.New("auth.callback_api_key is required for the pubsub driver"))
		}
	}
	if c.Generator.Driver == "llm" && c.LLM.APIKey == "" {
		add(errors.New("llm.api_key is required for the llm generator"))
	}
	if c.Generator.TimeoutSeconds <= 0 {
		add(errors.New("generator.timeout_seconds must be > 0"))
	}
	if c.Generator.HeadlessEnabled && c.Generator.HeadlessMax <= 0 {
		add(errors.New("generator.headless_max_parallel must be > 0 when headless is enabled"))
	}
	switch c.Archive.Driver {
	case "local":
		if c.Archive.BaseDir == "" {
			add(errors.New("archive.base_dir is required for the local archive"))
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			add(errors.New("archive.bucket is required for the gcs archive"))
		}
	}
	if c.Watch.IntervalMs <= 0 || c.Watch.MaxWaitSeconds <= 0 {
		add(errors.New("watch.interval_ms and watch.max_wait_seconds must be > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GeneratorTimeout is the per-report generation budget.
func (c Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// WatchInterval is the poll interval behind watches.
func (c Config) WatchInterval() time.Duration {
	return time.Duration(c.Watch.IntervalMs) * time.Millisecond
}

// WatchMaxWait bounds a single watch.
func (c Config) WatchMaxWait() time.Duration {
	return time.Duration(c.Watch.MaxWaitSeconds) * time.Second
}
