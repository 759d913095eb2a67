package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full decomposer service configuration. It is loaded once
// at startup and refreshed by the Manager when the config file changes;
// consumers always read a complete snapshot, never individual keys.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Streaming   StreamingConfig   `mapstructure:"streaming"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Health      HealthConfig      `mapstructure:"health"`
}

// ServiceConfig holds the listener addresses and shutdown behavior.
type ServiceConfig struct {
	Name            string        `mapstructure:"name"`
	Environment     string        `mapstructure:"environment"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	AdminAddr       string        `mapstructure:"admin_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects the zap profile.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EngineConfig carries the tunable decomposition bounds. These are the
// values hot reload exists for.
type EngineConfig struct {
	MaxDepth         int  `mapstructure:"max_depth"`
	MaxSubObjectives int  `mapstructure:"max_sub_objectives"`
	StrictVerify     bool `mapstructure:"strict_verify"`
}

// AuthConfig configures API-key and JWT verification on the public API.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	SkipAuth  bool          `mapstructure:"skip_auth"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// PolicyConfig configures the OPA invocation gate.
type PolicyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	FailClosed bool   `mapstructure:"fail_closed"`
	CacheSize  int    `mapstructure:"cache_size"`
}

// PostgresConfig configures the best-effort persistence store.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// RedisConfig configures both the result cache tier and the rate-limit
// window store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr renders host:port for the redis clients.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TTL       time.Duration `mapstructure:"ttl"`
	LocalSize int           `mapstructure:"local_size"`
}

// PersistenceConfig tunes the async write queue.
type PersistenceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RateLimitConfig tunes the per-principal request limiter.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rate    int           `mapstructure:"rate"`
	Burst   int           `mapstructure:"burst"`
	Window  time.Duration `mapstructure:"window"`
}

// StreamingConfig tunes the event stream surface.
type StreamingConfig struct {
	RingCapacity int           `mapstructure:"ring_capacity"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// HealthConfig tunes the health check manager.
type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`
}

// Default returns the configuration used when no file and no env
// overrides are present.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "polya-decomposer",
			Environment:     "development",
			HTTPAddr:        ":8081",
			AdminAddr:       ":2112",
			GRPCAddr:        ":50052",
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Engine: EngineConfig{
			MaxDepth:         3,
			MaxSubObjectives: 20,
		},
		Auth: AuthConfig{
			Enabled:  true,
			Issuer:   "polya",
			TokenTTL: 24 * time.Hour,
		},
		Policy: PolicyConfig{
			CacheSize: 1024,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "polya",
			Database: "polya",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Cache: CacheConfig{
			Enabled:   true,
			TTL:       time.Hour,
			LocalSize: 512,
		},
		Persistence: PersistenceConfig{
			Enabled:      true,
			QueueSize:    1000,
			Workers:      2,
			WriteTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    60,
			Burst:   20,
			Window:  time.Minute,
		},
		Streaming: StreamingConfig{
			RingCapacity: 256,
			Heartbeat:    15 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "polya-decomposer",
		},
		Health: HealthConfig{
			CheckInterval: 30 * time.Second,
			CacheTTL:      10 * time.Second,
			CheckTimeout:  3 * time.Second,
		},
	}
}

// Path returns the config file location: CONFIG_PATH when set, otherwise
// the container default.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "/app/config/decomposer.yaml"
}

// Load reads the YAML config file (if present), applies POLYA_* env
// overrides, and validates the result. A missing file is not an error;
// defaults carry the service.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load with an explicit path, used by tests and the CLI.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("POLYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// No file; env overrides and defaults carry the service.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindDefaults seeds viper with the default values so AutomaticEnv can
// override keys that never appear in the file.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)
	v.SetDefault("service.http_addr", cfg.Service.HTTPAddr)
	v.SetDefault("service.admin_addr", cfg.Service.AdminAddr)
	v.SetDefault("service.grpc_addr", cfg.Service.GRPCAddr)
	v.SetDefault("service.shutdown_timeout", cfg.Service.ShutdownTimeout)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.development", cfg.Logging.Development)
	v.SetDefault("engine.max_depth", cfg.Engine.MaxDepth)
	v.SetDefault("engine.max_sub_objectives", cfg.Engine.MaxSubObjectives)
	v.SetDefault("engine.strict_verify", cfg.Engine.StrictVerify)
	v.SetDefault("auth.enabled", cfg.Auth.Enabled)
	v.SetDefault("auth.skip_auth", cfg.Auth.SkipAuth)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("policy.enabled", cfg.Policy.Enabled)
	v.SetDefault("policy.path", cfg.Policy.Path)
	v.SetDefault("policy.fail_closed", cfg.Policy.FailClosed)
	v.SetDefault("policy.cache_size", cfg.Policy.CacheSize)
	v.SetDefault("postgres.host", cfg.Postgres.Host)
	v.SetDefault("postgres.port", cfg.Postgres.Port)
	v.SetDefault("postgres.user", cfg.Postgres.User)
	v.SetDefault("postgres.password", cfg.Postgres.Password)
	v.SetDefault("postgres.database", cfg.Postgres.Database)
	v.SetDefault("postgres.ssl_mode", cfg.Postgres.SSLMode)
	v.SetDefault("postgres.max_conns", cfg.Postgres.MaxConns)
	v.SetDefault("redis.host", cfg.Redis.Host)
	v.SetDefault("redis.port", cfg.Redis.Port)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.local_size", cfg.Cache.LocalSize)
	v.SetDefault("persistence.enabled", cfg.Persistence.Enabled)
	v.SetDefault("persistence.queue_size", cfg.Persistence.QueueSize)
	v.SetDefault("persistence.workers", cfg.Persistence.Workers)
	v.SetDefault("persistence.write_timeout", cfg.Persistence.WriteTimeout)
	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.rate", cfg.RateLimit.Rate)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("streaming.ring_capacity", cfg.Streaming.RingCapacity)
	v.SetDefault("streaming.heartbeat", cfg.Streaming.Heartbeat)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", cfg.Tracing.OTLPEndpoint)
	v.SetDefault("health.check_interval", cfg.Health.CheckInterval)
	v.SetDefault("health.cache_ttl", cfg.Health.CacheTTL)
	v.SetDefault("health.check_timeout", cfg.Health.CheckTimeout)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxDepth < 0 || c.Engine.MaxDepth > 5 {
		return fmt.Errorf("engine.max_depth must be in [0, 5], got %d", c.Engine.MaxDepth)
	}
	if c.Engine.MaxSubObjectives < 1 || c.Engine.MaxSubObjectives > 100 {
		return fmt.Errorf("engine.max_sub_objectives must be in [1, 100], got %d", c.Engine.MaxSubObjectives)
	}
	// Development runs with an empty signing key so the service starts
	// unconfigured; anywhere else an enabled auth layer needs a secret.
	if c.Auth.Enabled && !c.Auth.SkipAuth && c.Auth.JWTSecret == "" && c.Service.Environment != "development" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled in %s", c.Service.Environment)
	}
	if c.Persistence.Enabled && c.Persistence.QueueSize < 1 {
		return fmt.Errorf("persistence.queue_size must be positive, got %d", c.Persistence.QueueSize)
	}
	if c.RateLimit.Enabled && c.RateLimit.Rate < 1 {
		return fmt.Errorf("rate_limit.rate must be positive, got %d", c.RateLimit.Rate)
	}
	return nil
}
