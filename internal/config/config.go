package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is assembled once at startup and handed to every component by value or pointer.
// Nothing mutates it afterwards; runtime overrides pushed by the hub live in the store.
type Config struct {
	Hub       HubConfig       `mapstructure:"hub" yaml:"hub"`
	Satellite SatelliteConfig `mapstructure:"satellite" yaml:"satellite"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Security  SecurityConfig  `mapstructure:"security" yaml:"security"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
}

// HubConfig describes how to reach the central hub.
type HubConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey Secret `mapstructure:"api_key" yaml:"api_key"`

	// TimeoutSeconds bounds every outbound call (connect + read).
	TimeoutSeconds int `mapstructure:"timeout" yaml:"timeout"`

	// RetryAttempts is the total number of attempts for retried calls (1 = no retry).
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelayMillis is the fixed pause between two attempts.
	RetryDelayMillis int `mapstructure:"retry_delay" yaml:"retry_delay"`

	// RetryBestEffort extends the bounded retry policy to metrics and sync pushes.
	RetryBestEffort bool `mapstructure:"retry_best_effort" yaml:"retry_best_effort"`
}

func (h HubConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

func (h HubConfig) RetryDelay() time.Duration {
	return time.Duration(h.RetryDelayMillis) * time.Millisecond
}

// SatelliteConfig describes this node.
type SatelliteConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Type      string `mapstructure:"type" yaml:"type"` // logistik, vinci, pixel, default
	Version   string `mapstructure:"version" yaml:"version"`
	URL       string `mapstructure:"url" yaml:"url"`
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix"`

	// Enabled is the administrative switch for all satellite endpoints.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type SyncConfig struct {
	Enabled         bool            `mapstructure:"enabled" yaml:"enabled"`
	IntervalSeconds int             `mapstructure:"interval" yaml:"interval"`
	BatchSize       int             `mapstructure:"batch_size" yaml:"batch_size"`
	AutoRegister    bool            `mapstructure:"auto_register" yaml:"auto_register"`
	Concurrency     int             `mapstructure:"concurrency" yaml:"concurrency"`
	Datasets        []DatasetConfig `mapstructure:"datasets" yaml:"datasets,omitempty"`
}

// DatasetConfig overrides the built-in dataset list. Query must be a SELECT.
type DatasetConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Query string `mapstructure:"query" yaml:"query"`
}

type MetricsConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	IntervalSeconds int      `mapstructure:"interval" yaml:"interval"`
	Include         []string `mapstructure:"include" yaml:"include"`
}

// Includes reports whether the named metric group is enabled.
func (m MetricsConfig) Includes(name string) bool {
	for _, inc := range m.Include {
		if inc == name {
			return true
		}
	}
	return false
}

type HealthConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

type SecurityConfig struct {
	VerifySSL bool `mapstructure:"verify_ssl" yaml:"verify_ssl"`

	// RateLimit is the number of requests per client IP per minute.
	// 0 or a negative value disables rate limiting.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	// IPAllowlist is a comma-separated list of IPv4 addresses and CIDR ranges.
	// Empty means no restriction.
	IPAllowlist string `mapstructure:"ip_allowlist" yaml:"ip_allowlist"`

	// TrustProxy makes the client IP come from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites these headers.
	TrustProxy bool `mapstructure:"trust_proxy" yaml:"trust_proxy"`
}

// Allowlist returns the trimmed, non-empty allowlist entries.
func (s SecurityConfig) Allowlist() []string {
	var out []string
	for _, entry := range strings.Split(s.IPAllowlist, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

type CacheConfig struct {
	Prefix     string   `mapstructure:"prefix" yaml:"prefix"`
	TTLSeconds int      `mapstructure:"ttl" yaml:"ttl"`
	Tags       []string `mapstructure:"tags" yaml:"tags"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type StoreConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	RedisURL   Secret `mapstructure:"redis_url" yaml:"redis_url"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type SourceConfig struct {
	// DatabaseURL points at the Postgres database holding the domain entities.
	// Empty disables data collection; every dataset is then reported as skipped.
	DatabaseURL Secret `mapstructure:"database_url" yaml:"database_url"`

	// StoragePath is the directory used for the disk usage check.
	StoragePath string `mapstructure:"storage_path" yaml:"storage_path"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

type TasksConfig struct {
	TimeoutSeconds int `mapstructure:"timeout" yaml:"timeout"`
}

func (t TasksConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// envBindings maps config keys to the environment variables they are read from.
// The first variable that is set wins.
var envBindings = map[string][]string{
	"hub.url":               {"UNICYHUB_URL"},
	"hub.api_key":           {"UNICYHUB_API_KEY"},
	"hub.timeout":           {"UNICYHUB_TIMEOUT"},
	"hub.retry_attempts":    {"UNICYHUB_RETRY_ATTEMPTS"},
	"hub.retry_delay":       {"UNICYHUB_RETRY_DELAY"},
	"hub.retry_best_effort": {"UNICYHUB_RETRY_BEST_EFFORT"},

	"satellite.name":       {"SATELLITE_NAME"},
	"satellite.type":       {"SATELLITE_TYPE"},
	"satellite.version":    {"SATELLITE_VERSION"},
	"satellite.url":        {"SATELLITE_URL"},
	"satellite.api_prefix": {"SATELLITE_API_PREFIX"},
	"satellite.enabled":    {"SATELLITE_ENABLED"},

	"sync.enabled":       {"SATELLITE_SYNC_ENABLED"},
	"sync.interval":      {"SATELLITE_SYNC_INTERVAL"},
	"sync.batch_size":    {"SATELLITE_SYNC_BATCH_SIZE"},
	"sync.auto_register": {"SATELLITE_AUTO_REGISTER"},
	"sync.concurrency":   {"SATELLITE_SYNC_CONCURRENCY"},

	"metrics.enabled":  {"SATELLITE_METRICS_ENABLED", "SATELLITE_SEND_METRICS"},
	"metrics.interval": {"SATELLITE_METRICS_INTERVAL"},

	"health.enabled":  {"SATELLITE_HEALTH_ENABLED"},
	"health.endpoint": {"SATELLITE_HEALTH_ENDPOINT"},

	"security.verify_ssl":   {"SATELLITE_VERIFY_SSL"},
	"security.rate_limit":   {"SATELLITE_RATE_LIMIT"},
	"security.ip_allowlist": {"SATELLITE_IP_ALLOWLIST", "SATELLITE_IP_WHITELIST"},
	"security.trust_proxy":  {"SATELLITE_TRUST_PROXY"},

	"cache.prefix": {"SATELLITE_CACHE_PREFIX"},
	"cache.ttl":    {"SATELLITE_CACHE_TTL"},

	"store.driver":      {"SATELLITE_STORE"},
	"store.redis_url":   {"SATELLITE_REDIS_URL"},
	"store.sqlite_path": {"SATELLITE_SQLITE_PATH"},

	"source.database_url": {"SATELLITE_DATABASE_URL"},
	"source.storage_path": {"SATELLITE_STORAGE_PATH"},

	"server.listen_addr": {"SATELLITE_LISTEN_ADDR"},
	"tasks.timeout":      {"SATELLITE_TASK_TIMEOUT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hub.url", "https://hub.unicy.io")
	v.SetDefault("hub.timeout", 30)
	v.SetDefault("hub.retry_attempts", 3)
	v.SetDefault("hub.retry_delay", 1000)
	v.SetDefault("hub.retry_best_effort", false)

	v.SetDefault("satellite.name", "satellite")
	v.SetDefault("satellite.type", "default")
	v.SetDefault("satellite.version", "1.0.0")
	v.SetDefault("satellite.url", "http://localhost:8080")
	v.SetDefault("satellite.api_prefix", "api/satellite")
	v.SetDefault("satellite.enabled", true)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", 300)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.auto_register", true)
	v.SetDefault("sync.concurrency", 2)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", 60)
	v.SetDefault("metrics.include", []string{
		"users_count", "tenants_count", "memory_usage", "disk_usage", "runtime",
	})

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.endpoint", "/health")

	v.SetDefault("security.verify_ssl", true)
	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.ip_allowlist", "")
	v.SetDefault("security.trust_proxy", false)

	v.SetDefault("cache.prefix", "satellite")
	v.SetDefault("cache.ttl", 3600)
	v.SetDefault("cache.tags", []string{"satellite", "sync", "unicyhub"})

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.sqlite_path", "./data/satellite.db")

	v.SetDefault("source.storage_path", ".")

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("tasks.timeout", 300)
}

// Load reads defaults, the optional config file already registered on v and the environment,
// and returns the validated configuration.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Hub.URL = strings.TrimRight(strings.TrimSpace(c.Hub.URL), "/")
	c.Satellite.APIPrefix = strings.Trim(c.Satellite.APIPrefix, "/")
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Sync.Concurrency < 1 {
		c.Sync.Concurrency = 1
	}
}

func (c *Config) Validate() error {
	if c.Satellite.Name == "" {
		return fmt.Errorf("satellite.name must not be empty")
	}
	if c.Hub.TimeoutSeconds <= 0 {
		return fmt.Errorf("hub.timeout must be positive, got %d", c.Hub.TimeoutSeconds)
	}
	if c.Hub.RetryAttempts < 1 {
		return fmt.Errorf("hub.retry_attempts must be at least 1, got %d", c.Hub.RetryAttempts)
	}
	if c.Hub.RetryDelayMillis < 0 {
		return fmt.Errorf("hub.retry_delay must not be negative")
	}
	if c.Sync.Enabled && c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.interval must be positive when sync is enabled")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.IntervalSeconds <= 0 {
		return fmt.Errorf("metrics.interval must be positive when metrics are enabled")
	}
	for idx, ds := range c.Sync.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("dataset at index %d has empty name", idx)
		}
		if ds.Query == "" {
			return fmt.Errorf("dataset '%s' has empty query", ds.Name)
		}
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL.Empty() {
			return ErrMissing{Key: "store.redis_url"}
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return ErrMissing{Key: "store.sqlite_path"}
		}
	default:
		return fmt.Errorf("unknown store driver '%s'", c.Store.Driver)
	}
	return nil
}

// RequireHub must be called by every code path that talks to the hub.
// A missing URL or credential is a fatal configuration error, never a silent degrade.
func (c *Config) RequireHub() error {
	if c.Hub.URL == "" {
		return ErrMissing{Key: "hub.url"}
	}
	if c.Hub.APIKey.Empty() {
		return ErrMissing{Key: "hub.api_key"}
	}
	return nil
}
