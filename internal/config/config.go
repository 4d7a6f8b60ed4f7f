// Package config loads the core's tunables from YAML with environment
// variable overrides, mirroring the teacher's internal/config package
// shape (one struct per component, gopkg.in/yaml.v2, getEnv-style
// overrides applied after decode, defaults filled in last).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration for both cmd/server and cmd/worker.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Redis       RedisConfig       `yaml:"redis"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Markov      MarkovConfig      `yaml:"markov"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// IdempotencyConfig mirrors §4.1's two TTL classes.
type IdempotencyConfig struct {
	InProgressTTLSec int `yaml:"in_progress_ttl_sec"`
	CompletedTTLSec  int `yaml:"completed_ttl_sec"`
}

func (c IdempotencyConfig) InProgressTTL() time.Duration {
	return time.Duration(c.InProgressTTLSec) * time.Second
}

func (c IdempotencyConfig) CompletedTTL() time.Duration {
	return time.Duration(c.CompletedTTLSec) * time.Second
}

// RedisConfig addresses the shared go-redis client used by idempotency,
// the job queue, and the realtime relay.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RealtimeConfig tunes the chat fan-out bus of §4.3.
type RealtimeConfig struct {
	ChannelCapacity  int `yaml:"channel_capacity"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

func (c RealtimeConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// JobsConfig tunes the worker loop of §4.4.
type JobsConfig struct {
	DequeueTimeoutSec int `yaml:"dequeue_timeout_sec"`
	BackoffBaseMs     int `yaml:"backoff_base_ms"`
	BackoffMaxMs      int `yaml:"backoff_max_ms"`
	MaxAttempts       int `yaml:"max_attempts"`
}

func (c JobsConfig) DequeueTimeout() time.Duration {
	return time.Duration(c.DequeueTimeoutSec) * time.Second
}

// MarkovConfig tunes the read-through cache of §4.5.
type MarkovConfig struct {
	BaseURL              string  `yaml:"base_url"`
	PlatformToken        string  `yaml:"platform_token"`
	PlatformID           string  `yaml:"platform_id"`
	ExplicitScopeQuery   bool    `yaml:"explicit_scope_query"`
	RequestTimeoutSec    int     `yaml:"request_timeout_sec"`
	RetryMaxAttempts     int     `yaml:"retry_max_attempts"`
	RetryBaseMs          int     `yaml:"retry_base_ms"`
	RetryMaxBackoffMs    int     `yaml:"retry_max_backoff_ms"`
	CircuitFailThreshold int     `yaml:"circuit_fail_threshold"`
	CircuitOpenSec       int     `yaml:"circuit_open_sec"`
	CacheMaxEntries      int     `yaml:"cache_max_entries"`
	ProfileTTLSec        int     `yaml:"profile_ttl_sec"`
	ProfileStaleSec      int     `yaml:"profile_stale_sec"`
	GameplayTTLSec       int     `yaml:"gameplay_ttl_sec"`
	GameplayStaleSec     int     `yaml:"gameplay_stale_sec"`
}

func (c MarkovConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c MarkovConfig) CircuitOpenDuration() time.Duration {
	return time.Duration(c.CircuitOpenSec) * time.Second
}

// Load reads path as YAML into a Config, applies environment overrides,
// then fills any remaining zero values with defaults. A missing file is
// not an error — the zero-valued Config simply receives env overrides
// and defaults, matching the teacher's Get()/LoadConfig() behavior.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("CORE_ENV", c.Server.Env)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)
	if v := getEnvInt("REDIS_DB", 0); v > 0 {
		c.Redis.DB = v
	}

	c.Markov.BaseURL = getEnv("MARKOV_BASE_URL", c.Markov.BaseURL)
	c.Markov.PlatformToken = getEnv("MARKOV_PLATFORM_TOKEN", c.Markov.PlatformToken)
	c.Markov.PlatformID = getEnv("MARKOV_PLATFORM_ID", c.Markov.PlatformID)
	c.Markov.ExplicitScopeQuery = getEnvBool("MARKOV_EXPLICIT_SCOPE_QUERY", c.Markov.ExplicitScopeQuery)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}

	if c.Idempotency.InProgressTTLSec == 0 {
		c.Idempotency.InProgressTTLSec = 60
	}
	if c.Idempotency.CompletedTTLSec == 0 {
		c.Idempotency.CompletedTTLSec = 24 * 60 * 60
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "gotong-royong"
	}

	if c.Realtime.ChannelCapacity == 0 {
		c.Realtime.ChannelCapacity = 256
	}
	if c.Realtime.HeartbeatSeconds == 0 {
		c.Realtime.HeartbeatSeconds = 15
	}

	if c.Jobs.DequeueTimeoutSec == 0 {
		c.Jobs.DequeueTimeoutSec = 5
	}
	if c.Jobs.BackoffBaseMs == 0 {
		c.Jobs.BackoffBaseMs = 500
	}
	if c.Jobs.BackoffMaxMs == 0 {
		c.Jobs.BackoffMaxMs = 60_000
	}
	if c.Jobs.MaxAttempts == 0 {
		c.Jobs.MaxAttempts = 8
	}

	if c.Markov.RequestTimeoutSec == 0 {
		c.Markov.RequestTimeoutSec = 3
	}
	if c.Markov.RetryMaxAttempts == 0 {
		c.Markov.RetryMaxAttempts = 3
	}
	if c.Markov.RetryBaseMs == 0 {
		c.Markov.RetryBaseMs = 100
	}
	if c.Markov.RetryMaxBackoffMs == 0 {
		c.Markov.RetryMaxBackoffMs = 2000
	}
	if c.Markov.CircuitFailThreshold == 0 {
		c.Markov.CircuitFailThreshold = 3
	}
	if c.Markov.CircuitOpenSec == 0 {
		c.Markov.CircuitOpenSec = 30
	}
	if c.Markov.CacheMaxEntries == 0 {
		c.Markov.CacheMaxEntries = 4096
	}
	if c.Markov.ProfileTTLSec == 0 {
		c.Markov.ProfileTTLSec = 30
	}
	if c.Markov.ProfileStaleSec == 0 {
		c.Markov.ProfileStaleSec = 300
	}
	if c.Markov.GameplayTTLSec == 0 {
		c.Markov.GameplayTTLSec = 5
	}
	if c.Markov.GameplayStaleSec == 0 {
		c.Markov.GameplayStaleSec = 30
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
