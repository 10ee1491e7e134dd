// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Queue holds the defaults applied to newly created queues and the
// reclaimer's sweep parameters.
type Queue struct {
	StaleJobInterval    time.Duration `mapstructure:"stale_job_interval"`
	DefaultClaimTimeout time.Duration `mapstructure:"default_claim_timeout"`
	DefaultMaxRetries   int           `mapstructure:"default_max_retries"`
	JobMetaTTL          time.Duration `mapstructure:"job_meta_ttl"`
	SubmitBatchMax      int           `mapstructure:"submit_batch_max"`
	ReclaimScanCount    int64         `mapstructure:"reclaim_scan_count"`
}

type Auth struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type HTTP struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimitPerSec bounds requests per client IP via golang.org/x/time/rate.
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type Observability struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

type Config struct {
	Redis          Redis          `mapstructure:"redis"`
	Queue          Queue          `mapstructure:"queue"`
	Auth           Auth           `mapstructure:"auth"`
	HTTP           HTTP           `mapstructure:"http"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability  Observability  `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Queue: Queue{
			StaleJobInterval:    30 * time.Second,
			DefaultClaimTimeout: 300 * time.Second,
			DefaultMaxRetries:   3,
			JobMetaTTL:          7 * 24 * time.Hour,
			SubmitBatchMax:      1000,
			ReclaimScanCount:    100,
		},
		Auth: Auth{APIKeys: nil},
		HTTP: HTTP{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
	}
}

// Load reads configuration from an optional YAML file plus environment
// overrides (STARQ_REDIS_ADDR, STARQ_AUTH_API_KEYS, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("starq")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("queue.stale_job_interval", def.Queue.StaleJobInterval)
	v.SetDefault("queue.default_claim_timeout", def.Queue.DefaultClaimTimeout)
	v.SetDefault("queue.default_max_retries", def.Queue.DefaultMaxRetries)
	v.SetDefault("queue.job_meta_ttl", def.Queue.JobMetaTTL)
	v.SetDefault("queue.submit_batch_max", def.Queue.SubmitBatchMax)
	v.SetDefault("queue.reclaim_scan_count", def.Queue.ReclaimScanCount)

	v.SetDefault("auth.api_keys", def.Auth.APIKeys)

	v.SetDefault("http.listen_addr", def.HTTP.ListenAddr)
	v.SetDefault("http.read_timeout", def.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", def.HTTP.WriteTimeout)
	v.SetDefault("http.rate_limit_per_sec", def.HTTP.RateLimitPerSec)
	v.SetDefault("http.rate_limit_burst", def.HTTP.RateLimitBurst)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Queue.DefaultMaxRetries < 0 {
		return fmt.Errorf("queue.default_max_retries must be >= 0")
	}
	if cfg.Queue.DefaultClaimTimeout <= 0 {
		return fmt.Errorf("queue.default_claim_timeout must be > 0")
	}
	if cfg.Queue.StaleJobInterval <= 0 {
		return fmt.Errorf("queue.stale_job_interval must be > 0")
	}
	if cfg.Queue.SubmitBatchMax < 1 {
		return fmt.Errorf("queue.submit_batch_max must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
