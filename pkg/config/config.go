// Package config builds the process-wide configuration value from an optional
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxBatchSize is the largest batch the sink accepts.
const MaxBatchSize = 100

// Environment variable names.
const (
	EnvBaseURL           = "API_BASE_URL"
	EnvTimeout           = "API_TIMEOUT"
	EnvMaxRetries        = "API_MAX_RETRIES"
	EnvRetryDelay        = "API_RETRY_DELAY"
	EnvBackoffMultiplier = "API_BACKOFF_MULTIPLIER"
	EnvRateLimit         = "API_RATE_LIMIT"
	EnvBatchSize         = "BATCH_SIZE"
	EnvMaxWorkers        = "MAX_WORKERS"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvRedisURL          = "REDIS_URL"
	EnvCacheTTL          = "CACHE_TTL"
	EnvMetricsAddr       = "METRICS_ADDR"
	EnvUserAgent         = "USER_AGENT"
)

// Config holds every tunable of one process.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	RateLimit         float64
	BatchSize         int
	MaxWorkers        int
	LogLevel          string
	LogFormat         string
	// RedisURL enables the detail cache. Runs within CacheTTL of each other
	// reuse cached detail records instead of fetching them again.
	RedisURL    string
	CacheTTL    time.Duration
	MetricsAddr string
	UserAgent   string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BaseURL:           "http://localhost:3123",
		Timeout:           30 * time.Second,
		MaxRetries:        5,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
		BatchSize:         MaxBatchSize,
		MaxWorkers:        4,
		LogLevel:          "info",
		LogFormat:         "json",
		CacheTTL:          5 * time.Minute,
		UserAgent:         "animal-etl/0.1.0",
	}
}

// Load reads envFile (or ./.env when empty and present) into the environment
// without overriding variables already set, then builds and validates a Config.
// A named envFile that cannot be read is an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays the environment on Default. Values are not validated.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.BaseURL = envString(EnvBaseURL, cfg.BaseURL)
	cfg.LogLevel = strings.ToLower(envString(EnvLogLevel, cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envString(EnvLogFormat, cfg.LogFormat))
	cfg.RedisURL = envString(EnvRedisURL, cfg.RedisURL)
	cfg.MetricsAddr = envString(EnvMetricsAddr, cfg.MetricsAddr)
	cfg.UserAgent = envString(EnvUserAgent, cfg.UserAgent)

	var err error
	cfg.Timeout, err = envSeconds(EnvTimeout, cfg.Timeout)
	collect(err)
	cfg.RetryDelay, err = envSeconds(EnvRetryDelay, cfg.RetryDelay)
	collect(err)
	cfg.CacheTTL, err = envSeconds(EnvCacheTTL, cfg.CacheTTL)
	collect(err)
	cfg.MaxRetries, err = envInt(EnvMaxRetries, cfg.MaxRetries)
	collect(err)
	cfg.BatchSize, err = envInt(EnvBatchSize, cfg.BatchSize)
	collect(err)
	cfg.MaxWorkers, err = envInt(EnvMaxWorkers, cfg.MaxWorkers)
	collect(err)
	cfg.BackoffMultiplier, err = envFloat(EnvBackoffMultiplier, cfg.BackoffMultiplier)
	collect(err)
	cfg.RateLimit, err = envFloat(EnvRateLimit, cfg.RateLimit)
	collect(err)

	return cfg, errors.Join(errs...)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return errors.New("base url must not be empty")
	case !isHTTPURL(c.BaseURL):
		return fmt.Errorf("base url must be an absolute http or https url (got %q)", c.BaseURL)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout)
	case c.MaxRetries < 1:
		return fmt.Errorf("max retries must be >= 1 (got %d)", c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("retry delay must be >= 0 (got %s)", c.RetryDelay)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("backoff multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	case c.BatchSize < 1 || c.BatchSize > MaxBatchSize:
		return fmt.Errorf("batch size must be between 1 and %d (got %d)", MaxBatchSize, c.BatchSize)
	case c.MaxWorkers < 1:
		return fmt.Errorf("max workers must be >= 1 (got %d)", c.MaxWorkers)
	case c.RateLimit < 0:
		return fmt.Errorf("rate limit must be >= 0 (got %v)", c.RateLimit)
	case c.CacheTTL < 0:
		return fmt.Errorf("cache ttl must be >= 0 (got %s)", c.CacheTTL)
	case c.LogFormat != "json" && c.LogFormat != "console":
		return fmt.Errorf("log format must be json or console (got %q)", c.LogFormat)
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

// envSeconds parses a (possibly fractional) number of seconds.
func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	f, err := envFloat(key, 0)
	if err != nil {
		return def, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
