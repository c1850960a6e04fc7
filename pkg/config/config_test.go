package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	EnvBaseURL, EnvTimeout, EnvMaxRetries, EnvRetryDelay, EnvBackoffMultiplier,
	EnvRateLimit, EnvBatchSize, EnvMaxWorkers, EnvLogLevel, EnvLogFormat,
	EnvRedisURL, EnvCacheTTL, EnvMetricsAddr, EnvUserAgent,
}

// clearEnv blanks every variable for the test; empty values fall back to defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://localhost:3123", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RedisURL)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "http://api.test:8080/")
	t.Setenv(EnvTimeout, "2.5")
	t.Setenv(EnvMaxRetries, "3")
	t.Setenv(EnvRetryDelay, "0.25")
	t.Setenv(EnvBackoffMultiplier, "1.5")
	t.Setenv(EnvRateLimit, "10")
	t.Setenv(EnvBatchSize, "50")
	t.Setenv(EnvMaxWorkers, "8")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvLogFormat, "console")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvCacheTTL, "60")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://api.test:8080/", cfg.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 1.5, cfg.BackoffMultiplier)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMaxWorkers, "many")
	t.Setenv(EnvTimeout, "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_WORKERS: invalid integer \"many\"")
	assert.Contains(t, err.Error(), "API_TIMEOUT: invalid number \"soon\"")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"empty base url", func(c *Config) { c.BaseURL = " " }, "base url must not be empty"},
		{"base url without scheme", func(c *Config) { c.BaseURL = "localhost:3123" }, `base url must be an absolute http or https url (got "localhost:3123")`},
		{"base url with other scheme", func(c *Config) { c.BaseURL = "ftp://animals.test" }, `base url must be an absolute http or https url (got "ftp://animals.test")`},
		{"base url without host", func(c *Config) { c.BaseURL = "http:///animals" }, `base url must be an absolute http or https url (got "http:///animals")`},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be > 0 (got 0s)"},
		{"no retries", func(c *Config) { c.MaxRetries = 0 }, "max retries must be >= 1 (got 0)"},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, "retry delay must be >= 0 (got -1s)"},
		{"shrinking backoff", func(c *Config) { c.BackoffMultiplier = 0.5 }, "backoff multiplier must be >= 1 (got 0.5)"},
		{"batch size zero", func(c *Config) { c.BatchSize = 0 }, "batch size must be between 1 and 100 (got 0)"},
		{"batch size over sink limit", func(c *Config) { c.BatchSize = 101 }, "batch size must be between 1 and 100 (got 101)"},
		{"no workers", func(c *Config) { c.MaxWorkers = 0 }, "max workers must be >= 1 (got 0)"},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, "rate limit must be >= 0 (got -1)"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "log format must be json or console (got \"xml\")"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.EqualError(t, cfg.Validate(), tt.errorMsg)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvBatchSize)
	os.Unsetenv(EnvMaxWorkers)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_SIZE=25\nMAX_WORKERS=2\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(EnvBatchSize)
		os.Unsetenv(EnvMaxWorkers)
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2, cfg.MaxWorkers)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMaxWorkers, "9")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_WORKERS=2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxWorkers)
}

func TestLoad_MissingNamedFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBatchSize, "500")

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	_, err = Load("")
	assert.EqualError(t, err, "batch size must be between 1 and 100 (got 500)")
}
