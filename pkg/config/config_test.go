package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"SEFAZ_TOKEN", "API_URL", "DIAS_PESQUISA", "TIMEOUT", "MAX_RETRIES",
	"BACKOFF_FACTOR", "REQUEST_DELAY", "CODIGOS_IBGE", "LOG_LEVEL",
	"LOG_PRETTY", "LOG_FILE", "INPUT_FILE", "OUTPUT_FILE", "REDIS_URL",
	"CACHE_TTL", "METRICS_FILE", "USER_AGENT",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Token)
	assert.Equal(t, pricequery.DefaultURL, cfg.APIURL)
	assert.Equal(t, 10, cfg.LookbackDays)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BackoffFactor)
	assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, []int{2700300}, cfg.RegionCodes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
	assert.Equal(t, DefaultInputFile, cfg.InputFile)
	assert.Equal(t, DefaultOutputFile, cfg.OutputFile)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEFAZ_TOKEN", "secret")
	t.Setenv("DIAS_PESQUISA", "7")
	t.Setenv("TIMEOUT", "15")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("REQUEST_DELAY", "1s")
	t.Setenv("CODIGOS_IBGE", "2700300, 2704302,")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("LOG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, 7, cfg.LookbackDays)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RequestDelay)
	assert.Equal(t, []int{2700300, 2704302}, cfg.RegionCodes)
	assert.True(t, cfg.LogPretty)
	assert.Empty(t, cfg.LogFile, "explicitly empty LOG_FILE disables the log file")
}

func TestLoad_RepeatedRegionCodes(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEFAZ_TOKEN", "secret")
	t.Setenv("CODIGOS_IBGE", "2704302, 2700300, 2704302,2700300")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{2704302, 2700300}, cfg.RegionCodes, "each municipality is queried once, in first-seen order")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DIAS_PESQUISA", "ten"},
		{"TIMEOUT", "soon"},
		{"MAX_RETRIES", "3.5"},
		{"CODIGOS_IBGE", "2700300,maceio"},
		{"LOG_PRETTY", "maybe"},
		{"CACHE_TTL", "60"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidValue)
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Token:        "secret",
		RegionCodes:  []int{2700300},
		LookbackDays: 10,
		Timeout:      time.Second,
		MaxRetries:   3,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"blank token", func(c *Config) { c.Token = "  " }, ErrMissingToken},
		{"no regions", func(c *Config) { c.RegionCodes = nil }, ErrNoRegions},
		{"repeated region", func(c *Config) { c.RegionCodes = []int{2700300, 2704302, 2700300} }, ErrInvalidValue},
		{"zero lookback", func(c *Config) { c.LookbackDays = 0 }, ErrInvalidValue},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidValue},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Config{
		Token:         "secret",
		APIURL:        "http://localhost/pesquisa",
		Timeout:       5 * time.Second,
		MaxRetries:    4,
		BackoffFactor: 2 * time.Second,
		RequestDelay:  time.Second,
		CacheTTL:      time.Minute,
		UserAgent:     "test/1.0",
	}

	cc := cfg.ClientConfig()
	assert.Equal(t, "test/1.0", cc.UserAgent)
	assert.Equal(t, 5*time.Second, cc.Timeout)
	assert.Equal(t, 4, cc.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cc.Retry.BackoffFactor)
	assert.True(t, cc.Retry.IsRetryableStatus(429))

	qc := cfg.QueryConfig()
	assert.Equal(t, pricequery.Config{URL: "http://localhost/pesquisa", AppToken: "secret", CacheTTL: time.Minute}, qc)

	assert.Equal(t, time.Second, cfg.PacingConfig().Delay)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SEFAZ_TOKEN=from-file\nDIAS_PESQUISA=3\n"), 0o600))
	t.Setenv("DIAS_PESQUISA", "5")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("SEFAZ_TOKEN") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Token)
	assert.Equal(t, 5, cfg.LookbackDays, "existing variables win over .env")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
