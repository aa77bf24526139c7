// Package config builds the run configuration from the environment.
// It is the only package that reads environment variables; everything
// else receives explicit values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/client"
	"github.com/Sternrassler/sefaz-price-client/pkg/logging"
	"github.com/Sternrassler/sefaz-price-client/pkg/pacing"
	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/joho/godotenv"
)

// Configuration errors.
var (
	// ErrMissingToken indicates SEFAZ_TOKEN is not set.
	ErrMissingToken = errors.New("SEFAZ_TOKEN not configured")

	// ErrNoRegions indicates an empty region code list.
	ErrNoRegions = errors.New("no region codes configured")

	// ErrInvalidValue indicates an environment variable could not be parsed.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Defaults.
const (
	DefaultLookbackDays = 10
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 3
	DefaultInputFile    = "gtin_list.xlsx"
	DefaultOutputFile   = "precos_encontrados.xlsx"
	DefaultLogFile      = logging.DefaultFile
	DefaultUserAgent    = "sefaz-price-client/0.1.0"

	// DefaultRegionCode is Arapiraca/AL.
	DefaultRegionCode = 2700300
)

// Config is the complete run configuration.
type Config struct {
	Token         string
	APIURL        string
	LookbackDays  int
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor time.Duration
	RequestDelay  time.Duration
	RegionCodes   []int

	LogLevel  string
	LogPretty bool
	LogFile   string

	InputFile  string
	OutputFile string

	// RedisURL enables the response cache when set.
	RedisURL string
	CacheTTL time.Duration

	// MetricsFile, when set, receives a Prometheus textfile at exit.
	MetricsFile string

	UserAgent string
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment. It fails on values
// that do not parse; use Validate for the required settings.
func Load() (Config, error) {
	e := &env{}

	cfg := Config{
		Token:         e.str("SEFAZ_TOKEN", ""),
		APIURL:        e.str("API_URL", pricequery.DefaultURL),
		LookbackDays:  e.integer("DIAS_PESQUISA", DefaultLookbackDays),
		Timeout:       e.seconds("TIMEOUT", DefaultTimeout),
		MaxRetries:    e.integer("MAX_RETRIES", DefaultMaxRetries),
		BackoffFactor: e.duration("BACKOFF_FACTOR", time.Second),
		RequestDelay:  e.duration("REQUEST_DELAY", pacing.DefaultDelay),
		RegionCodes:   e.ints("CODIGOS_IBGE", []int{DefaultRegionCode}),
		LogLevel:      e.str("LOG_LEVEL", "info"),
		LogPretty:     e.boolean("LOG_PRETTY", false),
		LogFile:       e.raw("LOG_FILE", DefaultLogFile),
		InputFile:     e.str("INPUT_FILE", DefaultInputFile),
		OutputFile:    e.str("OUTPUT_FILE", DefaultOutputFile),
		RedisURL:      e.str("REDIS_URL", ""),
		CacheTTL:      e.duration("CACHE_TTL", time.Hour),
		MetricsFile:   e.str("METRICS_FILE", ""),
		UserAgent:     e.str("USER_AGENT", DefaultUserAgent),
	}

	return cfg, e.err
}

// Validate checks the settings a run cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if len(c.RegionCodes) == 0 {
		return ErrNoRegions
	}
	seen := make(map[int]struct{}, len(c.RegionCodes))
	for _, code := range c.RegionCodes {
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: CODIGOS_IBGE lists %d more than once", ErrInvalidValue, code)
		}
		seen[code] = struct{}{}
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("%w: DIAS_PESQUISA must be >= 1 (got %d)", ErrInvalidValue, c.LookbackDays)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: TIMEOUT must be positive (got %s)", ErrInvalidValue, c.Timeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: MAX_RETRIES must be >= 1 (got %d)", ErrInvalidValue, c.MaxRetries)
	}
	return nil
}

// ClientConfig returns the HTTP client configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.Timeout = c.Timeout
	cfg.Retry.MaxAttempts = c.MaxRetries
	cfg.Retry.BackoffFactor = c.BackoffFactor
	return cfg
}

// QueryConfig returns the price query service configuration.
func (c Config) QueryConfig() pricequery.Config {
	return pricequery.Config{
		URL:      c.APIURL,
		AppToken: c.Token,
		CacheTTL: c.CacheTTL,
	}
}

// PacingConfig returns the pacer configuration.
func (c Config) PacingConfig() pacing.Config {
	cfg := pacing.DefaultConfig()
	cfg.Delay = c.RequestDelay
	return cfg
}

// env reads typed variables and keeps the first parse error.
type env struct {
	err error
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, value, err)
	}
}

// raw returns def only when key is unset, so an empty value can disable a feature.
func (e *env) raw(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

// seconds accepts a plain number of seconds or a Go duration.
func (e *env) seconds(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

// ints parses a comma separated list. Blank entries and repeats are
// dropped; first-seen order is kept.
func (e *env) ints(key string, def []int) []int {
	v := e.str(key, "")
	if v == "" {
		return def
	}

	out := []int{}
	seen := make(map[int]struct{})
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			e.fail(key, v, err)
			return def
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
