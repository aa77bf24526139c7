// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// DefaultFile is the default append-only log file.
const DefaultFile = "consulta_precos.log"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output on Output (default: false for JSON).
	Pretty bool

	// Output is the console writer (default: os.Stderr).
	Output io.Writer

	// File, if set, receives every event as a JSON line in addition to Output.
	File io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}
	if cfg.File != nil {
		output = zerolog.MultiLevelWriter(output, cfg.File)
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// OpenFile opens path for appending, creating it if needed. The caller closes it.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key)
//   - Outgoing queries and pacing delays
//   - Pairs that found nothing
//
// Info: Normal operation events
//   - Prices found for a pair
//   - Run progress and final statistics
//   - Output file written
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Rate limit cool-downs
//   - Cache errors (fallback to direct request)
//   - Skipped identifiers, empty result sets
//
// Error: Error conditions requiring attention
//   - Failed queries (timeout, connection, HTTP error, bad payload)
//   - Configuration errors
//
// Context Fields:
//   - run_id: Batch run identifier
//   - gtin: Product identifier
//   - region: Municipality IBGE code
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, timeout, network)
//   - attempt: Retry attempt number
//   - progress_pct: Completed share of the run
