package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected JSON output by default")
	}
	if cfg.File != nil {
		t.Error("Expected no log file by default")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		level LogLevel
		emit  func(zerolog.Logger)
	}{
		{LevelDebug, func(l zerolog.Logger) { l.Debug().Msg("pacing before next query") }},
		{LevelInfo, func(l zerolog.Logger) { l.Info().Msg("pacing before next query") }},
		{LevelWarn, func(l zerolog.Logger) { l.Warn().Msg("pacing before next query") }},
		{LevelError, func(l zerolog.Logger) { l.Error().Msg("pacing before next query") }},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			tt.emit(logger)

			if !strings.Contains(buf.String(), "pacing before next query") {
				t.Errorf("Expected message at level %s, got %q", tt.level, buf.String())
			}
		})
	}
}

func TestSetupNilOutput(t *testing.T) {
	// Must not panic; falls back to stderr.
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("filtered")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("batch")
	logger.Info().Int("completed", 3).Msg("progress")

	output := buf.String()
	for _, want := range []string{`"component":"batch"`, `"completed":3`, "progress"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got %q", want, output)
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("price-query")
	logger.Debug().Msg("querying price API")
	logger.Info().Msg("prices found")
	logger.Warn().Msg("retrying request")
	logger.Error().Msg("timeout querying price API")

	output := buf.String()
	for msg, want := range map[string]bool{
		"querying price API":         false,
		"prices found":               false,
		"retrying request":           true,
		"timeout querying price API": true,
	} {
		if got := strings.Contains(output, msg); got != want {
			t.Errorf("At warn level, %q present = %v, want %v", msg, got, want)
		}
	}
}

func TestSetupWithFile(t *testing.T) {
	console := &bytes.Buffer{}
	file := &bytes.Buffer{}

	logger := Setup(Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: console,
		File:   file,
	})
	logger.Info().Str("gtin", "7891000100103").Msg("prices found")

	if !strings.Contains(console.String(), "prices found") {
		t.Errorf("Expected console output to contain message, got %q", console.String())
	}
	if !strings.Contains(file.String(), `"gtin":"7891000100103"`) {
		t.Errorf("Expected JSON line in file output, got %q", file.String())
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile failed: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("Expected appended content, got %q", data)
	}
}

func TestOpenFileInvalidPath(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	if err == nil {
		t.Error("Expected error for unwritable path")
	}
}
