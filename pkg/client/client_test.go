package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newTestClient builds a client with a fast retry policy.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.Timeout = 2 * time.Second
	cfg.Retry = fastPolicy()

	c, err := New(cfg, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("TestApp/1.0.0"),
		},
		{
			name: "empty user agent",
			config: Config{
				Timeout: time.Second,
				Retry:   DefaultRetryPolicy(),
			},
			errorMsg: "user-agent is required",
		},
		{
			name: "zero timeout",
			config: Config{
				UserAgent: "TestApp/1.0.0",
				Retry:     DefaultRetryPolicy(),
			},
			errorMsg: "timeout must be positive (got 0s)",
		},
		{
			name: "zero attempts",
			config: Config{
				UserAgent: "TestApp/1.0.0",
				Timeout:   time.Second,
				Retry:     RetryPolicy{},
			},
			errorMsg: "max_attempts must be >= 1 (got 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.errorMsg != "" {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Expected client, got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("TestApp/1.0.0")

	if cfg.UserAgent != "TestApp/1.0.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
}

func TestPostJSON_Success(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.PostJSON(context.Background(), server.URL+"/pesquisa",
		map[string]string{"AppToken": "secret"}, map[string]any{"dias": 10})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if gotHeader.Get("AppToken") != "secret" {
		t.Errorf("AppToken header = %q, want secret", gotHeader.Get("AppToken"))
	}
	if gotHeader.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeader.Get("Content-Type"))
	}
	if gotHeader.Get("User-Agent") != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q", gotHeader.Get("User-Agent"))
	}
	if gotBody["dias"] != float64(10) {
		t.Errorf("body dias = %v, want 10", gotBody["dias"])
	}
}

func TestPostJSON_RetriesAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	bodies := make(chan string, 3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.PostJSON(context.Background(), server.URL, nil, map[string]int{"dias": 10})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	close(bodies)
	for b := range bodies {
		if b != `{"dias":10}` {
			t.Errorf("replayed body = %q, want {\"dias\":10}", b)
		}
	}
}

func TestWithLogger_RetryDiagnostics(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var buf strings.Builder
	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.Retry = fastPolicy()

	c, err := New(cfg, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	resp, err := c.PostJSON(context.Background(), server.URL, nil, map[string]int{"dias": 10})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	for _, want := range []string{"Executing request", "SEFAZ request error", "Retrying request after backoff", "Request succeeded after retry"} {
		if !strings.Contains(out, want) {
			t.Errorf("injected logger missing %q, got %q", want, out)
		}
	}
}

func TestPostJSON_RetryExhausted(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.PostJSON(context.Background(), server.URL, nil, map[string]int{})

	if resp != nil {
		t.Error("Expected nil response after exhaustion")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected wrapped APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Body != "bad gateway" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestPostJSON_NonRetryableStatusReturned(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.PostJSON(context.Background(), server.URL, nil, map[string]int{})
	if err != nil {
		t.Fatalf("Expected response for non-retryable status, got error %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestPostJSON_Timeout(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.Timeout = 50 * time.Millisecond
	cfg.Retry = fastPolicy()
	cfg.Retry.MaxAttempts = 2

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	_, err = c.PostJSON(context.Background(), server.URL, nil, map[string]int{})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("Expected timeout error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestPostJSON_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := newTestClient(t)
	_, err := c.PostJSON(context.Background(), addr, nil, map[string]int{})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if Classify(err) != ErrorClassNetwork {
		t.Errorf("Classify() = %q, want network", Classify(err))
	}
}

func TestDo_GetNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := c.Do(req)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("GET should fail without retries")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRewindRequest_NotReplayable(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", io.NopCloser(strings.NewReader("x")))
	req.GetBody = nil

	if _, err := rewindRequest(req, 1); err != nil {
		t.Errorf("first attempt should use the original body, got %v", err)
	}
	if _, err := rewindRequest(req, 2); !errors.Is(err, ErrBodyNotReplayable) {
		t.Errorf("Expected ErrBodyNotReplayable, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "3", want: 3 * time.Second},
		{name: "negative", value: "-1", want: 0},
		{name: "garbage", value: "soon", want: 0},
		{name: "past date", value: "Mon, 02 Jan 2006 15:04:05 GMT", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
