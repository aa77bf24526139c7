// Package client provides the resilient HTTP client used to talk to the
// SEFAZ/AL price API: per-attempt timeout, bounded retry with exponential
// backoff, error classification and request metrics.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	sefazRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sefaz_requests_total",
		Help: "Total SEFAZ API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sefazRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sefaz_request_duration_seconds",
		Help:    "SEFAZ API request duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	sefazErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sefaz_errors_total",
		Help: "Total SEFAZ API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTimeout represents attempts that exceeded the request timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// maxErrorBody bounds how much of an error response body is kept for logs.
const maxErrorBody = 512

// Client is the resilient HTTP client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt, response body included.
	Timeout time.Duration

	// Retry is the retry policy applied around every request.
	Retry RetryPolicy

	// Transport overrides the HTTP transport (nil uses http.DefaultTransport).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryPolicy(),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger overrides the client logger. Retry diagnostics use it too.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		config: cfg,
		logger: log.With().Str("component", "sefaz-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do performs an HTTP request with retry and error classification.
//
// A 2xx response, or a status outside the retryable set, is returned with a
// nil error and the caller inspects the status. Retryable statuses and
// transport failures are retried; once attempts run out the returned error
// wraps ErrRetryExhausted and the last cause.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		sefazRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response
	attempt := 0

	err := retryWithBackoff(ctx, c.logger, c.config.Retry, req.Method, func() error {
		attempt++

		attemptReq, err := rewindRequest(req, attempt)
		if err != nil {
			return err
		}

		r, reqErr := c.httpClient.Do(attemptReq)
		if reqErr != nil {
			errClass := classifyTransportError(reqErr)
			sefazErrorsTotal.WithLabelValues(string(errClass)).Inc()
			sefazRequestsTotal.WithLabelValues(endpoint, string(errClass)).Inc()

			c.logger.Warn().
				Err(reqErr).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Str("error_class", string(errClass)).
				Msg("HTTP request failed")

			if errClass == ErrorClassTimeout {
				return fmt.Errorf("%w: %w", ErrTimeout, reqErr)
			}
			return reqErr
		}

		sefazRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			errClass := classifyStatus(r.StatusCode)
			sefazErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", r.StatusCode).
				Int("attempt", attempt).
				Str("error_class", string(errClass)).
				Msg("SEFAZ request error")

			if c.config.Retry.IsRetryableStatus(r.StatusCode) {
				apiErr := newAPIError(r, errClass)
				r.Body.Close()
				return apiErr
			}
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// PostJSON marshals body as JSON and POSTs it to url with the extra headers.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.Do(req)
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// rewindRequest returns the request to send for the given attempt, with a
// fresh body when the request carries one.
func rewindRequest(req *http.Request, attempt int) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}

	if req.GetBody == nil {
		if attempt == 1 {
			return req, nil
		}
		return nil, ErrBodyNotReplayable
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}

	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// classifyTransportError categorizes an error returned by the transport.
func classifyTransportError(err error) ErrorClass {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// newAPIError builds an APIError from an error response without closing it.
func newAPIError(resp *http.Response, class ErrorClass) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    resp.Status,
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
