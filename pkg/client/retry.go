package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	sefazRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sefaz_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	sefazRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sefaz_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	sefazRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sefaz_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy holds the configuration for retry logic.
// It is a plain value and applies to any transport call.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BackoffFactor seeds the exponential backoff: factor * 2^(attempt-1).
	BackoffFactor time.Duration

	// MaxBackoff caps a single backoff, including server-requested delays.
	MaxBackoff time.Duration

	// Jitter is the relative randomization applied to each backoff (0.2 = ±20%).
	Jitter float64

	// RetryableStatuses are the HTTP statuses that trigger a retry.
	RetryableStatuses map[int]bool

	// RetryableMethods are the HTTP methods that may be retried.
	RetryableMethods map[string]bool
}

// DefaultRetryPolicy returns the default retry policy for the price API.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: 1 * time.Second,
		MaxBackoff:    30 * time.Second,
		Jitter:        0.2,
		RetryableStatuses: map[int]bool{
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
			http.StatusTooManyRequests:     true,
		},
		RetryableMethods: map[string]bool{
			http.MethodPost: true,
		},
	}
}

// Backoff returns the delay before the attempt following the given one.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := time.Duration(float64(p.BackoffFactor) * math.Pow(2, float64(attempt-1)))
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	if p.Jitter > 0 {
		backoff = time.Duration(float64(backoff) * (1 - p.Jitter + rand.Float64()*2*p.Jitter))
	}
	return backoff
}

// IsRetryableStatus reports whether status is in the retryable set.
func (p RetryPolicy) IsRetryableStatus(status int) bool {
	return p.RetryableStatuses[status]
}

// ShouldRetry decides whether a failed attempt with the given method may be retried.
func (p RetryPolicy) ShouldRetry(method string, err error) bool {
	if err == nil || !p.RetryableMethods[method] {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return p.IsRetryableStatus(apiErr.StatusCode)
	}

	switch Classify(err) {
	case ErrorClassTimeout, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// attempts returns MaxAttempts, never less than one.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// It respects context cancellation and honors Retry-After from the server.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, policy RetryPolicy, method string, fn func() error) error {
	maxAttempts := policy.attempts()

	var lastErr error
	var errorClass ErrorClass

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = Classify(err)

		if !policy.ShouldRetry(method, err) {
			return lastErr
		}

		// Last attempt, don't wait
		if attempt >= maxAttempts {
			break
		}

		sefazRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		wait := policy.Backoff(attempt)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
			if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
				wait = policy.MaxBackoff
			}
		}
		sefazRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	sefazRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
