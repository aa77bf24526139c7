// Package pricequery turns one (GTIN, municipality) pair into the price
// records the SEFAZ/AL API knows about. Query never fails: every failure
// is logged and reported as a tagged Result with no records.
package pricequery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/cache"
	"github.com/Sternrassler/sefaz-price-client/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for price queries.
var (
	queryOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sefaz_query_outcomes_total",
		Help: "Total price queries by outcome kind",
	}, []string{"kind"})

	queryRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sefaz_query_records_total",
		Help: "Total price records returned by the API",
	})
)

// DefaultURL is the public product search endpoint.
const DefaultURL = "http://api.sefaz.al.gov.br/sfz-economiza-alagoas-api/api/public/produto/pesquisa"

// TokenHeader carries the API credential.
const TokenHeader = "AppToken"

// maxLoggedBody bounds the response text included in error logs.
const maxLoggedBody = 512

// Poster sends a JSON POST request. *client.Client implements it.
type Poster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, error)
}

// ResponseCache stores raw response bodies. *cache.Manager implements it.
type ResponseCache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
}

// Config holds the query service configuration.
type Config struct {
	// URL of the product search endpoint.
	URL string

	// AppToken is the API credential. Required.
	AppToken string

	// CacheTTL is the lifetime of cached responses.
	CacheTTL time.Duration
}

// Service queries prices for one pair at a time.
type Service struct {
	client   Poster
	cache    ResponseCache
	config   Config
	endpoint string
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the response cache.
func WithCache(rc ResponseCache) Option {
	return func(s *Service) {
		s.cache = rc
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a query service.
func New(c Poster, cfg Config, opts ...Option) *Service {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	endpoint := cfg.URL
	if u, err := url.Parse(cfg.URL); err == nil {
		endpoint = u.Path
	}

	s := &Service{
		client:   c,
		config:   cfg,
		endpoint: endpoint,
		logger:   log.With().Str("component", "price-query").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query looks up the prices for one GTIN in one municipality.
func (s *Service) Query(ctx context.Context, req Request) Result {
	res := s.query(ctx, req)

	queryOutcomesTotal.WithLabelValues(string(res.Kind)).Inc()
	queryRecordsTotal.Add(float64(len(res.Records)))

	return res
}

func (s *Service) query(ctx context.Context, req Request) Result {
	logger := s.logger.With().
		Str("gtin", req.GTIN).
		Int("region", req.RegionCode).
		Logger()

	if s.config.AppToken == "" {
		logger.Error().Msg("API token not configured (set SEFAZ_TOKEN)")
		return Result{Kind: KindConfigError, Err: ErrMissingToken}
	}

	key := cache.Key{
		Endpoint:     s.endpoint,
		GTIN:         req.GTIN,
		RegionCode:   req.RegionCode,
		LookbackDays: req.LookbackDays,
	}

	if records, ok := s.fromCache(ctx, key, req, logger); ok {
		return s.found(records, logger)
	}

	logger.Debug().Msg("Querying price API")

	headers := map[string]string{TokenHeader: s.config.AppToken}
	resp, err := s.client.PostJSON(ctx, s.config.URL, headers, newSearchRequest(req))
	if err != nil {
		return s.failed(err, logger)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		logger.Error().
			Int("status_code", resp.StatusCode).
			Str("body", string(body)).
			Msg("HTTP error from price API")
		return Result{
			Kind: KindPermanentFailure,
			Err:  fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read price API response")
		return Result{Kind: KindTransientFailure, Err: fmt.Errorf("read response body: %w", err)}
	}

	records, err := decodeRecords(body, req)
	if err != nil {
		logger.Error().Err(err).Msg("Unexpected price API payload")
		return Result{Kind: KindPermanentFailure, Err: err}
	}

	s.store(ctx, key, body, resp.StatusCode, logger)

	return s.found(records, logger)
}

// found logs and wraps a successful lookup.
func (s *Service) found(records []PriceRecord, logger zerolog.Logger) Result {
	if len(records) > 0 {
		logger.Info().Int("records", len(records)).Msg("Prices found")
	} else {
		logger.Debug().Msg("No prices found")
	}
	return Result{Kind: KindFound, Records: records}
}

// failed maps a client error to a failure outcome with a distinct diagnostic.
func (s *Service) failed(err error, logger zerolog.Logger) Result {
	switch {
	case client.IsTimeout(err):
		logger.Error().Err(err).Msg("Timeout querying price API")
		return Result{Kind: KindTransientFailure, Err: err}

	case client.Classify(err) == client.ErrorClassNetwork:
		logger.Error().Err(err).Msg("Connection error querying price API")
		return Result{Kind: KindTransientFailure, Err: err}

	case client.IsTransient(err):
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			logger.Error().
				Err(err).
				Int("status_code", apiErr.StatusCode).
				Str("body", apiErr.Body).
				Msg("HTTP error from price API")
		}
		return Result{Kind: KindTransientFailure, Err: err}

	case errors.Is(err, client.ErrContextCancelled), errors.Is(err, context.Canceled):
		logger.Warn().Err(err).Msg("Price query cancelled")
		return Result{Kind: KindTransientFailure, Err: err}

	default:
		logger.Error().Err(err).Msg("Unexpected error querying price API")
		return Result{Kind: KindPermanentFailure, Err: err}
	}
}

// fromCache returns cached records for key, if any.
func (s *Service) fromCache(ctx context.Context, key cache.Key, req Request, logger zerolog.Logger) ([]PriceRecord, bool) {
	if s.cache == nil {
		return nil, false
	}

	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		return nil, false
	}

	records, err := decodeRecords(entry.Data, req)
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding undecodable cache entry")
		return nil, false
	}

	logger.Debug().Str("key", key.String()).Msg("Cache hit")
	return records, true
}

// store caches a decoded response body. Failures are only logged.
func (s *Service) store(ctx context.Context, key cache.Key, body []byte, status int, logger zerolog.Logger) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, cache.NewEntry(body, status, s.config.CacheTTL)); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache response")
	}
}

// decodeRecords maps a whole response body or nothing.
func decodeRecords(body []byte, req Request) ([]PriceRecord, error) {
	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	records := make([]PriceRecord, 0, len(payload.Conteudo))
	for _, item := range payload.Conteudo {
		records = append(records, item.toRecord(req))
	}
	return records, nil
}
