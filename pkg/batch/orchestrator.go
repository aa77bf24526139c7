// Package batch drives the identifier × region product through the price
// query service, one pair at a time, accumulating records and run statistics.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/gtin"
	"github.com/Sternrassler/sefaz-price-client/pkg/pacing"
	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch runs.
var (
	pairsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sefaz_batch_pairs_completed_total",
		Help: "Total (GTIN, region) pairs queried",
	})

	runProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sefaz_batch_progress_ratio",
		Help: "Completed share of the current run (0-1)",
	})
)

// Errors returned by Run.
var (
	// ErrNoIdentifiers indicates an empty identifier list.
	ErrNoIdentifiers = errors.New("no identifiers to query")

	// ErrNoRegions indicates an empty region list.
	ErrNoRegions = errors.New("no region codes configured")

	// ErrConfig indicates the query service reported a configuration error.
	ErrConfig = errors.New("configuration error")
)

// Querier looks up the prices of one pair. *pricequery.Service implements it.
type Querier interface {
	Query(ctx context.Context, req pricequery.Request) pricequery.Result
}

// Pacer spaces consecutive queries. *pacing.Pacer implements it.
type Pacer interface {
	Wait(ctx context.Context) error
	Throttle()
}

// Progress is reported after every completed pair.
type Progress struct {
	Completed  int
	Total      int
	GTIN       string
	RegionCode int
	Kind       pricequery.Kind
}

// Percent returns the completed share as a percentage.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// Orchestrator runs batches sequentially. It is not safe for concurrent use.
type Orchestrator struct {
	querier    Querier
	pacer      Pacer
	logger     zerolog.Logger
	onProgress func(Progress)
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPacer overrides the default pacer.
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) {
		o.pacer = p
	}
}

// WithLogger overrides the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// OnProgress registers a callback invoked after every pair.
func OnProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// New creates an orchestrator. Without WithPacer the default 500ms delay is used.
func New(q Querier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		querier: q,
		logger:  log.With().Str("component", "batch").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pacer == nil {
		o.pacer = pacing.NewPacer(pacing.DefaultConfig(), o.logger)
	}
	return o
}

// Run queries every (identifier, region) pair: regions in the given order,
// identifiers in the given order within each region. Per-pair failures never
// abort the run. A cancelled context stops the run between pairs and the
// partial result is returned with the context error.
func (o *Orchestrator) Run(ctx context.Context, identifiers []string, regions []int, lookbackDays int) (*RunResult, error) {
	result := &RunResult{
		Records: []pricequery.PriceRecord{},
		Stats: Stats{
			RunID:     uuid.NewString(),
			StartedAt: o.now(),
		},
	}
	logger := o.logger.With().Str("run_id", result.Stats.RunID).Logger()

	if len(identifiers) == 0 {
		logger.Error().Msg("No identifiers to query")
		return result, ErrNoIdentifiers
	}
	if len(regions) == 0 {
		logger.Error().Msg("No region codes configured")
		return result, ErrNoRegions
	}

	valid := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if !gtin.IsValid(id) {
			logger.Warn().Str("gtin", id).Msg("Skipping invalid identifier")
			result.Stats.Rejected++
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		logger.Error().Int("rejected", result.Stats.Rejected).Msg("No valid identifiers to query")
		return result, ErrNoIdentifiers
	}

	regions = uniqueRegions(regions, logger)

	stats := &result.Stats
	stats.TotalPairs = len(valid) * len(regions)
	runProgress.Set(0)

	logger.Info().
		Int("identifiers", len(valid)).
		Int("regions", len(regions)).
		Int("total_pairs", stats.TotalPairs).
		Msg("Starting price lookup")

	err := o.iterate(ctx, valid, regions, lookbackDays, result, logger)

	stats.summarize(result.Records)
	stats.Duration = o.now().Sub(stats.StartedAt)

	if err != nil {
		logger.Warn().
			Err(err).
			Int("completed", stats.CompletedPairs).
			Int("total", stats.TotalPairs).
			Msg("Price lookup stopped early")
		return result, err
	}

	logger.Info().
		Int("pairs", stats.CompletedPairs).
		Int("records", stats.RecordsFound).
		Int("transient", stats.Transient).
		Int("permanent", stats.Permanent).
		Dur("duration", stats.Duration).
		Msg("Price lookup complete")

	return result, nil
}

func (o *Orchestrator) iterate(ctx context.Context, ids []string, regions []int, lookbackDays int, result *RunResult, logger zerolog.Logger) error {
	stats := &result.Stats

	for _, region := range regions {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}

			res := o.querier.Query(ctx, pricequery.Request{
				GTIN:         id,
				RegionCode:   region,
				LookbackDays: lookbackDays,
			})

			if res.Kind == pricequery.KindConfigError {
				return fmt.Errorf("%w: %w", ErrConfig, res.Err)
			}

			result.Records = append(result.Records, res.RecordsOrEmpty()...)
			stats.record(res)
			pairsCompletedTotal.Inc()
			o.report(Progress{
				Completed:  stats.CompletedPairs,
				Total:      stats.TotalPairs,
				GTIN:       id,
				RegionCode: region,
				Kind:       res.Kind,
			}, logger)

			if res.RateLimited() {
				o.pacer.Throttle()
			}

			if stats.CompletedPairs == stats.TotalPairs {
				break
			}
			if err := o.pacer.Wait(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// uniqueRegions drops repeated region codes, keeping first-seen order, so
// no pair is queried twice.
func uniqueRegions(regions []int, logger zerolog.Logger) []int {
	out := make([]int, 0, len(regions))
	seen := make(map[int]struct{}, len(regions))
	for _, r := range regions {
		if _, dup := seen[r]; dup {
			logger.Warn().Int("region", r).Msg("Skipping repeated region code")
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// report logs progress and notifies the callback.
func (o *Orchestrator) report(p Progress, logger zerolog.Logger) {
	pct := p.Percent()
	runProgress.Set(pct / 100)

	logger.Info().
		Str("gtin", p.GTIN).
		Int("region", p.RegionCode).
		Str("outcome", string(p.Kind)).
		Int("completed", p.Completed).
		Int("total", p.Total).
		Float64("progress_pct", pct).
		Msgf("Progress: %d/%d (%.1f%%)", p.Completed, p.Total, pct)

	if o.onProgress != nil {
		o.onProgress(p)
	}
}
