package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/sefaz-price-client/pkg/batch"
	"github.com/Sternrassler/sefaz-price-client/pkg/gtin"
	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/Sternrassler/sefaz-price-client/pkg/spreadsheet"
	"github.com/rs/zerolog"
)

// errNoValidIdentifiers indicates the input had no usable GTIN.
var errNoValidIdentifiers = errors.New("no valid GTIN in input")

// Source supplies the raw identifier column.
type Source interface {
	ReadIdentifiers() ([]string, error)
}

// Sink receives the final records.
type Sink interface {
	WriteRecords(records []pricequery.PriceRecord) error
}

// Runner executes a batch. *batch.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, identifiers []string, regions []int, lookbackDays int) (*batch.RunResult, error)
}

// fileSource reads identifiers from an xlsx workbook.
type fileSource string

func (p fileSource) ReadIdentifiers() ([]string, error) {
	return spreadsheet.ReadIdentifiers(string(p))
}

// fileSink writes records to an xlsx workbook.
type fileSink string

func (p fileSink) WriteRecords(records []pricequery.PriceRecord) error {
	return spreadsheet.WriteRecords(string(p), records)
}

// runParams are the batch inputs taken from the configuration.
type runParams struct {
	Regions      []int
	LookbackDays int
}

// run reads the input, drives the batch and hands the records to sink.
// An empty result is not an error: nothing is written and a warning is logged.
// If the run stops early, the partial records are still written.
func run(ctx context.Context, p runParams, src Source, sink Sink, runner Runner, logger zerolog.Logger) error {
	raws, err := src.ReadIdentifiers()
	if err != nil {
		return fmt.Errorf("read identifiers: %w", err)
	}

	filtered := gtin.Filter(raws)
	logger.Info().
		Int("read", filtered.Total).
		Int("valid", len(filtered.Valid)).
		Int("rejected", filtered.Rejected).
		Int("duplicates", filtered.Duplicates).
		Msg("Identifiers loaded")

	if len(filtered.Valid) == 0 {
		return errNoValidIdentifiers
	}

	res, runErr := runner.Run(ctx, filtered.Valid, p.Regions, p.LookbackDays)
	if res == nil {
		return runErr
	}
	if errors.Is(runErr, batch.ErrConfig) || errors.Is(runErr, batch.ErrNoRegions) || errors.Is(runErr, batch.ErrNoIdentifiers) {
		return runErr
	}

	if len(res.Records) == 0 {
		logger.Warn().
			Int("pairs", res.Stats.CompletedPairs).
			Msg("No prices found - no output written")
		return runErr
	}

	if err := sink.WriteRecords(res.Records); err != nil {
		return errors.Join(runErr, fmt.Errorf("write records: %w", err))
	}

	logger.Info().
		Str("run_id", res.Stats.RunID).
		Int("records", len(res.Records)).
		Int("unique_gtins", res.Stats.UniqueGTINs).
		Int("unique_regions", res.Stats.UniqueRegions).
		Int("transient_failures", res.Stats.Transient).
		Int("permanent_failures", res.Stats.Permanent).
		Dur("duration", res.Stats.Duration).
		Msg("Results saved")

	return runErr
}
