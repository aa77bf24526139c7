package batch

import (
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
)

// Stats are the run-level counters. They are mutated only by the orchestrator.
type Stats struct {
	RunID string

	// TotalPairs is the size of the identifier × region product.
	TotalPairs int

	// CompletedPairs counts pairs queried, whatever the outcome.
	CompletedPairs int

	RecordsFound int

	// Outcome counters.
	Transient int
	Permanent int

	// Rejected counts identifiers skipped for failing validation.
	Rejected int

	// UniqueGTINs and UniqueRegions are computed over the found records.
	UniqueGTINs   int
	UniqueRegions int

	StartedAt time.Time
	Duration  time.Duration
}

// Progress returns the completed share of the run as a percentage.
func (s Stats) Progress() float64 {
	if s.TotalPairs == 0 {
		return 0
	}
	return float64(s.CompletedPairs) / float64(s.TotalPairs) * 100
}

// record updates the outcome counters for one query result.
func (s *Stats) record(res pricequery.Result) {
	s.CompletedPairs++

	switch res.Kind {
	case pricequery.KindFound:
		s.RecordsFound += len(res.Records)
	case pricequery.KindTransientFailure:
		s.Transient++
	case pricequery.KindPermanentFailure:
		s.Permanent++
	}
}

// summarize fills the distinct-value counters from the accumulated records.
func (s *Stats) summarize(records []pricequery.PriceRecord) {
	gtins := make(map[string]struct{})
	regions := make(map[int]struct{})
	for _, rec := range records {
		gtins[rec.GTIN] = struct{}{}
		regions[rec.RegionCode] = struct{}{}
	}
	s.UniqueGTINs = len(gtins)
	s.UniqueRegions = len(regions)
}

// RunResult is the outcome of a batch run.
type RunResult struct {
	Records []pricequery.PriceRecord
	Stats   Stats
}
