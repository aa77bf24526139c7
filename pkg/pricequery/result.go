package pricequery

import (
	"errors"

	"github.com/Sternrassler/sefaz-price-client/pkg/client"
)

// Errors reported in Result.Err.
var (
	// ErrMissingToken indicates no AppToken credential is configured.
	ErrMissingToken = errors.New("app token not configured")

	// ErrUnexpectedStatus indicates a non-2xx status outside the retry set.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrDecode indicates the response body could not be decoded.
	ErrDecode = errors.New("decode response")
)

// Kind tags the outcome of a query.
type Kind string

const (
	// KindFound means the API answered; Records may be empty.
	KindFound Kind = "found"

	// KindTransientFailure covers timeouts, exhausted retries and connection failures.
	KindTransientFailure Kind = "transient_failure"

	// KindPermanentFailure covers non-retryable statuses and malformed payloads.
	KindPermanentFailure Kind = "permanent_failure"

	// KindConfigError means the query could not be attempted at all.
	KindConfigError Kind = "config_error"
)

// Result is the tagged outcome of one query.
type Result struct {
	Kind    Kind
	Records []PriceRecord
	Err     error
}

// RecordsOrEmpty flattens the outcome to the records found; failures yield nil.
func (r Result) RecordsOrEmpty() []PriceRecord {
	if r.Kind != KindFound {
		return nil
	}
	return r.Records
}

// RateLimited reports whether the query failed because the API answered 429.
func (r Result) RateLimited() bool {
	return client.IsRateLimited(r.Err)
}
