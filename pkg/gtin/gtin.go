// Package gtin validates and normalizes GTIN product identifiers read from
// the input spreadsheet.
package gtin

import (
	"math"
	"strconv"
	"strings"
)

// ReservedPrefix marks a locally reserved code range that the price API does
// not answer for.
const ReservedPrefix = "17"

// validLengths are the GTIN-8, GTIN-12 (UPC), GTIN-13 (EAN) and GTIN-14 sizes.
var validLengths = map[int]bool{8: true, 12: true, 13: true, 14: true}

// IsValid reports whether raw is a structurally valid GTIN.
// The value is judged exactly as received; callers trim it first.
func IsValid(raw string) bool {
	if !validLengths[len(raw)] {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return false
		}
	}
	return !strings.HasPrefix(raw, ReservedPrefix)
}

// Normalize trims whitespace and undoes the float rendering spreadsheets
// apply to long numeric cells ("7891000100103.0", "7.891000100103E+12").
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || !strings.ContainsAny(s, ".eE") {
		return s
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > 1<<53 {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FilterResult is the outcome of filtering a raw identifier column.
type FilterResult struct {
	// Valid holds unique valid identifiers in first-seen order.
	Valid []string

	// Total is the number of raw values inspected.
	Total int

	// Rejected counts values that failed validation.
	Rejected int

	// Duplicates counts valid values dropped because they were already seen.
	Duplicates int
}

// Filter normalizes, validates and deduplicates raw identifiers.
// Order of first occurrence is preserved.
func Filter(raws []string) FilterResult {
	res := FilterResult{
		Valid: make([]string, 0, len(raws)),
		Total: len(raws),
	}
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		g := Normalize(raw)
		if !IsValid(g) {
			res.Rejected++
			continue
		}
		if _, dup := seen[g]; dup {
			res.Duplicates++
			continue
		}
		seen[g] = struct{}{}
		res.Valid = append(res.Valid, g)
	}

	return res
}
