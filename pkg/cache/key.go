package cache

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces all cache keys in Redis.
const KeyPrefix = "sefaz"

// Key represents a unique identifier for a cached price query.
type Key struct {
	// Endpoint is the API path (e.g., "/sfz-economiza-alagoas-api/api/public/produto/pesquisa")
	Endpoint string

	// GTIN is the queried product code
	GTIN string

	// RegionCode is the IBGE municipality code
	RegionCode int

	// LookbackDays is the search window in days
	LookbackDays int
}

// String generates a deterministic cache key string.
// Format: sefaz:endpoint:gtin=G:ibge=R:dias=D
//
// Example:
//
//	sefaz:api/public/produto/pesquisa:gtin=7891000100103:ibge=2700300:dias=10
func (k Key) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	parts = append(parts,
		fmt.Sprintf("gtin=%s", k.GTIN),
		fmt.Sprintf("ibge=%d", k.RegionCode),
		fmt.Sprintf("dias=%d", k.LookbackDays),
	)

	return strings.Join(parts, ":")
}
