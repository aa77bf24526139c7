// Package cache provides an optional Redis-backed cache for price API
// responses.
//
// A price query is fully determined by the endpoint, the GTIN, the IBGE
// municipality code and the lookback window, so a decoded 2xx response can
// be reused by a re-run within the cache TTL instead of hitting the API
// again. Only the raw response body is stored; the price records of a run
// are still written exclusively to the output spreadsheet.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint:     "/sfz-economiza-alagoas-api/api/public/produto/pesquisa",
//		GTIN:         "7891000100103",
//		RegionCode:   2700300,
//		LookbackDays: 10,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - query the API, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, time.Hour))
//	}
//
// # Metrics
//
//   - sefaz_cache_hits_total - Cache hits
//   - sefaz_cache_misses_total - Cache misses
//   - sefaz_cache_errors_total{operation} - Cache operation errors
//
// Cache failures never fail a query: callers log them and fall back to the API.
package cache
