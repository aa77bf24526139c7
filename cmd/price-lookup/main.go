// Command price-lookup queries the SEFAZ/AL price API for every GTIN of the
// input spreadsheet in every configured municipality and writes the prices
// found to the output spreadsheet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/sefaz-price-client/pkg/batch"
	"github.com/Sternrassler/sefaz-price-client/pkg/cache"
	"github.com/Sternrassler/sefaz-price-client/pkg/client"
	"github.com/Sternrassler/sefaz-price-client/pkg/config"
	"github.com/Sternrassler/sefaz-price-client/pkg/logging"
	"github.com/Sternrassler/sefaz-price-client/pkg/metrics"
	"github.com/Sternrassler/sefaz-price-client/pkg/pacing"
	"github.com/Sternrassler/sefaz-price-client/pkg/pricequery"
	"github.com/Sternrassler/sefaz-price-client/pkg/spreadsheet"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "price-lookup: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "price-lookup: %v\n", err)
		return 1
	}

	logCfg := logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	}
	if cfg.LogFile != "" {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "price-lookup: %v\n", err)
			return 1
		}
		defer f.Close()
		logCfg.File = f
	}
	logging.Setup(logCfg)
	logger := logging.NewLogger("price-lookup")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	err = lookup(ctx, cfg, logger)

	if cfg.MetricsFile != "" {
		if mErr := metrics.WriteTextfile(cfg.MetricsFile); mErr != nil {
			logger.Warn().Err(mErr).Msg("Failed to write metrics file")
		}
	}

	if err != nil {
		logger.Error().Err(err).Msg("Price lookup failed")
		return 1
	}
	return 0
}

// lookup wires the components for one run.
func lookup(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	httpClient, err := client.New(cfg.ClientConfig(), client.WithLogger(logging.NewLogger("sefaz-client")))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer httpClient.Close()

	opts := []pricequery.Option{pricequery.WithLogger(logging.NewLogger("price-query"))}
	if cfg.RedisURL != "" {
		rdb, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		cm := cache.NewManager(rdb)
		if err := cm.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("redis_url", cfg.RedisURL).Msg("Redis unavailable - running without cache")
		} else {
			logger.Info().Str("redis_url", cfg.RedisURL).Msg("Response cache enabled")
			warnCachedPrices(logger, cfg.CacheTTL)
			opts = append(opts, pricequery.WithCache(cm))
		}
	}

	svc := pricequery.New(httpClient, cfg.QueryConfig(), opts...)
	orch := batch.New(svc,
		batch.WithPacer(pacing.NewPacer(cfg.PacingConfig(), logging.NewLogger("pacing"))),
		batch.WithLogger(logging.NewLogger("batch")),
	)

	err = run(ctx, runParams{
		Regions:      cfg.RegionCodes,
		LookbackDays: cfg.LookbackDays,
	}, fileSource(cfg.InputFile), fileSink(cfg.OutputFile), orch, logger)

	if errors.Is(err, spreadsheet.ErrFileNotFound) || errors.Is(err, spreadsheet.ErrColumnNotFound) {
		logger.Error().Str("input_file", cfg.InputFile).Msg("Input spreadsheet unusable")
	}
	return err
}

// warnCachedPrices notes that responses kept in Redis outlive the run.
func warnCachedPrices(logger zerolog.Logger, ttl time.Duration) {
	logger.Warn().
		Dur("cache_ttl", ttl).
		Msg("Responses are kept in Redis between runs - prices may be up to cache_ttl old")
}

// newRedisClient accepts either a redis:// URL or a plain host:port address.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
