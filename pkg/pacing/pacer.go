package pacing

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	pacingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sefaz_pacing_wait_seconds",
		Help:    "Time spent pausing between price queries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	pacingThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sefaz_pacing_throttles_total",
		Help: "Total number of cool-downs applied after rate-limited queries",
	})
)

// Config holds pacer configuration.
type Config struct {
	// Delay is the fixed pause after every query.
	Delay time.Duration

	// Cooldown replaces Delay once after a rate-limited query.
	Cooldown time.Duration
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		Delay:    DefaultDelay,
		Cooldown: DefaultCooldown,
	}
}

// Pacer enforces the pause between queries. It is not safe for concurrent use.
type Pacer struct {
	config Config
	state  State
	logger zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a new pacer.
func NewPacer(cfg Config, logger zerolog.Logger) *Pacer {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}

	return &Pacer{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Throttle marks the service as rate limited; the next Wait uses the cool-down.
func (p *Pacer) Throttle() {
	if !p.state.Throttled {
		p.state.Throttles++
		pacingThrottlesTotal.Inc()
	}
	p.state.Throttled = true

	p.logger.Warn().
		Dur("cooldown", p.config.Cooldown).
		Msg("Price API rate limit hit - next query delayed")
}

// Wait pauses before the next query. It returns the context error if the
// context is cancelled while waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.state.NextDelay(p.config.Delay, p.config.Cooldown)
	p.state.Throttled = false

	if d > 0 {
		p.logger.Debug().Dur("delay", d).Msg("Pacing before next query")
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
		pacingWaitSeconds.Observe(d.Seconds())
	}

	p.state.Waits++
	p.state.LastWait = time.Now()
	return nil
}

// State returns a copy of the current pacing state.
func (p *Pacer) State() State {
	return p.state
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
