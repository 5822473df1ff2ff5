// Package feed produces the desk's synthetic market prices.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PriceSink stores a price and announces it. *service.PriceService
// satisfies it.
type PriceSink interface {
	SetPrice(ctx context.Context, symbol string, price float64) error
}

// Config tunes the random walk.
type Config struct {
	Interval time.Duration
	// MaxDriftPct bounds the per-step move in percent of the current price.
	MaxDriftPct float64
	// Floor is the lowest price the walk may reach.
	Floor float64
}

// DefaultConfig returns a 2s step with at most 0.5% drift.
func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, MaxDriftPct: 0.5, Floor: 0.01}
}

// Synthetic random-walks every catalog instrument and writes each step to the
// sink.
type Synthetic struct {
	catalog *catalog.Catalog
	cache   domain.PriceCache
	sink    PriceSink
	cfg     Config
	float   func() float64
	prices  map[string]float64
	logger  *slog.Logger
}

// NewSynthetic creates a Synthetic feed. cache is read once at seed time so a
// restart continues from the last published prices.
func NewSynthetic(cat *catalog.Catalog, cache domain.PriceCache, sink PriceSink, cfg Config, logger *slog.Logger) *Synthetic {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultConfig().Floor
	}
	return &Synthetic{
		catalog: cat,
		cache:   cache,
		sink:    sink,
		cfg:     cfg,
		float:   rand.Float64,
		prices:  make(map[string]float64, cat.Len()),
		logger:  logger.With(slog.String("component", "synthetic_feed")),
	}
}

// Seed initialises every instrument from the cache, or at 100 + U[0,10) when
// the cache has no price for it.
func (f *Synthetic) Seed(ctx context.Context) error {
	var errs []error
	for _, sym := range f.catalog.Symbols() {
		price, _, err := f.cache.GetPrice(ctx, sym)
		if err == nil && price > 0 {
			f.prices[sym] = price
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			f.logger.WarnContext(ctx, "synthetic_feed: cache read failed, reseeding",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
		price = 100 + f.float()*10
		f.prices[sym] = price
		if err := f.sink.SetPrice(ctx, sym, price); err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", sym, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("synthetic_feed: %w", errors.Join(errs...))
	}
	return nil
}

// Step moves every price once and returns how many were written.
func (f *Synthetic) Step(ctx context.Context) int {
	written := 0
	for _, sym := range f.catalog.Symbols() {
		cur, ok := f.prices[sym]
		if !ok {
			continue
		}
		drift := (f.float()*2 - 1) * f.cfg.MaxDriftPct / 100
		next := math.Max(f.cfg.Floor, round(cur*(1+drift), 4))
		if err := f.sink.SetPrice(ctx, sym, next); err != nil {
			f.logger.WarnContext(ctx, "synthetic_feed: write failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.prices[sym] = next
		written++
	}
	return written
}

// Price returns the walk's current price for symbol.
func (f *Synthetic) Price(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

// Run seeds and then steps every Interval until ctx is cancelled.
func (f *Synthetic) Run(ctx context.Context) error {
	if err := f.Seed(ctx); err != nil {
		f.logger.WarnContext(ctx, "synthetic_feed: partial seed", slog.String("error", err.Error()))
	}
	f.logger.Info("synthetic feed started",
		slog.Int("instruments", len(f.prices)),
		slog.Duration("interval", f.cfg.Interval),
	)
	defer f.logger.Info("synthetic feed stopped")

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Step(ctx)
		}
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
