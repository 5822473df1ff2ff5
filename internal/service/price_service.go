package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PriceService is the desk's price oracle. It serves the last price written
// to the cache and, for a symbol that has never been priced, seeds one at
// 100 + U[0,10) so trading works before the feed has run.
type PriceService struct {
	cache  domain.PriceCache
	bus    domain.SignalBus
	seed   func() float64
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewPriceService creates a PriceService. Prices older than maxAge are still
// served but logged as stale; zero disables the check.
func NewPriceService(cache domain.PriceCache, bus domain.SignalBus, maxAge time.Duration, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		bus:    bus,
		seed:   func() float64 { return 100 + rand.Float64()*10 },
		maxAge: maxAge,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// GetPrice implements domain.PriceOracle.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (float64, error) {
	price, ts, err := s.cache.GetPrice(ctx, symbol)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		price = s.seed()
		if err := s.SetPrice(ctx, symbol, price); err != nil {
			return 0, fmt.Errorf("price_service: seed %s: %w: %w", symbol, domain.ErrOracleUnavailable, err)
		}
		return price, nil
	case err != nil:
		return 0, fmt.Errorf("price_service: get %s: %w: %w", symbol, domain.ErrOracleUnavailable, err)
	}

	if price <= 0 {
		return 0, fmt.Errorf("price_service: %s: %w: non-positive price %v", symbol, domain.ErrOracleUnavailable, price)
	}
	if s.maxAge > 0 && !ts.IsZero() && s.now().Sub(ts) > s.maxAge {
		s.logger.DebugContext(ctx, "price_service: serving stale price",
			slog.String("symbol", symbol),
			slog.Duration("age", s.now().Sub(ts)),
		)
	}
	return price, nil
}

// SetPrice stores price for symbol and publishes a price event.
func (s *PriceService) SetPrice(ctx context.Context, symbol string, price float64) error {
	now := s.now()
	if err := s.cache.SetPrice(ctx, symbol, price, now); err != nil {
		return fmt.Errorf("price_service: set %s: %w", symbol, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"symbol":    symbol,
		"price":     price,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, domain.ChannelPrices, evt); err != nil {
		s.logger.WarnContext(ctx, "price_service: publish price event failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetPrices returns the cached prices for symbols; missing ones are omitted.
func (s *PriceService) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices, err := s.cache.GetPrices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}

// Compile-time interface check.
var _ domain.PriceOracle = (*PriceService)(nil)
