package domain

import (
	"context"
	"time"
)

// Bus channels.
const (
	ChannelPositions = "positions"
	ChannelPrices    = "prices"
	ChannelBot       = "bot"
	ChannelAccounts  = "accounts"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// PriceOracle returns a best-effort current price for a symbol. The price may
// be stale or synthetic. Failures wrap ErrOracleUnavailable.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// PricingStrategy decides the exit price of a position being closed.
type PricingStrategy interface {
	ExitPrice(ctx context.Context, pos Position) (float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
