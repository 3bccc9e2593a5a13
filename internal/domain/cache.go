package domain

import (
	"context"
	"time"
)

// PositionCache holds the last authoritative position list per wallet.
// Stale entries are still readable so the dashboard degrades instead of
// blanking when sources are down.
type PositionCache interface {
	Set(ctx context.Context, wallet string, positions []Position, ttl time.Duration) error
	Get(ctx context.Context, wallet string) ([]Position, time.Time, error)
	Invalidate(ctx context.Context, wallet string) error
}

// PackageCache holds the package catalog.
type PackageCache interface {
	SetAll(ctx context.Context, packages []Package, ttl time.Duration) error
	GetAll(ctx context.Context) ([]Package, error)
	Get(ctx context.Context, id uint64) (Package, error)
}

// PriceCache provides fast access to the latest token USD prices.
type PriceCache interface {
	SetPrice(ctx context.Context, token string, usd float64, ts time.Time) error
	GetPrice(ctx context.Context, token string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokens []string) (map[string]float64, error)
}

// AnchorStore persists reward accrual anchors: the claimed-to-date total
// and timestamp live earnings are projected from. Claiming resets the
// anchor for that position.
type AnchorStore interface {
	Set(ctx context.Context, wallet, positionKey string, claimed TokenAmount, at time.Time) error
	Get(ctx context.Context, wallet, positionKey string) (TokenAmount, time.Time, error)
	Delete(ctx context.Context, wallet, positionKey string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams across instances.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
