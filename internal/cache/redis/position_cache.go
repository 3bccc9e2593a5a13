package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starstake/stakeboard/internal/domain"
)

// PositionCache implements domain.PositionCache with one JSON envelope per
// wallet. The envelope records when the list was fetched; freshness is
// judged by the caller, so the ttl passed to Set is physical retention and
// should sit well above the freshness window to keep stale reads possible
// in degraded mode.
//
// Key schema:
//
//	positions:{wallet} - JSON {positions, fetched_at}
type PositionCache struct {
	rdb *redis.Client
}

type positionEnvelope struct {
	Positions []domain.Position `json:"positions"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// NewPositionCache creates a PositionCache backed by the given Client.
func NewPositionCache(c *Client) *PositionCache {
	return &PositionCache{rdb: c.Underlying()}
}

func positionsKey(wallet string) string { return "positions:" + strings.ToLower(wallet) }

// Set stores the authoritative position list for wallet.
func (pc *PositionCache) Set(ctx context.Context, wallet string, positions []domain.Position, ttl time.Duration) error {
	env := positionEnvelope{Positions: positions, FetchedAt: time.Now().UTC()}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal positions %s: %w", wallet, err)
	}
	if err := pc.rdb.Set(ctx, positionsKey(wallet), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set positions %s: %w", wallet, err)
	}
	return nil
}

// Get returns the cached list and when it was fetched.
// It returns domain.ErrNotFound when nothing is cached for wallet.
func (pc *PositionCache) Get(ctx context.Context, wallet string) ([]domain.Position, time.Time, error) {
	data, err := pc.rdb.Get(ctx, positionsKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("redis: get positions %s: %w", wallet, err)
	}

	var env positionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal positions %s: %w", wallet, err)
	}
	return env.Positions, env.FetchedAt, nil
}

// Invalidate drops the cached list for wallet.
func (pc *PositionCache) Invalidate(ctx context.Context, wallet string) error {
	if err := pc.rdb.Del(ctx, positionsKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate positions %s: %w", wallet, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionCache = (*PositionCache)(nil)
