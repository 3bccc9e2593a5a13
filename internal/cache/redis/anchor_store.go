package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starstake/stakeboard/internal/domain"
)

// anchorTTL bounds how long an accrual anchor can sit untouched. Anchors
// are rewritten on every claim; a position idle this long has been closed
// or abandoned.
const anchorTTL = 90 * 24 * time.Hour

// AnchorStore implements domain.AnchorStore using Redis hashes.
//
// Key schema:
//
//	anchor:{wallet}:{positionKey} - hash with "claimed" (decimal string)
//	                                and "at" (Unix nanosecond timestamp)
type AnchorStore struct {
	rdb *redis.Client
}

// NewAnchorStore creates an AnchorStore backed by the given Client.
func NewAnchorStore(c *Client) *AnchorStore {
	return &AnchorStore{rdb: c.Underlying()}
}

func anchorKey(wallet, positionKey string) string {
	return "anchor:" + strings.ToLower(wallet) + ":" + positionKey
}

// Set records the claimed-to-date total and anchor time for a position.
func (as *AnchorStore) Set(ctx context.Context, wallet, positionKey string, claimed domain.TokenAmount, at time.Time) error {
	key := anchorKey(wallet, positionKey)

	pipe := as.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"claimed": claimed.String(),
		"at":      strconv.FormatInt(at.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, anchorTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set anchor %s/%s: %w", wallet, positionKey, err)
	}
	return nil
}

// Get returns the anchor for a position.
// It returns domain.ErrNotFound when no anchor exists.
func (as *AnchorStore) Get(ctx context.Context, wallet, positionKey string) (domain.TokenAmount, time.Time, error) {
	vals, err := as.rdb.HGetAll(ctx, anchorKey(wallet, positionKey)).Result()
	if err != nil {
		return domain.TokenAmount{}, time.Time{}, fmt.Errorf("redis: get anchor %s/%s: %w", wallet, positionKey, err)
	}
	if len(vals) == 0 {
		return domain.TokenAmount{}, time.Time{}, domain.ErrNotFound
	}

	claimed, err := domain.TokenAmountFromString(vals["claimed"])
	if err != nil {
		return domain.TokenAmount{}, time.Time{}, fmt.Errorf("redis: parse anchor claimed %s/%s: %w", wallet, positionKey, err)
	}
	tsNano, err := strconv.ParseInt(vals["at"], 10, 64)
	if err != nil {
		return domain.TokenAmount{}, time.Time{}, fmt.Errorf("redis: parse anchor ts %s/%s: %w", wallet, positionKey, err)
	}

	return claimed, time.Unix(0, tsNano), nil
}

// Delete removes the anchor for a position.
func (as *AnchorStore) Delete(ctx context.Context, wallet, positionKey string) error {
	if err := as.rdb.Del(ctx, anchorKey(wallet, positionKey)).Err(); err != nil {
		return fmt.Errorf("redis: delete anchor %s/%s: %w", wallet, positionKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AnchorStore = (*AnchorStore)(nil)
