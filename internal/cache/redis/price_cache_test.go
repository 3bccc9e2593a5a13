package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

func TestPriceCacheSetGet(t *testing.T) {
	c, _ := newTestClient(t)
	pc := NewPriceCache(c)
	ctx := context.Background()

	ts := time.Unix(1_760_000_000, 123456789)
	require.NoError(t, pc.SetPrice(ctx, "0xToKeN", 1.25, ts))

	// Token addresses are case-folded in the key.
	usd, gotTS, err := pc.GetPrice(ctx, "0xtoken")
	require.NoError(t, err)
	require.Equal(t, 1.25, usd)
	require.True(t, gotTS.Equal(ts))
}

func TestPriceCacheMissingToken(t *testing.T) {
	c, _ := newTestClient(t)
	pc := NewPriceCache(c)

	_, _, err := pc.GetPrice(context.Background(), "0xmissing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceCacheGetPricesSkipsMissing(t *testing.T) {
	c, _ := newTestClient(t)
	pc := NewPriceCache(c)
	ctx := context.Background()

	require.NoError(t, pc.SetPrice(ctx, "0xaaa", 2.5, time.Now()))
	require.NoError(t, pc.SetPrice(ctx, "0xbbb", 0.01, time.Now()))

	prices, err := pc.GetPrices(ctx, []string{"0xaaa", "0xbbb", "0xccc"})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.Equal(t, 2.5, prices["0xaaa"])
	require.Equal(t, 0.01, prices["0xbbb"])
	require.NotContains(t, prices, "0xccc")
}

func TestPriceCacheGetPricesEmptyInput(t *testing.T) {
	c, _ := newTestClient(t)
	pc := NewPriceCache(c)

	prices, err := pc.GetPrices(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, prices)
}
