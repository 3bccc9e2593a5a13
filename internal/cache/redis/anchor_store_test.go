package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

func TestAnchorStoreRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	as := NewAnchorStore(c)
	ctx := context.Background()

	claimed := domain.TokenAmountFromInt64(123456)
	at := time.Unix(1_760_000_000, 500)

	require.NoError(t, as.Set(ctx, "0xAABB", "pkg:3:start:1760000000", claimed, at))

	got, gotAt, err := as.Get(ctx, "0xaabb", "pkg:3:start:1760000000")
	require.NoError(t, err)
	require.Zero(t, claimed.Cmp(got))
	require.True(t, gotAt.Equal(at))

	// The anchor carries a retention TTL so abandoned positions age out.
	require.Greater(t, mr.TTL("anchor:0xaabb:pkg:3:start:1760000000"), time.Duration(0))
}

func TestAnchorStoreMissing(t *testing.T) {
	c, _ := newTestClient(t)
	as := NewAnchorStore(c)

	_, _, err := as.Get(context.Background(), "0xaabb", "pkg:1:start:0")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnchorStoreOverwrite(t *testing.T) {
	c, _ := newTestClient(t)
	as := NewAnchorStore(c)
	ctx := context.Background()

	first := time.Unix(1_760_000_000, 0)
	second := first.Add(30 * 24 * time.Hour)

	require.NoError(t, as.Set(ctx, "0xaabb", "k", domain.TokenAmountFromInt64(10), first))
	require.NoError(t, as.Set(ctx, "0xaabb", "k", domain.TokenAmountFromInt64(25), second))

	got, gotAt, err := as.Get(ctx, "0xaabb", "k")
	require.NoError(t, err)
	require.Zero(t, domain.TokenAmountFromInt64(25).Cmp(got))
	require.True(t, gotAt.Equal(second))
}

func TestAnchorStoreDelete(t *testing.T) {
	c, _ := newTestClient(t)
	as := NewAnchorStore(c)
	ctx := context.Background()

	require.NoError(t, as.Set(ctx, "0xaabb", "k", domain.TokenAmountFromInt64(1), time.Now()))
	require.NoError(t, as.Delete(ctx, "0xaabb", "k"))

	_, _, err := as.Get(ctx, "0xaabb", "k")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
