package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func optimistic(txHash string, pkgID uint64, start time.Time) domain.Position {
	return domain.Position{
		TxHash:    txHash,
		User:      "0xUser",
		PackageID: pkgID,
		StartAt:   start,
	}
}

// newTestStore pins the clock to t0; advance moves it.
func newTestStore(t *testing.T) (*EntryStore, func(d time.Duration)) {
	t.Helper()
	s := NewEntryStore(120*time.Second, 2*time.Hour)
	now := t0
	s.now = func() time.Time { return now }
	return s, func(d time.Duration) { now = now.Add(d) }
}

func TestAddIsIdempotentByKey(t *testing.T) {
	s, _ := newTestStore(t)

	assert.True(t, s.Add(optimistic("0xabc", 3, t0)))
	assert.False(t, s.Add(optimistic("0xabc", 3, t0.Add(time.Minute))))
	assert.Equal(t, 1, s.Len())

	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, "tx:0xabc", snap[0].Key)
	assert.Equal(t, domain.PositionStatusPending, snap[0].Status)
	assert.True(t, snap[0].Optimistic)
}

func TestPromoteConfirmed(t *testing.T) {
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	assert.True(t, s.PromoteConfirmed("0xABC"), "hash matching is case-insensitive")
	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PositionStatusActive, snap[0].Status)

	// already active: a second confirmation changes nothing
	assert.False(t, s.PromoteConfirmed("0xabc"))
}

func TestPromoteConfirmedUnknownHashIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	assert.False(t, s.PromoteConfirmed("0xdef"))
	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PositionStatusPending, snap[0].Status)
}

func TestPromoteStaleAfterTimeout(t *testing.T) {
	s, advance := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	advance(120 * time.Second)
	assert.Zero(t, s.PromoteStale(), "exactly at the timeout is not yet stale")

	advance(time.Second)
	assert.Equal(t, 1, s.PromoteStale(), "active by T+121s for a 120s timeout")
	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PositionStatusActive, snap[0].Status)

	assert.Zero(t, s.PromoteStale(), "promotion happens once")
}

func TestStatusOnlyMovesForward(t *testing.T) {
	s, advance := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	require.True(t, s.PromoteConfirmed("0xabc"))
	advance(10 * time.Minute)
	s.PromoteStale()
	require.False(t, s.PromoteConfirmed("0xabc"))

	snap := s.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PositionStatusActive, snap[0].Status, "active never reverts to pending")
}

func TestRemoveDropsEntryInAnyStatus(t *testing.T) {
	s, advance := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))
	s.Add(optimistic("0xdef", 3, t0))
	require.True(t, s.PromoteConfirmed("0xdef"))

	assert.True(t, s.Remove("0xABC"), "hash matching is case-insensitive")
	assert.True(t, s.Remove("0xdef"), "active entries are removable too")
	assert.Zero(t, s.Len())
	assert.False(t, s.Remove("0xabc"), "second removal is a no-op")

	// a removed entry never self-promotes
	advance(10 * time.Minute)
	assert.Zero(t, s.PromoteStale())
}

func TestPruneExactKey(t *testing.T) {
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	auth := []domain.Position{{TxHash: "0xabc", PackageID: 3, StartAt: t0}}
	assert.Equal(t, 1, s.Prune(auth))
	assert.Zero(t, s.Len())

	// pruned entries never reappear
	assert.Zero(t, s.Prune(auth))
}

func TestPruneFuzzyMatch(t *testing.T) {
	s, _ := newTestStore(t)
	// optimistic guess started 30 minutes before the authoritative record
	s.Add(optimistic("0xabc", 3, t0))

	auth := []domain.Position{{PackageID: 3, StakeIndex: 7, StartAt: t0.Add(30 * time.Minute)}}
	assert.Equal(t, 1, s.Prune(auth), "same package within tolerance supersedes")
	assert.Zero(t, s.Len())
}

func TestPruneRespectsToleranceAndPackage(t *testing.T) {
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))
	s.Add(optimistic("0xdef", 4, t0))

	auth := []domain.Position{
		{PackageID: 3, StartAt: t0.Add(3 * time.Hour)}, // outside the 2h window
		{PackageID: 9, StartAt: t0},                    // different package
	}
	assert.Zero(t, s.Prune(auth))
	assert.Equal(t, 2, s.Len())
}

func TestPruneFromPendingIsValid(t *testing.T) {
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	// authoritative source catches up before any promotion fires
	assert.Equal(t, 1, s.Prune([]domain.Position{{TxHash: "0xabc", PackageID: 3, StartAt: t0}}))
	assert.Zero(t, s.Len())
}

func TestSnapshotFiltersByWallet(t *testing.T) {
	s, _ := newTestStore(t)
	a := optimistic("0xaaa", 1, t0)
	a.User = "0xAlice"
	b := optimistic("0xbbb", 1, t0)
	b.User = "0xBob"
	s.Add(a)
	s.Add(b)

	assert.Len(t, s.Snapshot(""), 2)
	got := s.Snapshot("0xalice")
	require.Len(t, got, 1)
	assert.Equal(t, "0xAlice", got[0].User)
}

func TestElapsedSince(t *testing.T) {
	s, advance := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	advance(42 * time.Second)
	d, ok := s.ElapsedSince("0xabc")
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, d)

	_, ok = s.ElapsedSince("0xmissing")
	assert.False(t, ok)
}
