package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

func auth(pkgID uint64, start time.Time) domain.Position {
	return domain.Position{PackageID: pkgID, StartAt: start, Status: domain.PositionStatusActive}
}

func TestMergeNeverDuplicatesKeys(t *testing.T) {
	a := []domain.Position{
		{TxHash: "0xabc", PackageID: 3, StartAt: t0},
		auth(5, t0.Add(time.Hour)),
		auth(5, t0.Add(time.Hour)), // duplicate within the authoritative list
	}
	o := []domain.Position{
		optimistic("0xabc", 3, t0.Add(time.Minute)), // same tx as authoritative
		optimistic("0xdef", 9, t0),
	}

	out := Merge(a, o)
	seen := map[string]bool{}
	for _, p := range out {
		assert.False(t, seen[p.Key], "duplicate key %s", p.Key)
		seen[p.Key] = true
	}
	assert.Len(t, out, 3)
}

func TestMergeAuthoritativeWinsOnSharedKey(t *testing.T) {
	a := []domain.Position{{TxHash: "0xabc", PackageID: 3, StartAt: t0, Status: domain.PositionStatusActive}}
	o := []domain.Position{optimistic("0xabc", 3, t0)}

	out := Merge(a, o)
	require.Len(t, out, 1)
	assert.False(t, out[0].Optimistic)
	assert.Equal(t, domain.PositionStatusActive, out[0].Status)
}

func TestMergeKeepsUnsupersededOptimistic(t *testing.T) {
	o := []domain.Position{optimistic("0xabc", 3, t0)}

	out := Merge(nil, o)
	require.Len(t, out, 1)
	assert.Equal(t, "tx:0xabc", out[0].Key)
}

func TestMergeSortsByStartDescending(t *testing.T) {
	a := []domain.Position{
		auth(1, t0.Add(1*time.Hour)),
		auth(2, t0.Add(3*time.Hour)),
		auth(3, t0.Add(2*time.Hour)),
	}
	o := []domain.Position{
		optimistic("0xnew", 4, t0.Add(4*time.Hour)),
	}

	out := Merge(a, o)
	require.Len(t, out, 4)
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].StartAt.After(out[i-1].StartAt), "output not descending at %d", i)
	}
	assert.Equal(t, "tx:0xnew", out[0].Key, "newest entry first")
}

func TestMergeDeterministicForAnyInputOrder(t *testing.T) {
	var a []domain.Position
	for i := 0; i < 8; i++ {
		a = append(a, auth(uint64(i), t0.Add(time.Duration(i%3)*time.Hour)))
	}
	o := []domain.Position{
		optimistic("0xaaa", 100, t0),
		optimistic("0xbbb", 101, t0), // same start, distinct keys
	}

	want := Merge(a, o)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		ap := append([]domain.Position(nil), a...)
		op := append([]domain.Position(nil), o...)
		rng.Shuffle(len(ap), func(x, y int) { ap[x], ap[y] = ap[y], ap[x] })
		rng.Shuffle(len(op), func(x, y int) { op[x], op[y] = op[y], op[x] })

		got := Merge(ap, op)
		require.Equal(t, len(want), len(got))
		for j := range want {
			assert.Equal(t, want[j].Key, got[j].Key, "permutation %d diverged at %d", i, j)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := []domain.Position{auth(1, t0.Add(time.Hour)), auth(2, t0)}
	o := []domain.Position{optimistic("0xabc", 3, t0.Add(2*time.Hour))}
	aCopy := append([]domain.Position(nil), a...)
	oCopy := append([]domain.Position(nil), o...)

	_ = Merge(a, o)

	assert.Equal(t, aCopy, a)
	assert.Equal(t, oCopy, o)
}

func TestMergeSupersessionAfterPrune(t *testing.T) {
	// the full reconciliation pass: prune against authoritative, then merge
	s, _ := newTestStore(t)
	s.Add(optimistic("0xabc", 3, t0))

	out := Merge(nil, s.Snapshot(""))
	require.Len(t, out, 1)
	assert.Equal(t, domain.PositionStatusPending, out[0].Status)

	// the indexer catches up with a drifted start time and no tx hash
	authoritative := []domain.Position{{PackageID: 3, StakeIndex: 2, StartAt: t0.Add(10 * time.Minute), Status: domain.PositionStatusActive}}
	s.Prune(authoritative)

	out = Merge(authoritative, s.Snapshot(""))
	require.Len(t, out, 1)
	assert.False(t, out[0].Optimistic, "authoritative row replaced the optimistic one")
}
