package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

func TestGuardBeginEndLifecycle(t *testing.T) {
	g := NewGuard(time.Minute)

	require.True(t, g.Begin("a"))
	assert.False(t, g.Begin("a"), "a held key cannot be claimed again")
	assert.True(t, g.Begin("b"), "different keys never block each other")
	assert.Equal(t, 2, g.Len())

	g.End("a")
	assert.True(t, g.Begin("a"), "released keys are claimable immediately")

	// releasing an unknown key changes nothing
	g.End("never-held")
	assert.Equal(t, 2, g.Len())
}

func TestGuardExpiredHoldIsReclaimed(t *testing.T) {
	g := NewGuard(time.Minute)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	require.True(t, g.Begin("a"))
	now = now.Add(59 * time.Second)
	assert.False(t, g.Begin("a"), "still inside the TTL")

	now = now.Add(2 * time.Second)
	assert.True(t, g.Begin("a"), "an expired hold belongs to the next caller")
	assert.Equal(t, 1, g.Len())
}

func TestGuardCleanupReapsOnlyOrphans(t *testing.T) {
	g := NewGuard(time.Minute)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	g.Begin("old")
	now = now.Add(2 * time.Minute)
	g.Begin("fresh")

	assert.Equal(t, 1, g.Cleanup())
	assert.Equal(t, 1, g.Len())
	assert.False(t, g.Begin("fresh"), "live holds survive the sweep")
	assert.Zero(t, g.Cleanup())
}

func TestActionKeyIdentity(t *testing.T) {
	a := ActionKey(domain.ActionKindStake, "0xAbCd", "3", "1000", "0xRef")
	b := ActionKey(domain.ActionKindStake, "0xabcd", "3", "1000", "0xref")
	assert.Equal(t, a, b, "case differences do not fork the key")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, ActionKey(domain.ActionKindStake, "0xabcd", "3", "2000", "0xref"),
		"any differing parameter separates the actions")
	assert.NotEqual(t, a, ActionKey(domain.ActionKindClaim, "0xabcd", "3", "1000", "0xref"),
		"the kind is part of the identity")
}
