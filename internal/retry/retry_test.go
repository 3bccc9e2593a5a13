package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fast returns a policy with zero delays so tests never sleep.
func fast(attempts int) Policy {
	p := DefaultPolicy()
	p.Attempts = attempts
	p.BaseDelay = 0
	p.Jitter = 0
	return p
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), fast(3), func() error {
		calls++
		return sentinel
	})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoValueReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fast(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := fast(3)
	p.BaseDelay = time.Minute // would hang without cancellation

	calls := 0
	err := Do(ctx, p, func() error {
		calls++
		return errors.New("transient")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayGrowsAndClamps(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 300*time.Millisecond, p.delay(3), "clamped to MaxDelay")
}
