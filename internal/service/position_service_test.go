package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/bus"
	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/reconcile"
	"github.com/starstake/stakeboard/internal/source"
)

const testWallet = "0x00000000000000000000000000000000000000aa"

func newPositionService(fetcher Fetcher, eb domain.EventBus, debounce time.Duration) (*PositionService, *reconcile.EntryStore) {
	store := reconcile.NewEntryStore(2*time.Minute, 2*time.Hour)
	return NewPositionService(fetcher, store, eb, debounce, testLogger()), store
}

func TestPositionsOverlaysOptimisticRows(t *testing.T) {
	fetcher := newFakeFetcher()
	start := time.Now().UTC().Add(-24 * time.Hour)
	fetcher.set(testWallet, []domain.Position{activePosition(testWallet, 0, start)})

	svc, store := newPositionService(fetcher, &capturePublisher{}, 0)

	pending := activePosition(testWallet, 1, time.Now().UTC())
	pending.TxHash = "0xpending"
	pending.Key = pending.DedupKey()
	pending.Status = domain.PositionStatusPending
	pending.Optimistic = true
	require.True(t, store.Add(pending))

	view, err := svc.Positions(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, view.Positions, 2)

	// Newest first; the optimistic row started just now.
	assert.True(t, view.Positions[0].Optimistic)
	assert.False(t, view.Positions[1].Optimistic)
	assert.False(t, view.Degraded)
}

func TestPositionsPrunesConfirmedOptimistic(t *testing.T) {
	fetcher := newFakeFetcher()
	confirmed := activePosition(testWallet, 0, time.Now().UTC().Add(-time.Hour))
	fetcher.set(testWallet, []domain.Position{confirmed})

	svc, store := newPositionService(fetcher, &capturePublisher{}, 0)

	// Same transaction, still optimistic locally.
	ghost := confirmed
	ghost.Status = domain.PositionStatusPending
	ghost.Optimistic = true
	require.True(t, store.Add(ghost))

	view, err := svc.Positions(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, view.Positions, 1)
	assert.False(t, view.Positions[0].Optimistic)
	assert.Equal(t, 0, store.Len())
}

func TestRefreshPublishesChangeSignal(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(testWallet, nil)
	pub := &capturePublisher{}
	svc, _ := newPositionService(fetcher, pub, 0)

	_, err := svc.Refresh(context.Background(), testWallet)
	require.NoError(t, err)

	changed := pub.byKind(domain.EventPositionsChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, testWallet, changed[0].Wallet)
}

func TestRunCoalescesRefreshBursts(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(testWallet, nil)

	eb := bus.New(testLogger())
	svc, _ := newPositionService(fetcher, eb, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()
	time.Sleep(10 * time.Millisecond) // let the subscription attach

	for i := 0; i < 5; i++ {
		eb.Publish(domain.Event{Kind: domain.EventRefreshRequested, Wallet: testWallet})
	}

	require.Eventually(t, func() bool {
		return fetcher.refreshCount(testWallet) == 1
	}, time.Second, 10*time.Millisecond)

	// The window closed; a new burst schedules exactly one more.
	eb.Publish(domain.Event{Kind: domain.EventRefreshRequested, Wallet: testWallet})
	require.Eventually(t, func() bool {
		return fetcher.refreshCount(testWallet) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRunEmptyWalletRefreshesAllTracked(t *testing.T) {
	fetcher := newFakeFetcher()
	walletB := "0x00000000000000000000000000000000000000bb"
	fetcher.set(testWallet, nil)
	fetcher.set(walletB, nil)

	eb := bus.New(testLogger())
	svc, _ := newPositionService(fetcher, eb, 20*time.Millisecond)
	svc.Track(testWallet)
	svc.Track(walletB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	eb.Publish(domain.Event{Kind: domain.EventRefreshRequested})

	require.Eventually(t, func() bool {
		return fetcher.refreshCount(testWallet) == 1 && fetcher.refreshCount(walletB) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTrackedIsSortedAndDeduplicated(t *testing.T) {
	svc, _ := newPositionService(newFakeFetcher(), &capturePublisher{}, 0)

	svc.Track("0xBB")
	svc.Track("0xaa")
	svc.Track("0xbb")
	svc.Track("")

	assert.Equal(t, []string{"0xaa", "0xbb"}, svc.Tracked())
}

func TestStatusReportsBacklog(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.health = source.Health{SubgraphHealthy: true}

	svc, store := newPositionService(fetcher, &capturePublisher{}, 0)
	svc.Track(testWallet)

	ghost := activePosition(testWallet, 7, time.Now().UTC())
	ghost.Status = domain.PositionStatusPending
	ghost.Optimistic = true
	store.Add(ghost)

	st := svc.Status()
	assert.True(t, st.Source.SubgraphHealthy)
	assert.Equal(t, 1, st.PendingEntries)
	assert.Equal(t, 1, st.TrackedWallets)
}
