package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/bus"
	"github.com/starstake/stakeboard/internal/domain"
)

// stubPositions serves a fixed reconciled view.
type stubPositions struct {
	view PositionView
	err  error
}

func (s stubPositions) Positions(ctx context.Context, wallet string) (PositionView, error) {
	return s.view, s.err
}

var rewardsNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newRewardsService(view PositionView, anchors domain.AnchorStore, chain PendingRewardReader) *RewardsService {
	svc := NewRewardsService(stubPositions{view: view}, anchors, chain, &capturePublisher{}, testLogger())
	svc.now = func() time.Time { return rewardsNow }
	return svc
}

// 1000 tokens at 1200 bps over 30 days: 1000e18*1200*2592000/315360000000.
const thirtyDayAccrual = "9863013698630136986"

// The same stake over 7 days.
const sevenDayAccrual = "2301369863013698630"

func TestSummaryProjectsFromStartWithoutAnchor(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	acc := summary.Positions[0]
	assert.Equal(t, amt(thirtyDayAccrual), acc.Accrued)
	assert.Equal(t, amt(thirtyDayAccrual), summary.Total)
	assert.Equal(t, pos.StartAt, acc.AnchorAt)
	assert.False(t, acc.Exact)
	// 1000 tokens at 12% is 24/73 tokens per day.
	assert.Equal(t, amt("328767123287671232"), acc.PerDay)
}

func TestSummarySubtractsClaimedWhenNoAnchorExists(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	pos.ClaimedReward = wholeTokens(5)
	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)
	assert.Equal(t, amt("4863013698630136986"), summary.Positions[0].Accrued)
}

func TestSummaryProjectsFromAnchor(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	pos.ClaimedReward = wholeTokens(5)

	anchors := newFakeAnchors()
	anchorAt := rewardsNow.Add(-7 * 24 * time.Hour)
	require.NoError(t, anchors.Set(context.Background(), testWallet, pos.Key, wholeTokens(5), anchorAt))

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, anchors, nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	acc := summary.Positions[0]
	assert.Equal(t, anchorAt, acc.AnchorAt)
	assert.Equal(t, amt(sevenDayAccrual), acc.Accrued)
}

func TestSummaryAbsorbsClaimTheAnchorMissed(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	// One token claimed from another frontend after the anchor was cut.
	pos.ClaimedReward = wholeTokens(6)

	anchors := newFakeAnchors()
	require.NoError(t, anchors.Set(context.Background(), testWallet, pos.Key,
		wholeTokens(5), rewardsNow.Add(-7*24*time.Hour)))

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, anchors, nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	want := amt(sevenDayAccrual).Sub(wholeTokens(1))
	assert.Equal(t, want, summary.Positions[0].Accrued)
}

func TestSummaryPrefersContractRead(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	chain := &fakePendingReader{pending: map[uint64]domain.TokenAmount{
		0: domain.TokenAmountFromInt64(42),
	}}

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), chain)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	acc := summary.Positions[0]
	assert.Equal(t, domain.TokenAmountFromInt64(42), acc.Accrued)
	assert.True(t, acc.Exact)
	assert.True(t, acc.Claimable)
}

func TestSummaryFallsBackWhenContractReadFails(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	chain := &fakePendingReader{err: context.DeadlineExceeded}

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), chain)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)
	assert.False(t, summary.Positions[0].Exact)
	assert.Equal(t, amt(thirtyDayAccrual), summary.Positions[0].Accrued)
}

func TestSummaryCapsProjectionAtMaturity(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-40*24*time.Hour))
	pos.Rules.DurationDays = 30

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	acc := summary.Positions[0]
	assert.Equal(t, amt(thirtyDayAccrual), acc.Accrued)
	assert.True(t, acc.Claimable)
}

func TestSummarySkipsNonActiveRows(t *testing.T) {
	active := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	pending := activePosition(testWallet, 1, rewardsNow)
	pending.Status = domain.PositionStatusPending
	pending.Optimistic = true

	svc := newRewardsService(PositionView{Positions: []domain.Position{pending, active}}, newFakeAnchors(), nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)
	assert.Equal(t, active.Key, summary.Positions[0].PositionKey)
	assert.Equal(t, amt(thirtyDayAccrual), summary.Total)
}

func TestSummaryClaimableWaitsForWindow(t *testing.T) {
	// Ten days in, first claim window opens at day 30.
	pos := activePosition(testWallet, 0, rewardsNow.Add(-10*24*time.Hour))

	svc := newRewardsService(PositionView{Positions: []domain.Position{pos}}, newFakeAnchors(), nil)

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	acc := summary.Positions[0]
	assert.True(t, acc.Accrued.Sign() > 0)
	assert.False(t, acc.Claimable)
}

func TestResetAnchorStampsNow(t *testing.T) {
	anchors := newFakeAnchors()
	svc := newRewardsService(PositionView{}, anchors, nil)

	require.NoError(t, svc.ResetAnchor(context.Background(), testWallet, "tx:0xabc", wholeTokens(7)))

	claimed, at, err := anchors.Get(context.Background(), testWallet, "tx:0xabc")
	require.NoError(t, err)
	assert.Equal(t, wholeTokens(7), claimed)
	assert.Equal(t, rewardsNow, at)
}

func TestRunReanchorsAfterClaimEvent(t *testing.T) {
	pos := activePosition(testWallet, 0, rewardsNow.Add(-30*24*time.Hour))
	pos.ClaimedReward = wholeTokens(7)

	anchors := newFakeAnchors()
	eb := bus.New(testLogger())
	svc := NewRewardsService(stubPositions{view: PositionView{Positions: []domain.Position{pos}}},
		anchors, nil, eb, testLogger())
	svc.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	claimedAt := rewardsNow.Add(-time.Minute)
	eb.Publish(domain.Event{
		Kind:     domain.EventClaimConfirmed,
		At:       claimedAt,
		Wallet:   testWallet,
		TxHash:   "0xclaim",
		Position: &domain.Position{Key: pos.Key},
	})

	require.Eventually(t, func() bool {
		claimed, at, err := anchors.Get(context.Background(), testWallet, pos.Key)
		return err == nil && claimed.Cmp(wholeTokens(7)) == 0 && at.Equal(claimedAt)
	}, time.Second, 10*time.Millisecond)
}

func TestRunMatchesClaimByStakeIndex(t *testing.T) {
	pos := activePosition(testWallet, 4, rewardsNow.Add(-30*24*time.Hour))
	pos.ClaimedReward = wholeTokens(2)

	anchors := newFakeAnchors()
	eb := bus.New(testLogger())
	svc := NewRewardsService(stubPositions{view: PositionView{Positions: []domain.Position{pos}}},
		anchors, nil, eb, testLogger())
	svc.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	// The watcher only knows the stake index, not the dedup key.
	eb.Publish(domain.Event{
		Kind:     domain.EventClaimConfirmed,
		Wallet:   testWallet,
		Position: &domain.Position{PackageID: pos.PackageID, StakeIndex: 4},
	})

	require.Eventually(t, func() bool {
		claimed, _, err := anchors.Get(context.Background(), testWallet, pos.Key)
		return err == nil && claimed.Cmp(wholeTokens(2)) == 0
	}, time.Second, 10*time.Millisecond)
}
