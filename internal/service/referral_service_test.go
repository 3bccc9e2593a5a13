package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starstake/stakeboard/internal/domain"
)

func earning(from string, level int, tokens int64, at time.Time) domain.ReferralEarning {
	return domain.ReferralEarning{
		From:   from,
		Level:  level,
		Amount: wholeTokens(tokens),
		TxHash: "0xearn" + from,
		At:     at,
	}
}

func TestReferralSummaryAggregatesByLevel(t *testing.T) {
	now := time.Now().UTC()
	indexer := &fakeIndexer{
		earnings: []domain.ReferralEarning{
			earning("0x01", 1, 10, now),
			earning("0x02", 1, 5, now.Add(-time.Hour)),
			earning("0x03", 2, 3, now.Add(-2*time.Hour)),
			earning("0x04", 3, 1, now.Add(-3*time.Hour)),
		},
		overview: domain.UserOverview{
			Wallet:      testWallet,
			Referrer:    "0x00000000000000000000000000000000000000ff",
			DirectCount: 2,
		},
	}

	svc := NewReferralService(indexer, testLogger())

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, testWallet, summary.Wallet)
	assert.Equal(t, "0x00000000000000000000000000000000000000ff", summary.Referrer)
	assert.Equal(t, 2, summary.DirectCount)
	assert.Equal(t, wholeTokens(19), summary.TotalEarned)

	require.Len(t, summary.Levels, 3)
	assert.Equal(t, domain.LevelSummary{Level: 1, Count: 2, Amount: wholeTokens(15)}, summary.Levels[0])
	assert.Equal(t, domain.LevelSummary{Level: 2, Count: 1, Amount: wholeTokens(3)}, summary.Levels[1])
	assert.Equal(t, domain.LevelSummary{Level: 3, Count: 1, Amount: wholeTokens(1)}, summary.Levels[2])

	assert.Len(t, summary.Recent, 4)
}

func TestReferralSummaryTruncatesRecentNotTotals(t *testing.T) {
	now := time.Now().UTC()
	var earnings []domain.ReferralEarning
	for i := 0; i < recentEarningsLimit+5; i++ {
		earnings = append(earnings, earning(fmt.Sprintf("0x%02x", i), 1, 1, now.Add(-time.Duration(i)*time.Minute)))
	}

	indexer := &fakeIndexer{earnings: earnings, overview: domain.UserOverview{Wallet: testWallet}}
	svc := NewReferralService(indexer, testLogger())

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Len(t, summary.Recent, recentEarningsLimit)
	assert.Equal(t, wholeTokens(int64(recentEarningsLimit+5)), summary.TotalEarned)
	require.Len(t, summary.Levels, 1)
	assert.Equal(t, recentEarningsLimit+5, summary.Levels[0].Count)
}

func TestReferralSummaryEmptyDownline(t *testing.T) {
	indexer := &fakeIndexer{overview: domain.UserOverview{Wallet: testWallet, DirectCount: 0}}
	svc := NewReferralService(indexer, testLogger())

	summary, err := svc.Summary(context.Background(), testWallet)
	require.NoError(t, err)

	assert.True(t, summary.TotalEarned.IsZero())
	assert.Empty(t, summary.Levels)
	assert.Empty(t, summary.Recent)
}

func TestReferralSummaryPropagatesIndexerError(t *testing.T) {
	indexer := &fakeIndexer{err: context.DeadlineExceeded}
	svc := NewReferralService(indexer, testLogger())

	_, err := svc.Summary(context.Background(), testWallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
