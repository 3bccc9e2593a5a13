package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/starstake/stakeboard/internal/domain"
)

// StarReader is the indexer slice the rank view consumes.
type StarReader interface {
	UserOverview(ctx context.Context, wallet string) (domain.UserOverview, error)
}

// StarProgress is the rank view served to the dashboard: current
// standing plus fractional progress toward the next tier.
type StarProgress struct {
	Wallet         string             `json:"wallet"`
	Level          int                `json:"level"`
	SelfStaked     domain.TokenAmount `json:"self_staked"`
	TeamVolume     domain.TokenAmount `json:"team_volume"`
	DirectCount    int                `json:"direct_count"`
	Next           *domain.StarTier   `json:"next,omitempty"`
	SelfProgress   float64            `json:"self_progress"`
	TeamProgress   float64            `json:"team_progress"`
	DirectProgress float64            `json:"direct_progress"`
}

// StarService derives a wallet's star rank progress from the indexer
// rollup and the tier ladder.
type StarService struct {
	subgraph StarReader
	tiers    []domain.StarTier
	logger   *slog.Logger
}

// NewStarService creates a StarService. An empty tiers slice falls back
// to the default ladder.
func NewStarService(subgraph StarReader, tiers []domain.StarTier, logger *slog.Logger) *StarService {
	if len(tiers) == 0 {
		tiers = DefaultStarTiers()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StarService{
		subgraph: subgraph,
		tiers:    tiers,
		logger:   logger,
	}
}

// Status returns wallet's current rank and progress toward the next.
func (s *StarService) Status(ctx context.Context, wallet string) (StarProgress, error) {
	wallet = strings.ToLower(wallet)

	overview, err := s.subgraph.UserOverview(ctx, wallet)
	if err != nil {
		return StarProgress{}, fmt.Errorf("star_service: overview for %q: %w", wallet, err)
	}

	progress := StarProgress{
		Wallet:      overview.Wallet,
		Level:       overview.Level,
		SelfStaked:  overview.SelfStaked,
		TeamVolume:  overview.TeamVolume,
		DirectCount: overview.DirectCount,
		Next:        s.nextTier(overview.Level),
	}

	if progress.Next == nil {
		// Top rank: nothing left to fill.
		progress.SelfProgress = 1
		progress.TeamProgress = 1
		progress.DirectProgress = 1
		return progress, nil
	}

	progress.SelfProgress = amountProgress(overview.SelfStaked, progress.Next.MinSelfStake)
	progress.TeamProgress = amountProgress(overview.TeamVolume, progress.Next.MinTeamVolume)
	progress.DirectProgress = countProgress(overview.DirectCount, progress.Next.MinDirects)

	return progress, nil
}

// Tiers returns the ladder in ascending level order.
func (s *StarService) Tiers() []domain.StarTier {
	tiers := make([]domain.StarTier, len(s.tiers))
	copy(tiers, s.tiers)
	return tiers
}

// nextTier returns the first rung above level, nil at the top. The
// returned tier is a copy so callers cannot mutate the ladder.
func (s *StarService) nextTier(level int) *domain.StarTier {
	for i := range s.tiers {
		if s.tiers[i].Level > level {
			t := s.tiers[i]
			return &t
		}
	}
	return nil
}

// amountProgress returns have/need clamped to [0, 1]. A zero need is
// already met.
func amountProgress(have, need domain.TokenAmount) float64 {
	if need.IsZero() || have.Cmp(need) >= 0 {
		return 1
	}
	if have.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(have.BigInt()),
		new(big.Float).SetInt(need.BigInt()),
	).Float64()
	return f
}

func countProgress(have, need int) float64 {
	if need <= 0 || have >= need {
		return 1
	}
	if have <= 0 {
		return 0
	}
	return float64(have) / float64(need)
}

// DefaultStarTiers is the five-rank ladder the staking contract ships
// with. Thresholds are whole tokens at 18 decimals.
func DefaultStarTiers() []domain.StarTier {
	return []domain.StarTier{
		{Level: 1, Name: "1 Star", MinSelfStake: wholeTokens(1_000), MinTeamVolume: wholeTokens(10_000), MinDirects: 2, RewardShareBps: 500},
		{Level: 2, Name: "2 Star", MinSelfStake: wholeTokens(3_000), MinTeamVolume: wholeTokens(50_000), MinDirects: 4, RewardShareBps: 1000},
		{Level: 3, Name: "3 Star", MinSelfStake: wholeTokens(10_000), MinTeamVolume: wholeTokens(200_000), MinDirects: 6, RewardShareBps: 1500},
		{Level: 4, Name: "4 Star", MinSelfStake: wholeTokens(30_000), MinTeamVolume: wholeTokens(1_000_000), MinDirects: 8, RewardShareBps: 2000},
		{Level: 5, Name: "5 Star", MinSelfStake: wholeTokens(100_000), MinTeamVolume: wholeTokens(5_000_000), MinDirects: 10, RewardShareBps: 2500},
	}
}

// wholeTokens builds an amount of whole tokens at 18 decimals.
func wholeTokens(n int64) domain.TokenAmount {
	v := big.NewInt(n)
	v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return domain.NewTokenAmount(v)
}
