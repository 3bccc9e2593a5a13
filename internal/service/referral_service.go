package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starstake/stakeboard/internal/domain"
)

// rollupLimit bounds the earnings aggregation to one indexer page;
// deeper histories are truncated.
const rollupLimit = 1000

// recentEarningsLimit bounds the per-wallet recent earnings list.
const recentEarningsLimit = 20

// ReferralReader is the indexer slice the referral rollup consumes.
type ReferralReader interface {
	ReferralEarnings(ctx context.Context, wallet string, first int) ([]domain.ReferralEarning, error)
	UserOverview(ctx context.Context, wallet string) (domain.UserOverview, error)
}

// ReferralService rolls downline earnings into the per-level summary the
// dashboard renders.
type ReferralService struct {
	subgraph ReferralReader
	logger   *slog.Logger
}

// NewReferralService creates a ReferralService.
func NewReferralService(subgraph ReferralReader, logger *slog.Logger) *ReferralService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferralService{
		subgraph: subgraph,
		logger:   logger,
	}
}

// Summary aggregates wallet's referral earnings by level and pairs them
// with the indexer's referrer and direct count.
func (s *ReferralService) Summary(ctx context.Context, wallet string) (domain.ReferralSummary, error) {
	wallet = strings.ToLower(wallet)

	earnings, err := s.subgraph.ReferralEarnings(ctx, wallet, rollupLimit)
	if err != nil {
		return domain.ReferralSummary{}, fmt.Errorf("referral_service: earnings for %q: %w", wallet, err)
	}
	overview, err := s.subgraph.UserOverview(ctx, wallet)
	if err != nil {
		return domain.ReferralSummary{}, fmt.Errorf("referral_service: overview for %q: %w", wallet, err)
	}

	byLevel := make(map[int]*domain.LevelSummary)
	var total domain.TokenAmount
	for _, e := range earnings {
		ls, ok := byLevel[e.Level]
		if !ok {
			ls = &domain.LevelSummary{Level: e.Level}
			byLevel[e.Level] = ls
		}
		ls.Count++
		ls.Amount = ls.Amount.Add(e.Amount)
		total = total.Add(e.Amount)
	}

	levels := make([]domain.LevelSummary, 0, len(byLevel))
	for _, ls := range byLevel {
		levels = append(levels, *ls)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	recent := earnings
	if len(recent) > recentEarningsLimit {
		recent = recent[:recentEarningsLimit]
	}

	return domain.ReferralSummary{
		Wallet:      wallet,
		Referrer:    overview.Referrer,
		TotalEarned: total,
		DirectCount: overview.DirectCount,
		Levels:      levels,
		Recent:      recent,
	}, nil
}
