package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// yearBpsSeconds folds the bps denominator into the seconds of a
// 365-day year, so projectReward needs a single division.
const yearBpsSeconds = 10000 * 365 * 86400

// reanchorDelay leaves room for the post-claim refresh burst to land
// before the authoritative claimed total becomes the anchor baseline.
const reanchorDelay = 10 * time.Second

// PositionReader supplies the reconciled position view.
type PositionReader interface {
	Positions(ctx context.Context, wallet string) (PositionView, error)
}

// PendingRewardReader reads the accrued unclaimed reward from the
// staking contract.
type PendingRewardReader interface {
	PendingReward(ctx context.Context, wallet string, stakeIndex uint64) (domain.TokenAmount, error)
}

// RewardAccrual is the live-earnings row for one position. Accrued is
// exact when it came from the contract and a linear projection from the
// claim anchor otherwise; PerDay lets clients tick the number between
// refreshes.
type RewardAccrual struct {
	PositionKey  string             `json:"position_key"`
	PackageID    uint64             `json:"package_id"`
	StakeIndex   uint64             `json:"stake_index"`
	PackageName  string             `json:"package_name"`
	Principal    domain.TokenAmount `json:"principal"`
	Accrued      domain.TokenAmount `json:"accrued"`
	ClaimedTotal domain.TokenAmount `json:"claimed_total"`
	PerDay       domain.TokenAmount `json:"per_day"`
	AnchorAt     time.Time          `json:"anchor_at"`
	NextClaimAt  time.Time          `json:"next_claim_at"`
	Claimable    bool               `json:"claimable"`
	Exact        bool               `json:"exact"`
}

// RewardsSummary is the wallet-level earnings rollup.
type RewardsSummary struct {
	Wallet    string             `json:"wallet"`
	Total     domain.TokenAmount `json:"total"`
	AsOf      time.Time          `json:"as_of"`
	Positions []RewardAccrual    `json:"positions"`
}

// RewardsService projects live earnings between source refreshes. The
// anchor store remembers when each position last claimed so the display
// restarts from zero instead of replaying the whole lifetime.
type RewardsService struct {
	positions PositionReader
	anchors   domain.AnchorStore
	chain     PendingRewardReader // nil when no RPC is configured
	bus       domain.EventBus
	logger    *slog.Logger

	delay time.Duration
	now   func() time.Time
}

// NewRewardsService creates a RewardsService. chain may be nil; accruals
// are then projected from anchors only.
func NewRewardsService(
	positions PositionReader,
	anchors domain.AnchorStore,
	chain PendingRewardReader,
	bus domain.EventBus,
	logger *slog.Logger,
) *RewardsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RewardsService{
		positions: positions,
		anchors:   anchors,
		chain:     chain,
		bus:       bus,
		logger:    logger,
		delay:     reanchorDelay,
		now:       time.Now,
	}
}

// Summary computes the live-earnings view for wallet's active positions.
func (s *RewardsService) Summary(ctx context.Context, wallet string) (RewardsSummary, error) {
	wallet = strings.ToLower(wallet)

	view, err := s.positions.Positions(ctx, wallet)
	if err != nil {
		return RewardsSummary{}, fmt.Errorf("rewards_service: positions for %q: %w", wallet, err)
	}

	now := s.now().UTC()
	summary := RewardsSummary{Wallet: wallet, AsOf: now}

	var total domain.TokenAmount
	for _, pos := range view.Positions {
		if pos.Status != domain.PositionStatusActive {
			continue
		}
		acc := s.accrue(ctx, pos, now)
		summary.Positions = append(summary.Positions, acc)
		total = total.Add(acc.Accrued)
	}
	summary.Total = total

	return summary, nil
}

// ResetAnchor starts a new accrual window for one position, recording
// the claimed-to-date total the next projection subtracts against.
func (s *RewardsService) ResetAnchor(ctx context.Context, wallet, positionKey string, claimedTotal domain.TokenAmount) error {
	wallet = strings.ToLower(wallet)
	if err := s.anchors.Set(ctx, wallet, positionKey, claimedTotal, s.now().UTC()); err != nil {
		return fmt.Errorf("rewards_service: reset anchor %q %q: %w", wallet, positionKey, err)
	}
	return nil
}

// Run re-anchors positions when claims confirm, including claims made
// from another frontend that only the watcher sees.
func (s *RewardsService) Run(ctx context.Context) error {
	events := s.bus.Subscribe(ctx, domain.EventClaimConfirmed)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.scheduleReanchor(ctx, ev)
		}
	}
}

// scheduleReanchor defers the anchor rewrite until the post-claim
// refresh burst has landed, then snapshots the authoritative claimed
// total as the new baseline.
func (s *RewardsService) scheduleReanchor(ctx context.Context, ev domain.Event) {
	if ev.Wallet == "" {
		return
	}
	claimedAt := ev.At
	if claimedAt.IsZero() {
		claimedAt = s.now().UTC()
	}

	time.AfterFunc(s.delay, func() {
		if ctx.Err() != nil {
			return
		}
		s.reanchor(ctx, ev, claimedAt)
	})
}

func (s *RewardsService) reanchor(ctx context.Context, ev domain.Event, claimedAt time.Time) {
	wallet := strings.ToLower(ev.Wallet)

	view, err := s.positions.Positions(ctx, wallet)
	if err != nil {
		s.logger.WarnContext(ctx, "rewards_service: reanchor fetch failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, pos := range view.Positions {
		if !claimEventMatches(ev, pos) {
			continue
		}
		if err := s.anchors.Set(ctx, wallet, pos.Key, pos.ClaimedReward, claimedAt); err != nil {
			s.logger.WarnContext(ctx, "rewards_service: reanchor write failed",
				slog.String("wallet", wallet),
				slog.String("position", pos.Key),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	s.logger.WarnContext(ctx, "rewards_service: claimed position not in view",
		slog.String("wallet", wallet),
		slog.String("tx_hash", ev.TxHash),
	)
}

// claimEventMatches pairs a claim event with the position it claimed,
// by key when the event carries one, by stake index otherwise.
func claimEventMatches(ev domain.Event, pos domain.Position) bool {
	if ev.Position == nil {
		return false
	}
	if ev.Position.Key != "" {
		return ev.Position.Key == pos.Key
	}
	// Stake indexes are unique per wallet, so a zero package id in the
	// event still matches unambiguously.
	if ev.Position.PackageID != 0 && ev.Position.PackageID != pos.PackageID {
		return false
	}
	return ev.Position.StakeIndex == pos.StakeIndex
}

// accrue resolves one position's unclaimed total: the contract read when
// available, the anchor projection otherwise.
func (s *RewardsService) accrue(ctx context.Context, pos domain.Position, now time.Time) RewardAccrual {
	acc := RewardAccrual{
		PositionKey:  pos.Key,
		PackageID:    pos.PackageID,
		StakeIndex:   pos.StakeIndex,
		PackageName:  pos.PackageName,
		Principal:    pos.Amount,
		ClaimedTotal: pos.ClaimedReward,
		PerDay:       projectReward(pos.Amount, pos.Rules.AprBps, 24*time.Hour),
		NextClaimAt:  pos.NextClaimAt,
	}

	anchorAt := pos.StartAt
	var claimedAtAnchor domain.TokenAmount
	if claimed, at, err := s.anchors.Get(ctx, pos.User, pos.Key); err == nil {
		anchorAt = at
		claimedAtAnchor = claimed
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "rewards_service: anchor read failed",
			slog.String("wallet", pos.User),
			slog.String("position", pos.Key),
			slog.String("error", err.Error()),
		)
	}
	acc.AnchorAt = anchorAt

	if s.chain != nil {
		pending, err := s.chain.PendingReward(ctx, pos.User, pos.StakeIndex)
		if err == nil {
			acc.Accrued = pending
			acc.Exact = true
			acc.Claimable = claimable(pos, pending, now)
			return acc
		}
		s.logger.DebugContext(ctx, "rewards_service: pending reward read failed, projecting",
			slog.String("position", pos.Key),
			slog.String("error", err.Error()),
		)
	}

	// Accrual stops at maturity.
	end := now
	if m := pos.MaturesAt(); end.After(m) {
		end = m
	}
	accrued := projectReward(pos.Amount, pos.Rules.AprBps, end.Sub(anchorAt))

	// Claims the anchor has not seen yet, including the whole history
	// when no anchor exists, would be double counted by the projection.
	if delta := pos.ClaimedReward.Sub(claimedAtAnchor); delta.Sign() > 0 {
		accrued = accrued.Sub(delta)
		if accrued.Sign() < 0 {
			accrued = domain.TokenAmount{}
		}
	}

	acc.Accrued = accrued
	acc.Claimable = claimable(pos, accrued, now)
	return acc
}

// claimable reports whether a claim would move tokens right now.
func claimable(pos domain.Position, accrued domain.TokenAmount, now time.Time) bool {
	if accrued.Sign() <= 0 {
		return false
	}
	return !now.Before(pos.NextClaimAt) || pos.Matured(now)
}

// projectReward linearises bps-per-year accrual over elapsed time.
func projectReward(amount domain.TokenAmount, aprBps int64, elapsed time.Duration) domain.TokenAmount {
	if aprBps <= 0 || elapsed <= 0 || amount.IsZero() {
		return domain.TokenAmount{}
	}
	v := amount.BigInt()
	v.Mul(v, big.NewInt(aprBps))
	v.Mul(v, big.NewInt(int64(elapsed/time.Second)))
	v.Div(v, big.NewInt(yearBpsSeconds))
	return domain.NewTokenAmount(v)
}
