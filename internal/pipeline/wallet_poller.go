package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/starstake/stakeboard/internal/service"
)

// WalletRefresher is the slice of the position service the poller drives.
type WalletRefresher interface {
	Refresh(ctx context.Context, wallet string) (service.PositionView, error)
	Tracked() []string
}

// WalletPoller periodically re-fetches authoritative positions for every
// tracked wallet so the merged view stays warm between client requests
// and optimistic entries get their confirmation data without waiting for
// a user to reload.
type WalletPoller struct {
	positions WalletRefresher
	logger    *slog.Logger
}

// NewWalletPoller creates a new WalletPoller.
func NewWalletPoller(positions WalletRefresher, logger *slog.Logger) *WalletPoller {
	return &WalletPoller{
		positions: positions,
		logger:    logger,
	}
}

// Run executes a single poll pass over all tracked wallets. A failed
// refresh is logged and skipped; one cold wallet must not starve the rest.
func (p *WalletPoller) Run(ctx context.Context) error {
	wallets := p.positions.Tracked()
	if len(wallets) == 0 {
		return nil
	}

	refreshed := 0
	for _, wallet := range wallets {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := p.positions.Refresh(ctx, wallet); err != nil {
			p.logger.Warn("wallet refresh failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
			continue
		}
		refreshed++
	}

	p.logger.Debug("wallet poll complete",
		slog.Int("tracked", len(wallets)),
		slog.Int("refreshed", refreshed),
	)
	return nil
}

// RunLoop runs the poller on a repeating interval until the context is
// cancelled.
func (p *WalletPoller) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := p.Run(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("wallet poller loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Run(ctx); err != nil {
				return err
			}
		}
	}
}
