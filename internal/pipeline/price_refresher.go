package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// PriceRefreshService is the slice of the price service the refresher drives.
type PriceRefreshService interface {
	Refresh(ctx context.Context) error
}

// PriceRefresher keeps the USD quotes for package allocation tokens fresh.
// The dashboard only decorates amounts with them, so a failed refresh is
// logged and retried on the next tick rather than propagated.
type PriceRefresher struct {
	prices PriceRefreshService
	logger *slog.Logger
}

// NewPriceRefresher creates a new PriceRefresher.
func NewPriceRefresher(prices PriceRefreshService, logger *slog.Logger) *PriceRefresher {
	return &PriceRefresher{
		prices: prices,
		logger: logger,
	}
}

// RunLoop refreshes prices on a repeating interval until the context is
// cancelled.
func (r *PriceRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := r.prices.Refresh(ctx); err != nil {
		r.logger.Warn("price refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("price refresher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.prices.Refresh(ctx); err != nil {
				r.logger.Warn("price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
