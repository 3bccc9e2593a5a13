package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines: tracked-wallet polling,
// price refreshing, and cold-storage archival. Prices and the archiver are
// optional; pass nil to disable either.
type Orchestrator struct {
	poller        *WalletPoller
	prices        *PriceRefresher
	archiver      *Archiver
	pollInterval  time.Duration
	priceInterval time.Duration
	archiveCron   string
	logger        *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems.
func NewOrchestrator(
	poller *WalletPoller,
	prices *PriceRefresher,
	archiver *Archiver,
	pollInterval time.Duration,
	priceInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		poller:        poller,
		prices:        prices,
		archiver:      archiver,
		pollInterval:  pollInterval,
		priceInterval: priceInterval,
		archiveCron:   archiveCron,
		logger:        logger,
	}
}

// Run starts all enabled sub-pipelines as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.Bool("prices_enabled", o.prices != nil),
		slog.Bool("archive_enabled", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Tracked-wallet poller on ticker.
	g.Go(func() error {
		o.logger.Info("starting wallet poller loop")
		err := o.poller.RunLoop(ctx, o.pollInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("wallet poller: %w", err)
	})

	// 2. Price refresher on ticker.
	if o.prices != nil {
		g.Go(func() error {
			o.logger.Info("starting price refresher loop")
			err := o.prices.RunLoop(ctx, o.priceInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("price refresher: %w", err)
		})
	}

	// 3. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
