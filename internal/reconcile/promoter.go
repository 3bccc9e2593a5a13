package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// Promoter runs the timing legs of the optimistic lifecycle: a display
// tick that only asks clients to re-render elapsed counters, a slower
// tick that promotes stale Pending entries, and the confirmation hook.
type Promoter struct {
	store        *EntryStore
	bus          domain.EventBus
	displayEvery time.Duration
	staleEvery   time.Duration
	logger       *slog.Logger
}

// NewPromoter creates a Promoter. Non-positive intervals fall back to
// 1s display and 5s stale ticks.
func NewPromoter(store *EntryStore, bus domain.EventBus, displayEvery, staleEvery time.Duration, logger *slog.Logger) *Promoter {
	if displayEvery <= 0 {
		displayEvery = time.Second
	}
	if staleEvery <= 0 {
		staleEvery = 5 * time.Second
	}
	return &Promoter{
		store:        store,
		bus:          bus,
		displayEvery: displayEvery,
		staleEvery:   staleEvery,
		logger:       logger.With(slog.String("component", "promoter")),
	}
}

// Run drives the tickers and the confirmation subscription until ctx is
// done. Call in a goroutine.
func (p *Promoter) Run(ctx context.Context) error {
	display := time.NewTicker(p.displayEvery)
	defer display.Stop()
	stale := time.NewTicker(p.staleEvery)
	defer stale.Stop()

	confirmed := p.bus.Subscribe(ctx, domain.EventPositionConfirmed)

	p.logger.InfoContext(ctx, "promoter started",
		slog.Duration("display_tick", p.displayEvery),
		slog.Duration("stale_tick", p.staleEvery),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-display.C:
			if p.store.Len() > 0 {
				p.bus.Publish(domain.Event{Kind: domain.EventDisplayTick, At: time.Now()})
			}
		case <-stale.C:
			if n := p.store.PromoteStale(); n > 0 {
				p.logger.InfoContext(ctx, "promoted stale pending entries", slog.Int("count", n))
				p.bus.Publish(domain.Event{Kind: domain.EventPositionsChanged, At: time.Now()})
			}
		case ev, ok := <-confirmed:
			if !ok {
				return nil
			}
			p.HandleConfirmation(ctx, ev)
		}
	}
}

// HandleConfirmation promotes the entry behind a confirmation event. A
// hash with no matching entry is a normal no-op.
func (p *Promoter) HandleConfirmation(ctx context.Context, ev domain.Event) {
	if ev.TxHash == "" {
		return
	}
	if p.store.PromoteConfirmed(ev.TxHash) {
		p.logger.InfoContext(ctx, "promoted confirmed entry",
			slog.String("tx_hash", ev.TxHash),
			slog.String("wallet", ev.Wallet),
		)
		p.bus.Publish(domain.Event{Kind: domain.EventPositionsChanged, At: time.Now(), Wallet: ev.Wallet})
	}
}
