package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starstake/stakeboard/internal/domain"
)

// Dispatcher bridges the event bus to the notifier. It subscribes to the
// full stream and renders the event kinds operators care about into short
// alert messages; the notifier's filter decides which actually go out.
type Dispatcher struct {
	bus      domain.EventBus
	notifier *Notifier
	explorer string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. explorerURL is the tx link base
// (e.g. "https://bscscan.com/tx/"); empty disables links.
func NewDispatcher(bus domain.EventBus, notifier *Notifier, explorerURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		notifier: notifier,
		explorer: explorerURL,
		logger:   logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Run consumes bus events until the context is cancelled. Delivery
// failures are logged and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := d.bus.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			title, message, notifiable := d.render(ev)
			if !notifiable {
				continue
			}
			if err := d.notifier.Notify(ctx, string(ev.Kind), title, message); err != nil {
				d.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// render maps an event to an alert title and body. Events that are pure
// UI plumbing (pending inserts, refresh ticks, price updates) are not
// notifiable.
func (d *Dispatcher) render(ev domain.Event) (string, string, bool) {
	switch ev.Kind {
	case domain.EventPositionConfirmed:
		return "Stake confirmed", d.walletLine(ev), true

	case domain.EventClaimConfirmed:
		return "Rewards claimed", d.walletLine(ev), true

	case domain.EventUnstakeConfirmed:
		return "Principal unstaked", d.walletLine(ev), true

	case domain.EventActionFailed:
		body := d.walletLine(ev)
		if ev.Action != nil {
			body = fmt.Sprintf("%s %s\n%s", ev.Action.Kind, ev.Action.Amount, body)
		}
		if ev.Reason != "" {
			body += "\nreason: " + ev.Reason
		}
		return "Action failed", body, true

	case domain.EventArchiveCompleted:
		return "Journal archived", fmt.Sprintf("%d rows moved to %s", ev.Count, ev.Reason), true

	default:
		return "", "", false
	}
}

// walletLine renders the wallet and transaction link shared by most alerts.
func (d *Dispatcher) walletLine(ev domain.Event) string {
	var b strings.Builder
	if ev.Wallet != "" {
		b.WriteString("wallet " + shortAddr(ev.Wallet))
	}
	if ev.TxHash != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if d.explorer != "" {
			b.WriteString(d.explorer + ev.TxHash)
		} else {
			b.WriteString("tx " + ev.TxHash)
		}
	}
	return b.String()
}

// shortAddr elides the middle of a hex address for readability.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
