package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/starstake/stakeboard/internal/domain"
)

// EventsChannel is the Redis Pub/Sub channel mirrored events go out on.
const EventsChannel = "stakeboard:events"

// EventsStream is the durable Redis stream behind the channel.
const EventsStream = "stakeboard:events:stream"

// Forwarder mirrors selected in-process events onto the Redis signal
// bus so the websocket hubs of other instances, and any external
// listeners, see them too.
type Forwarder struct {
	bus    domain.EventBus
	signal domain.SignalBus
	kinds  []domain.EventKind
	logger *slog.Logger
}

// NewForwarder mirrors the given kinds; with none it mirrors the kinds
// a dashboard client cares about.
func NewForwarder(bus domain.EventBus, signal domain.SignalBus, logger *slog.Logger, kinds ...domain.EventKind) *Forwarder {
	if len(kinds) == 0 {
		kinds = []domain.EventKind{
			domain.EventPositionPending,
			domain.EventPositionConfirmed,
			domain.EventPositionsChanged,
			domain.EventClaimConfirmed,
			domain.EventUnstakeConfirmed,
			domain.EventActionFailed,
			domain.EventPricesUpdated,
		}
	}
	return &Forwarder{
		bus:    bus,
		signal: signal,
		kinds:  kinds,
		logger: logger.With(slog.String("component", "bus_forwarder")),
	}
}

// Run pumps events until ctx is done. Call in a goroutine.
func (f *Forwarder) Run(ctx context.Context) error {
	events := f.bus.Subscribe(ctx, f.kinds...)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				f.logger.ErrorContext(ctx, "event marshal failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
				continue
			}
			if err := f.signal.Publish(ctx, EventsChannel, payload); err != nil {
				f.logger.WarnContext(ctx, "event mirror publish failed", slog.String("error", err.Error()))
			}
			if err := f.signal.StreamAppend(ctx, EventsStream, payload); err != nil {
				f.logger.WarnContext(ctx, "event mirror append failed", slog.String("error", err.Error()))
			}
		}
	}
}
