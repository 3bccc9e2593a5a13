package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind starts missing events.
const subscriberBuffer = 128

type subscriber struct {
	kinds map[domain.EventKind]struct{} // empty means every kind
	ch    chan domain.Event
}

// Bus is the in-process typed event bus decoupling the orchestrator,
// the promoter and the serving layer. Publish never blocks: slow
// subscribers drop events instead of stalling producers, which is safe
// because every consumer treats events as refresh hints, not as the
// source of record.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	logger *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger.With(slog.String("component", "bus")),
	}
}

// Publish delivers ev to every subscriber interested in its kind. A
// zero At is stamped with the current time.
func (b *Bus) Publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if len(sub.kinds) > 0 {
			if _, ok := sub.kinds[ev.Kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("subscriber full, event dropped", slog.String("kind", string(ev.Kind)))
		}
	}
}

// Subscribe returns a channel of events filtered to kinds (no kinds
// means all). The subscription ends and the channel closes when ctx is
// done.
func (b *Bus) Subscribe(ctx context.Context, kinds ...domain.EventKind) <-chan domain.Event {
	sub := &subscriber{
		kinds: make(map[domain.EventKind]struct{}, len(kinds)),
		ch:    make(chan domain.Event, subscriberBuffer),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// Compile-time interface check.
var _ domain.EventBus = (*Bus)(nil)
