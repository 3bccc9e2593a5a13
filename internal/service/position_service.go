package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/reconcile"
	"github.com/starstake/stakeboard/internal/source"
)

// defaultDebounce bounds how often a burst of refresh requests for one
// wallet reaches the sources.
const defaultDebounce = 800 * time.Millisecond

// Fetcher is the slice of the position source the reconciled view reads
// through.
type Fetcher interface {
	Positions(ctx context.Context, wallet string) (source.Result, error)
	Refresh(ctx context.Context, wallet string) (source.Result, error)
	Packages(ctx context.Context) ([]domain.Package, error)
	Health() source.Health
}

// Compile-time interface check.
var _ Fetcher = (*source.PositionSource)(nil)

// PositionView is the reconciled position list served to clients:
// authoritative rows with optimistic entries overlaid.
type PositionView struct {
	Positions []domain.Position `json:"positions"`
	FetchedAt time.Time         `json:"fetched_at"`
	Degraded  bool              `json:"degraded"`
}

// Status summarises source health and the optimistic backlog for the
// operator endpoint.
type Status struct {
	Source         source.Health `json:"source"`
	PendingEntries int           `json:"pending_entries"`
	TrackedWallets int           `json:"tracked_wallets"`
}

// PositionService merges authoritative positions with optimistic entries
// and keeps the view fresh by reacting to refresh requests on the bus.
type PositionService struct {
	fetcher Fetcher
	store   *reconcile.EntryStore
	bus     domain.EventBus
	logger  *slog.Logger

	debounce time.Duration

	mu      sync.Mutex
	armed   map[string]struct{}
	tracked map[string]time.Time
}

// NewPositionService creates a PositionService. debounce <= 0 falls back
// to the default window.
func NewPositionService(
	fetcher Fetcher,
	store *reconcile.EntryStore,
	bus domain.EventBus,
	debounce time.Duration,
	logger *slog.Logger,
) *PositionService {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionService{
		fetcher:  fetcher,
		store:    store,
		bus:      bus,
		logger:   logger,
		debounce: debounce,
		armed:    make(map[string]struct{}),
		tracked:  make(map[string]time.Time),
	}
}

// Positions returns the reconciled view for wallet. Optimistic entries
// whose authoritative counterpart has appeared are pruned before the
// merge, so a row never shows twice.
func (s *PositionService) Positions(ctx context.Context, wallet string) (PositionView, error) {
	wallet = strings.ToLower(wallet)

	res, err := s.fetcher.Positions(ctx, wallet)
	if err != nil {
		return PositionView{}, fmt.Errorf("position_service: fetch %q: %w", wallet, err)
	}
	s.prune(res.Positions)

	return PositionView{
		Positions: reconcile.Merge(res.Positions, s.store.Snapshot(wallet)),
		FetchedAt: res.FetchedAt,
		Degraded:  res.Degraded,
	}, nil
}

// Refresh forces a source refetch for wallet and signals watchers that
// the view may have changed.
func (s *PositionService) Refresh(ctx context.Context, wallet string) (PositionView, error) {
	wallet = strings.ToLower(wallet)

	res, err := s.fetcher.Refresh(ctx, wallet)
	if err != nil {
		return PositionView{}, fmt.Errorf("position_service: refresh %q: %w", wallet, err)
	}
	s.prune(res.Positions)

	s.bus.Publish(domain.Event{
		Kind:   domain.EventPositionsChanged,
		At:     time.Now().UTC(),
		Wallet: wallet,
	})

	return PositionView{
		Positions: reconcile.Merge(res.Positions, s.store.Snapshot(wallet)),
		FetchedAt: res.FetchedAt,
		Degraded:  res.Degraded,
	}, nil
}

// Packages returns the staking package catalogue.
func (s *PositionService) Packages(ctx context.Context) ([]domain.Package, error) {
	packages, err := s.fetcher.Packages(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: packages: %w", err)
	}
	return packages, nil
}

// Track marks wallet for background refresh. The sync pipeline and the
// watcher only act on tracked wallets.
func (s *PositionService) Track(wallet string) {
	wallet = strings.ToLower(wallet)
	if wallet == "" {
		return
	}
	s.mu.Lock()
	s.tracked[wallet] = time.Now().UTC()
	s.mu.Unlock()
}

// Tracked returns the tracked wallets in stable order.
func (s *PositionService) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := make([]string, 0, len(s.tracked))
	for w := range s.tracked {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets
}

// Status reports source health and the optimistic backlog.
func (s *PositionService) Status() Status {
	s.mu.Lock()
	tracked := len(s.tracked)
	s.mu.Unlock()

	return Status{
		Source:         s.fetcher.Health(),
		PendingEntries: s.store.Len(),
		TrackedWallets: tracked,
	}
}

// Run reacts to refresh requests until ctx ends. Requests for the same
// wallet inside the debounce window collapse into one source hit.
func (s *PositionService) Run(ctx context.Context) error {
	events := s.bus.Subscribe(ctx, domain.EventRefreshRequested)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.schedule(ctx, strings.ToLower(ev.Wallet))
		}
	}
}

// schedule arms the debounce timer for wallet unless one is already
// pending. An empty wallet fans out to every tracked wallet when the
// window closes.
func (s *PositionService) schedule(ctx context.Context, wallet string) {
	s.mu.Lock()
	if _, pending := s.armed[wallet]; pending {
		s.mu.Unlock()
		return
	}
	s.armed[wallet] = struct{}{}
	s.mu.Unlock()

	time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.armed, wallet)
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.flush(ctx, wallet)
	})
}

// flush runs the refresh a debounce window collected.
func (s *PositionService) flush(ctx context.Context, wallet string) {
	wallets := []string{wallet}
	if wallet == "" {
		wallets = s.Tracked()
	}
	for _, w := range wallets {
		if _, err := s.Refresh(ctx, w); err != nil {
			s.logger.WarnContext(ctx, "position_service: debounced refresh failed",
				slog.String("wallet", w),
				slog.String("error", err.Error()),
			)
		}
	}
}

// prune drops optimistic entries the authoritative data now covers.
func (s *PositionService) prune(authoritative []domain.Position) {
	if len(authoritative) == 0 {
		return
	}
	if n := s.store.Prune(authoritative); n > 0 {
		s.logger.Debug("position_service: pruned optimistic entries",
			slog.Int("count", n),
		)
	}
}
