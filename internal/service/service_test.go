package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func amt(s string) domain.TokenAmount {
	a, err := domain.TokenAmountFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// fakeFetcher is an in-memory position source.
type fakeFetcher struct {
	mu        sync.Mutex
	positions map[string][]domain.Position
	packages  []domain.Package
	health    source.Health
	err       error
	reads     map[string]int
	refreshes map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		positions: make(map[string][]domain.Position),
		reads:     make(map[string]int),
		refreshes: make(map[string]int),
	}
}

func (f *fakeFetcher) set(wallet string, positions []domain.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[strings.ToLower(wallet)] = positions
}

func (f *fakeFetcher) Positions(ctx context.Context, wallet string) (source.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return source.Result{}, f.err
	}
	f.reads[wallet]++
	return source.Result{
		Positions: f.positions[wallet],
		FetchedAt: time.Now().UTC(),
		Origin:    source.OriginSubgraph,
	}, nil
}

func (f *fakeFetcher) Refresh(ctx context.Context, wallet string) (source.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return source.Result{}, f.err
	}
	f.refreshes[wallet]++
	return source.Result{
		Positions: f.positions[wallet],
		FetchedAt: time.Now().UTC(),
		Origin:    source.OriginSubgraph,
	}, nil
}

func (f *fakeFetcher) Packages(ctx context.Context) ([]domain.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packages, f.err
}

func (f *fakeFetcher) Health() source.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeFetcher) refreshCount(wallet string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes[wallet]
}

// capturePublisher records published events and closes subscriptions on
// cancel without delivering anything.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *capturePublisher) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *capturePublisher) Subscribe(ctx context.Context, kinds ...domain.EventKind) <-chan domain.Event {
	ch := make(chan domain.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (b *capturePublisher) byKind(kind domain.EventKind) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, ev := range b.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakeAnchors is an in-memory AnchorStore.
type fakeAnchors struct {
	mu      sync.Mutex
	claimed map[string]domain.TokenAmount
	at      map[string]time.Time
}

func newFakeAnchors() *fakeAnchors {
	return &fakeAnchors{
		claimed: make(map[string]domain.TokenAmount),
		at:      make(map[string]time.Time),
	}
}

func anchorKey(wallet, positionKey string) string {
	return strings.ToLower(wallet) + "|" + positionKey
}

func (f *fakeAnchors) Set(ctx context.Context, wallet, positionKey string, claimed domain.TokenAmount, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(wallet, positionKey)
	f.claimed[k] = claimed
	f.at[k] = at
	return nil
}

func (f *fakeAnchors) Get(ctx context.Context, wallet, positionKey string) (domain.TokenAmount, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(wallet, positionKey)
	at, ok := f.at[k]
	if !ok {
		return domain.TokenAmount{}, time.Time{}, domain.ErrNotFound
	}
	return f.claimed[k], at, nil
}

func (f *fakeAnchors) Delete(ctx context.Context, wallet, positionKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(wallet, positionKey)
	delete(f.claimed, k)
	delete(f.at, k)
	return nil
}

// fakePendingReader serves contract pending-reward reads.
type fakePendingReader struct {
	mu      sync.Mutex
	pending map[uint64]domain.TokenAmount
	err     error
}

func (f *fakePendingReader) PendingReward(ctx context.Context, wallet string, stakeIndex uint64) (domain.TokenAmount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.TokenAmount{}, f.err
	}
	p, ok := f.pending[stakeIndex]
	if !ok {
		return domain.TokenAmount{}, domain.ErrNotFound
	}
	return p, nil
}

// fakeIndexer serves referral and star reads.
type fakeIndexer struct {
	mu       sync.Mutex
	earnings []domain.ReferralEarning
	overview domain.UserOverview
	err      error
}

func (f *fakeIndexer) ReferralEarnings(ctx context.Context, wallet string, first int) ([]domain.ReferralEarning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.earnings) > first {
		return f.earnings[:first], nil
	}
	return f.earnings, nil
}

func (f *fakeIndexer) UserOverview(ctx context.Context, wallet string) (domain.UserOverview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.UserOverview{}, f.err
	}
	return f.overview, nil
}

// fakeProfiles mirrors the write-once referrer semantics of the real
// store.
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.UserProfile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]domain.UserProfile)}
}

func (f *fakeProfiles) Upsert(ctx context.Context, p domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.profiles[p.Wallet]
	now := time.Now().UTC()
	if ok {
		if existing.Referrer != "" {
			p.Referrer = existing.Referrer
		}
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	f.profiles[p.Wallet] = p
	return nil
}

func (f *fakeProfiles) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[strings.ToLower(wallet)]
	if !ok {
		return domain.UserProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.profiles)), nil
}

// fakeAudit records audit events.
type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAudit) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAudit) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAudit) logged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

// fakePriceFeed serves quotes by feed id.
type fakePriceFeed struct {
	mu     sync.Mutex
	quotes map[string]float64
	err    error
	calls  int
}

func (f *fakePriceFeed) SimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	out := make(map[string]float64)
	for _, id := range ids {
		if usd, ok := f.quotes[id]; ok {
			out[id] = usd
		}
	}
	return out, nil
}

func (f *fakePriceFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memPriceCache is an in-memory PriceCache.
type memPriceCache struct {
	mu    sync.Mutex
	price map[string]float64
	at    map[string]time.Time
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{
		price: make(map[string]float64),
		at:    make(map[string]time.Time),
	}
}

func (c *memPriceCache) SetPrice(ctx context.Context, token string, usd float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.price[strings.ToLower(token)] = usd
	c.at[strings.ToLower(token)] = ts
	return nil
}

func (c *memPriceCache) GetPrice(ctx context.Context, token string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	usd, ok := c.price[strings.ToLower(token)]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return usd, c.at[strings.ToLower(token)], nil
}

func (c *memPriceCache) GetPrices(ctx context.Context, tokens []string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64)
	for _, t := range tokens {
		if usd, ok := c.price[strings.ToLower(t)]; ok {
			out[t] = usd
		}
	}
	return out, nil
}

// activePosition builds a confirmed stake for tests.
func activePosition(wallet string, stakeIndex uint64, startAt time.Time) domain.Position {
	pos := domain.Position{
		TxHash:      "0xstake" + strings.Repeat("0", int(stakeIndex)+1),
		User:        strings.ToLower(wallet),
		PackageID:   3,
		StakeIndex:  stakeIndex,
		PackageName: "Gold",
		Amount:      wholeTokens(1000),
		StartAt:     startAt,
		NextClaimAt: startAt.Add(30 * 24 * time.Hour),
		Status:      domain.PositionStatusActive,
		Rules: domain.PackageRules{
			DurationDays:      180,
			AprBps:            1200,
			ClaimIntervalDays: 30,
		},
	}
	pos.Key = pos.DedupKey()
	return pos
}

