// Package source fetches authoritative position data. The subgraph is the
// primary source; direct chain reads are the fallback; Redis keeps the last
// good answer so the dashboard degrades to stale data instead of blanking.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
	"github.com/starstake/stakeboard/internal/retry"
)

const (
	defaultCacheTTL        = 60 * time.Second
	defaultFailureCooldown = 90 * time.Second
	defaultRetries         = 3
	defaultRetryBaseDelay  = 200 * time.Millisecond
	defaultMaxPositions    = 200

	// Catalogue rows change on governance actions only; a longer
	// freshness window and a day of retention are plenty.
	catalogueFreshFor  = 10 * time.Minute
	catalogueRetention = 24 * time.Hour

	// After this many consecutive subgraph failures reads route straight
	// to the chain until the cooldown lapses.
	failureThreshold = 3

	minCacheRetention = 30 * time.Minute
)

// SubgraphReader is the slice of the subgraph client the source consumes.
type SubgraphReader interface {
	PositionsByUser(ctx context.Context, wallet string, first int) ([]domain.Position, error)
	Packages(ctx context.Context) ([]domain.Package, error)
}

// ChainReader is the slice of the staking contract the source consumes.
type ChainReader interface {
	PositionsOf(ctx context.Context, wallet string) ([]domain.Position, error)
	Packages(ctx context.Context) ([]domain.Package, error)
}

// Origin names where a position read came from.
type Origin string

const (
	OriginSubgraph Origin = "subgraph"
	OriginChain    Origin = "chain"
	OriginCache    Origin = "cache"
)

// Result is one position read with its provenance.
type Result struct {
	Positions []domain.Position
	FetchedAt time.Time
	Origin    Origin
	// Degraded is set when every live source failed and Positions is
	// whatever the cache still held.
	Degraded bool
}

// Health reports the live state of the upstream sources.
type Health struct {
	SubgraphHealthy bool      `json:"subgraph_healthy"`
	FailStreak      int       `json:"fail_streak"`
	CooldownUntil   time.Time `json:"cooldown_until"`
	ChainFallback   bool      `json:"chain_fallback"`
}

// Config tunes the dual-source reads.
type Config struct {
	CacheTTL        time.Duration // freshness window for cache hits
	CacheRetention  time.Duration // physical Redis TTL, well above CacheTTL
	FailureCooldown time.Duration
	Retries         int
	RetryBaseDelay  time.Duration
	MaxPositions    int // subgraph page size
}

// PositionSource reads positions subgraph-first with chain fallback and a
// Redis cache in front. Concurrent fetches for the same wallet are ordered
// by a per-wallet generation counter so an older in-flight read can never
// overwrite a newer one.
type PositionSource struct {
	cfg      Config
	subgraph SubgraphReader
	chain    ChainReader // nil when no RPC endpoint is configured
	cache    domain.PositionCache
	packages domain.PackageCache
	logger   *slog.Logger

	mu            sync.Mutex
	failStreak    int
	cooldownUntil time.Time
	lastStarted   map[string]uint64
	lastCommitted map[string]uint64
	walletLocks   map[string]*sync.Mutex
	catalogueAt   time.Time
}

// New creates a PositionSource. chain may be nil; subgraph, cache and
// packages are required.
func New(cfg Config, sg SubgraphReader, chain ChainReader, cache domain.PositionCache, packages domain.PackageCache, logger *slog.Logger) *PositionSource {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheRetention <= 0 {
		cfg.CacheRetention = 10 * cfg.CacheTTL
		if cfg.CacheRetention < minCacheRetention {
			cfg.CacheRetention = minCacheRetention
		}
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = defaultFailureCooldown
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = defaultMaxPositions
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PositionSource{
		cfg:           cfg,
		subgraph:      sg,
		chain:         chain,
		cache:         cache,
		packages:      packages,
		logger:        logger.With(slog.String("component", "source")),
		lastStarted:   make(map[string]uint64),
		lastCommitted: make(map[string]uint64),
		walletLocks:   make(map[string]*sync.Mutex),
	}
}

// Positions returns wallet's authoritative list, serving a fresh cache hit
// without touching upstream.
func (s *PositionSource) Positions(ctx context.Context, wallet string) (Result, error) {
	return s.fetch(ctx, wallet, false)
}

// Refresh forces a live read past the freshness window. Post-action bursts
// land here so the cache cannot mask a row the chain just created.
func (s *PositionSource) Refresh(ctx context.Context, wallet string) (Result, error) {
	return s.fetch(ctx, wallet, true)
}

// Invalidate drops wallet's cached list.
func (s *PositionSource) Invalidate(ctx context.Context, wallet string) error {
	return s.cache.Invalidate(ctx, strings.ToLower(wallet))
}

// Health reports subgraph standing and whether a chain fallback is wired.
func (s *PositionSource) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Health{
		SubgraphHealthy: time.Now().After(s.cooldownUntil),
		FailStreak:      s.failStreak,
		CooldownUntil:   s.cooldownUntil,
		ChainFallback:   s.chain != nil,
	}
}

func (s *PositionSource) fetch(ctx context.Context, wallet string, skipFresh bool) (Result, error) {
	wallet = strings.ToLower(wallet)

	if !skipFresh {
		if res, ok := s.cachedFresh(ctx, wallet); ok {
			return res, nil
		}
	}

	gen := s.beginFetch(wallet)

	positions, origin, liveErr := s.fetchLive(ctx, wallet)
	if liveErr == nil {
		if s.commit(ctx, wallet, gen, positions) {
			return Result{Positions: positions, FetchedAt: time.Now().UTC(), Origin: origin}, nil
		}
		// A newer fetch committed while this one was in flight; its
		// answer supersedes ours.
		return s.cached(ctx, wallet)
	}

	// Every live source failed: degrade to whatever the cache still holds.
	cached, fetchedAt, cacheErr := s.cache.Get(ctx, wallet)
	if cacheErr != nil {
		return Result{}, fmt.Errorf("source: positions %s: %w", wallet, errors.Join(liveErr, domain.ErrSourceDegraded))
	}

	s.logger.WarnContext(ctx, "serving stale positions",
		slog.String("wallet", wallet),
		slog.Time("fetched_at", fetchedAt),
		slog.String("error", liveErr.Error()))

	return Result{Positions: cached, FetchedAt: fetchedAt, Origin: OriginCache, Degraded: true}, nil
}

// fetchLive tries the subgraph, then the chain. During a failure cooldown
// the subgraph is skipped, but only when a chain fallback exists to take
// over.
func (s *PositionSource) fetchLive(ctx context.Context, wallet string) ([]domain.Position, Origin, error) {
	useSubgraph := s.chain == nil || !s.inCooldown()

	var subgraphErr error
	if useSubgraph {
		positions, err := retry.DoValue(ctx, s.retryPolicy(), func() ([]domain.Position, error) {
			return s.subgraph.PositionsByUser(ctx, wallet, s.cfg.MaxPositions)
		})
		if err == nil {
			s.recordSuccess()
			return positions, OriginSubgraph, nil
		}
		subgraphErr = err
		s.recordFailure()
		s.logger.WarnContext(ctx, "subgraph read failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()))
	}

	if s.chain == nil {
		return nil, "", fmt.Errorf("source: subgraph unavailable: %w", subgraphErr)
	}

	positions, err := s.chain.PositionsOf(ctx, wallet)
	if err != nil {
		if subgraphErr != nil {
			err = errors.Join(subgraphErr, err)
		}
		return nil, "", fmt.Errorf("source: chain fallback: %w", err)
	}
	s.stitch(ctx, positions)
	return positions, OriginChain, nil
}

// cachedFresh returns a cache hit younger than the freshness window.
func (s *PositionSource) cachedFresh(ctx context.Context, wallet string) (Result, bool) {
	positions, fetchedAt, err := s.cache.Get(ctx, wallet)
	if err != nil || time.Since(fetchedAt) > s.cfg.CacheTTL {
		return Result{}, false
	}
	return Result{Positions: positions, FetchedAt: fetchedAt, Origin: OriginCache}, true
}

// cached returns the cache entry regardless of age.
func (s *PositionSource) cached(ctx context.Context, wallet string) (Result, error) {
	positions, fetchedAt, err := s.cache.Get(ctx, wallet)
	if err != nil {
		return Result{}, fmt.Errorf("source: positions %s: %w", wallet, err)
	}
	return Result{Positions: positions, FetchedAt: fetchedAt, Origin: OriginCache}, nil
}

// Packages returns the catalogue, cached in Redis and refreshed from the
// subgraph (chain as fallback) when the freshness window lapses.
func (s *PositionSource) Packages(ctx context.Context) ([]domain.Package, error) {
	s.mu.Lock()
	fresh := time.Since(s.catalogueAt) <= catalogueFreshFor
	s.mu.Unlock()

	if fresh {
		if packages, err := s.packages.GetAll(ctx); err == nil {
			return packages, nil
		}
	}

	packages, err := retry.DoValue(ctx, s.retryPolicy(), func() ([]domain.Package, error) {
		return s.subgraph.Packages(ctx)
	})
	if err != nil && s.chain != nil {
		s.logger.WarnContext(ctx, "subgraph catalogue read failed",
			slog.String("error", err.Error()))
		packages, err = s.chain.Packages(ctx)
	}
	if err != nil {
		// Serve the stale catalogue if one survives in Redis.
		if cached, cacheErr := s.packages.GetAll(ctx); cacheErr == nil {
			return cached, nil
		}
		return nil, fmt.Errorf("source: packages: %w", err)
	}

	if cacheErr := s.packages.SetAll(ctx, packages, catalogueRetention); cacheErr != nil {
		s.logger.WarnContext(ctx, "catalogue cache write failed",
			slog.String("error", cacheErr.Error()))
	}
	s.mu.Lock()
	s.catalogueAt = time.Now()
	s.mu.Unlock()

	return packages, nil
}

// stitch fills package-derived fields on chain-read positions. The chain
// exposes raw stake tuples only; names, rules and the claim schedule come
// from the catalogue.
func (s *PositionSource) stitch(ctx context.Context, positions []domain.Position) {
	if len(positions) == 0 {
		return
	}
	packages, err := s.Packages(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "rules stitch skipped",
			slog.String("error", err.Error()))
		return
	}
	byID := make(map[uint64]domain.Package, len(packages))
	for _, p := range packages {
		byID[p.ID] = p
	}

	now := time.Now().UTC()
	for i := range positions {
		pkg, ok := byID[positions[i].PackageID]
		if !ok {
			continue
		}
		positions[i].PackageName = pkg.Name
		positions[i].Rules = pkg.Rules()
		positions[i].NextClaimAt = nextClaimAfter(positions[i].StartAt, pkg.ClaimIntervalDays, now)
	}
}

// nextClaimAfter projects the first claim slot after now on the interval
// grid anchored at startAt.
func nextClaimAfter(startAt time.Time, intervalDays int, now time.Time) time.Time {
	if intervalDays <= 0 || startAt.IsZero() {
		return time.Time{}
	}
	interval := time.Duration(intervalDays) * 24 * time.Hour

	elapsed := now.Sub(startAt)
	if elapsed < 0 {
		return startAt.Add(interval)
	}
	n := int64(elapsed/interval) + 1
	return startAt.Add(time.Duration(n) * interval)
}

func (s *PositionSource) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Attempts = s.cfg.Retries
	p.BaseDelay = s.cfg.RetryBaseDelay
	// Interactive reads; long backoffs belong to the cooldown, not here.
	p.MaxDelay = 2 * time.Second
	return p
}

func (s *PositionSource) inCooldown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.cooldownUntil)
}

func (s *PositionSource) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStreak++
	if s.failStreak >= failureThreshold {
		s.cooldownUntil = time.Now().Add(s.cfg.FailureCooldown)
	}
}

func (s *PositionSource) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStreak = 0
	s.cooldownUntil = time.Time{}
}

// beginFetch hands out the next generation number for wallet.
func (s *PositionSource) beginFetch(wallet string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStarted[wallet]++
	return s.lastStarted[wallet]
}

// commit publishes a fetch result to the cache unless a newer generation
// already did. The per-wallet lock spans the check and the cache write so
// commit order cannot invert between them.
func (s *PositionSource) commit(ctx context.Context, wallet string, gen uint64, positions []domain.Position) bool {
	wl := s.walletLock(wallet)
	wl.Lock()
	defer wl.Unlock()

	s.mu.Lock()
	if gen <= s.lastCommitted[wallet] {
		s.mu.Unlock()
		return false
	}
	s.lastCommitted[wallet] = gen
	s.mu.Unlock()

	if err := s.cache.Set(ctx, wallet, positions, s.cfg.CacheRetention); err != nil {
		s.logger.WarnContext(ctx, "position cache write failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()))
	}
	return true
}

func (s *PositionSource) walletLock(wallet string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	wl, ok := s.walletLocks[wallet]
	if !ok {
		wl = &sync.Mutex{}
		s.walletLocks[wallet] = wl
	}
	return wl
}
