package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// PriceFeed is the upstream the refresher pulls quotes from.
type PriceFeed interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]float64, error)
}

// PriceService keeps the token USD price cache warm and serves reads
// from it. The token map pairs ERC-20 addresses with their feed ids.
type PriceService struct {
	feed   PriceFeed
	cache  domain.PriceCache
	bus    domain.EventBus
	logger *slog.Logger

	tokens map[string]string // token address -> feed id
	now    func() time.Time
}

// NewPriceService creates a PriceService.
func NewPriceService(
	feed PriceFeed,
	cache domain.PriceCache,
	bus domain.EventBus,
	tokens map[string]string,
	logger *slog.Logger,
) *PriceService {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make(map[string]string, len(tokens))
	for token, id := range tokens {
		normalized[strings.ToLower(token)] = id
	}
	return &PriceService{
		feed:   feed,
		cache:  cache,
		bus:    bus,
		logger: logger,
		tokens: normalized,
		now:    time.Now,
	}
}

// Refresh pulls every configured token quote into the cache and signals
// listeners once per sweep.
func (s *PriceService) Refresh(ctx context.Context) error {
	if len(s.tokens) == 0 {
		return nil
	}

	ids := make([]string, 0, len(s.tokens))
	seen := make(map[string]struct{}, len(s.tokens))
	for _, id := range s.tokens {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	quotes, err := s.feed.SimplePrice(ctx, ids)
	if err != nil {
		return fmt.Errorf("price_service: fetch quotes: %w", err)
	}

	now := s.now().UTC()
	var stored int64
	for token, id := range s.tokens {
		usd, ok := quotes[id]
		if !ok {
			s.logger.WarnContext(ctx, "price_service: feed returned no quote",
				slog.String("token", token),
				slog.String("feed_id", id),
			)
			continue
		}
		if err := s.cache.SetPrice(ctx, token, usd, now); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache write failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored++
	}

	if stored > 0 {
		s.bus.Publish(domain.Event{
			Kind:  domain.EventPricesUpdated,
			At:    now,
			Count: stored,
		})
	}
	return nil
}

// Prices returns cached USD quotes for the requested tokens. Tokens
// without a cached quote are omitted.
func (s *PriceService) Prices(ctx context.Context, tokens []string) (map[string]float64, error) {
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}

	quotes, err := s.cache.GetPrices(ctx, lowered)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return quotes, nil
}

// TrackedTokens lists the configured token addresses in stable order.
func (s *PriceService) TrackedTokens() []string {
	tokens := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}
