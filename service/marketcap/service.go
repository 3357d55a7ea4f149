package marketcap

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/price"
)

// MaxBatchSize bounds a single batch lookup. Each uncached mint costs a
// full cascade walk, so unbounded batches would let one request monopolize
// the upstream rate budget.
const MaxBatchSize = 50

// Service answers market-cap queries through the day-bucketed price cache,
// falling back to the provider cascade and writing fresh results back.
type Service struct {
	cascade *price.Cascade
	cache   *cache.Tiered
	logger  *slog.Logger
	now     func() time.Time

	lookups   atomic.Int64
	cacheHits atomic.Int64
}

// Stats is a snapshot of service activity.
type Stats struct {
	Lookups   int64 `json:"lookups"`
	CacheHits int64 `json:"cache_hits"`
}

// NewService builds the market-cap service.
func NewService(cascade *price.Cascade, priceCache *cache.Tiered, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cascade: cascade,
		cache:   priceCache,
		logger:  logger,
		now:     time.Now,
	}
}

// Lookup resolves the current market cap for one mint. The result is never
// nil: total provider failure yields an unavailable result.
func (s *Service) Lookup(ctx context.Context, mint string) *price.Result {
	s.lookups.Add(1)
	key := cache.DayKey(mint, s.now())
	if res, ok := s.cache.Get(ctx, key); ok {
		s.cacheHits.Add(1)
		return res
	}

	res := s.cascade.Lookup(ctx, mint)
	s.cache.Set(ctx, key, res)
	return res
}

// LookupBatch resolves up to MaxBatchSize mints. Cached entries are fetched
// in one round trip; only the misses walk the cascade. Duplicate mints are
// collapsed.
func (s *Service) LookupBatch(ctx context.Context, mints []string) (map[string]*price.Result, error) {
	if len(mints) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit of %d", len(mints), MaxBatchSize)
	}

	now := s.now()
	unique := make([]string, 0, len(mints))
	keyFor := make(map[string]string, len(mints))
	for _, mint := range mints {
		if _, seen := keyFor[mint]; seen || mint == "" {
			continue
		}
		keyFor[mint] = cache.DayKey(mint, now)
		unique = append(unique, mint)
	}

	keys := make([]string, len(unique))
	for i, mint := range unique {
		keys[i] = keyFor[mint]
	}
	cached := s.cache.GetBatch(ctx, keys)

	out := make(map[string]*price.Result, len(unique))
	for _, mint := range unique {
		s.lookups.Add(1)
		if res, ok := cached[keyFor[mint]]; ok {
			s.cacheHits.Add(1)
			out[mint] = res
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := s.cascade.Lookup(ctx, mint)
		s.cache.Set(ctx, keyFor[mint], res)
		out[mint] = res
	}
	return out, nil
}

// Stats returns cumulative lookup counters.
func (s *Service) Stats() Stats {
	return Stats{
		Lookups:   s.lookups.Load(),
		CacheHits: s.cacheHits.Load(),
	}
}
