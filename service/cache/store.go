package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/price"
)

// dayFormat buckets cache keys by UTC calendar day. Historical prices at
// daily granularity are good enough for P&L, and daily buckets keep the
// key space bounded.
const dayFormat = "2006-01-02"

// DayKey builds the cache key for a mint at a moment in time.
func DayKey(mint string, ts time.Time) string {
	return mint + ":" + ts.UTC().Format(dayFormat)
}

// Durable is the persistent tier behind the in-process LRU.
type Durable interface {
	Get(ctx context.Context, key string) (*price.Result, error)
	GetBatch(ctx context.Context, keys []string) (map[string]*price.Result, error)
	Set(ctx context.Context, key string, res *price.Result) error
}

// Tiered is the two-tier price cache: a hot in-process LRU in front of an
// optional durable store. Durable-tier failures are absorbed silently; the
// cache degrades to LRU-only rather than failing the lookup.
type Tiered struct {
	lru     *LRU[string, *price.Result]
	durable Durable
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTiered builds the cache. durable may be nil for LRU-only operation.
func NewTiered(capacity int, ttl time.Duration, durable Durable, m *metrics.Metrics, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{
		lru:     NewLRU[string, *price.Result](capacity, ttl),
		durable: durable,
		logger:  logger,
		metrics: m,
	}
}

// Get looks a key up through both tiers, promoting durable hits into the
// LRU on the way out.
func (t *Tiered) Get(ctx context.Context, key string) (*price.Result, bool) {
	if res, ok := t.lru.Get(key); ok {
		t.metrics.RecordCacheOp("lru", "get", "hit")
		return res, true
	}
	t.metrics.RecordCacheOp("lru", "get", "miss")

	if t.durable == nil {
		return nil, false
	}
	res, err := t.durable.Get(ctx, key)
	if err != nil {
		t.metrics.RecordCacheOp("durable", "get", "error")
		t.logger.Debug("durable cache read failed", "key", key, "error", err)
		return nil, false
	}
	if res == nil {
		t.metrics.RecordCacheOp("durable", "get", "miss")
		return nil, false
	}
	t.metrics.RecordCacheOp("durable", "get", "hit")
	t.lru.Set(key, res)
	return res, true
}

// GetBatch resolves many keys at once: LRU first, then one durable round
// trip for the remainder. The returned map contains only resolved keys.
func (t *Tiered) GetBatch(ctx context.Context, keys []string) map[string]*price.Result {
	out := make(map[string]*price.Result, len(keys))
	var missing []string
	for _, key := range keys {
		if res, ok := t.lru.Get(key); ok {
			t.metrics.RecordCacheOp("lru", "get", "hit")
			out[key] = res
			continue
		}
		t.metrics.RecordCacheOp("lru", "get", "miss")
		missing = append(missing, key)
	}
	if t.durable == nil || len(missing) == 0 {
		return out
	}

	found, err := t.durable.GetBatch(ctx, missing)
	if err != nil {
		t.metrics.RecordCacheOp("durable", "mget", "error")
		t.logger.Debug("durable cache batch read failed", "keys", len(missing), "error", err)
		return out
	}
	for key, res := range found {
		t.metrics.RecordCacheOp("durable", "get", "hit")
		t.lru.Set(key, res)
		out[key] = res
	}
	return out
}

// Set writes through both tiers. Unavailable results are not cached: a
// later run should retry the full cascade rather than inherit a failure.
func (t *Tiered) Set(ctx context.Context, key string, res *price.Result) {
	if !res.Available() {
		return
	}
	t.lru.Set(key, res)
	t.metrics.RecordCacheOp("lru", "set", "ok")

	if t.durable == nil {
		return
	}
	if err := t.durable.Set(ctx, key, res); err != nil {
		t.metrics.RecordCacheOp("durable", "set", "error")
		t.logger.Debug("durable cache write failed", "key", key, "error", err)
		return
	}
	t.metrics.RecordCacheOp("durable", "set", "ok")
}

// Stats exposes the LRU hit and miss counters.
func (t *Tiered) Stats() (hits, misses uint64) {
	return t.lru.Stats()
}
