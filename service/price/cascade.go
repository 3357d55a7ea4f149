package price

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/walletglass/walletglass/service/metrics"
)

// Provider is one price source. Lookup returns ErrNoPrice when the source
// simply has no data for the mint, and any other error when the source
// itself failed. Either way the cascade moves on to the next source.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, mint string) (*Result, error)
}

// Cascade tries providers in order and returns the first usable result.
// When every provider fails the result is explicitly unavailable rather
// than zero, so a missing price can never masquerade as a worthless token.
type Cascade struct {
	providers []Provider
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewCascade builds a cascade over the given providers in priority order.
func NewCascade(providers []Provider, m *metrics.Metrics, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		providers: providers,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// OrderProviders resolves configured provider names against the available
// set, preserving order and skipping unknown names.
func OrderProviders(names []string, byName map[string]Provider) []Provider {
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := byName[name]; ok && p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Lookup resolves a price for the mint. It never returns an error: total
// failure yields an unavailable result.
func (c *Cascade) Lookup(ctx context.Context, mint string) *Result {
	for _, p := range c.providers {
		start := c.now()
		res, err := p.Lookup(ctx, mint)
		elapsed := time.Since(start).Seconds()

		switch {
		case err == nil && res.Available():
			c.metrics.RecordPriceLookup(p.Name(), "hit", elapsed)
			return res
		case errors.Is(err, ErrNoPrice):
			c.metrics.RecordPriceLookup(p.Name(), "miss", elapsed)
		case err != nil:
			c.metrics.RecordPriceLookup(p.Name(), "error", elapsed)
			c.logger.Warn("price provider failed",
				"provider", p.Name(), "mint", mint, "error", err)
		default:
			// A nil error with an unusable result counts as a miss.
			c.metrics.RecordPriceLookup(p.Name(), "miss", elapsed)
		}

		if ctx.Err() != nil {
			break
		}
	}
	return Unavailable(mint, c.now())
}
