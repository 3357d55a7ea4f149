package marketcap

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/price"
)

const mcMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

// countingProvider serves fixed prices and counts cascade traffic.
type countingProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Lookup(ctx context.Context, mint string) (*price.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	usd, ok := p.prices[mint]
	if !ok {
		return nil, price.ErrNoPrice
	}
	return &price.Result{
		Mint:         mint,
		PriceUSD:     usd,
		MarketCapUSD: usd * 1_000_000,
		Source:       p.Name(),
		Confidence:   price.ConfidenceEst,
		FetchedAt:    time.Now(),
	}, nil
}

func newServiceUnderTest(prices map[string]float64) (*Service, *countingProvider) {
	provider := &countingProvider{prices: prices}
	cascade := price.NewCascade([]price.Provider{provider}, nil, nil)
	tiered := cache.NewTiered(100, time.Hour, nil, nil, nil)
	return NewService(cascade, tiered, nil), provider
}

func TestLookupCachesByDay(t *testing.T) {
	svc, provider := newServiceUnderTest(map[string]float64{mcMint: 0.02})
	ctx := context.Background()

	first := svc.Lookup(ctx, mcMint)
	require.True(t, first.Available())
	assert.InDelta(t, 20_000.0, first.MarketCapUSD, 1e-6)

	second := svc.Lookup(ctx, mcMint)
	assert.InDelta(t, first.MarketCapUSD, second.MarketCapUSD, 1e-9)
	assert.Equal(t, 1, provider.calls)

	stats := svc.Stats()
	assert.EqualValues(t, 2, stats.Lookups)
	assert.EqualValues(t, 1, stats.CacheHits)
}

func TestLookupUnavailableNotCached(t *testing.T) {
	svc, provider := newServiceUnderTest(map[string]float64{})
	ctx := context.Background()

	res := svc.Lookup(ctx, "unknownMint")
	assert.False(t, res.Available())

	// A second lookup retries the cascade instead of serving the failure.
	svc.Lookup(ctx, "unknownMint")
	assert.Equal(t, 2, provider.calls)
}

func TestLookupBatchCollapsesDuplicatesAndUsesCache(t *testing.T) {
	svc, provider := newServiceUnderTest(map[string]float64{
		"mintA": 1.0,
		"mintB": 2.0,
	})
	ctx := context.Background()

	// Warm one mint.
	svc.Lookup(ctx, "mintA")
	require.Equal(t, 1, provider.calls)

	out, err := svc.LookupBatch(ctx, []string{"mintA", "mintB", "mintB", "mintA"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.InDelta(t, 1.0, out["mintA"].PriceUSD, 1e-12)
	assert.InDelta(t, 2.0, out["mintB"].PriceUSD, 1e-12)
	// Only mintB was cold.
	assert.Equal(t, 2, provider.calls)
}

func TestLookupBatchSizeLimit(t *testing.T) {
	svc, _ := newServiceUnderTest(nil)

	mints := make([]string, MaxBatchSize+1)
	for i := range mints {
		mints[i] = fmt.Sprintf("mint%d", i)
	}
	_, err := svc.LookupBatch(context.Background(), mints)
	require.Error(t, err)

	_, err = svc.LookupBatch(context.Background(), mints[:MaxBatchSize])
	assert.NoError(t, err)
}

func TestLookupBatchHonorsCancellation(t *testing.T) {
	svc, _ := newServiceUnderTest(map[string]float64{"mintA": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.LookupBatch(ctx, []string{"mintA", "mintB"})
	assert.ErrorIs(t, err, context.Canceled)
}
