package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreenerProvider is the last-resort aggregator: keyless, generous rate
// limits, but the slowest to reflect fresh pools.
type DexScreenerProvider struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewDexScreenerProvider builds the provider.
func NewDexScreenerProvider() *DexScreenerProvider {
	return &DexScreenerProvider{
		baseURL:    defaultDexScreenerURL,
		httpClient: &http.Client{Timeout: providerTimeout},
		now:        time.Now,
	}
}

func (p *DexScreenerProvider) Name() string { return "dexscreener" }

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	PriceUSD  string  `json:"priceUsd"`
	FDV       float64 `json:"fdv"`
	MarketCap float64 `json:"marketCap"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Lookup fetches every pair for the mint and prices from the deepest one.
func (p *DexScreenerProvider) Lookup(ctx context.Context, mint string) (*Result, error) {
	u := fmt.Sprintf("%s/latest/dex/tokens/%s", p.baseURL, url.PathEscape(mint))

	var body dexScreenerResponse
	if err := getJSON(ctx, p.httpClient, u, nil, &body); err != nil {
		return nil, err
	}
	if len(body.Pairs) == 0 {
		return nil, ErrNoPrice
	}

	best := body.Pairs[0]
	for _, pair := range body.Pairs[1:] {
		if liquidityUSD(pair) > liquidityUSD(best) {
			best = pair
		}
	}

	priceUSD, err := strconv.ParseFloat(best.PriceUSD, 64)
	if err != nil || priceUSD <= 0 {
		return nil, ErrNoPrice
	}

	marketCap := best.MarketCap
	if marketCap == 0 {
		marketCap = best.FDV
	}
	return &Result{
		Mint:         mint,
		PriceUSD:     priceUSD,
		MarketCapUSD: marketCap,
		PoolTVLUSD:   liquidityUSD(best),
		Source:       p.Name(),
		Confidence:   ConfidenceEst,
		FetchedAt:    p.now(),
	}, nil
}

func liquidityUSD(pair dexScreenerPair) float64 {
	if pair.Liquidity == nil {
		return 0
	}
	return pair.Liquidity.USD
}
