package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/walletglass/walletglass/service/ledger"
)

const defaultBirdeyeURL = "https://public-api.birdeye.so"

// BirdeyeProvider prices mints through the Birdeye aggregator. Aggregator
// prices are graded est: they lag the chain and blend across venues.
type BirdeyeProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	supply     SupplySource
	now        func() time.Time
}

// NewBirdeyeProvider builds the provider. supply may be nil, in which case
// market cap is left unset.
func NewBirdeyeProvider(apiKey string, supply SupplySource) *BirdeyeProvider {
	return &BirdeyeProvider{
		apiKey:     apiKey,
		baseURL:    defaultBirdeyeURL,
		httpClient: &http.Client{Timeout: providerTimeout},
		supply:     supply,
		now:        time.Now,
	}
}

func (p *BirdeyeProvider) Name() string { return "birdeye" }

type birdeyeResponse struct {
	Data *struct {
		Value          float64 `json:"value"`
		UpdateUnixTime int64   `json:"updateUnixTime"`
		Liquidity      float64 `json:"liquidity"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Lookup fetches the current price for a mint.
func (p *BirdeyeProvider) Lookup(ctx context.Context, mint string) (*Result, error) {
	if p.apiKey == "" {
		return nil, ErrNoPrice
	}

	u := fmt.Sprintf("%s/defi/price?address=%s", p.baseURL, url.QueryEscape(mint))
	var body birdeyeResponse
	err := getJSON(ctx, p.httpClient, u, map[string]string{
		"X-API-KEY": p.apiKey,
		"x-chain":   "solana",
	}, &body)
	if err != nil {
		return nil, err
	}
	if !body.Success || body.Data == nil || body.Data.Value <= 0 {
		return nil, ErrNoPrice
	}

	res := &Result{
		Mint:       mint,
		PriceUSD:   body.Data.Value,
		Source:     p.Name(),
		Confidence: ConfidenceEst,
		FetchedAt:  p.now(),
	}

	// The aggregator's own market cap accounts for burns and locked supply.
	// Deriving it from total on-chain supply is the fallback.
	if mc, circ := p.marketData(ctx, mint); mc > 0 {
		res.MarketCapUSD = mc
		res.Supply = circ
	}
	if res.Supply == 0 && p.supply != nil {
		if s, err := p.supply.TokenSupply(ctx, mint); err == nil {
			res.Supply = s.Amount
			if res.MarketCapUSD == 0 {
				res.MarketCapUSD = res.PriceUSD * s.Amount
			}
		}
	}
	return res, nil
}

type birdeyeMarketDataResponse struct {
	Data *struct {
		MarketCap         float64 `json:"market_cap"`
		CirculatingSupply float64 `json:"circulating_supply"`
	} `json:"data"`
	Success bool `json:"success"`
}

// marketData fetches the aggregator-reported market cap and circulating
// supply. Zeroes mean the endpoint had nothing for this mint.
func (p *BirdeyeProvider) marketData(ctx context.Context, mint string) (marketCap, circulating float64) {
	u := fmt.Sprintf("%s/defi/v3/token/market-data?address=%s", p.baseURL, url.QueryEscape(mint))
	var body birdeyeMarketDataResponse
	err := getJSON(ctx, p.httpClient, u, map[string]string{
		"X-API-KEY": p.apiKey,
		"x-chain":   "solana",
	}, &body)
	if err != nil || !body.Success || body.Data == nil {
		return 0, 0
	}
	return body.Data.MarketCap, body.Data.CirculatingSupply
}

// NativeUSD returns the native token's USD price, for denominating on-chain
// pool reserves.
func (p *BirdeyeProvider) NativeUSD(ctx context.Context) (float64, error) {
	res, err := p.Lookup(ctx, ledger.NativeMint)
	if err != nil {
		return 0, err
	}
	return res.PriceUSD, nil
}
