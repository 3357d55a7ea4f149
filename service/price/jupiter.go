package price

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultJupiterURL = "https://quote-api.jup.ag"

	// usdcMint denominates Jupiter quotes.
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdcDecimals = 6
)

// JupiterProvider derives a price by asking the Jupiter router what one
// whole token would fetch in USDC. A routable quote proves live liquidity,
// but the price embeds routing slippage, so it is graded est.
type JupiterProvider struct {
	baseURL    string
	httpClient *http.Client
	supply     SupplySource
	now        func() time.Time
}

// NewJupiterProvider builds the provider. The supply source is required:
// quotes are sized from the mint's decimals.
func NewJupiterProvider(supply SupplySource) *JupiterProvider {
	return &JupiterProvider{
		baseURL:    defaultJupiterURL,
		httpClient: &http.Client{Timeout: providerTimeout},
		supply:     supply,
		now:        time.Now,
	}
}

func (p *JupiterProvider) Name() string { return "jupiter" }

type jupiterQuote struct {
	OutAmount string `json:"outAmount"`
}

// Lookup quotes one token into USDC and scales by supply for market cap.
func (p *JupiterProvider) Lookup(ctx context.Context, mint string) (*Result, error) {
	supply, err := p.supply.TokenSupply(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("supply %s: %w", mint, err)
	}

	oneToken := uint64(math.Pow10(int(supply.Decimals)))
	u := fmt.Sprintf("%s/v6/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=50",
		p.baseURL, url.QueryEscape(mint), usdcMint, oneToken)

	var quote jupiterQuote
	if err := getJSON(ctx, p.httpClient, u, nil, &quote); err != nil {
		return nil, err
	}
	if quote.OutAmount == "" {
		return nil, ErrNoPrice
	}
	out, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil || out <= 0 {
		return nil, ErrNoPrice
	}

	priceUSD := out / math.Pow10(usdcDecimals)
	return &Result{
		Mint:         mint,
		PriceUSD:     priceUSD,
		MarketCapUSD: priceUSD * supply.Amount,
		Supply:       supply.Amount,
		Source:       p.Name(),
		Confidence:   ConfidenceEst,
		FetchedAt:    p.now(),
	}, nil
}
