package price

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletglass/walletglass/service/ledger"
)

type fixedSupply struct {
	supply ledger.Supply
	err    error
}

func (s fixedSupply) TokenSupply(ctx context.Context, mint string) (ledger.Supply, error) {
	return s.supply, s.err
}

func TestBirdeyeLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, cascadeMint, r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		switch r.URL.Path {
		case "/defi/price":
			fmt.Fprint(w, `{"data":{"value":0.025,"updateUnixTime":1700000000,"liquidity":150000},"success":true}`)
		case "/defi/v3/token/market-data":
			fmt.Fprint(w, `{"data":null,"success":false}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewBirdeyeProvider("test-key", fixedSupply{supply: ledger.Supply{Amount: 1_000_000}})
	p.baseURL = srv.URL

	res, err := p.Lookup(context.Background(), cascadeMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.025, res.PriceUSD, 1e-12)
	// Market-data endpoint empty: cap derived from price times supply.
	assert.InDelta(t, 25_000.0, res.MarketCapUSD, 1e-6)
	assert.Equal(t, ConfidenceEst, res.Confidence)
}

func TestBirdeyeReportedMarketCapWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/defi/price":
			fmt.Fprint(w, `{"data":{"value":0.025},"success":true}`)
		case "/defi/v3/token/market-data":
			fmt.Fprint(w, `{"data":{"market_cap":18000,"circulating_supply":720000},"success":true}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	// Supply source says 1M tokens, which would derive a $25k cap. The
	// aggregator's own figure accounts for burns and must win.
	p := NewBirdeyeProvider("test-key", fixedSupply{supply: ledger.Supply{Amount: 1_000_000}})
	p.baseURL = srv.URL

	res, err := p.Lookup(context.Background(), cascadeMint)
	require.NoError(t, err)
	assert.InDelta(t, 18_000.0, res.MarketCapUSD, 1e-6)
	assert.InDelta(t, 720_000.0, res.Supply, 1e-6)
}

func TestBirdeyeNoDataIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null,"success":false}`)
	}))
	defer srv.Close()

	p := NewBirdeyeProvider("test-key", nil)
	p.baseURL = srv.URL

	_, err := p.Lookup(context.Background(), cascadeMint)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestBirdeyeWithoutKeyIsMiss(t *testing.T) {
	p := NewBirdeyeProvider("", nil)
	_, err := p.Lookup(context.Background(), cascadeMint)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestBirdeyeServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewBirdeyeProvider("test-key", nil)
	p.baseURL = srv.URL

	_, err := p.Lookup(context.Background(), cascadeMint)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPrice)
}

func TestJupiterQuotePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/quote", r.URL.Path)
		assert.Equal(t, cascadeMint, r.URL.Query().Get("inputMint"))
		assert.Equal(t, usdcMint, r.URL.Query().Get("outputMint"))
		// One whole token at 6 decimals.
		assert.Equal(t, "1000000", r.URL.Query().Get("amount"))
		fmt.Fprint(w, `{"outAmount":"42000"}`)
	}))
	defer srv.Close()

	p := NewJupiterProvider(fixedSupply{supply: ledger.Supply{Amount: 500_000, Decimals: 6}})
	p.baseURL = srv.URL

	res, err := p.Lookup(context.Background(), cascadeMint)
	require.NoError(t, err)
	// 42000 micro-USDC for one token.
	assert.InDelta(t, 0.042, res.PriceUSD, 1e-12)
	assert.InDelta(t, 21_000.0, res.MarketCapUSD, 1e-6)
}

func TestJupiterNoRouteIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewJupiterProvider(fixedSupply{supply: ledger.Supply{Decimals: 6}})
	p.baseURL = srv.URL

	_, err := p.Lookup(context.Background(), cascadeMint)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestDexScreenerPicksDeepestPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+cascadeMint, r.URL.Path)
		fmt.Fprint(w, `{"pairs":[
			{"priceUsd":"0.010","liquidity":{"usd":1000},"marketCap":100000},
			{"priceUsd":"0.012","liquidity":{"usd":90000},"marketCap":120000},
			{"priceUsd":"0.500","liquidity":{"usd":50}}
		]}`)
	}))
	defer srv.Close()

	p := NewDexScreenerProvider()
	p.baseURL = srv.URL

	res, err := p.Lookup(context.Background(), cascadeMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.012, res.PriceUSD, 1e-12)
	assert.InDelta(t, 120_000.0, res.MarketCapUSD, 1e-6)
	assert.InDelta(t, 90_000.0, res.PoolTVLUSD, 1e-6)
}

func TestDexScreenerNoPairsIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pairs":[]}`)
	}))
	defer srv.Close()

	p := NewDexScreenerProvider()
	p.baseURL = srv.URL

	_, err := p.Lookup(context.Background(), cascadeMint)
	assert.ErrorIs(t, err, ErrNoPrice)
}
