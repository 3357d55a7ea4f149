package price

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/walletglass/walletglass/service/ledger"
)

// bondingCurveDataLen is the minimum account size for a bonding-curve pool:
// an 8-byte discriminator followed by four u64 reserve fields.
const bondingCurveDataLen = 8 + 4*8

// pumpTokenDecimals is the mint decimal count used by bonding-curve launches.
const pumpTokenDecimals = 6

// PoolRegistry maps mints to their bonding-curve pool accounts. Lookups for
// unregistered mints fall through to the off-chain providers.
type PoolRegistry struct {
	mu    sync.RWMutex
	pools map[string]solana.PublicKey
}

// NewPoolRegistry returns an empty registry.
func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{pools: make(map[string]solana.PublicKey)}
}

// Register associates a mint with its pool account.
func (r *PoolRegistry) Register(mint, pool string) error {
	pk, err := solana.PublicKeyFromBase58(pool)
	if err != nil {
		return fmt.Errorf("invalid pool account %q: %w", pool, err)
	}
	r.mu.Lock()
	r.pools[mint] = pk
	r.mu.Unlock()
	return nil
}

// Pool returns the pool account for a mint, if registered.
func (r *PoolRegistry) Pool(mint string) (solana.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pk, ok := r.pools[mint]
	return pk, ok
}

// ChainReader is the ledger surface the AMM provider needs.
type ChainReader interface {
	TokenSupply(ctx context.Context, mint string) (ledger.Supply, error)
	AccountData(ctx context.Context, accounts []solana.PublicKey) ([][]byte, error)
}

// NativeQuoter supplies the native-token USD price used to denominate pool
// reserves.
type NativeQuoter interface {
	NativeUSD(ctx context.Context) (float64, error)
}

// AMMProvider prices a mint directly from its bonding-curve pool reserves.
// It is the only source graded high confidence: the reserves are read from
// chain state, not an aggregator. Pools whose real liquidity sits under the
// TVL floor still return a price, downgraded to an estimate.
type AMMProvider struct {
	chain     ChainReader
	registry  *PoolRegistry
	native    NativeQuoter
	minTVLUSD float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewAMMProvider builds the on-chain provider. minTVLUSD is the liquidity
// floor below which confidence is downgraded.
func NewAMMProvider(chain ChainReader, registry *PoolRegistry, native NativeQuoter, minTVLUSD float64, logger *slog.Logger) *AMMProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMMProvider{
		chain:     chain,
		registry:  registry,
		native:    native,
		minTVLUSD: minTVLUSD,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *AMMProvider) Name() string { return "amm" }

// Lookup reads the pool account and derives price, market cap and TVL.
// The native mint is not pool-priced; it defers to the off-chain providers.
func (p *AMMProvider) Lookup(ctx context.Context, mint string) (*Result, error) {
	if mint == ledger.NativeMint {
		return nil, ErrNoPrice
	}
	pool, ok := p.registry.Pool(mint)
	if !ok {
		return nil, ErrNoPrice
	}

	data, err := p.chain.AccountData(ctx, []solana.PublicKey{pool})
	if err != nil {
		return nil, fmt.Errorf("pool account %s: %w", pool, err)
	}
	if len(data) == 0 || data[0] == nil {
		return nil, ErrNoPrice
	}

	curve, err := parseBondingCurve(data[0])
	if err != nil {
		return nil, fmt.Errorf("pool account %s: %w", pool, err)
	}

	solUSD, err := p.native.NativeUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("native quote: %w", err)
	}

	supply, err := p.chain.TokenSupply(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("supply %s: %w", mint, err)
	}

	priceSOL, ok := curve.price()
	if !ok {
		return nil, ErrNoPrice
	}
	priceUSD := priceSOL * solUSD
	tvlUSD := curve.realSOL()*solUSD + curve.realTokens()*priceUSD

	confidence := ConfidenceHigh
	if tvlUSD < p.minTVLUSD {
		confidence = ConfidenceEst
		p.logger.Debug("pool under TVL floor",
			"mint", mint, "tvl_usd", tvlUSD, "floor_usd", p.minTVLUSD)
	}

	return &Result{
		Mint:         mint,
		PriceUSD:     priceUSD,
		MarketCapUSD: priceUSD * supply.Amount,
		Supply:       supply.Amount,
		PoolTVLUSD:   tvlUSD,
		Source:       p.Name(),
		Confidence:   confidence,
		FetchedAt:    p.now(),
	}, nil
}

// bondingCurve is the decoded pool reserve state.
type bondingCurve struct {
	virtualTokenReserves uint64
	virtualSolReserves   uint64
	realTokenReserves    uint64
	realSolReserves      uint64
}

// parseBondingCurve decodes the pool account layout: an 8-byte discriminator
// followed by four little-endian u64 reserve fields.
func parseBondingCurve(data []byte) (bondingCurve, error) {
	if len(data) < bondingCurveDataLen {
		return bondingCurve{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	return bondingCurve{
		virtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		virtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		realTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		realSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
	}, nil
}

// price returns the spot price in SOL per token from the combined virtual
// and real reserves.
func (c bondingCurve) price() (float64, bool) {
	tokens := float64(c.virtualTokenReserves+c.realTokenReserves) / math.Pow10(pumpTokenDecimals)
	sol := float64(c.virtualSolReserves+c.realSolReserves) / 1e9
	if tokens <= 0 || sol <= 0 {
		return 0, false
	}
	return sol / tokens, true
}

// realSOL returns only the withdrawable SOL liquidity.
func (c bondingCurve) realSOL() float64 {
	return float64(c.realSolReserves) / 1e9
}

// realTokens returns only the withdrawable token liquidity.
func (c bondingCurve) realTokens() float64 {
	return float64(c.realTokenReserves) / math.Pow10(pumpTokenDecimals)
}
