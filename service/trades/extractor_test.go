package trades

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
)

const (
	testWallet = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	bonkMint   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint    = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

func swapEventTx(sig string, solIn float64, tokenOut float64) enhanced.Transaction {
	return enhanced.Transaction{
		Signature: sig,
		Slot:      100,
		Timestamp: 1_700_000_000,
		Type:      "SWAP",
		Source:    "RAYDIUM",
		Fee:       5000,
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			NativeInput: &enhanced.NativeAmount{
				Account: testWallet,
				Amount:  fmt.Sprintf("%.0f", solIn*1e9),
			},
			TokenOutputs: []enhanced.SwapToken{{
				UserAccount: testWallet,
				Mint:        bonkMint,
				RawTokenAmount: enhanced.RawTokenAmount{
					TokenAmount: fmt.Sprintf("%.0f", tokenOut*1e5),
					Decimals:    5,
				},
			}},
		}},
	}
}

func transferTx(sig string, inMint string, inAmt float64, outMint string, outAmt float64) enhanced.Transaction {
	return enhanced.Transaction{
		Signature: sig,
		Slot:      101,
		Timestamp: 1_700_000_100,
		Type:      "UNKNOWN",
		Source:    "JUPITER",
		TokenTransfers: []enhanced.TokenTransfer{
			{FromUserAccount: testWallet, ToUserAccount: "pool", Mint: inMint, TokenAmount: inAmt},
			{FromUserAccount: "pool", ToUserAccount: testWallet, Mint: outMint, TokenAmount: outAmt},
		},
	}
}

func TestExtractSwapEventBuy(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := swapEventTx("sig1", 1.5, 1_000_000)

	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	assert.Equal(t, "buy", tr.Action())
	assert.Equal(t, ledger.NativeMint, tr.TokenIn.Mint)
	assert.InDelta(t, 1.5, tr.TokenIn.Amount, 1e-9)
	assert.Equal(t, bonkMint, tr.TokenOut.Mint)
	assert.InDelta(t, 1_000_000.0, tr.TokenOut.Amount, 1e-3)
	assert.Equal(t, "RAYDIUM", tr.DEX)
	assert.InDelta(t, 5000.0/1e9, tr.FeeNative, 1e-12)
	assert.EqualValues(t, 1, e.Stats().SwapEventTrades)
}

func TestExtractSwapEventSell(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := enhanced.Transaction{
		Signature: "sig2",
		Timestamp: 1_700_000_000,
		Type:      "SWAP",
		Source:    "RAYDIUM",
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			TokenInputs: []enhanced.SwapToken{{
				Mint:           bonkMint,
				RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: "20000000000", Decimals: 5},
			}},
			NativeOutput: &enhanced.NativeAmount{Amount: "2000000000"},
		}},
	}

	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	assert.Equal(t, "sell", tr.Action())
	assert.InDelta(t, 200_000.0, tr.TokenIn.Amount, 1e-3)
	assert.InDelta(t, 2.0, tr.TokenOut.Amount, 1e-9)
}

func TestExtractMultiHopCollapses(t *testing.T) {
	// SOL -> WIF -> BONK should collapse to (SOL in, BONK out).
	e := NewExtractor(testWallet, nil, nil)
	tx := enhanced.Transaction{
		Signature: "sig3",
		Timestamp: 1_700_000_000,
		Type:      "SWAP",
		Source:    "JUPITER",
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			NativeInput: &enhanced.NativeAmount{Amount: "1000000000"},
			TokenOutputs: []enhanced.SwapToken{
				{Mint: wifMint, RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: "500000000", Decimals: 6}},
				{Mint: bonkMint, RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: "100000000000", Decimals: 5}},
			},
		}},
	}

	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	assert.Equal(t, ledger.NativeMint, tr.TokenIn.Mint)
	assert.Equal(t, bonkMint, tr.TokenOut.Mint)
}

func TestExtractMalformedEventFallsBackToTransfers(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := transferTx("sig4", ledger.NativeMint, 1.0, bonkMint, 50_000)
	tx.Events = enhanced.Events{Swap: &enhanced.SwapEvent{
		NativeInput: &enhanced.NativeAmount{Amount: "not-a-number"},
		TokenOutputs: []enhanced.SwapToken{{
			Mint:           bonkMint,
			RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: "5000000000", Decimals: 5},
		}},
	}}

	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	assert.InDelta(t, 50_000.0, tr.TokenOut.Amount, 1e-3)
	assert.EqualValues(t, 1, e.Stats().TransferTrades)
	assert.Zero(t, e.Stats().SwapEventTrades)
}

func TestExtractTransferHeuristicPicksLargestLegs(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := transferTx("sig5", bonkMint, 100_000, wifMint, 42)
	// Noise: a small transfer out and a small transfer in.
	tx.TokenTransfers = append(tx.TokenTransfers,
		enhanced.TokenTransfer{FromUserAccount: testWallet, ToUserAccount: "fee", Mint: bonkMint, TokenAmount: 10},
		enhanced.TokenTransfer{FromUserAccount: "rebate", ToUserAccount: testWallet, Mint: wifMint, TokenAmount: 0.5},
	)

	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	assert.InDelta(t, 100_000.0, tr.TokenIn.Amount, 1e-9)
	assert.InDelta(t, 42.0, tr.TokenOut.Amount, 1e-9)
}

func TestExtractSameMintBothSidesRejected(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := transferTx("sig6", bonkMint, 100, bonkMint, 99)

	assert.Nil(t, e.Extract(&tx))
	assert.EqualValues(t, 1, e.Stats().ParseErrors)
}

func TestExtractDuplicateSignatureDropped(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := swapEventTx("sig7", 1, 1000)

	require.NotNil(t, e.Extract(&tx))
	assert.Nil(t, e.Extract(&tx))
	assert.EqualValues(t, 1, e.Stats().Duplicates)
}

func TestExtractDustFiltered(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := swapEventTx("sig8", 1e-9, 1000)

	assert.Nil(t, e.Extract(&tx))
	assert.EqualValues(t, 1, e.Stats().DustFiltered)
	// The signature is still consumed: a retry of the same input cannot
	// resurrect the dust trade as a duplicate-path trade.
	assert.Nil(t, e.Extract(&tx))
	assert.EqualValues(t, 1, e.Stats().Duplicates)
}

func TestExtractAllIsDeterministic(t *testing.T) {
	txns := []enhanced.Transaction{
		swapEventTx("a", 1, 1000),
		transferTx("b", bonkMint, 500, wifMint, 3),
		swapEventTx("c", 2, 9000),
	}

	first := NewExtractor(testWallet, nil, nil).ExtractAll(txns)
	second := NewExtractor(testWallet, nil, nil).ExtractAll(txns)

	require.Len(t, first, 3)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].Signature, second[i].Signature)
		assert.Equal(t, first[i].TokenIn, second[i].TokenIn)
		assert.Equal(t, first[i].TokenOut, second[i].TokenOut)
	}
}

func TestRecordWireShape(t *testing.T) {
	e := NewExtractor(testWallet, nil, nil)
	tx := swapEventTx("sig9", 1.2345678, 1000)
	tr := e.Extract(&tx)
	require.NotNil(t, tr)
	tr.PriceUSD = 0.00012345649
	tr.ValueUSD = 123.456789
	tr.Priced = true

	rec := tr.Record()
	assert.Equal(t, "buy", rec.Action)
	assert.True(t, rec.Priced)
	assert.InDelta(t, 1.234568, rec.TokenIn.Amount, 1e-9)
	assert.InDelta(t, 0.000123, rec.Price, 1e-9)
	assert.InDelta(t, 123.4568, rec.ValueUSD, 1e-9)
	assert.Equal(t, "SWAP", rec.TxType)
	assert.Equal(t, "RAYDIUM", rec.DEX)
}

func TestRoundEvenHalfway(t *testing.T) {
	assert.InDelta(t, 2.0, RoundEven(2.5, 0), 1e-12)
	assert.InDelta(t, 4.0, RoundEven(3.5, 0), 1e-12)
	assert.InDelta(t, 1.2346, RoundEven(1.23456, 4), 1e-12)
	assert.InDelta(t, 0.000124, RoundEven(0.0001239, 6), 1e-12)
}
