package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/price"
)

const (
	testWallet = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	testMint   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	otherMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

type fakeSignatures struct {
	sigs []*rpc.TransactionSignature
	err  error
}

func (f *fakeSignatures) AllSignatures(ctx context.Context, wallet solana.PublicKey, onPage func(int)) ([]*rpc.TransactionSignature, error) {
	if f.err != nil {
		return nil, f.err
	}
	if onPage != nil {
		onPage(len(f.sigs))
	}
	return f.sigs, nil
}

type fakeTxns struct {
	txns []enhanced.Transaction
	err  error
}

func (f *fakeTxns) FetchAll(ctx context.Context, signatures []string, onBatch func(done, total int)) ([]enhanced.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onBatch != nil {
		onBatch(1, 1)
	}
	return f.txns, nil
}

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) Lookup(ctx context.Context, mint string) *price.Result {
	usd, ok := f.prices[mint]
	if !ok {
		return price.Unavailable(mint, time.Now())
	}
	return &price.Result{
		Mint:       mint,
		PriceUSD:   usd,
		Source:     "fake",
		Confidence: price.ConfidenceEst,
		FetchedAt:  time.Now(),
	}
}

func sigEntry(b byte, slot uint64) *rpc.TransactionSignature {
	var sig solana.Signature
	sig[0] = b
	return &rpc.TransactionSignature{Signature: sig, Slot: slot}
}

// buyTx swaps solIn SOL for tokens (6 decimals, raw amount).
func buyTx(sig string, slot uint64, ts int64, solIn string, rawTokensOut string) enhanced.Transaction {
	return enhanced.Transaction{
		Signature: sig,
		Slot:      slot,
		Timestamp: ts,
		Type:      "SWAP",
		Source:    "PUMP_FUN",
		Fee:       5000,
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			NativeInput: &enhanced.NativeAmount{Amount: solIn},
			TokenOutputs: []enhanced.SwapToken{{
				Mint:           testMint,
				RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: rawTokensOut, Decimals: 6},
			}},
		}},
	}
}

func sellTx(sig string, slot uint64, ts int64, rawTokensIn string, solOut string) enhanced.Transaction {
	return enhanced.Transaction{
		Signature: sig,
		Slot:      slot,
		Timestamp: ts,
		Type:      "SWAP",
		Source:    "PUMP_FUN",
		Fee:       5000,
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			TokenInputs: []enhanced.SwapToken{{
				Mint:           testMint,
				RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: rawTokensIn, Decimals: 6},
			}},
			NativeOutput: &enhanced.NativeAmount{Amount: solOut},
		}},
	}
}

// tokenSwapTx swaps one token directly for another, no native leg.
func tokenSwapTx(sig string, slot uint64, ts int64, mintIn, rawIn, mintOut, rawOut string) enhanced.Transaction {
	return enhanced.Transaction{
		Signature: sig,
		Slot:      slot,
		Timestamp: ts,
		Type:      "SWAP",
		Source:    "JUPITER",
		Fee:       5000,
		Events: enhanced.Events{Swap: &enhanced.SwapEvent{
			TokenInputs: []enhanced.SwapToken{{
				Mint:           mintIn,
				RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: rawIn, Decimals: 6},
			}},
			TokenOutputs: []enhanced.SwapToken{{
				Mint:           mintOut,
				RawTokenAmount: enhanced.RawTokenAmount{TokenAmount: rawOut, Decimals: 6},
			}},
		}},
	}
}

func newPipelineUnderTest(sigs *fakeSignatures, txns *fakeTxns, prices map[string]float64) *Pipeline {
	return New(
		sigs,
		txns,
		enhanced.NewLimiter(10),
		&fakePrices{prices: prices},
		cache.NewTiered(100, time.Hour, nil, nil, nil),
		nil,
		nil,
		nil,
	)
}

func roundTripFixture() (*fakeSignatures, *fakeTxns) {
	sigs := &fakeSignatures{sigs: []*rpc.TransactionSignature{
		sigEntry(2, 20), sigEntry(1, 10),
	}}
	txns := &fakeTxns{txns: []enhanced.Transaction{
		// Delivered out of order; the pipeline must sort by slot.
		sellTx("sell1", 20, 1_700_000_600, "200000000000", "1500000000"),
		buyTx("buy1", 10, 1_700_000_000, "5000000000", "1000000000000"),
	}}
	return sigs, txns
}

func TestAnalyzeRoundTrip(t *testing.T) {
	// Buy 1M tokens for 5 SOL at $100/SOL ($500), then sell 200k of them
	// for 1.5 SOL ($150). FIFO basis removed is $100, so realized P&L is
	// $50, leaving 800k tokens at $400 basis.
	sigs, txns := roundTripFixture()
	p := newPipelineUnderTest(sigs, txns, map[string]float64{
		ledger.NativeMint: 100.0,
		testMint:          0.001,
	})

	res, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)

	assert.Equal(t, testWallet, res.Wallet)
	assert.EqualValues(t, 10, res.FromSlot)
	assert.EqualValues(t, 20, res.ToSlot)
	assert.Equal(t, 2, res.Summary.TotalTrades)
	assert.Equal(t, 2, res.Summary.PricedTrades)
	assert.InDelta(t, 50.0, res.Summary.TotalPnLUSD, 1e-6)
	assert.InDelta(t, 1.0, res.Summary.WinRate, 1e-9)

	require.Len(t, res.Trades, 2)
	buy, sell := res.Trades[0], res.Trades[1]
	assert.Equal(t, "buy", buy.Action)
	assert.InDelta(t, 500.0, buy.ValueUSD, 1e-6)
	assert.Equal(t, "sell", sell.Action)
	assert.InDelta(t, 150.0, sell.ValueUSD, 1e-6)
	assert.InDelta(t, 50.0, sell.PnLUSD, 1e-6)

	require.Len(t, res.Positions, 1)
	pos := res.Positions[0]
	assert.InDelta(t, 800_000.0, pos.Balance, 1e-3)
	assert.InDelta(t, 400.0, pos.CostBasisUSD, 1e-6)
	// Marked at $0.001: $800 value, $400 unrealized.
	assert.InDelta(t, 800.0, pos.CurrentValueUSD, 1e-6)
	assert.InDelta(t, 400.0, pos.UnrealizedPnLUSD, 1e-6)
}

func TestAnalyzeTokenToTokenPricesNamedLeg(t *testing.T) {
	// 100 of the input token swapped for 40 of another. The record names
	// the input leg, so price and value must describe that token too.
	sigs := &fakeSignatures{sigs: []*rpc.TransactionSignature{sigEntry(1, 10)}}
	txns := &fakeTxns{txns: []enhanced.Transaction{
		tokenSwapTx("t2t", 10, 1_700_000_000, testMint, "100000000", otherMint, "40000000"),
	}}
	p := newPipelineUnderTest(sigs, txns, map[string]float64{
		testMint:  2.0,
		otherMint: 5.5,
	})

	res, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	rec := res.Trades[0]
	assert.Equal(t, "sell", rec.Action)
	assert.Equal(t, testMint[:6], rec.Token)
	assert.InDelta(t, 100.0, rec.Amount, 1e-9)
	assert.True(t, rec.Priced)
	assert.InDelta(t, 2.0, rec.Price, 1e-9)
	assert.InDelta(t, 200.0, rec.ValueUSD, 1e-9)
}

func TestAnalyzeHistoricalBucketNeverHoldsLivePrice(t *testing.T) {
	// Trades dated 2023 priced by a live source must land in the bucket of
	// the day they were fetched, not in the 2023 bucket.
	sigs, txns := roundTripFixture()
	priceCache := cache.NewTiered(100, time.Hour, nil, nil, nil)
	p := New(
		sigs,
		txns,
		enhanced.NewLimiter(10),
		&fakePrices{prices: map[string]float64{ledger.NativeMint: 100, testMint: 0.001}},
		priceCache,
		nil,
		nil,
		nil,
	)
	fixedNow := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixedNow }

	_, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)

	ctx := context.Background()
	tradeDay := time.Unix(1_700_000_000, 0).UTC()
	_, ok := priceCache.Get(ctx, cache.DayKey(ledger.NativeMint, tradeDay))
	assert.False(t, ok, "historical bucket must stay empty")

	res, ok := priceCache.Get(ctx, cache.DayKey(ledger.NativeMint, fixedNow))
	require.True(t, ok, "live price cached under the fetch day")
	assert.InDelta(t, 100.0, res.PriceUSD, 1e-9)
}

func TestAnalyzeHistoricalBucketIsAuthoritative(t *testing.T) {
	// A durable entry recorded on the trade's own day wins over the live
	// source.
	sigs := &fakeSignatures{sigs: []*rpc.TransactionSignature{sigEntry(1, 10)}}
	txns := &fakeTxns{txns: []enhanced.Transaction{
		buyTx("histbuy", 10, 1_700_000_000, "5000000000", "1000000000000"),
	}}
	priceCache := cache.NewTiered(100, time.Hour, nil, nil, nil)
	tradeDay := time.Unix(1_700_000_000, 0).UTC()
	priceCache.Set(context.Background(), cache.DayKey(ledger.NativeMint, tradeDay), &price.Result{
		Mint:       ledger.NativeMint,
		PriceUSD:   40.0,
		Source:     "fake",
		Confidence: price.ConfidenceEst,
		FetchedAt:  tradeDay,
	})

	p := New(
		sigs,
		txns,
		enhanced.NewLimiter(10),
		&fakePrices{prices: map[string]float64{ledger.NativeMint: 100}},
		priceCache,
		nil,
		nil,
		nil,
	)

	res, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	// 5 SOL at the recorded $40, not the live $100.
	assert.InDelta(t, 200.0, res.Trades[0].ValueUSD, 1e-6)
}

func TestAnalyzeUnpricedSellRealizesZero(t *testing.T) {
	sigs, txns := roundTripFixture()
	// No prices at all: trades extract but never price.
	p := newPipelineUnderTest(sigs, txns, nil)

	res, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TotalTrades)
	assert.Zero(t, res.Summary.PricedTrades)
	assert.Zero(t, res.Summary.TotalPnLUSD)
	assert.EqualValues(t, 2, res.Summary.Metrics.UnpricedTrades)
}

func TestAnalyzeDuplicateSignaturesCollapse(t *testing.T) {
	sigs, txns := roundTripFixture()
	txns.txns = append(txns.txns, txns.txns[0])
	p := newPipelineUnderTest(sigs, txns, map[string]float64{ledger.NativeMint: 100})

	res, err := p.Analyze(context.Background(), testWallet, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TotalTrades)
	assert.EqualValues(t, 1, res.Summary.Metrics.Duplicates)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	prices := map[string]float64{ledger.NativeMint: 100, testMint: 0.001}
	run := func() *Result {
		sigs, txns := roundTripFixture()
		res, err := newPipelineUnderTest(sigs, txns, prices).Analyze(context.Background(), testWallet, nil)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Summary.TotalPnLUSD, b.Summary.TotalPnLUSD)
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, a.Trades[i].Signature, b.Trades[i].Signature)
		assert.Equal(t, a.Trades[i].PnLUSD, b.Trades[i].PnLUSD)
	}
}

func TestAnalyzeInvalidWallet(t *testing.T) {
	p := newPipelineUnderTest(&fakeSignatures{}, &fakeTxns{}, nil)
	_, err := p.Analyze(context.Background(), "not-a-wallet", nil)
	assert.Error(t, err)
}

func TestAnalyzePropagatesTruncation(t *testing.T) {
	sigs := &fakeSignatures{err: ledger.ErrTruncatedHistory}
	p := newPipelineUnderTest(sigs, &fakeTxns{}, nil)

	_, err := p.Analyze(context.Background(), testWallet, nil)
	assert.ErrorIs(t, err, ledger.ErrTruncatedHistory)
}

func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sigs, txns := roundTripFixture()
	p := newPipelineUnderTest(sigs, txns, nil)

	res, err := p.Analyze(ctx, testWallet, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestStreamEventSequence(t *testing.T) {
	sigs, txns := roundTripFixture()
	p := newPipelineUnderTest(sigs, txns, map[string]float64{ledger.NativeMint: 100})

	var events []Event
	err := p.Stream(context.Background(), testWallet, 0, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	assert.Equal(t, EventConnected, events[0].Type)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
	assert.Equal(t, EventMetadata, events[len(events)-2].Type)

	var lastID int64
	sawTrades := false
	for _, ev := range events {
		assert.Greater(t, ev.ID, lastID)
		lastID = ev.ID
		if ev.Type == EventTrades {
			sawTrades = true
		}
	}
	assert.True(t, sawTrades)
}

func TestStreamResumeSkipsDeliveredEvents(t *testing.T) {
	prices := map[string]float64{ledger.NativeMint: 100}
	collect := func(lastEventID int64) []Event {
		sigs, txns := roundTripFixture()
		p := newPipelineUnderTest(sigs, txns, prices)
		var events []Event
		err := p.Stream(context.Background(), testWallet, lastEventID, func(ev Event) error {
			events = append(events, ev)
			return nil
		})
		require.NoError(t, err)
		return events
	}

	full := collect(0)
	require.Greater(t, len(full), 3)
	resumeFrom := full[2].ID

	resumed := collect(resumeFrom)
	require.NotEmpty(t, resumed)
	assert.Equal(t, resumeFrom+1, resumed[0].ID)
	assert.Len(t, resumed, len(full)-int(resumeFrom))
}

func TestStreamEmitErrorStops(t *testing.T) {
	sigs, txns := roundTripFixture()
	p := newPipelineUnderTest(sigs, txns, nil)

	boom := errors.New("client went away")
	var count int
	err := p.Stream(context.Background(), testWallet, 0, func(ev Event) error {
		count++
		if count == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestProgressData(t *testing.T) {
	d := progressData(Progress{Phase: PhaseTransactions, Done: 3, Total: 10})
	assert.Equal(t, "transactions: 3/10", d.Message)
	assert.InDelta(t, 30.0, d.Percentage, 1e-9)
	assert.Equal(t, PhaseTransactions, d.Step)

	d = progressData(Progress{Phase: PhaseSignatures, Done: 250})
	assert.Equal(t, "signatures: 250", d.Message)
	assert.Zero(t, d.Percentage)
}
