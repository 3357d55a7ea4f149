package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/price"
	"github.com/walletglass/walletglass/service/trades"
)

// SignatureSource walks a wallet's full signature history.
type SignatureSource interface {
	AllSignatures(ctx context.Context, wallet solana.PublicKey, onPage func(total int)) ([]*rpc.TransactionSignature, error)
}

// TransactionSource resolves signatures into parsed transactions.
type TransactionSource interface {
	FetchAll(ctx context.Context, signatures []string, onBatch func(done, total int)) ([]enhanced.Transaction, error)
}

// PriceSource resolves a current price for a mint.
type PriceSource interface {
	Lookup(ctx context.Context, mint string) *price.Result
}

// Publisher pushes finished trades to downstream consumers. Optional.
type Publisher interface {
	PublishTrade(ctx context.Context, wallet string, rec trades.Record) error
}

// Pipeline wires signature walking, batch fetching, trade extraction,
// pricing and P&L into one wallet analysis.
type Pipeline struct {
	signatures SignatureSource
	txns       TransactionSource
	limiter    *enhanced.Limiter
	prices     PriceSource
	cache      *cache.Tiered
	publisher  Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New builds a pipeline. publisher and m may be nil.
func New(
	signatures SignatureSource,
	txns TransactionSource,
	limiter *enhanced.Limiter,
	prices PriceSource,
	priceCache *cache.Tiered,
	publisher Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		signatures: signatures,
		txns:       txns,
		limiter:    limiter,
		prices:     prices,
		cache:      priceCache,
		publisher:  publisher,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Analyze runs the full pipeline for one wallet. onProgress may be nil.
// Cancellation aborts cleanly: no partial result is returned.
func (p *Pipeline) Analyze(ctx context.Context, wallet string, onProgress func(Progress)) (*Result, error) {
	start := p.now()
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	run := &RunMetrics{}

	sigs, err := p.signatures.AllSignatures(ctx, pk, func(total int) {
		run.SignaturesFetched.Store(int64(total))
		onProgress(Progress{Phase: PhaseSignatures, Done: total})
	})
	if err != nil {
		return nil, fmt.Errorf("signature walk: %w", err)
	}
	run.SignaturesFetched.Store(int64(len(sigs)))
	p.logger.Info("signatures fetched", "wallet", wallet, "count", len(sigs))

	// Failed transactions are known failed already; skip the fetch.
	sigStrings := make([]string, 0, len(sigs))
	for _, s := range sigs {
		if s == nil || s.Err != nil {
			continue
		}
		sigStrings = append(sigStrings, s.Signature.String())
	}

	txns, err := p.txns.FetchAll(ctx, sigStrings, func(done, total int) {
		run.BatchesFetched.Store(int64(done))
		onProgress(Progress{Phase: PhaseTransactions, Done: done, Total: total})
	})
	if err != nil {
		return nil, fmt.Errorf("transaction fetch: %w", err)
	}
	run.TransactionsFetched.Store(int64(len(txns)))

	// Concurrent batches land out of order; P&L needs chronology.
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].Slot != txns[j].Slot {
			return txns[i].Slot < txns[j].Slot
		}
		return txns[i].Signature < txns[j].Signature
	})

	extractor := trades.NewExtractor(wallet, p.metrics, p.logger)
	extracted := extractor.ExtractAll(txns)

	book := trades.NewBook()
	records := make([]trades.Record, 0, len(extracted))
	var (
		fromSlot, toSlot uint64
		totalPnL         float64
		priced           int
		wins, closedOut  int
	)
	for i, tr := range extracted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.priceTrade(ctx, run, tr)
		p.settle(book, tr)

		if tr.Priced {
			priced++
		} else {
			run.UnpricedTrades.Add(1)
		}
		if tr.Action() == "sell" && tr.Priced {
			closedOut++
			if tr.PnLUSD > 0 {
				wins++
			}
		}
		totalPnL += tr.PnLUSD

		if fromSlot == 0 || tr.Slot < fromSlot {
			fromSlot = tr.Slot
		}
		if tr.Slot > toSlot {
			toSlot = tr.Slot
		}

		rec := tr.Record()
		records = append(records, rec)
		if p.publisher != nil {
			if err := p.publisher.PublishTrade(ctx, wallet, rec); err != nil {
				p.logger.Warn("trade publish failed", "signature", rec.Signature, "error", err)
			}
		}
		onProgress(Progress{Phase: PhasePricing, Done: i + 1, Total: len(extracted)})
	}

	positions := p.valuatePositions(ctx, run, book)

	var winRate float64
	if closedOut > 0 {
		winRate = float64(wins) / float64(closedOut)
	}

	res := &Result{
		Wallet:         wallet,
		FromSlot:       fromSlot,
		ToSlot:         toSlot,
		ElapsedSeconds: trades.RoundEven(p.now().Sub(start).Seconds(), 4),
		Summary: Summary{
			TotalTrades:  len(records),
			PricedTrades: priced,
			TotalPnLUSD:  trades.RoundEven(totalPnL, 4),
			WinRate:      trades.RoundEven(winRate, 4),
			Metrics:      run.snapshot(extractor.Stats(), p.limiterStats()),
		},
		Trades:    records,
		Positions: positions,
	}
	p.logger.Info("analysis complete",
		"wallet", wallet,
		"trades", len(records),
		"priced", priced,
		"pnl_usd", res.Summary.TotalPnLUSD,
		"elapsed_seconds", res.ElapsedSeconds)
	return res, nil
}

// priceTrade values the trade in USD. The native leg anchors valuation when
// present: the native price is far more reliable than a fresh token's. A
// token-to-token swap falls back to pricing the input leg, the one the
// record reports.
func (p *Pipeline) priceTrade(ctx context.Context, run *RunMetrics, tr *trades.Trade) {
	token := tr.Token()
	nativeLeg, hasNative := nativeLegOf(tr)

	solRes := p.priceFor(ctx, run, ledger.NativeMint, tr.Timestamp)
	if solRes.Available() {
		tr.FeesUSD = tr.FeeNative * solRes.PriceUSD
	}

	if hasNative && solRes.Available() {
		tr.ValueUSD = nativeLeg.Amount * solRes.PriceUSD
		if token.Amount > 0 {
			tr.PriceUSD = tr.ValueUSD / token.Amount
		}
		tr.Priced = true
		return
	}

	// No native leg to anchor on: price the leg the record names, so the
	// reported unit price and amount describe the same token.
	tokenRes := p.priceFor(ctx, run, token.Mint, tr.Timestamp)
	if tokenRes.Available() {
		tr.PriceUSD = tokenRes.PriceUSD
		tr.ValueUSD = token.Amount * tokenRes.PriceUSD
		tr.Priced = true
	}
}

// settle applies the trade to the position book and records realized P&L.
func (p *Pipeline) settle(book *trades.Book, tr *trades.Trade) {
	token := tr.Token()
	if tr.Action() == "buy" {
		book.Buy(token.Mint, token.Symbol, token.Amount, tr.ValueUSD, tr.Slot, tr.Timestamp)
		return
	}
	tr.PnLUSD = book.Sell(token.Mint, token.Amount, tr.ValueUSD, tr.Priced, tr.Slot, tr.Timestamp)
}

// valuatePositions marks every open position to a current price.
func (p *Pipeline) valuatePositions(ctx context.Context, run *RunMetrics, book *trades.Book) []trades.Valuation {
	open := book.OpenPositions()
	if len(open) == 0 {
		return nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Mint < open[j].Mint })

	now := p.now()
	out := make([]trades.Valuation, 0, len(open))
	for _, pos := range open {
		res := p.priceFor(ctx, run, pos.Mint, now)
		out = append(out, trades.Valuate(pos, res, now))
	}
	return out
}

// priceFor resolves a day-bucketed price: the bucket for ts first (the
// durable tier may hold a price actually observed that day), then the
// current day's bucket, then the live cascade. The live answer is written
// back under the day it was fetched, never under a historical bucket, so a
// bucket's contents always match its date.
func (p *Pipeline) priceFor(ctx context.Context, run *RunMetrics, mint string, ts time.Time) *price.Result {
	histKey := cache.DayKey(mint, ts)
	if res, ok := p.cache.Get(ctx, histKey); ok {
		run.CacheHits.Add(1)
		return res
	}
	todayKey := cache.DayKey(mint, p.now())
	if todayKey != histKey {
		if res, ok := p.cache.Get(ctx, todayKey); ok {
			run.CacheHits.Add(1)
			return res
		}
	}
	run.CacheMisses.Add(1)

	res := p.prices.Lookup(ctx, mint)
	p.cache.Set(ctx, todayKey, res)
	return res
}

func (p *Pipeline) limiterStats() enhanced.Stats {
	if p.limiter == nil {
		return enhanced.Stats{}
	}
	return p.limiter.Snapshot()
}

func nativeLegOf(tr *trades.Trade) (trades.TokenAmount, bool) {
	if tr.TokenIn.IsNative() {
		return tr.TokenIn, true
	}
	if tr.TokenOut.IsNative() {
		return tr.TokenOut, true
	}
	return trades.TokenAmount{}, false
}
