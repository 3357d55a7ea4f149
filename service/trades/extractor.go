package trades

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/metrics"
)

// ExtractorStats counts extraction outcomes for one pipeline run.
type ExtractorStats struct {
	SwapEventTrades int64 `json:"swap_event_trades"`
	TransferTrades  int64 `json:"transfer_trades"`
	Duplicates      int64 `json:"duplicates"`
	DustFiltered    int64 `json:"dust_filtered"`
	ParseErrors     int64 `json:"parse_errors"`
}

// Extractor turns enhanced transactions into trades. Two parsing strategies
// are tried in order per transaction: the structured swap event first, then
// a transfer heuristic. The first to produce a trade wins. Each signature
// yields at most one trade regardless of how often it appears in the input.
//
// An Extractor is bound to one wallet and one run; it is not safe for
// concurrent use.
type Extractor struct {
	wallet  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	seen    map[string]struct{}
	stats   ExtractorStats
}

// NewExtractor returns an extractor for the given wallet address.
func NewExtractor(wallet string, m *metrics.Metrics, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		wallet:  wallet,
		logger:  logger,
		metrics: m,
		seen:    make(map[string]struct{}),
	}
}

// Stats returns the counters accumulated so far.
func (e *Extractor) Stats() ExtractorStats {
	return e.stats
}

// ExtractAll extracts trades from a slice of transactions, preserving input
// order.
func (e *Extractor) ExtractAll(txns []enhanced.Transaction) []*Trade {
	out := make([]*Trade, 0, len(txns))
	for i := range txns {
		if tr := e.Extract(&txns[i]); tr != nil {
			out = append(out, tr)
		}
	}
	return out
}

// Extract returns the trade for a transaction, or nil if it is a duplicate,
// dust, or unparseable.
func (e *Extractor) Extract(tx *enhanced.Transaction) *Trade {
	if _, dup := e.seen[tx.Signature]; dup {
		e.stats.Duplicates++
		e.metrics.RecordTradeDropped("duplicate")
		return nil
	}
	e.seen[tx.Signature] = struct{}{}

	tr, strategy := e.parseSwapEvent(tx)
	if tr == nil {
		tr, strategy = e.parseTransfers(tx)
	}
	if tr == nil {
		e.stats.ParseErrors++
		e.metrics.RecordTradeDropped("unparseable")
		e.logger.Debug("no trade extracted", "signature", tx.Signature, "type", tx.Type)
		return nil
	}

	if math.Min(tr.TokenIn.Amount, tr.TokenOut.Amount) < DustThreshold {
		e.stats.DustFiltered++
		e.metrics.RecordTradeDropped("dust")
		return nil
	}

	switch strategy {
	case "swap_event":
		e.stats.SwapEventTrades++
	case "transfers":
		e.stats.TransferTrades++
	}
	e.metrics.RecordTradeExtracted(strategy)
	return tr
}

// parseSwapEvent builds a trade from the structured swap event. A multi-hop
// swap collapses to its first input leg and last output leg. Missing or
// malformed amounts invalidate the event and defer to the transfer heuristic.
func (e *Extractor) parseSwapEvent(tx *enhanced.Transaction) (*Trade, string) {
	if tx.Events.Swap == nil {
		return nil, ""
	}
	swap := tx.Events.Swap

	in, ok := swapInputLeg(swap)
	if !ok {
		return nil, ""
	}
	out, ok := swapOutputLeg(swap)
	if !ok {
		return nil, ""
	}
	if in.Mint == out.Mint {
		return nil, ""
	}
	return e.newTrade(tx, in, out), "swap_event"
}

func swapInputLeg(swap *enhanced.SwapEvent) (TokenAmount, bool) {
	if swap.NativeInput != nil && swap.NativeInput.Amount != "" {
		amt, err := lamportsToSOL(swap.NativeInput.Amount)
		if err != nil || amt <= 0 {
			return TokenAmount{}, false
		}
		return nativeLeg(amt), true
	}
	if len(swap.TokenInputs) > 0 {
		return tokenLeg(swap.TokenInputs[0])
	}
	return TokenAmount{}, false
}

func swapOutputLeg(swap *enhanced.SwapEvent) (TokenAmount, bool) {
	if swap.NativeOutput != nil && swap.NativeOutput.Amount != "" {
		amt, err := lamportsToSOL(swap.NativeOutput.Amount)
		if err != nil || amt <= 0 {
			return TokenAmount{}, false
		}
		return nativeLeg(amt), true
	}
	if n := len(swap.TokenOutputs); n > 0 {
		return tokenLeg(swap.TokenOutputs[n-1])
	}
	return TokenAmount{}, false
}

// parseTransfers is the fallback strategy: the largest token transfer out of
// the wallet is the input leg and the largest into the wallet is the output
// leg. Both must exist and be different mints.
func (e *Extractor) parseTransfers(tx *enhanced.Transaction) (*Trade, string) {
	var in, out TokenAmount
	for _, tt := range tx.TokenTransfers {
		if tt.Mint == "" || tt.TokenAmount <= 0 {
			continue
		}
		switch {
		case tt.FromUserAccount == e.wallet && tt.TokenAmount > in.Amount:
			in = TokenAmount{Mint: tt.Mint, Symbol: symbolFor(tt.Mint), Amount: tt.TokenAmount}
		case tt.ToUserAccount == e.wallet && tt.TokenAmount > out.Amount:
			out = TokenAmount{Mint: tt.Mint, Symbol: symbolFor(tt.Mint), Amount: tt.TokenAmount}
		}
	}
	if in.Amount == 0 || out.Amount == 0 || in.Mint == out.Mint {
		return nil, ""
	}
	return e.newTrade(tx, in, out), "transfers"
}

func (e *Extractor) newTrade(tx *enhanced.Transaction, in, out TokenAmount) *Trade {
	return &Trade{
		Signature: tx.Signature,
		Slot:      tx.Slot,
		Timestamp: time.Unix(tx.Timestamp, 0).UTC(),
		TokenIn:   in,
		TokenOut:  out,
		FeeNative: float64(tx.Fee) / 1e9,
		DEX:       tx.Source,
		TxType:    tx.Type,
	}
}

func nativeLeg(amount float64) TokenAmount {
	return TokenAmount{Mint: ledger.NativeMint, Symbol: "SOL", Amount: amount}
}

func tokenLeg(st enhanced.SwapToken) (TokenAmount, bool) {
	amt, err := rawAmount(st.RawTokenAmount)
	if err != nil || amt <= 0 || st.Mint == "" {
		return TokenAmount{}, false
	}
	return TokenAmount{Mint: st.Mint, Symbol: symbolFor(st.Mint), Amount: amt}, true
}

func lamportsToSOL(s string) (float64, error) {
	lam, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return lam / 1e9, nil
}

func rawAmount(r enhanced.RawTokenAmount) (float64, error) {
	raw, err := strconv.ParseFloat(r.TokenAmount, 64)
	if err != nil {
		return 0, err
	}
	return raw / math.Pow10(r.Decimals), nil
}
