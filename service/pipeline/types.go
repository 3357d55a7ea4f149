package pipeline

import (
	"sync/atomic"

	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/trades"
)

// Progress reports how far a phase has advanced. Total may be zero while a
// phase's extent is still unknown.
type Progress struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Phases, in execution order.
const (
	PhaseSignatures   = "signatures"
	PhaseTransactions = "transactions"
	PhasePricing      = "pricing"
)

// RunMetrics accumulates counters for one analysis run. A fresh instance is
// created per run, so every counter starts at zero. Fields are atomics since
// the transaction fetch updates them from several goroutines.
type RunMetrics struct {
	SignaturesFetched   atomic.Int64
	TransactionsFetched atomic.Int64
	BatchesFetched      atomic.Int64
	UnpricedTrades      atomic.Int64
	CacheHits           atomic.Int64
	CacheMisses         atomic.Int64
}

// MetricsSnapshot is the wire form of a run's counters.
type MetricsSnapshot struct {
	SignaturesFetched   int64          `json:"signatures_fetched"`
	TransactionsFetched int64          `json:"transactions_fetched"`
	BatchesFetched      int64          `json:"batches_fetched"`
	SwapEventTrades     int64          `json:"swap_event_trades"`
	TransferTrades      int64          `json:"transfer_trades"`
	Duplicates          int64          `json:"duplicates"`
	DustFiltered        int64          `json:"dust_filtered"`
	ParseErrors         int64          `json:"parse_errors"`
	UnpricedTrades      int64          `json:"unpriced_trades"`
	CacheHits           int64          `json:"cache_hits"`
	CacheMisses         int64          `json:"cache_misses"`
	Limiter             enhanced.Stats `json:"limiter"`
}

func (m *RunMetrics) snapshot(ex trades.ExtractorStats, limiter enhanced.Stats) MetricsSnapshot {
	return MetricsSnapshot{
		SignaturesFetched:   m.SignaturesFetched.Load(),
		TransactionsFetched: m.TransactionsFetched.Load(),
		BatchesFetched:      m.BatchesFetched.Load(),
		SwapEventTrades:     ex.SwapEventTrades,
		TransferTrades:      ex.TransferTrades,
		Duplicates:          ex.Duplicates,
		DustFiltered:        ex.DustFiltered,
		ParseErrors:         ex.ParseErrors,
		UnpricedTrades:      m.UnpricedTrades.Load(),
		CacheHits:           m.CacheHits.Load(),
		CacheMisses:         m.CacheMisses.Load(),
		Limiter:             limiter,
	}
}

// Summary aggregates one run's trading outcome.
type Summary struct {
	TotalTrades  int             `json:"total_trades"`
	PricedTrades int             `json:"priced_trades"`
	TotalPnLUSD  float64         `json:"total_pnl_usd"`
	WinRate      float64         `json:"win_rate"`
	Metrics      MetricsSnapshot `json:"metrics"`
}

// Result is the full analysis envelope for one wallet.
type Result struct {
	Wallet         string             `json:"wallet"`
	FromSlot       uint64             `json:"from_slot"`
	ToSlot         uint64             `json:"to_slot"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	Summary        Summary            `json:"summary"`
	Trades         []trades.Record    `json:"trades"`
	Positions      []trades.Valuation `json:"positions,omitempty"`
}
