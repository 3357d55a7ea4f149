package trades

import (
	"math"
	"time"
)

// balanceEpsilon absorbs float drift when deciding whether a position has
// been fully exited.
const balanceEpsilon = 1e-9

// lot is one FIFO cost-basis entry: an acquired amount and what it cost.
type lot struct {
	amount  float64
	costUSD float64
}

// Position tracks one token's holdings as a FIFO lot queue.
type Position struct {
	Mint         string
	Symbol       string
	Balance      float64
	CostBasisUSD float64
	Open         bool
	TradeCount   int
	LastSlot     uint64
	LastUpdated  time.Time

	lots []lot
}

// Book tracks positions across tokens and computes realized P&L with FIFO
// cost-basis accounting. It is not safe for concurrent use; a pipeline run
// owns exactly one Book.
type Book struct {
	positions map[string]*Position
}

// NewBook returns an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Buy records an acquisition: a new lot is appended to the token's queue.
// A buy against a closed position reopens it.
func (b *Book) Buy(mint, symbol string, amount, costUSD float64, slot uint64, ts time.Time) {
	if amount <= 0 {
		return
	}
	pos := b.position(mint, symbol)
	pos.lots = append(pos.lots, lot{amount: amount, costUSD: costUSD})
	pos.Balance += amount
	pos.CostBasisUSD += costUSD
	pos.Open = true
	pos.touch(slot, ts)
}

// Sell records a disposal and returns the realized P&L. Lots are consumed
// oldest first; a partially consumed lot keeps a proportional share of its
// cost. Selling more than the tracked balance consumes every lot and stops,
// since the untracked remainder has no known basis. An unpriced sell still
// reduces the balance but realizes zero P&L.
func (b *Book) Sell(mint string, amount, proceedsUSD float64, priced bool, slot uint64, ts time.Time) float64 {
	pos, ok := b.positions[mint]
	if !ok || amount <= 0 {
		return 0
	}

	remaining := amount
	var basisRemoved float64
	for remaining > 0 && len(pos.lots) > 0 {
		head := &pos.lots[0]
		if head.amount <= remaining {
			basisRemoved += head.costUSD
			remaining -= head.amount
			pos.lots = pos.lots[1:]
			continue
		}
		frac := remaining / head.amount
		take := head.costUSD * frac
		basisRemoved += take
		head.costUSD -= take
		head.amount -= remaining
		remaining = 0
	}

	pos.Balance = math.Max(0, pos.Balance-amount)
	pos.CostBasisUSD = math.Max(0, pos.CostBasisUSD-basisRemoved)
	if pos.Balance <= balanceEpsilon {
		pos.Balance = 0
		pos.CostBasisUSD = 0
		pos.Open = false
		pos.lots = nil
	}
	pos.touch(slot, ts)

	if !priced {
		return 0
	}
	return proceedsUSD - basisRemoved
}

// Position returns the position for a mint, if any trades touched it.
func (b *Book) Position(mint string) (*Position, bool) {
	pos, ok := b.positions[mint]
	return pos, ok
}

// OpenPositions returns every position with a non-zero balance.
func (b *Book) OpenPositions() []*Position {
	out := make([]*Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if pos.Open {
			out = append(out, pos)
		}
	}
	return out
}

func (b *Book) position(mint, symbol string) *Position {
	pos, ok := b.positions[mint]
	if !ok {
		pos = &Position{Mint: mint, Symbol: symbol}
		b.positions[mint] = pos
	}
	return pos
}

func (p *Position) touch(slot uint64, ts time.Time) {
	p.TradeCount++
	if slot > p.LastSlot {
		p.LastSlot = slot
	}
	if ts.After(p.LastUpdated) {
		p.LastUpdated = ts
	}
}
