package trades

import (
	"time"

	"github.com/walletglass/walletglass/service/price"
)

// Valuation is a position marked to a current price.
type Valuation struct {
	Mint             string           `json:"mint"`
	Symbol           string           `json:"symbol"`
	Balance          float64          `json:"balance"`
	CostBasisUSD     float64          `json:"cost_basis_usd"`
	CurrentPriceUSD  float64          `json:"current_price_usd"`
	CurrentValueUSD  float64          `json:"current_value_usd"`
	UnrealizedPnLUSD float64          `json:"unrealized_pnl_usd"`
	UnrealizedPnLPct float64          `json:"unrealized_pnl_pct"`
	Confidence       price.Confidence `json:"confidence"`
}

// Valuate marks an open position to the given price. The result carries the
// price's age-degraded confidence; with no usable price the valuation is
// reported as unavailable and carries no P&L numbers.
func Valuate(pos *Position, pr *price.Result, now time.Time) Valuation {
	v := Valuation{
		Mint:         pos.Mint,
		Symbol:       pos.Symbol,
		Balance:      RoundEven(pos.Balance, 6),
		CostBasisUSD: RoundEven(pos.CostBasisUSD, 4),
		Confidence:   price.ConfidenceUnavailable,
	}
	if !pr.Available() {
		return v
	}
	value := pos.Balance * pr.PriceUSD
	pnl := value - pos.CostBasisUSD
	v.CurrentPriceUSD = pr.PriceUSD
	v.CurrentValueUSD = RoundEven(value, 4)
	v.UnrealizedPnLUSD = RoundEven(pnl, 4)
	if pos.CostBasisUSD > 0 {
		v.UnrealizedPnLPct = RoundEven(pnl/pos.CostBasisUSD*100, 4)
	} else if value > 0 {
		v.UnrealizedPnLPct = 100
	}
	v.Confidence = pr.EffectiveConfidence(now)
	return v
}
