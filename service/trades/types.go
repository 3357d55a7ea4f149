package trades

import (
	"math"
	"time"

	"github.com/walletglass/walletglass/service/ledger"
)

// DustThreshold is the materiality floor in native-decimal units. A trade
// whose smaller leg is below it carries no economic signal and is dropped.
const DustThreshold = 1e-7

// TokenAmount is one leg of a swap: a mint with a decimal-exact amount.
type TokenAmount struct {
	Mint   string
	Symbol string
	Amount float64
}

// IsNative reports whether the leg is the native currency.
func (a TokenAmount) IsNative() bool {
	return a.Mint == ledger.NativeMint
}

// Trade is one economically meaningful swap, at most one per transaction
// signature across the whole pipeline. It is created during extraction,
// mutated by the pricing step (PriceUSD/ValueUSD/Priced) and the P&L step
// (PnLUSD), and never deleted.
type Trade struct {
	Signature string
	Slot      uint64
	Timestamp time.Time

	TokenIn  TokenAmount
	TokenOut TokenAmount

	PriceUSD  float64
	ValueUSD  float64
	PnLUSD    float64
	FeeNative float64
	FeesUSD   float64
	Priced    bool

	DEX    string
	TxType string
}

// Action classifies the trade from the wallet's perspective: spending the
// native currency for a token is a buy, receiving it is a sell. A
// token-to-token swap is reported as a sell of the input leg.
func (t *Trade) Action() string {
	if t.TokenIn.IsNative() {
		return "buy"
	}
	return "sell"
}

// Token returns the non-native leg, the token the trade is "about".
func (t *Trade) Token() TokenAmount {
	if t.TokenIn.IsNative() {
		return t.TokenOut
	}
	return t.TokenIn
}

// Record is the JSON wire shape of a trade. Numeric fields are rounded
// half-to-even for display stability.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Signature string    `json:"signature"`
	Action    string    `json:"action"`
	Token     string    `json:"token"`
	Amount    float64   `json:"amount"`
	TokenIn   Leg       `json:"token_in"`
	TokenOut  Leg       `json:"token_out"`
	Price     float64   `json:"price"`
	ValueUSD  float64   `json:"value_usd"`
	PnLUSD    float64   `json:"pnl_usd"`
	FeesUSD   float64   `json:"fees_usd"`
	Priced    bool      `json:"priced"`
	DEX       string    `json:"dex"`
	TxType    string    `json:"tx_type"`
}

// Leg is one side of a swap on the wire.
type Leg struct {
	Mint   string  `json:"mint"`
	Symbol string  `json:"symbol"`
	Amount float64 `json:"amount"`
}

// Record converts the trade to its wire shape.
func (t *Trade) Record() Record {
	token := t.Token()
	return Record{
		Timestamp: t.Timestamp.UTC(),
		Signature: t.Signature,
		Action:    t.Action(),
		Token:     token.Symbol,
		Amount:    RoundEven(token.Amount, 6),
		TokenIn: Leg{
			Mint:   t.TokenIn.Mint,
			Symbol: t.TokenIn.Symbol,
			Amount: RoundEven(t.TokenIn.Amount, 6),
		},
		TokenOut: Leg{
			Mint:   t.TokenOut.Mint,
			Symbol: t.TokenOut.Symbol,
			Amount: RoundEven(t.TokenOut.Amount, 6),
		},
		Price:    RoundEven(t.PriceUSD, 6),
		ValueUSD: RoundEven(t.ValueUSD, 4),
		PnLUSD:   RoundEven(t.PnLUSD, 4),
		FeesUSD:  RoundEven(t.FeesUSD, 4),
		Priced:   t.Priced,
		DEX:      t.DEX,
		TxType:   t.TxType,
	}
}

// RoundEven rounds half-to-even at the given number of decimal places.
func RoundEven(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.RoundToEven(v*p) / p
}

// symbolFor derives a display symbol for a mint. The native mint is "SOL";
// other mints fall back to a short prefix since token metadata resolution
// lives outside this pipeline.
func symbolFor(mint string) string {
	if mint == ledger.NativeMint {
		return "SOL"
	}
	if len(mint) > 6 {
		return mint[:6]
	}
	return mint
}
