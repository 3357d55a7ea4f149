package nats

import (
	"time"

	"github.com/walletglass/walletglass/service/trades"
)

// TradeEvent represents a trade event published to NATS.
// This is published to the subject "trades.{wallet_address}" in JetStream.
type TradeEvent struct {
	// Trade identifiers
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`

	// Trade details
	Action   string  `json:"action"`
	Token    string  `json:"token"`
	Amount   float64 `json:"amount"`
	PriceUSD float64 `json:"price_usd"`
	ValueUSD float64 `json:"value_usd"`
	PnLUSD   float64 `json:"pnl_usd"`
	Priced   bool    `json:"priced"`
	DEX      string  `json:"dex"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a trade record to a TradeEvent for publishing.
func FromRecord(wallet string, rec trades.Record) *TradeEvent {
	return &TradeEvent{
		Signature:   rec.Signature,
		Wallet:      wallet,
		Action:      rec.Action,
		Token:       rec.Token,
		Amount:      rec.Amount,
		PriceUSD:    rec.Price,
		ValueUSD:    rec.ValueUSD,
		PnLUSD:      rec.PnLUSD,
		Priced:      rec.Priced,
		DEX:         rec.DEX,
		Timestamp:   rec.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}
