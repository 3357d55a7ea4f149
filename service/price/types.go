package price

import (
	"errors"
	"time"
)

// ErrNoPrice is returned when a provider has no data for a mint. The cascade
// treats it as "try the next source", not a failure.
var ErrNoPrice = errors.New("no price available")

// Confidence grades how trustworthy a price is.
type Confidence string

const (
	// ConfidenceHigh is a price computed from on-chain pool reserves.
	ConfidenceHigh Confidence = "high"
	// ConfidenceEst is an estimate from an off-chain aggregator, or a
	// high-confidence price that has aged past a minute.
	ConfidenceEst Confidence = "est"
	// ConfidenceStale marks any price older than five minutes.
	ConfidenceStale Confidence = "stale"
	// ConfidenceUnavailable means every source failed. The price is absent,
	// never zero.
	ConfidenceUnavailable Confidence = "unavailable"
)

const (
	highAgeLimit  = time.Minute
	staleAgeLimit = 5 * time.Minute
)

// Result is one priced observation of a mint.
type Result struct {
	Mint         string     `json:"mint"`
	PriceUSD     float64    `json:"price_usd"`
	MarketCapUSD float64    `json:"market_cap_usd"`
	Supply       float64    `json:"supply"`
	PoolTVLUSD   float64    `json:"pool_tvl_usd,omitempty"`
	Source       string     `json:"source"`
	Confidence   Confidence `json:"confidence"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// Available reports whether the result carries a usable price.
func (r *Result) Available() bool {
	return r != nil && r.Confidence != ConfidenceUnavailable && r.PriceUSD > 0
}

// EffectiveConfidence degrades the stored confidence by the result's age:
// a high-confidence price older than a minute drops to est, and any price
// older than five minutes is stale.
func (r *Result) EffectiveConfidence(now time.Time) Confidence {
	if !r.Available() {
		return ConfidenceUnavailable
	}
	age := now.Sub(r.FetchedAt)
	if age > staleAgeLimit {
		return ConfidenceStale
	}
	if r.Confidence == ConfidenceHigh && age > highAgeLimit {
		return ConfidenceEst
	}
	return r.Confidence
}

// Unavailable returns the sentinel result recorded when no source could
// price a mint.
func Unavailable(mint string, now time.Time) *Result {
	return &Result{Mint: mint, Confidence: ConfidenceUnavailable, FetchedAt: now}
}
