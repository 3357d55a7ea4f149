package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"
	"unicode"

	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/price"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a batch of mints
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleAnalyzeWallet returns a handler that runs a full wallet analysis.
// GET /api/v1/wallets/{address}/trades
func handleAnalyzeWallet(analyzer Analyzer, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := analyzer.Analyze(r.Context(), address, nil)
		if err != nil {
			status := http.StatusBadGateway
			msg := "analysis failed"
			switch {
			case errors.Is(err, ledger.ErrTruncatedHistory):
				msg = "wallet history could not be fetched completely"
			case r.Context().Err() != nil:
				// Client went away; nothing useful to write.
				return
			}
			logger.Error("analysis failed", "address", address, "error", err)
			m.RecordHTTPRequest("analyze_wallet", r.Method, status, time.Since(start).Seconds())
			writeError(w, msg, status)
			return
		}

		logger.Info("analysis served",
			"address", address,
			"trades", res.Summary.TotalTrades,
			"elapsed_seconds", res.ElapsedSeconds,
		)
		m.RecordHTTPRequest("analyze_wallet", r.Method, http.StatusOK, time.Since(start).Seconds())
		writeJSON(w, res, http.StatusOK)
	})
}

// marketCapResponse is the wire shape of one market-cap answer.
type marketCapResponse struct {
	Mint         string  `json:"mint"`
	PriceUSD     float64 `json:"price_usd"`
	MarketCapUSD float64 `json:"market_cap_usd"`
	Confidence   string  `json:"confidence"`
	Source       string  `json:"source,omitempty"`
	FetchedAt    string  `json:"fetched_at,omitempty"`
}

func toMarketCapResponse(res *price.Result) marketCapResponse {
	out := marketCapResponse{
		Mint:       res.Mint,
		Confidence: string(res.Confidence),
	}
	if res.Available() {
		out.PriceUSD = res.PriceUSD
		out.MarketCapUSD = res.MarketCapUSD
		out.Source = res.Source
		out.FetchedAt = res.FetchedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// handleGetMarketCap returns a handler for single market-cap lookups.
// GET /api/v1/marketcap/{mint}
func handleGetMarketCap(marketCaps MarketCaps, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")
		if err := validateAddress(mint); err != nil {
			logger.Debug("invalid mint", "mint", mint, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		res := marketCaps.Lookup(r.Context(), mint)
		writeJSON(w, toMarketCapResponse(res), http.StatusOK)
	})
}

type batchMarketCapRequest struct {
	Mints []string `json:"mints"`
}

// handleBatchMarketCap returns a handler for batch market-cap lookups.
// POST /api/v1/marketcap/batch
func handleBatchMarketCap(marketCaps MarketCaps, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req batchMarketCapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if len(req.Mints) == 0 {
			writeError(w, "mints is required", http.StatusBadRequest)
			return
		}
		for _, mint := range req.Mints {
			if err := validateAddress(mint); err != nil {
				writeError(w, fmt.Sprintf("invalid mint %q", mint), http.StatusBadRequest)
				return
			}
		}

		results, err := marketCaps.LookupBatch(r.Context(), req.Mints)
		if err != nil {
			logger.Debug("batch lookup rejected", "mints", len(req.Mints), "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := make(map[string]marketCapResponse, len(results))
		for mint, res := range results {
			resp[mint] = toMarketCapResponse(res)
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet or mint address for format and safety.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("invalid characters in address: control characters not allowed")
		}
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("address must be base58")
	}
	return nil
}
