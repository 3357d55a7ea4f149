package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/walletglass/walletglass/service/ledger"
)

// SupplySource resolves token supplies for market-cap derivation.
type SupplySource interface {
	TokenSupply(ctx context.Context, mint string) (ledger.Supply, error)
}

const providerTimeout = 10 * time.Second

// getJSON performs a GET and decodes the JSON body into v. A 404 maps to
// ErrNoPrice since the aggregators use it for unknown mints.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case http.StatusNotFound:
		return ErrNoPrice
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
