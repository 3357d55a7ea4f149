package enhanced

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrRateLimited is returned when the upstream responds with a 429. The batch
// fetcher treats it as a signal to back off and retry the whole batch.
var ErrRateLimited = errors.New("enhanced API rate limited")

// Client communicates with the enhanced-transactions REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new enhanced API client. The API key is carried as a
// query parameter on every request.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// batchRequest is the POST body for the batch transaction lookup.
type batchRequest struct {
	Transactions []string `json:"transactions"`
}

// GetTransactions resolves full transaction bodies for up to 100 signatures
// in a single round trip. Unknown signatures are simply absent from the
// response; a 404 yields an empty slice, not an error.
func (c *Client) GetTransactions(ctx context.Context, signatures []string) ([]Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	if len(signatures) > 100 {
		return nil, fmt.Errorf("batch of %d signatures exceeds the API limit of 100", len(signatures))
	}

	endpoint := fmt.Sprintf("%s/v0/transactions", c.baseURL)
	params := url.Values{}
	params.Set("api-key", c.apiKey)

	body, err := json.Marshal(batchRequest{Transactions: signatures})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("enhanced API returned status %d: %s", resp.StatusCode, string(msg))
	}

	var txns []Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txns); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return txns, nil
}
