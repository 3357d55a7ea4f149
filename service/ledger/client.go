package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/walletglass/walletglass/service/metrics"
)

// NativeMint is the wrapped-SOL mint address used to identify the native leg
// of a swap.
const NativeMint = "So11111111111111111111111111111111111111112"

// nativeSupply is the circulating SOL supply used for native market-cap
// derivation. SOL supply changes slowly enough that a pinned value is fine
// for daily-granularity market caps, and it saves an RPC call per lookup.
const nativeSupply = 588_000_000.0

// nativeDecimals is the lamport exponent.
const nativeDecimals = 9

// ErrTruncatedHistory is returned when the signature walk sees repeated empty
// pages while the cursor still points into unconsumed history. This is an
// integrity violation: returning a silently truncated signature list would
// corrupt every downstream P&L number.
var ErrTruncatedHistory = errors.New("signature pagination truncated by upstream")

// RPCClient is an interface for the ledger RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTokenSupply(
		ctx context.Context,
		mint solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetTokenSupplyResult, error)

	GetMultipleAccounts(
		ctx context.Context,
		accounts ...solana.PublicKey,
	) (*rpc.GetMultipleAccountsResult, error)
}

// Client provides domain-level operations over the raw ledger RPC:
// full-history signature walks, token supply lookups and bulk account reads.
type Client struct {
	rpc        RPCClient
	logger     *slog.Logger
	metrics    *metrics.Metrics
	pageSize   int
	probeDelay time.Duration
}

// NewClient creates a new ledger client. pageSize bounds each signature
// listing call; metrics may be nil.
func NewClient(rpcClient RPCClient, pageSize int, m *metrics.Metrics, logger *slog.Logger) *Client {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{
		rpc:        rpcClient,
		logger:     logger,
		metrics:    m,
		pageSize:   pageSize,
		probeDelay: 500 * time.Millisecond,
	}
}

// Supply is a decimal-adjusted token supply.
type Supply struct {
	Amount   float64
	Decimals uint8
}

// TokenSupply returns the total supply of a mint in decimal units.
// The native mint resolves to a pinned supply without an RPC call.
func (c *Client) TokenSupply(ctx context.Context, mint string) (Supply, error) {
	if mint == NativeMint {
		return Supply{Amount: nativeSupply, Decimals: nativeDecimals}, nil
	}

	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return Supply{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	start := time.Now()
	out, err := c.rpc.GetTokenSupply(ctx, pk, rpc.CommitmentConfirmed)
	c.record("GetTokenSupply", err, time.Since(start))
	if err != nil {
		return Supply{}, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return Supply{}, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}

	amount := out.Value.UiAmount
	if amount == nil {
		return Supply{}, fmt.Errorf("getTokenSupply %s: missing uiAmount", mint)
	}
	return Supply{Amount: *amount, Decimals: out.Value.Decimals}, nil
}

// AccountData fetches the raw binary data of multiple accounts in a single
// round trip. Missing accounts come back as nil entries, matching the RPC
// result shape.
func (c *Client) AccountData(ctx context.Context, accounts []solana.PublicKey) ([][]byte, error) {
	if len(accounts) == 0 {
		return nil, nil
	}

	start := time.Now()
	out, err := c.rpc.GetMultipleAccounts(ctx, accounts...)
	c.record("GetMultipleAccounts", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("getMultipleAccounts: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("getMultipleAccounts: empty result")
	}

	data := make([][]byte, len(out.Value))
	for i, acct := range out.Value {
		if acct == nil || acct.Data == nil {
			continue
		}
		data[i] = acct.Data.GetBinary()
	}
	return data, nil
}

func (c *Client) record(method string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
		if isRateLimited(err) {
			c.metrics.RecordRateLimitHit(method)
		}
	}
	c.metrics.RecordRPCCall(method, status, elapsed.Seconds())
}

// isRateLimited reports whether an RPC error is an upstream 429.
// The solana-go client surfaces HTTP status through the error string.
func isRateLimited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}

// sleepCtx sleeps for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
