package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSupply_NativeMintIsPinned(t *testing.T) {
	// The native mint must resolve without any RPC traffic.
	client := newTestClient(&mockRPCClient{err: errors.New("no RPC expected")}, 10)

	supply, err := client.TokenSupply(context.Background(), NativeMint)
	require.NoError(t, err)
	assert.Equal(t, nativeSupply, supply.Amount)
	assert.Equal(t, uint8(nativeDecimals), supply.Decimals)
}

func TestTokenSupply_FromRPC(t *testing.T) {
	ui := 1_000_000.0
	mock := &mockRPCClient{
		supply: &rpc.GetTokenSupplyResult{
			Value: &rpc.UiTokenAmount{
				Amount:   "1000000000000",
				Decimals: 6,
				UiAmount: &ui,
			},
		},
	}
	client := newTestClient(mock, 10)

	supply, err := client.TokenSupply(context.Background(), "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, supply.Amount)
	assert.Equal(t, uint8(6), supply.Decimals)
}

func TestTokenSupply_InvalidMint(t *testing.T) {
	client := newTestClient(&mockRPCClient{}, 10)

	_, err := client.TokenSupply(context.Background(), "not-a-mint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mint")
}

func TestTokenSupply_MissingValue(t *testing.T) {
	mock := &mockRPCClient{supply: &rpc.GetTokenSupplyResult{}}
	client := newTestClient(mock, 10)

	_, err := client.TokenSupply(context.Background(), "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.Error(t, err)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(errors.New("got 429 Too Many Requests")))
	assert.False(t, isRateLimited(errors.New("connection refused")))
	assert.False(t, isRateLimited(nil))
}
