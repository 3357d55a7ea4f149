package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// maxPageAttempts bounds per-page retries before the page is abandoned.
	maxPageAttempts = 3

	// emptyPagesBeforeDone is how many consecutive empty pages we tolerate
	// before concluding the wallet history is exhausted. A single empty page
	// from a flaky node is provisional, not terminal.
	emptyPagesBeforeDone = 5

	// emptyPagesBeforeTruncation is how many consecutive empty pages we
	// tolerate while the cursor still points into history we know exists.
	// Past this the upstream is serving a truncated view and we fail hard.
	emptyPagesBeforeTruncation = 10
)

// AllSignatures walks the cursor-based signature listing to completion and
// returns every signature involving the wallet. The result set is unique but
// carries no ordering guarantee; downstream correctness relies on
// deduplication by signature, not on arrival order.
//
// onPage, if non-nil, is invoked after each non-empty page with the running
// signature count.
func (c *Client) AllSignatures(ctx context.Context, wallet solana.PublicKey, onPage func(total int)) ([]*rpc.TransactionSignature, error) {
	var (
		all        []*rpc.TransactionSignature
		cursor     *solana.Signature
		emptyRun   int
		expectMore bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := c.signaturePage(ctx, wallet, cursor)
		if err != nil {
			return nil, err
		}

		if len(page) > 0 {
			emptyRun = 0
			all = append(all, page...)
			last := page[len(page)-1].Signature
			cursor = &last
			// A full page means the node has (or had) more history behind
			// the cursor; a short page is the natural end of the walk.
			expectMore = len(page) == c.pageSize

			c.metrics.RecordSignaturesPerPage(wallet.String(), float64(len(page)))
			if onPage != nil {
				onPage(len(all))
			}
			if !expectMore {
				break
			}
			continue
		}

		emptyRun++
		if expectMore {
			// The previous page was full, so the cursor still points into
			// history the node claimed to have. Keep probing, but never
			// silently accept a truncated list.
			c.logger.WarnContext(ctx, "empty page with live cursor, possible truncation",
				"wallet", wallet.String(),
				"fetched", len(all),
				"empty_run", emptyRun,
			)
			if emptyRun >= emptyPagesBeforeTruncation {
				return nil, fmt.Errorf("%w: %d signatures fetched, cursor %s", ErrTruncatedHistory, len(all), cursor)
			}
		} else if emptyRun >= emptyPagesBeforeDone {
			break
		}

		if err := sleepCtx(ctx, c.probeDelay); err != nil {
			return nil, err
		}
	}

	c.logger.InfoContext(ctx, "signature walk complete",
		"wallet", wallet.String(),
		"signatures", len(all),
	)
	return all, nil
}

// signaturePage fetches one page of the signature listing with bounded retry.
func (c *Client) signaturePage(ctx context.Context, wallet solana.PublicKey, before *solana.Signature) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &c.pageSize,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != nil {
		opts.Before = *before
	}

	var lastErr error
	for attempt := 0; attempt < maxPageAttempts; attempt++ {
		start := time.Now()
		page, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
		c.record("GetSignaturesForAddress", err, time.Since(start))
		if err == nil {
			return page, nil
		}
		lastErr = err

		reason := "timeout_or_error"
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if isRateLimited(err) {
			reason = "rate_limit"
			backoff = time.Duration(2<<uint(attempt)) * time.Second
		}
		c.metrics.RecordRPCRetry("GetSignaturesForAddress", reason)
		c.logger.WarnContext(ctx, "signature page fetch failed",
			"wallet", wallet.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("signature page after %d attempts: %w", maxPageAttempts, lastErr)
}
