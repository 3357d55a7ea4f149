package enhanced

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/walletglass/walletglass/service/metrics"
)

// BatchClient resolves transaction bodies for a batch of signatures. The
// interface exists so the fetcher can be tested without a live API.
type BatchClient interface {
	GetTransactions(ctx context.Context, signatures []string) ([]Transaction, error)
}

// throttleBackoffs is the escalating wait applied to a batch-wide 429 before
// the full batch is retried.
var throttleBackoffs = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// Fetcher resolves full transaction bodies for signature sets in concurrent
// fixed-size batches under the adaptive fan-out limiter.
type Fetcher struct {
	client    BatchClient
	limiter   *Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
}

// NewFetcher creates a batch fetcher. batchSize must not exceed the API's
// per-call limit of 100; metrics may be nil.
func NewFetcher(client BatchClient, limiter *Limiter, batchSize int, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Fetcher{
		client:    client,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
		batchSize: batchSize,
	}
}

// FetchAll resolves bodies for every signature, dropping transactions that
// fail the swap-candidate pre-filter. Batches run concurrently up to the
// limiter's fan-out; a batch that exhausts its retries is skipped and
// counted, never fatal. Result ordering is unspecified; callers sort and
// deduplicate by signature.
//
// onBatch, if non-nil, is invoked after each completed batch with the number
// of batches done and the total.
func (f *Fetcher) FetchAll(ctx context.Context, signatures []string, onBatch func(done, total int)) ([]Transaction, error) {
	batches := chunk(signatures, f.batchSize)
	if len(batches) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		retained []Transaction
		done     int
		wg       sync.WaitGroup
	)

	for _, batch := range batches {
		if err := f.limiter.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(sigs []string) {
			defer wg.Done()
			defer f.limiter.Release()

			txns, throttles, attempts, err := f.fetchBatch(ctx, sigs)
			f.limiter.Observe(throttles, attempts)
			f.metrics.RecordFanoutLimit(float64(f.limiter.Limit()))

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				f.metrics.RecordBatchFetched("error")
				f.logger.WarnContext(ctx, "batch abandoned after retries",
					"signatures", len(sigs),
					"error", err,
				)
			} else {
				f.metrics.RecordBatchFetched("success")
				for _, txn := range txns {
					if txn.Failed() {
						f.metrics.RecordCandidateDropped("failed_tx")
						continue
					}
					if !txn.IsSwapCandidate() {
						f.metrics.RecordCandidateDropped("not_swap_shaped")
						continue
					}
					retained = append(retained, txn)
				}
			}
			if onBatch != nil {
				onBatch(done, len(batches))
			}
		}(batch)
	}

	wg.Wait()

	// Cancellation must not leak a partial result set to callers.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return retained, nil
}

// fetchBatch issues one batch call with bounded retry. A batch-wide 429 waits
// through the escalating backoff schedule and retries the full batch; other
// errors retry with a shorter exponential backoff. Returns the throttle and
// attempt counts for limiter adaptation.
func (f *Fetcher) fetchBatch(ctx context.Context, sigs []string) (txns []Transaction, throttles, attempts int, err error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++
		txns, err = f.client.GetTransactions(ctx, sigs)
		if err == nil {
			return txns, throttles, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, throttles, attempts, ctx.Err()
		}

		throttled := errors.Is(err, ErrRateLimited)
		if throttled {
			throttles++
			f.metrics.RecordRateLimitHit("GetTransactions")
		}
		if attempt == maxAttempts-1 {
			// No retry left, so no point waiting out a backoff.
			break
		}

		var backoff time.Duration
		if throttled {
			backoff = throttleBackoffs[min(attempt, len(throttleBackoffs)-1)]
			f.metrics.RecordBatchRetry("rate_limit")
		} else {
			backoff = time.Duration(1<<uint(attempt)) * time.Second
			f.metrics.RecordBatchRetry("error")
		}

		f.logger.WarnContext(ctx, "batch fetch failed, backing off",
			"signatures", len(sigs),
			"attempt", attempt+1,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		if serr := sleepCtx(ctx, backoff); serr != nil {
			return nil, throttles, attempts, serr
		}
	}
	return nil, throttles, attempts, err
}

// chunk splits signatures into fixed-size batches.
func chunk(sigs []string, size int) [][]string {
	var out [][]string
	for len(sigs) > size {
		out = append(out, sigs[:size])
		sigs = sigs[size:]
	}
	if len(sigs) > 0 {
		out = append(out, sigs)
	}
	return out
}

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
