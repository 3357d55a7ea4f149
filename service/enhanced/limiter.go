package enhanced

import (
	"context"
	"sync"
	"time"
)

const (
	// limiterFloor and limiterCeiling bound the adaptive fan-out limit. The
	// limit never leaves [floor, ceiling] regardless of the throttling
	// sequence observed.
	limiterFloor   = 5
	limiterCeiling = 50

	// shrinkThreshold is the per-batch throttle rate above which the limit
	// contracts.
	shrinkThreshold = 0.05

	// growAfterClean is how many consecutive throttle-free batches earn a
	// limit increase.
	growAfterClean = 3
)

// Limiter is the adaptive fan-out limiter for concurrent batch fetches. It is
// the single piece of cross-task shared mutable state in the fetch path:
// every adjustment happens under one mutex, since concurrent batches report
// throttling and success simultaneously.
//
// The policy: a batch with a throttle rate above 5% shrinks the limit by 20%
// (floor 5); three consecutive clean batches grow it by 10% (ceiling 50).
// This avoids both under-utilizing an RPC's allowance and repeatedly tripping
// its limiter.
type Limiter struct {
	mu   sync.Mutex
	cond *sync.Cond

	limit       int
	inFlight    int
	cleanStreak int

	batches   int64
	throttled int64
	started   time.Time
}

// Stats is a snapshot of limiter state for the result envelope.
type Stats struct {
	Limit            int     `json:"limit"`
	BatchesCompleted int64   `json:"batches_completed"`
	BatchesThrottled int64   `json:"batches_throttled"`
	BatchesPerSecond float64 `json:"batches_per_second"`
}

// NewLimiter creates a limiter starting at the given fan-out, clamped to the
// allowed range.
func NewLimiter(initial int) *Limiter {
	l := &Limiter{
		limit:   clamp(initial, limiterFloor, limiterCeiling),
		started: time.Now(),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a fan-out slot is available or the context is
// canceled.
func (l *Limiter) Acquire(ctx context.Context) error {
	// Wake any waiter when the context dies; cond.Wait alone cannot observe
	// cancellation.
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inFlight >= l.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	l.inFlight++
	return nil
}

// Release frees a fan-out slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
	l.cond.Broadcast()
}

// Observe records the outcome of one completed batch and adapts the limit.
// throttles is the number of 429 responses seen while fetching the batch,
// attempts the total number of upstream calls it took.
func (l *Limiter) Observe(throttles, attempts int) {
	if attempts < 1 {
		attempts = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.batches++
	rate := float64(throttles) / float64(attempts)

	if rate > shrinkThreshold {
		l.throttled++
		l.cleanStreak = 0
		l.limit = clamp(l.limit*4/5, limiterFloor, limiterCeiling)
		return
	}

	l.cleanStreak++
	if l.cleanStreak >= growAfterClean {
		l.cleanStreak = 0
		// Grow by 10%, always by at least one slot.
		grown := l.limit + max(1, l.limit/10)
		l.limit = clamp(grown, limiterFloor, limiterCeiling)
		l.cond.Broadcast()
	}
}

// Limit returns the current fan-out limit.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Snapshot returns realized-throughput statistics.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.started).Seconds()
	var perSec float64
	if elapsed > 0 {
		perSec = float64(l.batches) / elapsed
	}
	return Stats{
		Limit:            l.limit,
		BatchesCompleted: l.batches,
		BatchesThrottled: l.throttled,
		BatchesPerSecond: perSec,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
