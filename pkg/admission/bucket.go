package admission

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

type bucketState struct {
	tokens float64
	// last is both the refill anchor and the last-seen time used by the
	// janitor.
	last time.Time
}

// LocalBucket is the in-process admission backend: one continuous-refill
// token bucket per (tenant, window), guarded by a mutex.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use the Redis
// backend when multiple processes must agree on one budget; LocalBucket then
// remains the fail-open fallback.
type LocalBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucketState

	idleTTL time.Duration

	// now is swapped in tests for deterministic refill arithmetic.
	now func() time.Time
}

// NewLocalBucket constructs a LocalBucket with empty state.
func NewLocalBucket() *LocalBucket {
	return &LocalBucket{
		buckets: make(map[string]*bucketState),
		// An entry idle for a full day would refill to capacity anyway, so
		// recreating it lazily is indistinguishable from keeping it.
		idleTTL: 24 * time.Hour,
		now:     time.Now,
	}
}

// take evaluates both windows for the tenant and consumes one token from
// each only when both admit. On denial nothing is consumed.
func (l *LocalBucket) take(tenant string, tier policy.Tier) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minute := l.refill(rateKey(tenant, WindowMinute), WindowMinute, tier, now)
	day := l.refill(rateKey(tenant, WindowDay), WindowDay, tier, now)

	minuteOK := WindowMinute.limit(tier) > 0 && minute.tokens >= 1.0
	dayOK := WindowDay.limit(tier) > 0 && day.tokens >= 1.0

	if minuteOK && dayOK {
		minute.tokens -= 1.0
		day.tokens -= 1.0
		return Decision{
			Allowed:         true,
			RemainingMinute: int64(minute.tokens),
			RemainingDay:    int64(day.tokens),
		}
	}

	retry := time.Duration(0)
	if !minuteOK {
		retry = waitFor(minute, WindowMinute, tier)
	}
	if !dayOK {
		if w := waitFor(day, WindowDay, tier); w > retry {
			retry = w
		}
	}
	return Decision{
		Allowed:         false,
		RetryAfter:      retry,
		RemainingMinute: int64(minute.tokens),
		RemainingDay:    int64(day.tokens),
	}
}

// refill advances one bucket to now, creating it full on first use.
// Refill never decreases tokens and never exceeds capacity.
func (l *LocalBucket) refill(key string, w Window, tier policy.Tier, now time.Time) *bucketState {
	capacity := float64(w.limit(tier))

	st, ok := l.buckets[key]
	if !ok {
		st = &bucketState{tokens: capacity, last: now}
		l.buckets[key] = st
		return st
	}

	elapsed := now.Sub(st.last)
	if elapsed < 0 {
		elapsed = 0
	}
	rate := capacity / w.Duration().Seconds()
	st.tokens += elapsed.Seconds() * rate
	if st.tokens > capacity {
		st.tokens = capacity
	}
	st.last = now
	return st
}

// waitFor estimates how long until the bucket holds one whole token. A
// zero-capacity window never admits, so its wait is the full window span.
func waitFor(st *bucketState, w Window, tier policy.Tier) time.Duration {
	limit := w.limit(tier)
	if limit <= 0 {
		return w.Duration()
	}
	rate := float64(limit) / w.Duration().Seconds()
	missing := 1.0 - st.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing/rate)) * time.Second
}

// cleanup drops entries idle past idleTTL.
func (l *LocalBucket) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	for k, st := range l.buckets {
		if st.last.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// StartJanitor launches a goroutine that periodically evicts idle tenants.
// Stop it by cancelling the context.
func (l *LocalBucket) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.cleanup()
			}
		}
	}()
}
