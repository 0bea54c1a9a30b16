package admission

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

//go:embed window.lua
var windowScript string

// incrWindows increments both of a tenant's window counters atomically.
// redis.Script handles EVALSHA with an EVAL fallback, so a Redis restart
// that flushes the script cache does not surface as NOSCRIPT errors.
var incrWindows = redis.NewScript(windowScript)

// RedisWindow is the distributed admission backend: two fixed-window
// counters per tenant materialized in a shared Redis, incremented with
// expiry-on-first-increment in a single atomic script.
//
// Concurrency safety is delegated to Redis: every process sharing the same
// prefix observes the same counts, so the fleet enforces one global budget
// per tenant.
type RedisWindow struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisWindow constructs a backend over an existing client. The client
// is not pinged here; reachability problems surface per call, where the
// controller's fail-open path handles them.
func NewRedisWindow(client *redis.Client, prefix string, timeout time.Duration) *RedisWindow {
	if prefix == "" {
		prefix = "admission:"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisWindow{client: client, prefix: prefix, timeout: timeout}
}

// take increments both windows and applies the tier's limits to the
// post-increment counts. A count above its limit denies; retry-after is the
// remaining TTL of the scarcer offending window.
func (r *RedisWindow) take(ctx context.Context, tenant string, tier policy.Tier) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys := []string{
		r.prefix + rateKey(tenant, WindowMinute),
		r.prefix + rateKey(tenant, WindowDay),
	}
	vals, err := incrWindows.Run(ctx, r.client, keys,
		WindowMinute.Duration().Milliseconds(),
		WindowDay.Duration().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("admission: window script: %w", err)
	}
	if len(vals) != 4 {
		return Decision{}, fmt.Errorf("admission: window script returned %d values, want 4", len(vals))
	}

	minuteCount, minuteTTL := vals[0], vals[1]
	dayCount, dayTTL := vals[2], vals[3]
	minuteLimit := WindowMinute.limit(tier)
	dayLimit := WindowDay.limit(tier)

	minuteOK := minuteCount <= minuteLimit
	dayOK := dayCount <= dayLimit
	dec := Decision{
		Allowed:         minuteOK && dayOK,
		RemainingMinute: remaining(minuteLimit, minuteCount),
		RemainingDay:    remaining(dayLimit, dayCount),
	}
	if dec.Allowed {
		return dec, nil
	}

	if !minuteOK {
		dec.RetryAfter = ttlOrWindow(minuteTTL, WindowMinute)
	}
	if !dayOK {
		if w := ttlOrWindow(dayTTL, WindowDay); w > dec.RetryAfter {
			dec.RetryAfter = w
		}
	}
	return dec, nil
}

func remaining(limit, count int64) int64 {
	if count >= limit {
		return 0
	}
	return limit - count
}

// ttlOrWindow converts a PTTL reply to a retry hint. PTTL is negative when
// the key has no expiry or vanished between script and reply; the full
// window span is the safe answer in either case.
func ttlOrWindow(pttlMillis int64, w Window) time.Duration {
	if pttlMillis <= 0 {
		return w.Duration()
	}
	return time.Duration(pttlMillis) * time.Millisecond
}
