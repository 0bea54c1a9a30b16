package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

// Controller evaluates requests against a tenant's tier before any
// execution resource is consumed. It composes exactly one of two backends:
// the in-process LocalBucket (default) or the distributed RedisWindow.
//
// Check never returns an error. When the distributed store is unreachable
// or misbehaving the controller fails open: the condition is logged and the
// call is routed through the local bucket instead, so degraded counting
// infrastructure throttles precision, not traffic. A billing meter would
// make the opposite choice; a rate limiter must not turn a Redis outage
// into a full outage.
type Controller struct {
	local    *LocalBucket
	redis    *RedisWindow
	recorder MetricsRecorder
	logger   *slog.Logger

	redisClient  *redis.Client
	prefix       string
	storeTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithRedis switches the controller to distributed mode backed by client.
func WithRedis(client *redis.Client) Option {
	return func(c *Controller) { c.redisClient = client }
}

// WithPrefix sets the Redis key prefix (default "admission:").
func WithPrefix(prefix string) Option {
	return func(c *Controller) { c.prefix = prefix }
}

// WithStoreTimeout bounds each Redis round trip (default 5s). Past the
// deadline the call is treated like any other store failure: fail open.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Controller) { c.storeTimeout = d }
}

// WithRecorder injects a metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLogger sets the logger for degradation events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController constructs a controller with isolated state. Each instance
// owns its own local buckets; nothing is process-global, so tests can run
// many controllers side by side.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		local:    NewLocalBucket(),
		recorder: NoOpMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.redisClient != nil {
		c.redis = NewRedisWindow(c.redisClient, c.prefix, c.storeTimeout)
	}
	return c
}

// Check decides whether one request from tenant may proceed under tier.
// It is safe under unbounded concurrent calls and completes in bounded
// time: the only I/O is the single Redis round trip in distributed mode,
// itself capped by the store timeout.
func (c *Controller) Check(ctx context.Context, tenant string, tier policy.Tier) Decision {
	start := time.Now()

	var dec Decision
	if c.redis != nil {
		var err error
		dec, err = c.redis.take(ctx, tenant, tier)
		if err != nil {
			c.logger.Warn("admission store degraded, failing open via local bucket",
				"tenant", tenant, "error", err)
			c.recorder.Add("admission.fail_open", 1, nil)
			dec = c.local.take(tenant, tier)
		}
	} else {
		dec = c.local.take(tenant, tier)
	}

	outcome := "deny"
	if dec.Allowed {
		outcome = "allow"
	}
	c.recorder.Add("admission.check", 1, map[string]string{"outcome": outcome})
	c.recorder.Observe("admission.latency", time.Since(start).Seconds(), nil)
	return dec
}

// StartJanitor starts background eviction of idle local-bucket entries.
// Useful for long-lived processes with high tenant cardinality; stop it by
// cancelling the context.
func (c *Controller) StartJanitor(ctx context.Context, every time.Duration) {
	c.local.StartJanitor(ctx, every)
}
