// Package admission decides, per tenant, whether a request may proceed
// before any execution resource is consumed.
//
// The entry point is the Controller:
//
//	ctrl := admission.NewController()
//	dec := ctrl.Check(ctx, tenantID, tier)
//
// The returned Decision reports whether the request is allowed, how many
// requests remain in each window, and a Retry-After hint for denials.
//
// # Two windows per tenant
//
// Every tenant is measured on two independent axes:
//
//   - minute: bounds bursts (capacity = Tier.RequestsPerMinute)
//   - day: bounds sustained volume (capacity = Tier.RequestsPerDay)
//
// A request is admitted only when both windows have headroom. Exhausting
// the minute window denies even when the day window is nearly empty, and
// vice versa; when both are short, RetryAfter comes from the scarcer one.
//
// # Backends
//
// The controller composes exactly one of two backends behind Check:
//
//   - LocalBucket: a continuous-refill token bucket per (tenant, window),
//     held in a process-local map behind a mutex. Bursts are absorbed up to
//     the window's capacity and a tenant that pauses is never permanently
//     penalized. State is per process, so a fleet of N replicas enforces
//     roughly N times the nominal limit.
//
//   - RedisWindow: a fixed-window counter per (tenant, window) in a shared
//     Redis, selected with WithRedis. A single embedded Lua script
//     increments both counters and sets each key's expiry in the same
//     atomic step as its first increment. That atomicity is load-bearing:
//     without it, concurrent first requests from different processes race
//     to set inconsistent expiries, or a crash between INCR and EXPIRE
//     leaves a counter that never resets.
//
// # Fail-open degradation
//
// In distributed mode a store failure (unreachable Redis, protocol error,
// store timeout) is never surfaced to the caller. Check logs the condition,
// increments the admission.fail_open counter, and evaluates that call
// against the local bucket instead. Enforcement precision degrades to
// per-process limits until the store recovers; traffic keeps flowing.
//
// # Degenerate tiers
//
// A tier with a zero window limit admits nothing on that axis: the check
// deterministically denies with the window span as the retry hint. No
// tier value, however malformed, can cause a panic or division by zero.
//
// # Concurrency
//
// Check is safe under unbounded concurrent calls for the same and for
// different tenants. LocalBucket serializes bucket mutation behind its
// mutex (no lost decrements); RedisWindow delegates the same guarantee to
// the atomicity of the server-side script. Tenants never interfere with
// each other.
package admission
