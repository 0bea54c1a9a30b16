package admission

import (
	"time"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

// Window discriminates the two independent rate counters kept per tenant.
type Window string

const (
	WindowMinute Window = "minute"
	WindowDay    Window = "day"
)

// Duration returns the span the window's limit is measured over.
func (w Window) Duration() time.Duration {
	if w == WindowDay {
		return 24 * time.Hour
	}
	return time.Minute
}

// limit extracts the window's request budget from a tier.
func (w Window) limit(tier policy.Tier) int64 {
	if w == WindowDay {
		return int64(tier.RequestsPerDay)
	}
	return int64(tier.RequestsPerMinute)
}

// rateKey names one (tenant, window) counter. Both backends use the same
// key shape so their state is directly comparable in tests and dashboards.
func rateKey(tenant string, w Window) string {
	return tenant + ":" + string(w)
}

// Decision is the result of one admission check. It is produced fresh per
// request and never persisted.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// RetryAfter is 0 when allowed; when denied it is the approximate wait
	// until the scarcer of the two windows admits one more request.
	RetryAfter time.Duration
	// RemainingMinute and RemainingDay are the whole requests left in each
	// window after this decision is applied, floored at 0.
	RemainingMinute int64
	RemainingDay    int64
}
