package sandbox

import (
	"time"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

// Limits are the effective per-execution ceilings after combining the
// host's global configuration with the tenant's tier. The tighter of the
// two always wins.
type Limits struct {
	MemoryBytes uint64
	Timeout     time.Duration
}

// DeriveLimits computes the effective limits. Zero is never "unlimited":
// memory is floored at one byte and the timeout at one second, so a
// zero-valued tier or global yields the smallest possible budget rather
// than an unbounded one.
func DeriveLimits(globalMemory, globalTimeoutSeconds uint64, tier policy.Tier) Limits {
	memory := min(globalMemory, tier.MemoryCapBytes)
	if memory == 0 {
		memory = 1
	}
	timeout := min(globalTimeoutSeconds, uint64(tier.TimeCapSeconds))
	if timeout == 0 {
		timeout = 1
	}
	return Limits{
		MemoryBytes: memory,
		Timeout:     time.Duration(timeout) * time.Second,
	}
}
