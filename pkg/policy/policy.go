// Package policy defines the per-tenant limit set (a "tier") and the
// contract for looking tiers up.
//
// A Tier is the numeric budget attached to a tenant's subscription level:
// how fast it may call (requests per minute and per day), how much linear
// memory a module may claim, and how long a single execution may run. The
// values are owned by an external directory; this package only defines the
// shape and a static in-memory Directory suitable for tests and
// single-binary deployments.
//
// Tiers are plain values. Nothing in this repository mutates a Tier after
// lookup, and consumers must tolerate out-of-range tiers (for example a
// zero RequestsPerMinute) by degrading deterministically rather than
// panicking: the admission layer treats a zero rate as "always deny", and
// the sandbox floors zero memory/time caps at their minimum useful values.
package policy

import (
	"context"
	"fmt"
	"sync"
)

// Tier is the set of limits associated with one subscription level.
type Tier struct {
	// RequestsPerMinute bounds short bursts.
	RequestsPerMinute uint32
	// RequestsPerDay bounds sustained volume. Expected (not enforced) to be
	// >= RequestsPerMinute.
	RequestsPerDay uint32
	// MemoryCapBytes is the ceiling for a module's linear memory.
	MemoryCapBytes uint64
	// TimeCapSeconds is the ceiling for one execution's wall-clock time.
	TimeCapSeconds uint32
}

// Built-in tiers. Real deployments typically load these from a billing
// system; the demo server and tests use the presets directly.
var (
	Free = Tier{
		RequestsPerMinute: 10,
		RequestsPerDay:    500,
		MemoryCapBytes:    64 << 20,
		TimeCapSeconds:    5,
	}
	Pro = Tier{
		RequestsPerMinute: 60,
		RequestsPerDay:    10_000,
		MemoryCapBytes:    128 << 20,
		TimeCapSeconds:    15,
	}
	Enterprise = Tier{
		RequestsPerMinute: 600,
		RequestsPerDay:    200_000,
		MemoryCapBytes:    512 << 20,
		TimeCapSeconds:    60,
	}
)

// Directory resolves a tenant identifier to its Tier. Implementations are
// expected to be fast (cached); the execution pipeline calls Lookup on
// every request.
type Directory interface {
	Lookup(ctx context.Context, tenantID string) (Tier, error)
}

// StaticDirectory is a fixed tenant-to-tier map with an optional default.
// It is safe for concurrent use.
type StaticDirectory struct {
	mu     sync.RWMutex
	tiers  map[string]Tier
	def    Tier
	hasDef bool
}

// NewStaticDirectory builds a directory over a copy of the given map.
func NewStaticDirectory(tiers map[string]Tier) *StaticDirectory {
	d := &StaticDirectory{tiers: make(map[string]Tier, len(tiers))}
	for k, v := range tiers {
		d.tiers[k] = v
	}
	return d
}

// WithDefault makes unknown tenants resolve to tier instead of an error.
func (d *StaticDirectory) WithDefault(tier Tier) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.def = tier
	d.hasDef = true
	return d
}

// Set adds or replaces a tenant's tier.
func (d *StaticDirectory) Set(tenantID string, tier Tier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tiers[tenantID] = tier
}

// Lookup implements Directory.
func (d *StaticDirectory) Lookup(ctx context.Context, tenantID string) (Tier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if tier, ok := d.tiers[tenantID]; ok {
		return tier, nil
	}
	if d.hasDef {
		return d.def, nil
	}
	return Tier{}, fmt.Errorf("policy: no tier for tenant %q", tenantID)
}
