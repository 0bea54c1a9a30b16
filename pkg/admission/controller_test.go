package admission

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

// mockRecorder captures metrics in memory for assertion.
type mockRecorder struct {
	mu       sync.Mutex
	counters map[string]float64
	timings  map[string][]float64
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		counters: make(map[string]float64),
		timings:  make(map[string][]float64),
	}
}

func (m *mockRecorder) Add(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *mockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[name] = append(m.timings[name], value)
}

func (m *mockRecorder) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestController_TenantsDoNotInterfere(t *testing.T) {
	clock := newFakeClock()
	ctrl := NewController()
	ctrl.local.now = clock.Now
	tier := policy.Tier{RequestsPerMinute: 2, RequestsPerDay: 100}

	ctx := context.Background()
	ctrl.Check(ctx, "tenant_a", tier)
	ctrl.Check(ctx, "tenant_a", tier)
	if dec := ctrl.Check(ctx, "tenant_a", tier); dec.Allowed {
		t.Fatal("tenant_a should be exhausted")
	}

	if dec := ctrl.Check(ctx, "tenant_b", tier); !dec.Allowed {
		t.Error("tenant_a's exhaustion must not deny tenant_b")
	}
}

func TestController_ConcurrentChecksLoseNothing(t *testing.T) {
	// 200 goroutines race for 100 tokens with a frozen clock; exactly 100
	// must win. Any lost update would let more through.
	clock := newFakeClock()
	ctrl := NewController()
	ctrl.local.now = clock.Now
	tier := policy.Tier{RequestsPerMinute: 100, RequestsPerDay: 10_000}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec := ctrl.Check(context.Background(), "tenant_a", tier)
			if dec.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("expected exactly 100 allowed checks, got %d", allowed)
	}
}

func TestController_FailOpenWhenStoreUnreachable(t *testing.T) {
	// Nothing listens on this address, so every distributed check fails;
	// traffic must keep flowing through the local bucket.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rec := newMockRecorder()
	ctrl := NewController(
		WithRedis(client),
		WithStoreTimeout(100*time.Millisecond),
		WithRecorder(rec),
		WithLogger(quietLogger()),
	)
	tier := policy.Tier{RequestsPerMinute: 10, RequestsPerDay: 500}

	dec := ctrl.Check(context.Background(), "tenant_a", tier)
	if !dec.Allowed {
		t.Error("store outage must fail open, not deny")
	}
	if got := rec.counter("admission.fail_open"); got != 1 {
		t.Errorf("expected admission.fail_open == 1, got %v", got)
	}
}

func TestController_FailOpenStillRateLimitsLocally(t *testing.T) {
	// Fail-open is not fail-unlimited: the local fallback bucket still
	// enforces the tier for calls served during the outage.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctrl := NewController(
		WithRedis(client),
		WithStoreTimeout(100*time.Millisecond),
		WithLogger(quietLogger()),
	)
	ctrl.local.now = newFakeClock().Now
	tier := policy.Tier{RequestsPerMinute: 3, RequestsPerDay: 500}

	allowed := 0
	for i := 0; i < 6; i++ {
		if ctrl.Check(context.Background(), "tenant_a", tier).Allowed {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected the fallback bucket to admit exactly 3, got %d", allowed)
	}
}

func TestController_Metrics(t *testing.T) {
	rec := newMockRecorder()
	ctrl := NewController(WithRecorder(rec))
	tier := policy.Tier{RequestsPerMinute: 10, RequestsPerDay: 500}

	ctrl.Check(context.Background(), "tenant_a", tier)

	if got := rec.counter("admission.check"); got != 1 {
		t.Errorf("expected admission.check == 1, got %v", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.timings["admission.latency"]) != 1 {
		t.Error("expected one latency observation")
	} else if rec.timings["admission.latency"][0] < 0 {
		t.Error("expected non-negative latency")
	}
}
