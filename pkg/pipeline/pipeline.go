package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wasmgate/wasmgate/pkg/admission"
	"github.com/wasmgate/wasmgate/pkg/policy"
	"github.com/wasmgate/wasmgate/pkg/sandbox"
)

// Gate is the admission side of the pipeline; *admission.Controller
// satisfies it.
type Gate interface {
	Check(ctx context.Context, tenant string, tier policy.Tier) admission.Decision
}

// Executor is the sandbox side; *sandbox.Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, req sandbox.Request) sandbox.Outcome
}

// Result is what one pipeline call resolves to: either a denial with its
// retry hint, or the sandbox outcome.
type Result struct {
	Denied   bool
	Decision admission.Decision
	Outcome  sandbox.Outcome
}

// Pipeline wires admission control in front of the sandbox and reports
// every call to the usage recorder. The ordering is the behavioral
// contract: admission is a pure gate with no effect on sandbox state, the
// sandbox never learns about rate limiting, and a denied request never
// reaches the sandbox yet is still recorded.
type Pipeline struct {
	gate     Gate
	runner   Executor
	recorder UsageRecorder
	logger   *slog.Logger
	slots    chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the usage sink (default: discard).
func WithRecorder(r UsageRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger for recorder mishaps.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMaxConcurrent bounds simultaneous sandbox executions host-wide.
// Admission checks are never queued behind this cap, only runs are.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.slots = make(chan struct{}, n)
		}
	}
}

// New assembles a pipeline.
func New(gate Gate, runner Executor, opts ...Option) *Pipeline {
	p := &Pipeline{
		gate:     gate,
		runner:   runner,
		recorder: NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Execute runs one request end to end for an already-authenticated tenant.
func (p *Pipeline) Execute(ctx context.Context, tenantID string, tier policy.Tier, module []byte, input string) Result {
	dec := p.gate.Check(ctx, tenantID, tier)
	if !dec.Allowed {
		p.record(Record{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Kind:       RecordRateLimited,
			Decision:   dec,
			ModuleSize: len(module),
			At:         time.Now(),
		})
		return Result{Denied: true, Decision: dec}
	}

	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-ctx.Done():
			out := sandbox.Outcome{Failure: &sandbox.Failure{
				Kind:   sandbox.KindTimeout,
				Detail: "cancelled while waiting for an execution slot",
			}}
			p.recordExecution(tenantID, dec, out, len(module), 0)
			return Result{Decision: dec, Outcome: out}
		}
	}

	start := time.Now()
	out := p.runner.Run(ctx, sandbox.Request{Module: module, Input: input, Tier: tier})
	p.recordExecution(tenantID, dec, out, len(module), time.Since(start))
	return Result{Decision: dec, Outcome: out}
}

func (p *Pipeline) recordExecution(tenantID string, dec admission.Decision, out sandbox.Outcome, size int, d time.Duration) {
	p.record(Record{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       RecordExecution,
		Decision:   dec,
		Outcome:    &out,
		ModuleSize: size,
		Duration:   d,
		At:         time.Now(),
	})
}

// record delivers to the usage sink, containing whatever goes wrong there.
// Usage recording is fire-and-forget: its failures never reach the caller.
func (p *Pipeline) record(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("usage recorder panicked", "tenant", rec.TenantID, "panic", r)
		}
	}()
	p.recorder.Record(rec)
}
