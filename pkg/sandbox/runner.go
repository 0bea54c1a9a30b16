package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

// Request is one execution ask: the module bytes, its standard input, and
// the tier whose caps apply.
type Request struct {
	Module []byte
	Input  string
	Tier   policy.Tier
}

// Config holds the host-wide ceilings and collaborators for a Runner.
type Config struct {
	// MaxModuleSize rejects modules above this many bytes. Zero disables
	// the global size cap (the tier memory cap still applies).
	MaxModuleSize uint64

	// MemoryLimit is the host-wide memory ceiling in bytes; the effective
	// ceiling per run is the tighter of this and the tier's cap.
	MemoryLimit uint64

	// TimeoutSeconds is the host-wide wall-clock ceiling; combined with the
	// tier's cap the same way.
	TimeoutSeconds uint64

	// Engine executes validated modules. Defaults to the wazero engine.
	Engine Engine

	// Logger for abandoned-worker events.
	Logger *slog.Logger
}

// Runner validates modules, derives effective limits, and executes each
// module on a dedicated worker goroutine raced against the deadline. It is
// stateless across runs and safe for concurrent use.
type Runner struct {
	config Config
}

// NewRunner constructs a Runner, filling config defaults.
func NewRunner(config Config) *Runner {
	if config.Engine == nil {
		config.Engine = NewWazeroEngine()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{config: config}
}

// Run takes a request through validation, limit derivation and execution,
// and always resolves to exactly one Outcome. Hostile input cannot make it
// panic, hang, or return more than once.
//
// The engine runs on its own goroutine so a runaway module cannot starve
// the caller; Run waits for whichever finishes first, the worker or the
// effective timeout. On timeout the worker is abandoned: its context is
// cancelled so the runtime can wind it down, but Run does not wait for
// that reclamation.
func (r *Runner) Run(ctx context.Context, req Request) Outcome {
	if f := validate(req.Module, r.config.MaxModuleSize, req.Tier.MemoryCapBytes); f != nil {
		return Outcome{Failure: f}
	}

	limits := DeriveLimits(r.config.MemoryLimit, r.config.TimeoutSeconds, req.Tier)

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	// Buffered so an abandoned worker can deliver its result and exit
	// instead of leaking on a blocked send.
	results := make(chan Outcome, 1)
	go func() {
		results <- r.execute(runCtx, req, limits)
	}()

	timer := time.NewTimer(limits.Timeout)
	defer timer.Stop()

	select {
	case out := <-results:
		return out
	case <-timer.C:
		r.config.Logger.Warn("execution timed out, abandoning worker",
			"timeout", limits.Timeout, "module_bytes", len(req.Module))
		return failure(KindTimeout, "execution exceeded %s", limits.Timeout)
	}
}

// execute invokes the engine and normalizes its error into an Outcome.
func (r *Runner) execute(ctx context.Context, req Request, limits Limits) (out Outcome) {
	// A panicking engine must not take the process down; the whole point
	// of the sandbox is to survive hostile input.
	defer func() {
		if rec := recover(); rec != nil {
			out = failure(KindIoError, "engine panicked: %v", rec)
		}
	}()

	output, err := r.config.Engine.Execute(ctx, Job{
		Module:      req.Module,
		Input:       req.Input,
		MemoryBytes: limits.MemoryBytes,
	})
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return Outcome{Failure: f}
		}
		return failure(KindIoError, "%s", err.Error())
	}
	return success(output)
}

// String implements fmt.Stringer for log-friendly outcome rendering.
func (o Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("success (%d bytes of output)", len(o.Output))
	}
	return o.Failure.Error()
}
