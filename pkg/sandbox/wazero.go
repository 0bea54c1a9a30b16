package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const wasmPageSize = 65536

// WazeroEngine executes modules on the wazero runtime. It holds no state:
// every Execute call builds a fresh single-use runtime with its own memory
// ceiling and tears it down on every exit path, so nothing is shared
// between executions.
type WazeroEngine struct{}

// NewWazeroEngine returns the production engine.
func NewWazeroEngine() *WazeroEngine { return &WazeroEngine{} }

// Execute compiles, instantiates and runs the module's _start export with
// stdin wired to job.Input and stdout captured in memory. The phases are
// kept separate so each failure classifies precisely: compilation problems
// are CompileError, link/memory problems are InstantiationError, and traps
// while running are RuntimeTrap.
func (e *WazeroEngine) Execute(ctx context.Context, job Job) (string, error) {
	config := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryPages(job.MemoryBytes)).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, config)
	defer runtime.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	compiled, err := runtime.CompileModule(ctx, job.Module)
	if err != nil {
		// wazero checks declared memory minimums against the page limit
		// while decoding, so a budget violation can surface here rather
		// than at instantiation.
		if isMemoryBudgetError(err) {
			return "", &Failure{Kind: KindMemoryLimitExceeded, Detail: err.Error()}
		}
		return "", &Failure{Kind: KindCompileError, Detail: err.Error()}
	}

	var stdout bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStdin(strings.NewReader(job.Input)).
		WithStdout(&stdout).
		WithStderr(io.Discard).
		WithStartFunctions() // start explicitly below, to split the phases

	instance, err := runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		return "", instantiationFailure(ctx, err)
	}

	start := instance.ExportedFunction("_start")
	if start == nil {
		return "", &Failure{Kind: KindInstantiationError, Detail: "module does not export _start"}
	}

	if _, err := start.Call(ctx); err != nil {
		if f := runFailure(ctx, err); f != nil {
			return "", f
		}
	}
	return stdout.String(), nil
}

// instantiationFailure maps instantiation errors, keeping memory-budget
// violations distinguishable from link errors.
func instantiationFailure(ctx context.Context, err error) *Failure {
	if f := deadlineFailure(ctx, err); f != nil {
		return f
	}
	kind := KindInstantiationError
	if isMemoryBudgetError(err) {
		kind = KindMemoryLimitExceeded
	}
	return &Failure{Kind: kind, Detail: err.Error()}
}

func isMemoryBudgetError(err error) bool {
	s := err.Error()
	if strings.Contains(s, "over limit") {
		// "min N pages ... over limit of M pages" from the binary decoder.
		return true
	}
	return strings.Contains(s, "memory") && strings.Contains(s, "limit")
}

// runFailure classifies an error from the _start call. A nil return means
// the module terminated successfully (exit code 0).
func runFailure(ctx context.Context, err error) *Failure {
	if f := deadlineFailure(ctx, err); f != nil {
		return f
	}
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		if exit.ExitCode() == 0 {
			return nil
		}
		return &Failure{
			Kind:   KindRuntimeTrap,
			Detail: fmt.Sprintf("module exited with code %d", exit.ExitCode()),
		}
	}
	return &Failure{Kind: KindRuntimeTrap, Detail: err.Error()}
}

// deadlineFailure detects executions cut short by the context. wazero
// reports these as exit errors once CloseOnContextDone fires; the context
// itself is the authoritative signal.
func deadlineFailure(ctx context.Context, err error) *Failure {
	if ctx.Err() == nil {
		return nil
	}
	return &Failure{Kind: KindTimeout, Detail: ctx.Err().Error()}
}

// memoryPages converts a byte budget to wasm pages, rounding up so a
// sub-page budget still grants the single page a module needs to exist.
// The wasm maximum of 65536 pages (4 GiB) caps the result.
func memoryPages(budget uint64) uint32 {
	pages := (budget + wasmPageSize - 1) / wasmPageSize
	if pages == 0 {
		pages = 1
	}
	if pages > 65536 {
		pages = 65536
	}
	return uint32(pages)
}
