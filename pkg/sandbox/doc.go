// Package sandbox executes untrusted WebAssembly modules with bounded
// memory, bounded wall-clock time, piped standard I/O, and a fully
// categorized failure taxonomy.
//
// The entry point is the Runner:
//
//	runner := sandbox.NewRunner(sandbox.Config{
//		MaxModuleSize:  10 << 20,
//		MemoryLimit:    128 << 20,
//		TimeoutSeconds: 30,
//	})
//	outcome := runner.Run(ctx, sandbox.Request{Module: wasm, Input: in, Tier: tier})
//
// Each run moves through validating, compiling, instantiating and running,
// and terminates in exactly one Outcome: the module's captured stdout on
// success, or a Failure whose Kind distinguishes malformed input
// (InvalidFormat, ModuleTooLarge), exhausted budgets (MemoryLimitExceeded,
// Timeout), defects in the module (CompileError, InstantiationError,
// RuntimeTrap) and host-side trouble (IoError). No phase is retried, and
// no failure is fatal to the process.
//
// Validation happens before the runtime sees a single byte: the module
// must start with the wasm magic ("\0asm"), fit the global size cap, and
// fit its own tier's memory budget. Effective limits are the tighter of
// the host's global configuration and the tenant's tier, floored at one
// byte and one second so a zero cap means "error" rather than "unlimited".
//
// Execution is delegated to an Engine. The production engine builds a
// fresh single-use wazero runtime per call, so executions share no state
// and may run fully in parallel; bounding their number is the caller's
// concern. The runtime's memory allocator is capped at the effective
// budget and the module's context carries the effective deadline. Because
// the runtime is configured to close when that context ends, a timed-out
// module is genuinely interrupted rather than merely abandoned; the
// caller-facing race in Runner.Run still guarantees a prompt Timeout
// outcome even if teardown lags.
package sandbox
