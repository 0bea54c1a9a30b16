package sandbox

import "fmt"

// FailureKind identifies why an execution did not produce output. The kinds
// are deliberately fine-grained: "your module is malformed", "your module
// exceeded its budget" and "your module crashed" call for different
// remediation and must not collapse into one generic error.
type FailureKind string

const (
	// KindInvalidFormat: the module bytes do not start with the wasm magic.
	KindInvalidFormat FailureKind = "invalid_format"
	// KindModuleTooLarge: the module exceeds the global size cap.
	KindModuleTooLarge FailureKind = "module_too_large"
	// KindMemoryLimitExceeded: the module cannot fit its memory budget.
	KindMemoryLimitExceeded FailureKind = "memory_limit_exceeded"
	// KindTimeout: the run outlived its effective wall-clock budget.
	KindTimeout FailureKind = "timeout"
	// KindCompileError: the runtime rejected the module during compilation.
	KindCompileError FailureKind = "compile_error"
	// KindInstantiationError: the compiled module could not be instantiated
	// (missing imports, memory request above the ceiling, no entry point).
	KindInstantiationError FailureKind = "instantiation_error"
	// KindRuntimeTrap: the module trapped while running (out-of-bounds
	// access, unreachable, stack exhaustion) or exited non-zero.
	KindRuntimeTrap FailureKind = "runtime_trap"
	// KindIoError: a host-side failure while wiring the module's input or
	// output; whether the module ran is unknown.
	KindIoError FailureKind = "io_error"
)

// Class places a kind in the coarse error taxonomy: "validation" and
// "resource" are deterministic rejections of the caller's input, "runtime"
// is a defect in the module itself, "host" is our side. None are retried.
func (k FailureKind) Class() string {
	switch k {
	case KindInvalidFormat, KindModuleTooLarge:
		return "validation"
	case KindMemoryLimitExceeded, KindTimeout:
		return "resource"
	case KindCompileError, KindInstantiationError, KindRuntimeTrap:
		return "runtime"
	default:
		return "host"
	}
}

// Failure is a categorized execution failure. It implements error so engine
// internals can propagate it through ordinary error returns.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sandbox: %s: %s", f.Kind, f.Detail)
}

// Outcome is the single terminal result of one execution: either the
// module's captured standard output, or a categorized failure. Exactly one
// Outcome is produced per run; it is never mutated after construction.
type Outcome struct {
	Output  string
	Failure *Failure
}

// Succeeded reports whether the module ran to completion.
func (o Outcome) Succeeded() bool { return o.Failure == nil }

func success(output string) Outcome {
	return Outcome{Output: output}
}

func failure(kind FailureKind, format string, args ...any) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}}
}
