package sandbox

import "context"

// Job is one unit of work handed to an Engine: an already-validated module,
// its standard input, and the memory ceiling it must run under. The
// wall-clock ceiling arrives through the context deadline.
type Job struct {
	Module      []byte
	Input       string
	MemoryBytes uint64
}

// Engine compiles and runs one module, returning the module's captured
// standard output. Errors are always *Failure values so the caller can
// classify them without string matching. Engines must be safe for
// concurrent Execute calls; each call is fully independent and leaves no
// residue behind.
type Engine interface {
	Execute(ctx context.Context, job Job) (string, error)
}
