package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fixtures below are hand-assembled wasm binaries: header, then
// sections as (id, size, payload). Keeping them as explicit bytes means the
// tests need no toolchain and pin the exact wire format.

func section(id byte, payload ...byte) []byte {
	out := []byte{id, byte(len(payload))}
	return append(out, payload...)
}

func wasmModule(sections ...[]byte) []byte {
	module := validHeader()
	for _, s := range sections {
		module = append(module, s...)
	}
	return module
}

// typeSection declares type 0: () -> ().
func typeSection() []byte {
	return section(0x01, 0x01, 0x60, 0x00, 0x00)
}

// funcSection declares one function of type 0.
func funcSection() []byte {
	return section(0x03, 0x01, 0x00)
}

// exportStartSection exports function 0 as "_start".
func exportStartSection() []byte {
	return section(0x07, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00)
}

// codeSection wraps one function body (no locals) around expr, which must
// end with the 0x0b end opcode.
func codeSection(expr ...byte) []byte {
	body := append([]byte{0x00}, expr...)
	payload := append([]byte{0x01, byte(len(body))}, body...)
	return section(0x0a, payload...)
}

// startModule builds a module whose exported _start runs expr.
func startModule(expr ...byte) []byte {
	return wasmModule(typeSection(), funcSection(), exportStartSection(), codeSection(expr...))
}

func wazeroJob(module []byte) Job {
	return Job{Module: module, MemoryBytes: 1 << 20}
}

func TestWazeroRunsTrivialModule(t *testing.T) {
	engine := NewWazeroEngine()

	// _start body: end. Returns immediately with nothing on stdout.
	output, err := engine.Execute(context.Background(), wazeroJob(startModule(0x0b)))
	require.NoError(t, err)
	assert.Equal(t, "", output)
}

func TestWazeroRejectsGarbageAfterMagic(t *testing.T) {
	engine := NewWazeroEngine()

	module := append(validHeader(), 0xff, 0xff, 0xff, 0xff)
	_, err := engine.Execute(context.Background(), wazeroJob(module))

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindCompileError, f.Kind)
}

func TestWazeroMissingStartIsInstantiationError(t *testing.T) {
	engine := NewWazeroEngine()

	// A bare header is a valid, empty module; it just exports nothing.
	_, err := engine.Execute(context.Background(), wazeroJob(validHeader()))

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindInstantiationError, f.Kind)
	assert.Contains(t, f.Detail, "_start")
}

func TestWazeroMissingImportIsInstantiationError(t *testing.T) {
	engine := NewWazeroEngine()

	// Imports func "no_such_module"."f" of type 0.
	imports := section(0x02,
		0x01,
		0x0e, 'n', 'o', '_', 's', 'u', 'c', 'h', '_', 'm', 'o', 'd', 'u', 'l', 'e',
		0x01, 'f',
		0x00, 0x00,
	)
	module := wasmModule(typeSection(), imports)
	_, err := engine.Execute(context.Background(), wazeroJob(module))

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindInstantiationError, f.Kind)
}

func TestWazeroTrapIsRuntimeTrap(t *testing.T) {
	engine := NewWazeroEngine()

	// _start body: unreachable, end.
	_, err := engine.Execute(context.Background(), wazeroJob(startModule(0x00, 0x0b)))

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindRuntimeTrap, f.Kind)
	assert.Contains(t, f.Detail, "unreachable")
}

func TestWazeroMemoryOverBudget(t *testing.T) {
	engine := NewWazeroEngine()

	// Declares a memory with a 4-page minimum against a 1-page budget.
	memory := section(0x05, 0x01, 0x00, 0x04)
	module := wasmModule(memory)
	job := Job{Module: module, MemoryBytes: wasmPageSize}

	_, err := engine.Execute(context.Background(), job)

	var f *Failure
	require.ErrorAs(t, err, &f)
	// The never-acceptable outcomes are a host crash or unbounded growth;
	// the budget violation may surface at decode or at instantiation.
	assert.Contains(t,
		[]FailureKind{KindMemoryLimitExceeded, KindInstantiationError},
		f.Kind)
}

func TestWazeroInfiniteLoopIsInterrupted(t *testing.T) {
	runner := NewRunner(Config{TimeoutSeconds: 30, Logger: discardLogger()})

	tier := testTier()
	tier.TimeCapSeconds = 1

	// _start body: loop { br 0 }, end.
	module := startModule(0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b)

	start := time.Now()
	out := runner.Run(context.Background(), Request{Module: module, Tier: tier})
	elapsed := time.Since(start)

	require.NotNil(t, out.Failure)
	assert.Equal(t, KindTimeout, out.Failure.Kind)
	assert.Less(t, elapsed, 3*time.Second, "a looping module must not hang the caller")
}

func TestWazeroIsolationAcrossRuns(t *testing.T) {
	// Two runs of the same trapping module behave identically: nothing
	// leaks from the first execution into the second.
	engine := NewWazeroEngine()
	module := startModule(0x00, 0x0b)

	for i := 0; i < 2; i++ {
		_, err := engine.Execute(context.Background(), wazeroJob(module))
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, KindRuntimeTrap, f.Kind)
	}
}

func TestWazeroWritesCapturedStdout(t *testing.T) {
	engine := NewWazeroEngine()

	// A WASI module that fd_writes "hi" to stdout. Function 0 is the
	// imported fd_write; function 1 is _start.
	types := section(0x01,
		0x02,
		0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, // (i32,i32,i32,i32)->i32
		0x60, 0x00, 0x00, // ()->()
	)
	imports := section(0x02,
		0x01,
		0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't',
		'_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
		0x08, 'f', 'd', '_', 'w', 'r', 'i', 't', 'e',
		0x00, 0x00,
	)
	funcs := section(0x03, 0x01, 0x01)
	memory := section(0x05, 0x01, 0x00, 0x01)
	exports := section(0x07,
		0x02,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
	)
	code := codeSection(
		0x41, 0x00, 0x41, 0x08, 0x36, 0x02, 0x00, // iov.base = 8 at addr 0
		0x41, 0x04, 0x41, 0x02, 0x36, 0x02, 0x00, // iov.len = 2 at addr 4
		0x41, 0x08, 0x41, 0xe8, 0xd2, 0x01, 0x3b, 0x01, 0x00, // "hi" at addr 8
		0x41, 0x01, 0x41, 0x00, 0x41, 0x01, 0x41, 0x0c, // fd=1 iovs=0 len=1 nwritten=12
		0x10, 0x00, // call fd_write
		0x1a, // drop errno
		0x0b,
	)
	module := wasmModule(types, imports, funcs, memory, exports, code)

	output, err := engine.Execute(context.Background(), wazeroJob(module))
	require.NoError(t, err)
	assert.Equal(t, "hi", output)
}
