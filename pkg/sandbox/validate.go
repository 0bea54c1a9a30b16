package sandbox

import (
	"bytes"
	"fmt"
)

// wasmMagic is the first four bytes of every WebAssembly binary module
// ("\0asm"). This is the only bit-exact format contract the sandbox owns.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// validate runs the cheap structural checks that must reject a module
// before the runtime is ever involved. Order matters: a malformed blob is
// reported as malformed even when it is also oversized.
func validate(module []byte, maxModuleSize, tierMemoryCap uint64) *Failure {
	if len(module) < len(wasmMagic) || !bytes.Equal(module[:len(wasmMagic)], wasmMagic) {
		return &Failure{
			Kind:   KindInvalidFormat,
			Detail: "module does not start with the wasm magic bytes",
		}
	}
	size := uint64(len(module))
	if maxModuleSize > 0 && size > maxModuleSize {
		return &Failure{
			Kind:   KindModuleTooLarge,
			Detail: fmt.Sprintf("module is %d bytes, limit is %d", size, maxModuleSize),
		}
	}
	// A module larger than its own memory budget cannot possibly run.
	if tierMemoryCap > 0 && size > tierMemoryCap {
		return &Failure{
			Kind:   KindMemoryLimitExceeded,
			Detail: fmt.Sprintf("module is %d bytes, tier memory cap is %d", size, tierMemoryCap),
		}
	}
	return nil
}
