package kernel

// minimalWasmModule returns a hand-encoded WebAssembly binary exporting a
// single no-op function "_start" — () -> () — and declaring a 64-page
// (4 MiB) linear memory, matching DefaultKernelOptions' MinMemoryBytes
// floor. No toolchain is available in this environment to compile a real
// .wasm fixture, so the module is built byte-by-byte from the binary
// format spec:
//
//	magic + version
//	type section:     1 functype, () -> ()
//	function section: 1 function, using type 0
//	memory section:   1 memory, min=64 pages, no max
//	export section:   export func 0 as "_start"
//	code section:     1 empty body (no locals, single `end` opcode)
func minimalWasmModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
		0x01, 0x00, 0x00, 0x00, // version 1

		// type section (id=1): vec[functype{params:(), results:()}]
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,

		// function section (id=3): vec[typeidx=0]
		0x03, 0x02, 0x01, 0x00,

		// memory section (id=5): vec[{limits: min=64, no max}]
		0x05, 0x03, 0x01, 0x00, 0x40,

		// export section (id=7): vec[{"_start", func, 0}]
		0x07, 0x0A, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,

		// code section (id=10): vec[{size=2, locals=0, body=[end]}]
		0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B,
	}
}

// memoryOnlyWasmModule returns a hand-encoded module declaring a single
// 1-page linear memory and nothing else, for tests that need an
// api.Module with readable/writable memory but no exported functions.
func memoryOnlyWasmModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
		0x01, 0x00, 0x00, 0x00, // version 1

		// memory section (id=5): vec[{limits: min=1, no max}]
		0x05, 0x03, 0x01, 0x00, 0x01,
	}
}
