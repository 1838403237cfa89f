package kernel

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
)

// newRuntime builds the wazero.Runtime satisfying the engine determinism
// requirements: threads/multi-memory/64-bit addressing absent (Core 1.0),
// SIMD allowed and deterministic, module lifetime tied to the
// invocation's context, and epoch-based interruption never enabled.
func newRuntime(ctx context.Context, opts config.KernelOptions) wazero.Runtime {
	pages := memoryPages(opts.MaxMemoryBytes)

	cfg := wazero.NewRuntimeConfig().
		WithWasmCore1().
		WithFeatureSIMD(true).
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	return wazero.NewRuntimeWithConfig(ctx, cfg)
}

// memoryPages converts a byte limit into wazero's 64KiB page unit,
// rounding up and never returning less than one page.
func memoryPages(bytes uint32) uint32 {
	const pageSize = 65536
	pages := bytes / pageSize
	if bytes%pageSize != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// compileModule compiles raw module bytes, translating wazero's compile
// errors into the kernel's error taxonomy.
func compileModule(ctx context.Context, runtime wazero.Runtime, wasmBytes []byte) (wazero.CompiledModule, error) {
	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, kerrors.Trap(err)
	}
	return compiled, nil
}
