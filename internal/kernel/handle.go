package kernel

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Stats tracks a live module's resource usage, updated after every
// invocation.
type Stats struct {
	FuelConsumed    uint64
	InvocationCount uint64
	ErrorCount      uint64
	PeakMemoryBytes uint32
}

// Handle is created at launch and destroyed at unregister or shutdown.
// The façade exclusively mutates a Handle's Stats; nothing else does.
type Handle struct {
	mu sync.Mutex

	Name         string
	Capabilities map[string]struct{} // copy of the granted set
	Stats        Stats

	compiled wazero.CompiledModule
	module   api.Module
	cancel   context.CancelFunc
}

func (h *Handle) hasCapability(name string) bool {
	_, ok := h.Capabilities[name]
	return ok
}

// recordInvocation folds the outcome of one Execute call into Stats.
func (h *Handle) recordInvocation(fuelUsed uint64, peakMemory uint32, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Stats.InvocationCount++
	h.Stats.FuelConsumed += fuelUsed
	if peakMemory > h.Stats.PeakMemoryBytes {
		h.Stats.PeakMemoryBytes = peakMemory
	}
	if failed {
		h.Stats.ErrorCount++
	}
}

// snapshot returns an independent copy of the handle's current Stats.
func (h *Handle) snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Stats
}

// close tears down the instantiated module and its compiled artifact.
func (h *Handle) close(ctx context.Context) {
	if h.cancel != nil {
		h.cancel()
	}
	if h.module != nil {
		_ = h.module.Close(ctx)
	}
	if h.compiled != nil {
		_ = h.compiled.Close(ctx)
	}
}
