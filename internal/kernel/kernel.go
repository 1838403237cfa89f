// Package kernel implements the module runtime façade: it loads,
// verifies, instantiates, and executes guest WebAssembly modules under
// fixed resource budgets, wiring the capability manager, supervisor, and
// audit log together behind the boundary operations named in §6.
package kernel

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/Michiganman2353/ESTA-Logic/internal/audit"
	"github.com/Michiganman2353/ESTA-Logic/internal/capability"
	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/internal/supervisor"
	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
	"github.com/Michiganman2353/ESTA-Logic/pkg/logger"
)

const (
	capLog              = "log"
	capAuditEmit        = "audit_emit"
	capPersistenceRead  = "persistence_read"
	capPersistenceWrite = "persistence_write"

	startExport = "_start"

	// Version identifies this implementation in status() and
	// KernelStarted audit events.
	Version = "esta-kernel/0.1.0"
)

// Kernel is the runtime façade. It exclusively owns the wazero engine and
// the registry of module handles; the capability manager, supervisor,
// and audit log each own their own state independently.
type Kernel struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	runtime wazero.Runtime
	opts    config.KernelOptions

	capabilities *capability.Manager
	supervisor   *supervisor.Supervisor
	audit        *audit.Log
	log          *logger.Logger
}

// New constructs a Kernel, wires the supervisor's restart callback back
// into it, and emits KernelStarted.
func New(ctx context.Context, opts config.KernelOptions, auditOpts config.AuditOptions, supervisorDefaults config.SupervisorDefaults, lg *logger.Logger) (*Kernel, error) {
	auditLog := audit.New(auditOpts)

	capMgr, err := capability.NewManager(auditLog)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(auditLog, lg, supervisorDefaults)

	k := &Kernel{
		handles:      make(map[string]*Handle),
		runtime:      newRuntime(ctx, opts),
		opts:         opts,
		capabilities: capMgr,
		supervisor:   sup,
		audit:        auditLog,
		log:          lg,
	}

	if err := k.registerHostFunctions(ctx); err != nil {
		return nil, kerrors.Internal("failed to register host functions", err)
	}

	sup.SetRestartFunc(k.restartModule)

	auditLog.Append(audit.Event{Kind: audit.KindKernelStarted, KernelStarted: &audit.KernelStarted{Version: Version}}, "kernel")

	return k, nil
}

// Capabilities exposes the capability manager for boundary operations
// that address it directly (create/delegate/revoke/validate/list).
func (k *Kernel) Capabilities() *capability.Manager { return k.capabilities }

// Supervisor exposes the supervisor for boundary operations that address
// it directly (register/unregister/report_started/get_status/shutdown_all).
func (k *Kernel) Supervisor() *supervisor.Supervisor { return k.supervisor }

// AuditLog exposes the audit log for get_logs.
func (k *Kernel) AuditLog() *audit.Log { return k.audit }

// LaunchModule implements launch_module(descriptor_location): the full
// ten-step load contract from spec.md §4.1.
func (k *Kernel) LaunchModule(ctx context.Context, descriptorLocation string) error {
	descriptor, err := LoadDescriptor(descriptorLocation)
	if err != nil {
		return err
	}

	k.mu.RLock()
	_, exists := k.handles[descriptor.Name]
	liveCount := len(k.handles)
	k.mu.RUnlock()
	if exists {
		return kerrors.AlreadyRegistered(descriptor.Name)
	}
	if k.opts.MaxInstances > 0 && liveCount >= k.opts.MaxInstances {
		return kerrors.InstanceLimitExceeded(k.opts.MaxInstances)
	}

	payload, err := os.ReadFile(descriptor.Path)
	if err != nil {
		return kerrors.IoError(err)
	}

	sum := sha256.Sum256(payload)
	digestHex := hex.EncodeToString(sum[:])
	if digestHex != descriptor.Checksum {
		return kerrors.ChecksumMismatch(descriptor.Checksum, digestHex)
	}

	if err := k.verifyDescriptorSignature(descriptor, payload); err != nil {
		return err
	}

	granted := grantedCapabilities(descriptor.Capabilities)
	k.audit.Append(audit.Event{
		Kind:         audit.KindModuleLoaded,
		ModuleLoaded: &audit.ModuleLoaded{Name: descriptor.Name, Digest: digestHex},
	}, "kernel")

	compiled, err := compileModule(ctx, k.runtime, payload)
	if err != nil {
		return err
	}

	module, err := k.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(descriptor.Name))
	if err != nil {
		_ = compiled.Close(ctx)
		return kerrors.Trap(err)
	}

	if module.ExportedFunction(startExport) == nil {
		_ = module.Close(ctx)
		_ = compiled.Close(ctx)
		return kerrors.ExportNotFound(descriptor.Name, startExport)
	}

	if declared := peakMemoryBytes(module); declared < k.opts.MinMemoryBytes {
		_ = module.Close(ctx)
		_ = compiled.Close(ctx)
		return kerrors.InsufficientMemory(declared, k.opts.MinMemoryBytes)
	}

	handle := &Handle{
		Name:         descriptor.Name,
		Capabilities: granted,
		compiled:     compiled,
		module:       module,
	}

	k.mu.Lock()
	k.handles[descriptor.Name] = handle
	k.mu.Unlock()

	if err := k.supervisor.RegisterChild(supervisor.Spec{
		ID:              descriptor.Name,
		PayloadLocation: descriptorLocation,
		Strategy:        supervisor.Permanent,
	}); err != nil {
		return err
	}
	_ = k.supervisor.ReportStarted(descriptor.Name)

	if err := k.invoke(ctx, handle, startExport, nil); err != nil {
		if outcome, sErr := k.supervisor.ReportCrash(descriptor.Name, err.Error()); sErr == nil {
			k.handleSupervisorOutcome(ctx, descriptor.Name, outcome)
		}
		return err
	}

	return nil
}

func (k *Kernel) verifyDescriptorSignature(descriptor Descriptor, payload []byte) error {
	if k.opts.RequireSignatures {
		if descriptor.Signature == "" {
			k.audit.Append(audit.Event{Kind: audit.KindSignatureFailed, SignatureFailed: &audit.SignatureFailed{
				Name: descriptor.Name, Error: "signature required but absent",
			}}, "kernel")
			return kerrors.SignatureInvalid(fmt.Errorf("signature required but absent"))
		}
		sig, err := decodeSignature(descriptor.Signature)
		if err != nil {
			return err
		}
		if err := VerifySignature(ed25519.PublicKey(k.opts.TrustedPublicKey), descriptor.Checksum, payload, sig); err != nil {
			k.audit.Append(audit.Event{Kind: audit.KindSignatureFailed, SignatureFailed: &audit.SignatureFailed{
				Name: descriptor.Name, Error: err.Error(),
			}}, "kernel")
			return err
		}
		k.audit.Append(audit.Event{Kind: audit.KindSignatureVerified, SignatureVerified: &audit.SignatureVerified{Name: descriptor.Name}}, "kernel")
		return nil
	}

	if descriptor.Signature != "" {
		sig, err := decodeSignature(descriptor.Signature)
		if err == nil {
			if verr := VerifySignature(ed25519.PublicKey(k.opts.TrustedPublicKey), descriptor.Checksum, payload, sig); verr != nil {
				k.log.WithFields(map[string]interface{}{"module": descriptor.Name}).Warn("advisory signature verification failed")
				k.audit.Append(audit.Event{Kind: audit.KindSignatureFailed, SignatureFailed: &audit.SignatureFailed{
					Name: descriptor.Name, Error: verr.Error(),
				}}, "kernel")
				return nil
			}
		}
		k.audit.Append(audit.Event{Kind: audit.KindSignatureVerified, SignatureVerified: &audit.SignatureVerified{Name: descriptor.Name}}, "kernel")
	}
	return nil
}

// Execute implements execute(name, function, input), resolving the
// Open Question left by spec.md §9: it runs under the same fuel/memory/
// trap semantics as the launch-time _start call.
func (k *Kernel) Execute(ctx context.Context, name, function string, input []byte) error {
	k.mu.RLock()
	handle, ok := k.handles[name]
	k.mu.RUnlock()
	if !ok {
		return kerrors.ModuleNotFound(name)
	}
	if handle.module.ExportedFunction(function) == nil {
		return kerrors.ExportNotFound(name, function)
	}

	if err := k.invoke(ctx, handle, function, input); err != nil {
		if outcome, sErr := k.supervisor.ReportCrash(name, err.Error()); sErr == nil {
			k.handleSupervisorOutcome(ctx, name, outcome)
		}
		return err
	}
	return nil
}

// invoke runs function on handle's module with a freshly armed fuel
// budget, writing input into a guest-allocated scratch region via the
// module's exported allocator where present, falling back to (0, 0).
// The (ptr, len) pair is passed only to a function that declares two
// parameters; a function declaring none, such as _start, is called
// with no arguments.
func (k *Kernel) invoke(ctx context.Context, handle *Handle, function string, input []byte) error {
	k.audit.Append(audit.Event{
		Kind:             audit.KindExecutionStarted,
		ExecutionStarted: &audit.ExecutionStarted{Name: handle.Name, Function: function},
	}, "kernel")

	invokeCtx, cancel, budget := withFuelBudget(ctx, k.opts.MaxFuel)
	defer cancel()

	ptr, length := uint32(0), uint32(0)
	if len(input) > 0 {
		if allocFn := handle.module.ExportedFunction("alloc"); allocFn != nil {
			results, err := allocFn.Call(invokeCtx, uint64(len(input)))
			if err == nil && len(results) > 0 {
				destPtr := uint32(results[0])
				if handle.module.Memory().Write(destPtr, input) {
					ptr, length = destPtr, uint32(len(input))
				}
			}
		}
	}

	fn := handle.module.ExportedFunction(function)
	var params []uint64
	if len(fn.Definition().ParamTypes()) == 2 {
		params = []uint64{uint64(ptr), uint64(length)}
	}
	_, err := fn.Call(invokeCtx, params...)

	fuelUsed := budget.consumed(k.opts.MaxFuel)
	peakBytes := peakMemoryBytes(handle.module)

	if err != nil {
		failure := classifyExecutionFault(budget, k.opts.MaxFuel, err)
		handle.recordInvocation(fuelUsed, peakBytes, true)
		k.emitFailureEvent(handle.Name, function, failure)
		return failure
	}

	handle.recordInvocation(fuelUsed, peakBytes, false)
	k.audit.Append(audit.Event{
		Kind: audit.KindExecutionCompleted,
		ExecutionCompleted: &audit.ExecutionCompleted{
			Name: handle.Name, Function: function, FuelUsed: fuelUsed,
		},
	}, "kernel")
	return nil
}

func (k *Kernel) emitFailureEvent(name, function string, err *kerrors.KernelError) {
	switch err.Code {
	case kerrors.CodeFuelExhausted:
		k.audit.Append(audit.Event{
			Kind:          audit.KindFuelExhausted,
			FuelExhausted: &audit.FuelExhausted{Name: name, FuelLimit: k.opts.MaxFuel},
		}, "kernel")
	case kerrors.CodeMemoryLimitExceeded:
		k.audit.Append(audit.Event{
			Kind:                audit.KindMemoryLimitExceeded,
			MemoryLimitExceeded: &audit.MemoryLimitExceeded{Name: name, Limit: k.opts.MaxMemoryBytes},
		}, "kernel")
	default:
		k.audit.Append(audit.Event{
			Kind: audit.KindExecutionFailed,
			ExecutionFailed: &audit.ExecutionFailed{
				Name: name, Function: function, Error: err.Error(),
			},
		}, "kernel")
	}
}

// classifyExecutionFault maps a wazero call error onto the kernel's
// runtime error taxonomy: fuel exhaustion first (our own budget tripped
// cancellation), then a memory-limit trap, then a bare trap (which
// covers context-driven sys.ExitError as well as guest-raised traps).
func classifyExecutionFault(budget *fuelBudget, maxFuel uint64, err error) *kerrors.KernelError {
	if budget.exhausted.Load() {
		return kerrors.FuelExhausted(maxFuel)
	}
	if strings.Contains(err.Error(), "memory") {
		return kerrors.MemoryLimitExceeded(0)
	}
	return kerrors.Trap(err)
}

// peakMemoryBytes reads the module's current linear memory size via a
// zero-growth Grow(0) call, the safe way to query size without risking
// an actual allocation.
func peakMemoryBytes(module api.Module) uint32 {
	mem := module.Memory()
	if mem == nil {
		return 0
	}
	pages, ok := mem.Grow(0)
	if !ok {
		return 0
	}
	return pages * 65536
}

func (k *Kernel) restartModule(id, payloadLocation string, escalation supervisor.EscalationLevel) error {
	k.mu.Lock()
	delete(k.handles, id)
	k.mu.Unlock()
	return k.LaunchModule(context.Background(), payloadLocation)
}

func (k *Kernel) handleSupervisorOutcome(ctx context.Context, name string, outcome supervisor.Outcome) {
	switch outcome.Kind {
	case supervisor.OutcomeRestart:
		go func() {
			_ = k.supervisor.ExecuteRestart(name, outcome)
		}()
	case supervisor.OutcomeStop:
		k.mu.Lock()
		if h, ok := k.handles[name]; ok {
			h.close(ctx)
			delete(k.handles, name)
		}
		k.mu.Unlock()
	case supervisor.OutcomeEscalate:
		// Surfaced to the parent; this façade has no enclosing supervisor
		// of its own, so escalation stops the child the same as a Stop.
		k.mu.Lock()
		if h, ok := k.handles[name]; ok {
			h.close(ctx)
			delete(k.handles, name)
		}
		k.mu.Unlock()
	}
}

// Unregister destroys a module handle and removes it from supervision.
func (k *Kernel) Unregister(ctx context.Context, name string) error {
	k.mu.Lock()
	h, ok := k.handles[name]
	if !ok {
		k.mu.Unlock()
		return kerrors.ModuleNotFound(name)
	}
	delete(k.handles, name)
	k.mu.Unlock()

	h.close(ctx)
	_ = k.supervisor.Unregister(name)
	k.audit.Append(audit.Event{Kind: audit.KindModuleUnloaded, ModuleUnloaded: &audit.ModuleUnloaded{Name: name}}, "kernel")
	return nil
}

// StatusSnapshot is the payload returned by the status() boundary
// operation (SPEC_FULL.md §12).
type StatusSnapshot struct {
	Version                    string
	LiveModuleCount            int
	LiveCapabilityCount        int
	ChildCountByState          map[supervisor.State]int
	AuditSequenceHighWaterMark uint64
}

// Status implements status().
func (k *Kernel) Status() StatusSnapshot {
	k.mu.RLock()
	liveModules := len(k.handles)
	k.mu.RUnlock()

	capStats := k.capabilities.Stats()

	return StatusSnapshot{
		Version:                    Version,
		LiveModuleCount:            liveModules,
		LiveCapabilityCount:        capStats.TotalIssued - capStats.TotalRevoked,
		ChildCountByState:          k.supervisor.CountByState(),
		AuditSequenceHighWaterMark: k.audit.SequenceHighWaterMark(),
	}
}

// GetLogs implements get_logs({limit?, source?, after_sequence?}).
func (k *Kernel) GetLogs(f audit.Filter) []audit.Entry {
	return k.audit.Query(f)
}

// Shutdown stops every module and the supervisor, and emits
// KernelShutdown.
func (k *Kernel) Shutdown(ctx context.Context, reason string) error {
	k.supervisor.ShutdownAll()

	k.mu.Lock()
	for name, h := range k.handles {
		h.close(ctx)
		delete(k.handles, name)
	}
	k.mu.Unlock()

	k.audit.Append(audit.Event{Kind: audit.KindKernelShutdown, KernelShutdown: &audit.KernelShutdown{Reason: reason}}, "kernel")
	return k.runtime.Close(ctx)
}

// HandleStats returns a live module's resource usage, used by status()
// extensions and tests.
func (k *Kernel) HandleStats(name string) (Stats, error) {
	k.mu.RLock()
	h, ok := k.handles[name]
	k.mu.RUnlock()
	if !ok {
		return Stats{}, kerrors.ModuleNotFound(name)
	}
	return h.snapshot(), nil
}
