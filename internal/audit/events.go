package audit

// Event is the closed tagged union of security-relevant occurrences the
// kernel records. Exactly one of the typed fields is non-nil; Kind names
// which one.
type Event struct {
	Kind Kind `json:"kind"`

	ModuleLoaded        *ModuleLoaded        `json:"module_loaded,omitempty"`
	ModuleUnloaded      *ModuleUnloaded      `json:"module_unloaded,omitempty"`
	ModuleStarted       *ModuleStarted       `json:"module_started,omitempty"`
	ModuleStopped       *ModuleStopped       `json:"module_stopped,omitempty"`
	ModuleCrashed       *ModuleCrashed       `json:"module_crashed,omitempty"`
	ModuleRestarted     *ModuleRestarted     `json:"module_restarted,omitempty"`
	CapabilityCreated   *CapabilityCreated   `json:"capability_created,omitempty"`
	CapabilityValidated *CapabilityValidated `json:"capability_validated,omitempty"`
	CapabilityDenied    *CapabilityDenied    `json:"capability_denied,omitempty"`
	CapabilityDelegated *CapabilityDelegated `json:"capability_delegated,omitempty"`
	CapabilityRevoked   *CapabilityRevoked   `json:"capability_revoked,omitempty"`
	SignatureVerified   *SignatureVerified   `json:"signature_verified,omitempty"`
	SignatureFailed     *SignatureFailed     `json:"signature_failed,omitempty"`
	ExecutionStarted    *ExecutionStarted    `json:"execution_started,omitempty"`
	ExecutionCompleted  *ExecutionCompleted  `json:"execution_completed,omitempty"`
	ExecutionFailed     *ExecutionFailed     `json:"execution_failed,omitempty"`
	FuelExhausted       *FuelExhausted       `json:"fuel_exhausted,omitempty"`
	MemoryLimitExceeded *MemoryLimitExceeded `json:"memory_limit_exceeded,omitempty"`
	KernelStarted       *KernelStarted       `json:"kernel_started,omitempty"`
	KernelShutdown      *KernelShutdown      `json:"kernel_shutdown,omitempty"`
	SupervisorEscalation *SupervisorEscalation `json:"supervisor_escalation,omitempty"`
	Custom              *Custom              `json:"custom,omitempty"`
}

// Kind names which variant of Event is populated.
type Kind string

const (
	KindModuleLoaded         Kind = "ModuleLoaded"
	KindModuleUnloaded       Kind = "ModuleUnloaded"
	KindModuleStarted        Kind = "ModuleStarted"
	KindModuleStopped        Kind = "ModuleStopped"
	KindModuleCrashed        Kind = "ModuleCrashed"
	KindModuleRestarted      Kind = "ModuleRestarted"
	KindCapabilityCreated    Kind = "CapabilityCreated"
	KindCapabilityValidated  Kind = "CapabilityValidated"
	KindCapabilityDenied     Kind = "CapabilityDenied"
	KindCapabilityDelegated  Kind = "CapabilityDelegated"
	KindCapabilityRevoked    Kind = "CapabilityRevoked"
	KindSignatureVerified    Kind = "SignatureVerified"
	KindSignatureFailed      Kind = "SignatureFailed"
	KindExecutionStarted     Kind = "ExecutionStarted"
	KindExecutionCompleted   Kind = "ExecutionCompleted"
	KindExecutionFailed      Kind = "ExecutionFailed"
	KindFuelExhausted        Kind = "FuelExhausted"
	KindMemoryLimitExceeded  Kind = "MemoryLimitExceeded"
	KindKernelStarted        Kind = "KernelStarted"
	KindKernelShutdown       Kind = "KernelShutdown"
	KindSupervisorEscalation Kind = "SupervisorEscalation"
	KindCustom               Kind = "Custom"
)

type ModuleLoaded struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

type ModuleUnloaded struct {
	Name string `json:"name"`
}

type ModuleStarted struct {
	Name string `json:"name"`
}

type ModuleStopped struct {
	Name     string `json:"name"`
	ExitCode int    `json:"exit_code"`
}

type ModuleCrashed struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type ModuleRestarted struct {
	Name    string `json:"name"`
	Attempt int    `json:"attempt"`
}

type CapabilityCreated struct {
	ID     uint64   `json:"id"`
	Owner  string   `json:"owner"`
	Rights []string `json:"rights"`
}

type CapabilityValidated struct {
	ID        uint64 `json:"id"`
	Operation string `json:"operation"`
}

type CapabilityDenied struct {
	ID     uint64 `json:"id"`
	Reason string `json:"reason"`
}

type CapabilityDelegated struct {
	Parent   uint64 `json:"parent"`
	NewID    uint64 `json:"new_id"`
	NewOwner string `json:"new_owner"`
}

type CapabilityRevoked struct {
	ID           uint64 `json:"id"`
	CascadeCount int    `json:"cascade_count"`
}

type SignatureVerified struct {
	Name string `json:"name"`
}

type SignatureFailed struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type ExecutionStarted struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type ExecutionCompleted struct {
	Name     string `json:"name"`
	Function string `json:"function"`
	FuelUsed uint64 `json:"fuel_used"`
}

type ExecutionFailed struct {
	Name     string `json:"name"`
	Function string `json:"function"`
	Error    string `json:"error"`
}

type FuelExhausted struct {
	Name      string `json:"name"`
	FuelLimit uint64 `json:"fuel_limit"`
}

type MemoryLimitExceeded struct {
	Name  string `json:"name"`
	Limit uint32 `json:"limit"`
}

type KernelStarted struct {
	Version string `json:"version"`
}

type KernelShutdown struct {
	Reason string `json:"reason"`
}

type SupervisorEscalation struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Custom carries free-form events not covered by the closed vocabulary.
// Message text passes through pkg/redact before it is stored.
type Custom struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}
