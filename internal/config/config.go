// Package config loads typed configuration for the kernel's subsystems
// from environment variables, following the env-with-fallback style used
// throughout this codebase's service entry points.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// KernelOptions controls the module runtime façade.
type KernelOptions struct {
	MaxFuel           uint64 // instructions per invocation
	MaxMemoryBytes    uint32
	MinMemoryBytes    uint32
	// MaxTables is accepted for forward compatibility with spec.md §4.1 but
	// is not enforced: wazero's RuntimeConfig exposes no per-runtime table
	// count ceiling, and a compiled module's table count is fixed by its
	// own table section rather than something the host can cap or query
	// cheaply before instantiation. Kept here so config wiring and callers
	// don't need to change if a future wazero release adds the knob.
	MaxTables         int
	MaxInstances      int
	RequireSignatures bool
	TrustedPublicKey  []byte // Ed25519 public key, hex-decoded by the caller
}

// DefaultKernelOptions matches spec.md §4.1's defaults.
func DefaultKernelOptions() KernelOptions {
	return KernelOptions{
		MaxFuel:           20_000_000,
		MaxMemoryBytes:    32 * 1024 * 1024,
		MinMemoryBytes:    4 * 1024 * 1024,
		MaxTables:         10,
		MaxInstances:      10,
		RequireSignatures: false,
	}
}

// KernelOptionsFromEnv overlays DefaultKernelOptions with ESTA_KERNEL_*
// environment variables where present.
func KernelOptionsFromEnv() KernelOptions {
	o := DefaultKernelOptions()
	o.MaxFuel = EnvUint64("ESTA_KERNEL_MAX_FUEL", o.MaxFuel)
	o.MaxMemoryBytes = uint32(EnvUint64("ESTA_KERNEL_MAX_MEMORY_BYTES", uint64(o.MaxMemoryBytes)))
	o.MinMemoryBytes = uint32(EnvUint64("ESTA_KERNEL_MIN_MEMORY_BYTES", uint64(o.MinMemoryBytes)))
	o.MaxTables = EnvInt("ESTA_KERNEL_MAX_TABLES", o.MaxTables)
	o.MaxInstances = EnvInt("ESTA_KERNEL_MAX_INSTANCES", o.MaxInstances)
	o.RequireSignatures = EnvBool("ESTA_KERNEL_REQUIRE_SIGNATURES", o.RequireSignatures)
	return o
}

// AuditOptions controls the audit log.
type AuditOptions struct {
	MaxEntries int
	Verbose    bool
}

// DefaultAuditOptions matches spec.md §4.4's defaults.
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{MaxEntries: 10_000, Verbose: false}
}

// AuditOptionsFromEnv overlays DefaultAuditOptions with ESTA_AUDIT_*
// environment variables where present.
func AuditOptionsFromEnv() AuditOptions {
	o := DefaultAuditOptions()
	o.MaxEntries = EnvInt("ESTA_AUDIT_MAX_ENTRIES", o.MaxEntries)
	o.Verbose = EnvBool("ESTA_AUDIT_VERBOSE", o.Verbose)
	return o
}

// SupervisorDefaults controls the backoff/intensity knobs a supervised
// child inherits when its spec does not set them explicitly.
type SupervisorDefaults struct {
	MaxRestarts     int
	IntensityWindow time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
}

// DefaultSupervisorDefaults matches spec.md §4.3's backoff defaults.
func DefaultSupervisorDefaults() SupervisorDefaults {
	return SupervisorDefaults{
		MaxRestarts:     3,
		IntensityWindow: 60 * time.Second,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
	}
}

// EnvOr returns the trimmed environment variable at key, or def if unset
// or blank.
func EnvOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvBool parses a boolean environment variable, accepting the same
// truthy spellings the rest of this codebase's services accept.
func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

// EnvInt parses an integer environment variable, falling back to def on
// absence or parse failure.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvUint64 parses an unsigned 64-bit environment variable, falling back
// to def on absence or parse failure.
func EnvUint64(key string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// EnvDuration parses a duration environment variable, falling back to def
// on absence or parse failure.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
