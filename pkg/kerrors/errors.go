// Package kerrors provides the kernel's unified error taxonomy.
//
// Every externally observable failure from the runtime façade, the
// capability manager, the supervisor, or the audit log is a *KernelError
// carrying a machine-readable Code and Kind, never a bare error string.
package kerrors

import (
	"errors"
	"fmt"
)

// Kind groups codes into the categories described by the error handling
// design: input, integrity, authorization, runtime, internal.
type Kind string

const (
	KindInput          Kind = "input"
	KindIntegrity      Kind = "integrity"
	KindAuthorization  Kind = "authorization"
	KindRuntime        Kind = "runtime"
	KindInternal       Kind = "internal"
)

// Code is a unique, stable machine-readable error code.
type Code string

const (
	// Input errors
	CodeBadDescriptor    Code = "BAD_DESCRIPTOR"
	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeInvalidFormat    Code = "INVALID_FORMAT"
	CodeInvalidPublicKey Code = "INVALID_PUBLIC_KEY"

	// Integrity errors
	CodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeChainInvalid     Code = "CHAIN_INVALID"

	// Authorization errors
	CodeRevoked             Code = "REVOKED"
	CodeExpired             Code = "EXPIRED"
	CodeUsageLimitExceeded  Code = "USAGE_LIMIT_EXCEEDED"
	CodeInsufficientRights  Code = "INSUFFICIENT_RIGHTS"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"

	// Runtime errors
	CodeFuelExhausted         Code = "FUEL_EXHAUSTED"
	CodeMemoryLimitExceeded   Code = "MEMORY_LIMIT_EXCEEDED"
	CodeTrap                  Code = "TRAP"
	CodeIoError               Code = "IO_ERROR"
	CodeModuleNotFound        Code = "MODULE_NOT_FOUND"
	CodeExportNotFound        Code = "EXPORT_NOT_FOUND"
	CodeAlreadyRegistered     Code = "ALREADY_REGISTERED"
	CodeInsufficientMemory    Code = "INSUFFICIENT_MEMORY"
	CodeInstanceLimitExceeded Code = "INSTANCE_LIMIT_EXCEEDED"

	// Internal errors
	CodeInternal          Code = "INTERNAL"
	CodeConfigurationBug  Code = "CONFIGURATION_BUG"
)

// KernelError is the structured error returned across every kernel
// boundary operation.
type KernelError struct {
	Code    Code
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a machine-readable detail to the error.
func (e *KernelError) WithDetail(key string, value any) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds a KernelError with no wrapped cause.
func New(code Code, kind Kind, message string) *KernelError {
	return &KernelError{Code: code, Kind: kind, Message: message}
}

// Wrap builds a KernelError around an existing error.
func Wrap(code Code, kind Kind, message string, err error) *KernelError {
	return &KernelError{Code: code, Kind: kind, Message: message, Err: err}
}

// As reports whether err is (or wraps) a *KernelError, writing it to target.
func As(err error, target **KernelError) bool {
	return errors.As(err, target)
}

// CodeOf extracts the Code of a KernelError in err's chain, or "" if none.
func CodeOf(err error) Code {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// Input errors

func BadDescriptor(reason string) *KernelError {
	return New(CodeBadDescriptor, KindInput, "malformed module descriptor").WithDetail("reason", reason)
}

func InvalidToken(err error) *KernelError {
	return Wrap(CodeInvalidToken, KindInput, "malformed capability token", err)
}

func InvalidFormat(field string) *KernelError {
	return New(CodeInvalidFormat, KindInput, "invalid format").WithDetail("field", field)
}

func InvalidPublicKey(err error) *KernelError {
	return Wrap(CodeInvalidPublicKey, KindInput, "invalid public key", err)
}

// Integrity errors

func ChecksumMismatch(expected, actual string) *KernelError {
	return New(CodeChecksumMismatch, KindIntegrity, "payload checksum does not match descriptor").
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func SignatureInvalid(err error) *KernelError {
	return Wrap(CodeSignatureInvalid, KindIntegrity, "signature verification failed", err)
}

func ChainInvalid(firstInvalid uint64) *KernelError {
	return New(CodeChainInvalid, KindIntegrity, "audit chain verification failed").
		WithDetail("first_invalid", firstInvalid)
}

// Authorization errors

func Revoked() *KernelError {
	return New(CodeRevoked, KindAuthorization, "capability has been revoked")
}

func Expired() *KernelError {
	return New(CodeExpired, KindAuthorization, "capability has expired")
}

func UsageLimitExceeded() *KernelError {
	return New(CodeUsageLimitExceeded, KindAuthorization, "capability usage limit exceeded")
}

func InsufficientRights(required, actual []string) *KernelError {
	return New(CodeInsufficientRights, KindAuthorization, "capability lacks required rights").
		WithDetail("required", required).
		WithDetail("actual", actual)
}

func NotFound(resource, id string) *KernelError {
	return New(CodeNotFound, KindAuthorization, "resource not found").
		WithDetail("resource", resource).
		WithDetail("id", id)
}

func Unauthorized(reason string) *KernelError {
	return New(CodeUnauthorized, KindAuthorization, reason)
}

// Runtime errors

func FuelExhausted(limit uint64) *KernelError {
	return New(CodeFuelExhausted, KindRuntime, "fuel budget exhausted").WithDetail("limit", limit)
}

func MemoryLimitExceeded(limitBytes uint32) *KernelError {
	return New(CodeMemoryLimitExceeded, KindRuntime, "memory limit exceeded").WithDetail("limit_bytes", limitBytes)
}

func Trap(err error) *KernelError {
	return Wrap(CodeTrap, KindRuntime, "guest module trapped", err)
}

func IoError(err error) *KernelError {
	return Wrap(CodeIoError, KindRuntime, "i/o failure", err)
}

func ModuleNotFound(name string) *KernelError {
	return New(CodeModuleNotFound, KindRuntime, "module not registered").WithDetail("name", name)
}

func ExportNotFound(name, function string) *KernelError {
	return New(CodeExportNotFound, KindRuntime, "export not found").
		WithDetail("name", name).
		WithDetail("function", function)
}

func AlreadyRegistered(name string) *KernelError {
	return New(CodeAlreadyRegistered, KindRuntime, "module name already registered").WithDetail("name", name)
}

func InsufficientMemory(declaredBytes, minBytes uint32) *KernelError {
	return New(CodeInsufficientMemory, KindRuntime, "module declares less memory than the configured floor").
		WithDetail("declared_bytes", declaredBytes).
		WithDetail("min_bytes", minBytes)
}

func InstanceLimitExceeded(limit int) *KernelError {
	return New(CodeInstanceLimitExceeded, KindRuntime, "live module instance limit reached").WithDetail("limit", limit)
}

// Internal errors

func Internal(message string, err error) *KernelError {
	return Wrap(CodeInternal, KindInternal, message, err)
}

func ConfigurationBug(message string) *KernelError {
	return New(CodeConfigurationBug, KindInternal, message)
}
