package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// ErrConfiguration marks a fatal startup condition, e.g. a malformed
	// handoff graph. Never recovered at runtime.
	ErrConfiguration = fmt.Errorf("invalid configuration")

	// ErrBackendInvocation marks a transient per-call backend failure.
	// The selector recovers by falling to the next tier.
	ErrBackendInvocation = fmt.Errorf("backend invocation failed")

	// ErrRoutingViolation marks a handoff attempt not present in the graph.
	// Treated as a backend invocation failure by the selector.
	ErrRoutingViolation = fmt.Errorf("handoff not allowed by graph")

	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrMaxIterations = fmt.Errorf("specialist reached max iterations")

	// Provider / resilience errors.
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")

	// Tool errors.
	ErrToolNotFound = fmt.Errorf("tool not found")
	ErrToolFailure  = fmt.Errorf("tool execution failed")

	// Store errors.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Runtime.Respond")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTierFailure reports whether err should make the selector fall through
// to the next tier for the current turn. Configuration errors are not tier
// failures: they are fatal at startup and never reached per-call.
func IsTierFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrConfiguration)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeConfiguration    ErrorCode = "CONFIGURATION"
	CodeBackendInvoke    ErrorCode = "BACKEND_INVOCATION"
	CodeRoutingViolation ErrorCode = "ROUTING_VIOLATION"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeMaxIterations    ErrorCode = "MAX_ITERATIONS"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrConfiguration:     CodeConfiguration,
	ErrBackendInvocation: CodeBackendInvoke,
	ErrRoutingViolation:  CodeRoutingViolation,
	ErrNotFound:          CodeNotFound,
	ErrDuplicate:         CodeDuplicate,
	ErrTimeout:           CodeTimeout,
	ErrMaxIterations:     CodeMaxIterations,
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrContextOverflow:   CodeContextOverflow,
	ErrToolNotFound:      CodeToolNotFound,
	ErrToolFailure:       CodeToolFailure,
	ErrStoreUnavailable:  CodeStoreUnavailable,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
