package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnavailable  = fmt.Errorf("unavailable")
)

// Sentinel errors for the orchestration core.
var (
	// ErrStoreUnavailable means the keyed store failed a put/get/delete/list.
	ErrStoreUnavailable = fmt.Errorf("keyed store: %w", ErrUnavailable)
	// ErrStoreTimeout means a keyed store round trip exceeded its budget.
	ErrStoreTimeout = fmt.Errorf("keyed store: %w", ErrTimeout)
	// ErrDownstreamFailed wraps failures returned by the workflow executor.
	ErrDownstreamFailed = fmt.Errorf("downstream execution failed")

	ErrCircuitOpen = fmt.Errorf("circuit open")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad  = fmt.Errorf("failed to load configuration")
	ErrDecryption  = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Create")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent", "session"); used for ErrorCode dispatch
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

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsStoreFailure reports whether err originated in the keyed store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeStoreTimeout     ErrorCode = "STORE_TIMEOUT"
	CodeDownstream       ErrorCode = "DOWNSTREAM_FAILED"
	CodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentInvalid    ErrorCode = "AGENT_INVALID"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimit    ErrorCode = "SESSION_LIMIT"

	// Category error codes, the fallback when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeUnavailable  ErrorCode = "UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,
	ErrUnavailable:  CodeUnavailable,

	ErrStoreUnavailable: CodeStoreUnavailable,
	ErrStoreTimeout:     CodeStoreTimeout,
	ErrDownstreamFailed: CodeDownstream,
	ErrCircuitOpen:      CodeCircuitOpen,
	ErrRateLimit:        CodeRateLimit,
	ErrConfigLoad:       CodeConfigLoad,
	ErrDecryption:       CodeDecryption,
}

// specificity orders sentinels for the errors.Is walk so that the most
// specific code wins (ErrStoreTimeout wraps ErrTimeout).
var specificity = []error{
	ErrStoreTimeout,
	ErrStoreUnavailable,
	ErrCircuitOpen,
	ErrRateLimit,
	ErrDownstreamFailed,
	ErrConfigLoad,
	ErrDecryption,
	ErrNotFound,
	ErrTimeout,
	ErrLimitReached,
	ErrInvalidInput,
	ErrUnavailable,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":   CodeAgentNotFound,
		"session": CodeSessionNotFound,
	},
	ErrInvalidInput: {
		"agent": CodeAgentInvalid,
	},
	ErrLimitReached: {
		"session": CodeSessionLimit,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range specificity {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
