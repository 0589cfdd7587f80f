package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels; combine with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
)

// Orchestration errors.
var (
	// ErrAgentInit means constructing or initializing an agent failed. The
	// registry never keeps the half-built instance.
	ErrAgentInit = fmt.Errorf("agent initialization failed")
	// ErrAgentNotReady means the agent is not Active or Busy. It is the only
	// error the coordinator retries, once, after a restart.
	ErrAgentNotReady = fmt.Errorf("agent not ready")
	// ErrCapacityExceeded is returned by admission control. Never retried.
	ErrCapacityExceeded = fmt.Errorf("capacity exceeded")
	// ErrValidation covers pre-flight request checks; no agent is touched.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrAggregateFailure means a consensus quorum was not reached.
	ErrAggregateFailure = fmt.Errorf("aggregate failure")
	// ErrCircuitOpen means calls to an agent are short-circuited after
	// repeated failures.
	ErrCircuitOpen = fmt.Errorf("agent circuit open")
	// ErrManagerNotRunning is returned for submissions outside Initialize/Shutdown.
	ErrManagerNotRunning = fmt.Errorf("manager not running")
	// ErrUnknownAgent means no constructor is registered for an AgentID.
	ErrUnknownAgent = fmt.Errorf("unknown agent")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Create")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "registry"); used for ErrorCode dispatch
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

// IsRetryableError reports whether err is transient enough for the
// coordinator's single restart-and-retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrAgentNotReady)
}

// IsRejection reports whether err was raised before any agent work began.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrManagerNotRunning)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeAgentInit         ErrorCode = "AGENT_INIT"
	CodeAgentNotReady     ErrorCode = "AGENT_NOT_READY"
	CodeCapacityExceeded  ErrorCode = "CAPACITY_EXCEEDED"
	CodeValidation        ErrorCode = "VALIDATION"
	CodeAggregateFailure  ErrorCode = "AGGREGATE_FAILURE"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeManagerNotRunning ErrorCode = "MANAGER_NOT_RUNNING"
	CodeUnknownAgent      ErrorCode = "UNKNOWN_AGENT"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentCallTimeout  ErrorCode = "AGENT_CALL_TIMEOUT"
	CodeStrategyInvalid   ErrorCode = "STRATEGY_INVALID"
	CodeSnapshotNotFound  ErrorCode = "SNAPSHOT_NOT_FOUND"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeLimitReached      ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeContextCanceled   ErrorCode = "CANCELED"
	CodeContextDeadline   ErrorCode = "DEADLINE_EXCEEDED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,
	ErrRateLimit:    CodeRateLimit,
	ErrConfigLoad:   CodeConfigLoad,

	ErrAgentInit:         CodeAgentInit,
	ErrAgentNotReady:     CodeAgentNotReady,
	ErrCapacityExceeded:  CodeCapacityExceeded,
	ErrValidation:        CodeValidation,
	ErrAggregateFailure:  CodeAggregateFailure,
	ErrCircuitOpen:       CodeCircuitOpen,
	ErrManagerNotRunning: CodeManagerNotRunning,
	ErrUnknownAgent:      CodeUnknownAgent,
}

// codePrecedence is the order ErrorCodeOf tries sentinels in when a chain
// wraps more than one. Orchestration sentinels come before categories.
var codePrecedence = []error{
	ErrAgentInit, ErrAgentNotReady, ErrCapacityExceeded, ErrValidation,
	ErrAggregateFailure, ErrCircuitOpen, ErrManagerNotRunning, ErrUnknownAgent,

	ErrNotFound, ErrDuplicate, ErrTimeout, ErrLimitReached,
	ErrInvalidInput, ErrRateLimit, ErrConfigLoad,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"registry":    CodeAgentNotFound,
		"metricstore": CodeSnapshotNotFound,
	},
	ErrTimeout: {
		"coordinator": CodeAgentCallTimeout,
	},
	ErrInvalidInput: {
		"catalog": CodeStrategyInvalid,
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

	for _, sentinel := range codePrecedence {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CodeContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeContextDeadline
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
