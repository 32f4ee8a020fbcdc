package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for surface behavior and exit-code mapping.
type Kind int

const (
	// KindInternal is anything unclassified; surfaced as opaque.
	KindInternal Kind = iota
	// KindValidation is malformed input or a violated invariant.
	KindValidation
	// KindNotFound is a missing plan, task, subtask, dependency, event or action.
	KindNotFound
	// KindConflict covers lock contention, duplicate edges and decided actions.
	KindConflict
	// KindCycle is a dependency mutation or load that observes a directed cycle.
	KindCycle
	// KindInsufficientCalibration is a simulation without PERT data and no fallback.
	KindInsufficientCalibration
	// KindCancelled is cooperative cancellation; no partial writes occurred.
	KindCancelled
	// KindTimeout is a caller-imposed deadline expiring.
	KindTimeout
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCycle:
		return "cycle_detected"
	case KindInsufficientCalibration:
		return "insufficient_calibration"
	case KindCancelled:
		return "cancelled"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound ErrorCode = "PLAN-001"
	ErrCodePlanInvalid  ErrorCode = "PLAN-002"
	ErrCodePlanExists   ErrorCode = "PLAN-003"
	ErrCodePlanEmpty    ErrorCode = "PLAN-004"

	// Task errors (TASK-001 to TASK-099)
	ErrCodeTaskNotFound    ErrorCode = "TASK-001"
	ErrCodeTaskInvalid     ErrorCode = "TASK-002"
	ErrCodeSubtaskNotFound ErrorCode = "TASK-003"
	ErrCodeSubtaskInvalid  ErrorCode = "TASK-004"
	ErrCodeBucketNotFound  ErrorCode = "TASK-005"

	// Dependency errors (DEP-001 to DEP-099)
	ErrCodeDependencyNotFound  ErrorCode = "DEP-001"
	ErrCodeDependencyInvalid   ErrorCode = "DEP-002"
	ErrCodeDuplicateDependency ErrorCode = "DEP-003"
	ErrCodeCycleDetected       ErrorCode = "DEP-004"

	// Lock errors (LOCK-001 to LOCK-099)
	ErrCodeLockedByOther ErrorCode = "LOCK-001"
	ErrCodeNotHolder     ErrorCode = "LOCK-002"

	// Event/action errors (EVENT-001 to EVENT-099)
	ErrCodeEventNotFound        ErrorCode = "EVENT-001"
	ErrCodeActionNotFound       ErrorCode = "EVENT-002"
	ErrCodeActionAlreadyDecided ErrorCode = "EVENT-003"
	ErrCodeActionInvalid        ErrorCode = "EVENT-004"
	ErrCodeUnknownActionType    ErrorCode = "EVENT-005"

	// Simulation errors (SIM-001 to SIM-099)
	ErrCodeInsufficientCalibration ErrorCode = "SIM-001"
	ErrCodeSimulationCancelled     ErrorCode = "SIM-002"
	ErrCodeMatrixSingular          ErrorCode = "SIM-003"
	ErrCodeMatrixInvalid           ErrorCode = "SIM-004"

	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphCycle       ErrorCode = "GRAPH-001"
	ErrCodeGraphUnknownNode ErrorCode = "GRAPH-002"

	// Storage errors (STORE-001 to STORE-099)
	ErrCodeStoreOpenFailed  ErrorCode = "STORE-001"
	ErrCodeStoreReadFailed  ErrorCode = "STORE-002"
	ErrCodeStoreWriteFailed ErrorCode = "STORE-003"
	ErrCodeTxFailed         ErrorCode = "STORE-004"
)

// Error is the coded error used across the core. It carries a Kind for
// surface behavior, a stable Code, and optional structured Details
// (offending node ids, lock holders, and the like).
type Error struct {
	Kind    Kind
	Code    ErrorCode
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(kind Kind, code ErrorCode, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(kind Kind, code ErrorCode, format string, args ...any) *Error {
	return New(kind, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new Error wrapping an existing error
func Wrap(kind Kind, code ErrorCode, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetail attaches a structured detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns a structured detail by key, or nil
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// KindOf returns the Kind of an error, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the ErrorCode of an error, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsCycle reports whether err is a cycle-detected error
func IsCycle(err error) bool { return KindOf(err) == KindCycle }

// IsInsufficientCalibration reports whether err signals missing PERT data
func IsInsufficientCalibration(err error) bool {
	return KindOf(err) == KindInsufficientCalibration
}

// IsCancelled reports whether err is a cooperative cancellation
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// Common error constructors for frequently used errors

// NewPlanNotFound creates a plan not found error
func NewPlanNotFound(planID string) *Error {
	return Newf(KindNotFound, ErrCodePlanNotFound, "plan not found: %s", planID).
		WithDetail("plan_id", planID)
}

// NewTaskNotFound creates a task not found error
func NewTaskNotFound(planID, taskID string) *Error {
	return Newf(KindNotFound, ErrCodeTaskNotFound, "task not found: %s/%s", planID, taskID).
		WithDetail("plan_id", planID).
		WithDetail("task_id", taskID)
}

// NewCycleDetected creates a cycle error carrying the offending node ids
func NewCycleDetected(nodeIDs []string) *Error {
	return Newf(KindCycle, ErrCodeCycleDetected, "dependency cycle detected: %s", strings.Join(nodeIDs, " -> ")).
		WithDetail("node_ids", nodeIDs)
}

// NewLockedByOther creates a lock contention error
func NewLockedByOther(holder string, acquiredAt string) *Error {
	return Newf(KindConflict, ErrCodeLockedByOther, "task is locked by %s", holder).
		WithDetail("holder", holder).
		WithDetail("acquired_at", acquiredAt)
}

// NewNotHolder creates a lock release error for a non-holder
func NewNotHolder(user string) *Error {
	return Newf(KindConflict, ErrCodeNotHolder, "lock is not held by %s", user).
		WithDetail("user", user)
}

// NewActionAlreadyDecided creates a terminal-action conflict error
func NewActionAlreadyDecided(actionID int64, status string) *Error {
	return Newf(KindConflict, ErrCodeActionAlreadyDecided, "proposed action %d already decided: %s", actionID, status).
		WithDetail("action_id", actionID).
		WithDetail("status", status)
}

// NewInsufficientCalibration creates a missing-PERT-data error
func NewInsufficientCalibration(bucket string) *Error {
	return Newf(KindInsufficientCalibration, ErrCodeInsufficientCalibration,
		"no PERT parameters for bucket %q and no fallback prior configured", bucket).
		WithDetail("bucket", bucket)
}

// NewCancelled wraps a context cancellation
func NewCancelled(op string, cause error) *Error {
	return Wrap(KindCancelled, ErrCodeSimulationCancelled, op+" cancelled", cause)
}
