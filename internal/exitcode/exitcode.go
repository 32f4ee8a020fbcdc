package exitcode

import (
	"os"

	"github.com/congresstwin/congresstwin/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates malformed input or a violated invariant
	ValidationError = 3

	// NotFound indicates a missing plan, task, event or action
	NotFound = 4

	// Conflict indicates lock contention or a decided action
	Conflict = 5

	// CycleDetected indicates a refused dependency cycle
	CycleDetected = 6

	// InsufficientCalibration indicates a simulation without PERT data
	InsufficientCalibration = 7

	// Interrupted indicates cooperative cancellation or timeout
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error kind
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error's kind to the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.KindOf(err) {
	case errors.KindValidation:
		return ValidationError
	case errors.KindNotFound:
		return NotFound
	case errors.KindConflict:
		return Conflict
	case errors.KindCycle:
		return CycleDetected
	case errors.KindInsufficientCalibration:
		return InsufficientCalibration
	case errors.KindCancelled, errors.KindTimeout:
		return Interrupted
	default:
		return GeneralError
	}
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Validation error"
	case NotFound:
		return "Resource not found"
	case Conflict:
		return "Conflict (lock held or action decided)"
	case CycleDetected:
		return "Dependency cycle detected"
	case InsufficientCalibration:
		return "Insufficient simulation calibration"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
