package domain

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted  Status = "NotStarted"
	StatusInProgress  Status = "InProgress"
	StatusBlocked     Status = "Blocked"
	StatusUnderReview Status = "UnderReview"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked,
		StatusUnderReview, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DependencyType is the scheduling relation between predecessor and successor.
type DependencyType string

const (
	// FinishStart: successor starts after predecessor finishes. The default.
	FinishStart DependencyType = "FS"
	// StartStart: successor starts no earlier than predecessor starts.
	StartStart DependencyType = "SS"
	// FinishFinish: successor finishes no earlier than predecessor finishes.
	FinishFinish DependencyType = "FF"
	// StartFinish: successor finishes no earlier than predecessor starts.
	StartFinish DependencyType = "SF"
)

// Valid reports whether t is a known dependency type.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishStart, StartStart, FinishFinish, StartFinish:
		return true
	}
	return false
}

// Severity grades an external event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ActionStatus is the decision state of a proposed action.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
)

// Decided reports whether the action reached a terminal decision.
func (s ActionStatus) Decided() bool {
	return s == ActionApproved || s == ActionRejected
}
