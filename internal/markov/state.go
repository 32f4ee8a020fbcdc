// Package markov models task progress as an absorbing Markov chain:
// state detection from task fields, transition-matrix learning from
// historical snapshots and expected time to absorption via the
// fundamental matrix.
package markov

import (
	"strings"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
)

// State is a Markov chain state. The chain refines the task status
// with a Planning state for assigned-but-unstarted tasks.
type State string

const (
	NotStarted  State = "NotStarted"
	Planning    State = "Planning"
	InProgress  State = "InProgress"
	Blocked     State = "Blocked"
	UnderReview State = "UnderReview"
	Completed   State = "Completed"
	Cancelled   State = "Cancelled"
)

// States is the canonical ordering used for matrices.
var States = []State{NotStarted, Planning, InProgress, Blocked, UnderReview, Completed, Cancelled}

// Absorbing reports whether the state has no outgoing transitions.
func (s State) Absorbing() bool {
	return s == Completed || s == Cancelled
}

// stuckAt50Window is how long a task may sit at 50% past its due date
// before it is considered blocked.
const stuckAt50Window = 7 * 24 * time.Hour

// StateOf maps a task to its chain state. Explicit status wins;
// heuristics refine the ambiguous cases: a task stuck at 50% well past
// due is treated as blocked, and an assigned but unstarted task is in
// planning rather than not started.
func StateOf(t domain.Task, now time.Time) State {
	switch {
	case t.Status == domain.StatusCompleted || t.PercentComplete >= 100:
		return Completed
	case t.Status == domain.StatusCancelled || strings.Contains(strings.ToLower(t.Description), "cancel"):
		return Cancelled
	case t.Status == domain.StatusBlocked:
		return Blocked
	case t.Status == domain.StatusUnderReview:
		return UnderReview
	case t.PercentComplete == 50:
		if t.DueAt != nil && t.CompletedAt == nil && now.After(t.DueAt.Add(stuckAt50Window)) {
			return Blocked
		}
		return InProgress
	case t.PercentComplete > 0:
		return InProgress
	case len(t.Assignees) > 0:
		return Planning
	default:
		return NotStarted
	}
}
