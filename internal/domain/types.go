// Package domain holds the planner data model: plans, buckets, tasks,
// subtasks, dependencies, locks, external events and proposed actions.
// Invariants are enforced centrally by Validate on the repository write
// path; analytical packages treat these values as immutable snapshots.
package domain

import (
	"time"
)

// Plan is a congress/event program owning buckets, tasks and dependencies.
type Plan struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	EventDate    *time.Time `json:"eventDate,omitempty"`
	SourcePlanID string     `json:"sourcePlanId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Bucket is a workstream/phase grouping tasks; the categorical dimension
// for PERT calibration and the variance heatmap.
type Bucket struct {
	PlanID    string `json:"planId"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	OrderHint string `json:"orderHint,omitempty"`
}

// Task is the unit of work tracked by the planner.
type Task struct {
	PlanID          string     `json:"planId"`
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	BucketID        string     `json:"bucketId,omitempty"`
	Status          Status     `json:"status"`
	PercentComplete int        `json:"percentComplete"`
	StartAt         *time.Time `json:"startDateTime,omitempty"`
	DueAt           *time.Time `json:"dueDateTime,omitempty"`
	CompletedAt     *time.Time `json:"completedDateTime,omitempty"`
	Priority        int        `json:"priority"`
	Assignees       []string   `json:"assignees,omitempty"`
	Categories      []string   `json:"appliedCategories,omitempty"`
	Description     string     `json:"description,omitempty"`
	OrderHint       string     `json:"orderHint,omitempty"`
	CreatedAt       time.Time  `json:"createdDateTime"`
	ModifiedAt      time.Time  `json:"lastModifiedDateTime"`
	CreatedBy       string     `json:"createdBy,omitempty"`
	CompletedBy     string     `json:"completedBy,omitempty"`
}

// HasAssignee reports whether user is among the task's assignees.
func (t Task) HasAssignee(user string) bool {
	for _, a := range t.Assignees {
		if a == user {
			return true
		}
	}
	return false
}

// PlannedDays returns due−start in days when both are set, else (0, false).
func (t Task) PlannedDays() (float64, bool) {
	if t.StartAt == nil || t.DueAt == nil {
		return 0, false
	}
	return t.DueAt.Sub(*t.StartAt).Hours() / 24, true
}

// ActualDays returns completed−start in days when both are set, else (0, false).
func (t Task) ActualDays() (float64, bool) {
	if t.StartAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartAt).Hours() / 24, true
}

// Overdue reports whether the task is past due and not terminal.
func (t Task) Overdue(now time.Time) bool {
	return t.DueAt != nil && t.DueAt.Before(now) && !t.Status.Terminal()
}

// Subtask is a checklist item owned by a task.
type Subtask struct {
	PlanID     string    `json:"planId"`
	TaskID     string    `json:"taskId"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Checked    bool      `json:"isChecked"`
	OrderHint  string    `json:"orderHint,omitempty"`
	ModifiedAt time.Time `json:"lastModifiedDateTime"`
}

// Dependency is a directed scheduling edge predecessor → successor.
type Dependency struct {
	PlanID        string         `json:"planId"`
	PredecessorID string         `json:"predecessorId"`
	SuccessorID   string         `json:"successorId"`
	Type          DependencyType `json:"dependencyType"`
}

// TaskLock is an advisory edit lock on one task. At most one per task.
type TaskLock struct {
	PlanID     string        `json:"planId"`
	TaskID     string        `json:"taskId"`
	HolderID   string        `json:"holderId"`
	AcquiredAt time.Time     `json:"acquiredAt"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the lock lapses.
func (l TaskLock) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Expired reports whether the lock has lapsed at now.
func (l TaskLock) Expired(now time.Time) bool {
	return l.ExpiresAt().Before(now)
}

// ExternalEvent is a disruption ingested from outside the planner
// (flight cancellation, meeting cancelled, ...).
type ExternalEvent struct {
	ID              int64          `json:"id"`
	PlanID          string         `json:"planId"`
	Type            string         `json:"eventType"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Severity        Severity       `json:"severity"`
	AffectedTaskIDs []string       `json:"affectedTaskIds,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	AcknowledgedAt  *time.Time     `json:"acknowledgedAt,omitempty"`
}

// ProposedAction is an agent-generated candidate mutation awaiting a
// human decision. Approval applies the mutation in the same transaction
// as the status change.
type ProposedAction struct {
	ID          int64          `json:"id"`
	PlanID      string         `json:"planId"`
	EventID     int64          `json:"externalEventId,omitempty"`
	TaskID      string         `json:"taskId"`
	Type        string         `json:"actionType"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      ActionStatus   `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	DecidedAt   *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy   string         `json:"decidedBy,omitempty"`
}

// HistoricalSample is one completed task from a past plan, the unit of
// calibration input for the historical analyzer.
type HistoricalSample struct {
	Bucket      string   `json:"bucket"`
	TaskType    string   `json:"taskType,omitempty"`
	PlannedDays float64  `json:"plannedDays"`
	ActualDays  float64  `json:"actualDays"`
	Assignees   []string `json:"assignees,omitempty"`
	Terminal    Status   `json:"terminalState"`
	BlockCount  int      `json:"blockCount"`
}

// SyncState records the last and previous external sync instants for a
// plan plus the content fingerprint seen at the last sync. It drives the
// dirty-since-sync flag and the recently-changed attention window.
type SyncState struct {
	PlanID         string     `json:"planId"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	PreviousSyncAt *time.Time `json:"previousSyncAt,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	Dirty          bool       `json:"dirty"`
}

// Snapshot is one plan's full state loaded at request entry. Analytical
// components operate on it and are referentially transparent for it.
type Snapshot struct {
	Plan         Plan
	Buckets      []Bucket
	Tasks        []Task
	Subtasks     map[string][]Subtask
	Dependencies []Dependency
}

// TaskByID returns the snapshot's task with the given id, or (zero, false).
func (s *Snapshot) TaskByID(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// BucketName resolves a bucket id to its display name, falling back to the id.
func (s *Snapshot) BucketName(bucketID string) string {
	for _, b := range s.Buckets {
		if b.ID == bucketID {
			return b.Name
		}
	}
	return bucketID
}
