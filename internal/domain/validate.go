package domain

import (
	"github.com/congresstwin/congresstwin/internal/errors"
)

// Validate enforces the task invariants. Called on every repository write.
func (t Task) Validate() error {
	if t.PlanID == "" || t.ID == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeTaskInvalid, "task requires plan id and id")
	}
	if t.Title == "" {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid, "task %s requires a title", t.ID)
	}
	if !t.Status.Valid() {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid, "task %s has unknown status %q", t.ID, t.Status)
	}
	if t.PercentComplete < 0 || t.PercentComplete > 100 {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s percentComplete %d out of range [0,100]", t.ID, t.PercentComplete)
	}
	if t.Status == StatusNotStarted && t.PercentComplete != 0 {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s is NotStarted but percentComplete is %d", t.ID, t.PercentComplete)
	}
	if t.Status == StatusCompleted && t.PercentComplete != 100 {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s is Completed but percentComplete is %d", t.ID, t.PercentComplete)
	}
	if (t.Status == StatusCompleted) != (t.CompletedAt != nil) {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s completedDateTime must be present iff status is Completed", t.ID)
	}
	if t.StartAt != nil && t.DueAt != nil && t.StartAt.After(*t.DueAt) {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s start %s is after due %s", t.ID, t.StartAt.Format("2006-01-02"), t.DueAt.Format("2006-01-02"))
	}
	if t.Priority < 0 || t.Priority > 10 {
		return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid,
			"task %s priority %d out of range [0,10]", t.ID, t.Priority)
	}
	seen := make(map[string]struct{}, len(t.Assignees))
	for _, a := range t.Assignees {
		if a == "" {
			return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid, "task %s has an empty assignee id", t.ID)
		}
		if _, dup := seen[a]; dup {
			return errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid, "task %s has duplicate assignee %s", t.ID, a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// Validate enforces the subtask invariants.
func (s Subtask) Validate() error {
	if s.PlanID == "" || s.TaskID == "" || s.ID == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeSubtaskInvalid, "subtask requires plan id, task id and id")
	}
	if s.Title == "" {
		return errors.Newf(errors.KindValidation, errors.ErrCodeSubtaskInvalid, "subtask %s requires a title", s.ID)
	}
	return nil
}

// Validate enforces the dependency invariants that do not need graph context.
// Endpoint existence and acyclicity are checked by the mutation core.
func (d Dependency) Validate() error {
	if d.PlanID == "" || d.PredecessorID == "" || d.SuccessorID == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeDependencyInvalid,
			"dependency requires plan id and both endpoints")
	}
	if d.PredecessorID == d.SuccessorID {
		return errors.Newf(errors.KindValidation, errors.ErrCodeDependencyInvalid,
			"dependency %s -> %s is a self edge", d.PredecessorID, d.SuccessorID)
	}
	if !d.Type.Valid() {
		return errors.Newf(errors.KindValidation, errors.ErrCodeDependencyInvalid,
			"dependency %s -> %s has unknown type %q", d.PredecessorID, d.SuccessorID, d.Type)
	}
	return nil
}

// Validate enforces the external-event invariants.
func (e ExternalEvent) Validate() error {
	if e.PlanID == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeActionInvalid, "event requires a plan id")
	}
	if e.Type == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeActionInvalid, "event requires an event type")
	}
	if !e.Severity.Valid() {
		return errors.Newf(errors.KindValidation, errors.ErrCodeActionInvalid, "event has unknown severity %q", e.Severity)
	}
	return nil
}
