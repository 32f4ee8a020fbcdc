package planner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/repo"
)

// TaskPatch is a partial task update. Nil fields are untouched.
// ClearStartAt/ClearDueAt distinguish "unset the date" from "leave it".
type TaskPatch struct {
	Title           *string
	BucketID        *string
	Status          *domain.Status
	PercentComplete *int
	StartAt         *time.Time
	DueAt           *time.Time
	ClearStartAt    bool
	ClearDueAt      bool
	Priority        *int
	Assignees       []string
	Categories      []string
	Description     *string
	OrderHint       *string
}

func (p TaskPatch) apply(t *domain.Task, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.BucketID != nil {
		t.BucketID = *p.BucketID
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PercentComplete != nil {
		t.PercentComplete = *p.PercentComplete
	}
	switch {
	case p.ClearStartAt:
		t.StartAt = nil
	case p.StartAt != nil:
		at := p.StartAt.UTC()
		t.StartAt = &at
	}
	switch {
	case p.ClearDueAt:
		t.DueAt = nil
	case p.DueAt != nil:
		at := p.DueAt.UTC()
		t.DueAt = &at
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Assignees != nil {
		t.Assignees = p.Assignees
	}
	if p.Categories != nil {
		t.Categories = p.Categories
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.OrderHint != nil {
		t.OrderHint = *p.OrderHint
	}
	t.ModifiedAt = now
}

// reconcileCompletion keeps status, percent and completion timestamp
// consistent after a patch: Completed means 100% with a completion
// instant, and vice versa.
func reconcileCompletion(t *domain.Task, now time.Time, actor string) {
	switch {
	case t.Status == domain.StatusCompleted || t.PercentComplete == 100:
		t.Status = domain.StatusCompleted
		t.PercentComplete = 100
		if t.CompletedAt == nil {
			at := now
			t.CompletedAt = &at
		}
		if t.CompletedBy == "" {
			t.CompletedBy = actor
		}
	default:
		t.CompletedAt = nil
		t.CompletedBy = ""
	}
}

// CreateTask inserts a task. A missing id gets a generated one; a
// missing order hint appends after the plan's current tasks.
func (s *Service) CreateTask(ctx context.Context, actor string, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusNotStarted
	}
	now := s.now()
	t.CreatedAt = now
	t.ModifiedAt = now
	if t.CreatedBy == "" {
		t.CreatedBy = actor
	}
	reconcileCompletion(&t, now, actor)
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	if err := s.locks.CheckMutation(t.PlanID, t.ID, actor); err != nil {
		return domain.Task{}, err
	}

	err := s.store.Update(ctx, func(tx repo.Store) error {
		if t.OrderHint == "" {
			snap, err := tx.GetSnapshot(ctx, t.PlanID)
			if err != nil {
				return err
			}
			hints := make([]string, 0, len(snap.Tasks))
			for _, other := range snap.Tasks {
				hints = append(hints, other.OrderHint)
			}
			t.OrderHint = domain.OrderHintAfter(hints)
		}
		if err := tx.PutTask(ctx, t); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, t.PlanID)
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.invalidate(t.PlanID)
	return t, nil
}

// UpdateTask applies a partial update under the lock contract.
func (s *Service) UpdateTask(ctx context.Context, actor, planID, taskID string, patch TaskPatch) (domain.Task, error) {
	if err := s.locks.CheckMutation(planID, taskID, actor); err != nil {
		return domain.Task{}, err
	}
	var out domain.Task
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		t, ok := snap.TaskByID(taskID)
		if !ok {
			return errors.NewTaskNotFound(planID, taskID)
		}
		now := s.now()
		patch.apply(&t, now)
		reconcileCompletion(&t, now, actor)
		if err := t.Validate(); err != nil {
			return err
		}
		if err := tx.PutTask(ctx, t); err != nil {
			return err
		}
		out = t
		return s.markDirty(ctx, tx, planID)
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.invalidate(planID)
	return out, nil
}

// DeleteTask removes a task and its subtasks, dependencies and lock.
func (s *Service) DeleteTask(ctx context.Context, actor, planID, taskID string) error {
	if err := s.locks.CheckMutation(planID, taskID, actor); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		if err := tx.DeleteTask(ctx, planID, taskID); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, planID)
	})
	if err != nil {
		return err
	}
	_ = s.locks.Release(planID, taskID, actor)
	s.invalidate(planID)
	return nil
}

// AddSubtask appends a checklist item to a task.
func (s *Service) AddSubtask(ctx context.Context, actor string, sub domain.Subtask) (domain.Subtask, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.ModifiedAt = s.now()
	if err := sub.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	if err := s.locks.CheckMutation(sub.PlanID, sub.TaskID, actor); err != nil {
		return domain.Subtask{}, err
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		if _, ok := snap.TaskByID(sub.TaskID); !ok {
			return errors.NewTaskNotFound(sub.PlanID, sub.TaskID)
		}
		if sub.OrderHint == "" {
			siblings := snap.Subtasks[sub.TaskID]
			hints := make([]string, 0, len(siblings))
			for _, other := range siblings {
				hints = append(hints, other.OrderHint)
			}
			sub.OrderHint = domain.OrderHintAfter(hints)
		}
		if err := tx.PutSubtask(ctx, sub); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, sub.PlanID)
	})
	if err != nil {
		return domain.Subtask{}, err
	}
	s.invalidate(sub.PlanID)
	return sub, nil
}

// UpdateSubtask replaces a checklist item's title/checked state.
func (s *Service) UpdateSubtask(ctx context.Context, actor string, sub domain.Subtask) (domain.Subtask, error) {
	if err := sub.Validate(); err != nil {
		return domain.Subtask{}, err
	}
	if err := s.locks.CheckMutation(sub.PlanID, sub.TaskID, actor); err != nil {
		return domain.Subtask{}, err
	}
	sub.ModifiedAt = s.now()
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		found := false
		for _, existing := range snap.Subtasks[sub.TaskID] {
			if existing.ID == sub.ID {
				if sub.OrderHint == "" {
					sub.OrderHint = existing.OrderHint
				}
				found = true
				break
			}
		}
		if !found {
			return errors.Newf(errors.KindNotFound, errors.ErrCodeSubtaskNotFound,
				"subtask not found: %s/%s/%s", sub.PlanID, sub.TaskID, sub.ID)
		}
		if err := tx.PutSubtask(ctx, sub); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, sub.PlanID)
	})
	if err != nil {
		return domain.Subtask{}, err
	}
	s.invalidate(sub.PlanID)
	return sub, nil
}

// DeleteSubtask removes a checklist item.
func (s *Service) DeleteSubtask(ctx context.Context, actor, planID, taskID, subtaskID string) error {
	if err := s.locks.CheckMutation(planID, taskID, actor); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		if err := tx.DeleteSubtask(ctx, planID, taskID, subtaskID); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, planID)
	})
	if err != nil {
		return err
	}
	s.invalidate(planID)
	return nil
}

// AddDependency inserts a typed edge after refusing duplicates and
// cycles. The cycle pre-check asks whether the successor already
// reaches the predecessor; if so the new edge would close a loop and
// nothing is persisted.
func (s *Service) AddDependency(ctx context.Context, actor string, d domain.Dependency) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if err := s.locks.CheckMutation(d.PlanID, d.SuccessorID, actor); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, d.PlanID)
		if err != nil {
			return err
		}
		if _, ok := snap.TaskByID(d.PredecessorID); !ok {
			return errors.NewTaskNotFound(d.PlanID, d.PredecessorID)
		}
		if _, ok := snap.TaskByID(d.SuccessorID); !ok {
			return errors.NewTaskNotFound(d.PlanID, d.SuccessorID)
		}
		for _, existing := range snap.Dependencies {
			if existing.PredecessorID == d.PredecessorID && existing.SuccessorID == d.SuccessorID {
				return errors.Newf(errors.KindConflict, errors.ErrCodeDuplicateDependency,
					"dependency already exists: %s -> %s", d.PredecessorID, d.SuccessorID)
			}
		}
		g, err := graph.BuildRepaired(snap.Tasks, snap.Dependencies)
		if err != nil {
			return err
		}
		if d.PredecessorID == d.SuccessorID || g.Reaches(d.SuccessorID, d.PredecessorID) {
			return errors.NewCycleDetected([]string{d.PredecessorID, d.SuccessorID, d.PredecessorID})
		}
		if err := tx.PutDependency(ctx, d); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, d.PlanID)
	})
	if err != nil {
		return err
	}
	s.invalidate(d.PlanID)
	return nil
}

// RemoveDependency deletes an edge.
func (s *Service) RemoveDependency(ctx context.Context, actor, planID, predecessorID, successorID string) error {
	if err := s.locks.CheckMutation(planID, successorID, actor); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		if err := tx.DeleteDependency(ctx, planID, predecessorID, successorID); err != nil {
			return err
		}
		return s.markDirty(ctx, tx, planID)
	})
	if err != nil {
		return err
	}
	s.invalidate(planID)
	return nil
}
