package planner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/repo"
)

// Template describes a plan usable as a cloning source.
type Template struct {
	Plan      domain.Plan `json:"plan"`
	TaskCount int         `json:"taskCount"`
}

// ListTemplates returns plans whose tasks have all reached a terminal
// state; finished editions of the event are the cloning sources.
func (s *Service) ListTemplates(ctx context.Context) ([]Template, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	out := []Template{}
	for _, p := range plans {
		snap, err := s.store.GetSnapshot(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if len(snap.Tasks) == 0 {
			continue
		}
		terminal := true
		for _, t := range snap.Tasks {
			if !t.Status.Terminal() {
				terminal = false
				break
			}
		}
		if terminal {
			out = append(out, Template{Plan: p, TaskCount: len(snap.Tasks)})
		}
	}
	return out, nil
}

// CloneOptions tune the clone.
type CloneOptions struct {
	// Name overrides the target plan name; empty copies the source's.
	Name string
	// PreserveTaskIDs keeps the source task ids instead of minting new
	// ones. The target plan's key space is independent, so reuse is
	// safe and keeps semantic ids stable across editions.
	PreserveTaskIDs bool
}

// CloneResult summarizes a finished clone.
type CloneResult struct {
	TargetPlanID string            `json:"targetPlanId"`
	SourcePlanID string            `json:"sourcePlanId"`
	EventDate    time.Time         `json:"eventDate"`
	ShiftDays    float64           `json:"shiftDays"`
	TasksCreated int               `json:"tasksCreated"`
	IDMap        map[string]string `json:"idMap,omitempty"`
}

// CloneTemplate copies a source plan into a new plan aligned on
// targetEventDate. Every date-typed field shifts by the single delta
// that places the latest source due date on the target event date;
// statuses, percentages and completion fields reset. The whole clone
// runs in one transaction.
func (s *Service) CloneTemplate(ctx context.Context, sourcePlanID, targetPlanID string, targetEventDate time.Time, opts CloneOptions) (*CloneResult, error) {
	if targetPlanID == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodePlanInvalid, "target plan id is required")
	}
	if targetEventDate.IsZero() {
		return nil, errors.New(errors.KindValidation, errors.ErrCodePlanInvalid, "target event date is required")
	}
	targetEventDate = targetEventDate.UTC()

	res := &CloneResult{
		TargetPlanID: targetPlanID,
		SourcePlanID: sourcePlanID,
		EventDate:    targetEventDate,
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		src, err := tx.GetSnapshot(ctx, sourcePlanID)
		if err != nil {
			return err
		}
		if len(src.Tasks) == 0 {
			return errors.Newf(errors.KindValidation, errors.ErrCodePlanEmpty,
				"source plan %s has no tasks to clone", sourcePlanID)
		}
		if _, err := tx.GetSnapshot(ctx, targetPlanID); err == nil {
			return errors.Newf(errors.KindConflict, errors.ErrCodePlanExists,
				"target plan %s already exists", targetPlanID)
		} else if !errors.IsNotFound(err) {
			return err
		}

		shift := cloneShift(src, targetEventDate)
		res.ShiftDays = shift.Hours() / 24
		now := s.now()

		name := opts.Name
		if name == "" {
			name = src.Plan.Name
		}
		err = tx.PutPlan(ctx, domain.Plan{
			ID:           targetPlanID,
			Name:         name,
			EventDate:    &targetEventDate,
			SourcePlanID: sourcePlanID,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		for _, b := range src.Buckets {
			b.PlanID = targetPlanID
			if err := tx.PutBucket(ctx, b); err != nil {
				return err
			}
		}

		idMap := make(map[string]string, len(src.Tasks))
		for _, t := range src.Tasks {
			newID := t.ID
			if !opts.PreserveTaskIDs {
				newID = uuid.NewString()
			}
			idMap[t.ID] = newID

			clone := t
			clone.PlanID = targetPlanID
			clone.ID = newID
			clone.Status = domain.StatusNotStarted
			clone.PercentComplete = 0
			clone.CompletedAt = nil
			clone.CompletedBy = ""
			clone.StartAt = shiftTime(t.StartAt, shift)
			clone.DueAt = shiftTime(t.DueAt, shift)
			clone.CreatedAt = now
			clone.ModifiedAt = now
			if err := tx.PutTask(ctx, clone); err != nil {
				return err
			}

			for _, sub := range src.Subtasks[t.ID] {
				sub.PlanID = targetPlanID
				sub.TaskID = newID
				if !opts.PreserveTaskIDs {
					sub.ID = uuid.NewString()
				}
				sub.Checked = false
				sub.ModifiedAt = now
				if err := tx.PutSubtask(ctx, sub); err != nil {
					return err
				}
			}
		}

		for _, d := range src.Dependencies {
			pred, okP := idMap[d.PredecessorID]
			succ, okS := idMap[d.SuccessorID]
			if !okP || !okS {
				continue
			}
			err := tx.PutDependency(ctx, domain.Dependency{
				PlanID:        targetPlanID,
				PredecessorID: pred,
				SuccessorID:   succ,
				Type:          d.Type,
			})
			if err != nil {
				return err
			}
		}

		res.TasksCreated = len(src.Tasks)
		if !opts.PreserveTaskIDs {
			res.IDMap = idMap
		}
		return s.markDirty(ctx, tx, targetPlanID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cloneShift is the uniform delta placing the latest source due date on
// the target event date. A source without due dates anchors on the
// latest start date instead, and failing that shifts nothing.
func cloneShift(src *domain.Snapshot, target time.Time) time.Duration {
	var latest *time.Time
	for _, t := range src.Tasks {
		if t.DueAt != nil && (latest == nil || t.DueAt.After(*latest)) {
			latest = t.DueAt
		}
	}
	if latest == nil {
		for _, t := range src.Tasks {
			if t.StartAt != nil && (latest == nil || t.StartAt.After(*latest)) {
				latest = t.StartAt
			}
		}
	}
	if latest == nil {
		return 0
	}
	return target.Sub(*latest)
}

func shiftTime(t *time.Time, d time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	out := t.UTC().Add(d)
	return &out
}
