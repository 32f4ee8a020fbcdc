// Package events runs the external-event workflow: an event is
// ingested, rules keyed on its type derive proposed actions, and a
// human approves or rejects each one. Approval applies the implied
// task mutation in the same transaction as the status change.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/lockmgr"
	"github.com/congresstwin/congresstwin/internal/log"
	"github.com/congresstwin/congresstwin/internal/repo"
)

const (
	// ActionShiftDueDate moves a task's start and due dates by
	// payload shift_days.
	ActionShiftDueDate = "shift_due_date"
	// ActionReassignOrReschedule replaces assignees when the payload
	// names them, otherwise shifts dates like ActionShiftDueDate.
	ActionReassignOrReschedule = "reassign_or_reschedule"

	defaultShiftDays   = 2
	maxActionsPerEvent = 3
	alertEventLimit    = 30
	alertActionLimit   = 20
)

// Rule derives proposed actions for one affected, non-completed task.
type Rule func(e domain.ExternalEvent, t domain.Task) []domain.ProposedAction

// rules is the table keyed by event type. Unknown types store the
// event with no actions.
var rules = map[string]Rule{
	"flight_cancellation": func(e domain.ExternalEvent, t domain.Task) []domain.ProposedAction {
		k := shiftDays(e.Payload)
		return []domain.ProposedAction{{
			PlanID:  e.PlanID,
			EventID: e.ID,
			TaskID:  t.ID,
			Type:    ActionShiftDueDate,
			Title:   fmt.Sprintf("Shift due date: %s", t.Title),
			Description: fmt.Sprintf(
				"Flight cancellation may delay travel. Suggest shifting due date by +%d days. Approve to apply.", k),
			Payload: map[string]any{"task_id": t.ID, "shift_days": k, "reason": "flight_cancellation"},
		}}
	},
	"participant_meeting_cancelled": func(e domain.ExternalEvent, t domain.Task) []domain.ProposedAction {
		return []domain.ProposedAction{{
			PlanID:  e.PlanID,
			EventID: e.ID,
			TaskID:  t.ID,
			Type:    ActionReassignOrReschedule,
			Title:   fmt.Sprintf("Re-adjust schedule: %s", t.Title),
			Description: "Participant meeting cancelled. Reassign the task or shift it to allow " +
				"rescheduling. Approve to apply.",
			Payload: map[string]any{"task_id": t.ID, "shift_days": shiftDays(e.Payload), "reason": "participant_meeting_cancelled"},
		}}
	},
}

func shiftDays(payload map[string]any) int {
	k := defaultShiftDays
	switch v := payload["shift_days"].(type) {
	case int:
		k = v
	case int64:
		k = int(v)
	case float64:
		k = int(v)
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Service owns the workflow. The lock manager guards the task
// mutations applied on approval.
type Service struct {
	store  repo.DB
	locks  *lockmgr.Manager
	logger *log.Logger
	now    func() time.Time
}

// NewService creates the workflow service.
func NewService(store repo.DB, locks *lockmgr.Manager, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  store,
		locks:  locks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IngestResult is the stored event plus the actions its rules derived.
type IngestResult struct {
	Event   domain.ExternalEvent    `json:"event"`
	Actions []domain.ProposedAction `json:"proposedActions"`
}

// Ingest persists the event and derives proposed actions from the
// rule table. When the event names no affected tasks, the first two
// in-progress tasks (or the first two tasks) stand in.
func (s *Service) Ingest(ctx context.Context, e domain.ExternalEvent) (IngestResult, error) {
	if e.Severity == "" {
		e.Severity = domain.SeverityMedium
	}
	if e.Title == "" {
		e.Title = defaultTitle(e.Type)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := e.Validate(); err != nil {
		return IngestResult{}, err
	}

	var out IngestResult
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, e.PlanID)
		if err != nil {
			return err
		}
		stored, err := tx.PutEvent(ctx, e)
		if err != nil {
			return err
		}
		out.Event = stored

		rule, ok := rules[stored.Type]
		if !ok {
			return nil
		}
		for _, t := range affectedTasks(snap, stored.AffectedTaskIDs) {
			for _, a := range rule(stored, t) {
				a.Status = domain.ActionPending
				a.CreatedAt = stored.CreatedAt
				saved, err := tx.PutAction(ctx, a)
				if err != nil {
					return err
				}
				out.Actions = append(out.Actions, saved)
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	s.logger.Info("event ingested",
		"plan", e.PlanID, "type", e.Type, "event_id", out.Event.ID, "actions", len(out.Actions))
	return out, nil
}

func defaultTitle(eventType string) string {
	switch eventType {
	case "flight_cancellation":
		return "Flight cancellation impacting travel"
	case "participant_meeting_cancelled":
		return "Participant meeting cancelled: scheduling impact"
	default:
		return fmt.Sprintf("External event: %s", eventType)
	}
}

// affectedTasks resolves the event's affected ids to live tasks,
// skipping completed ones and capping the proposal count.
func affectedTasks(snap *domain.Snapshot, ids []string) []domain.Task {
	if len(ids) == 0 {
		for _, t := range snap.Tasks {
			if t.Status == domain.StatusInProgress {
				ids = append(ids, t.ID)
				if len(ids) == 2 {
					break
				}
			}
		}
		if len(ids) == 0 {
			for _, t := range snap.Tasks {
				ids = append(ids, t.ID)
				if len(ids) == 2 {
					break
				}
			}
		}
	}

	var out []domain.Task
	for _, id := range ids {
		if len(out) == maxActionsPerEvent {
			break
		}
		t, ok := snap.TaskByID(id)
		if !ok || t.Status == domain.StatusCompleted {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Approve marks the action approved and applies its mutation in one
// transaction. Approving an already-approved action is a no-op that
// returns the stored state; approving a rejected one fails.
func (s *Service) Approve(ctx context.Context, planID string, actionID int64, decider string) (domain.ProposedAction, error) {
	var out domain.ProposedAction
	err := s.store.Update(ctx, func(tx repo.Store) error {
		a, err := tx.GetAction(ctx, planID, actionID)
		if err != nil {
			return err
		}
		if a.Status == domain.ActionApproved {
			out = a
			return nil
		}
		if a.Status == domain.ActionRejected {
			return errors.NewActionAlreadyDecided(a.ID, string(a.Status))
		}
		if s.locks != nil && a.TaskID != "" {
			if err := s.locks.CheckMutation(planID, a.TaskID, decider); err != nil {
				return err
			}
		}

		now := s.now()
		a.Status = domain.ActionApproved
		a.DecidedAt = &now
		a.DecidedBy = decider
		if err := s.apply(ctx, tx, a); err != nil {
			return err
		}
		out, err = tx.PutAction(ctx, a)
		return err
	})
	if err != nil {
		return domain.ProposedAction{}, err
	}
	s.logger.Info("action approved", "plan", planID, "action_id", actionID, "decider", decider)
	return out, nil
}

// Reject marks the action rejected without touching the plan.
func (s *Service) Reject(ctx context.Context, planID string, actionID int64, decider string) (domain.ProposedAction, error) {
	var out domain.ProposedAction
	err := s.store.Update(ctx, func(tx repo.Store) error {
		a, err := tx.GetAction(ctx, planID, actionID)
		if err != nil {
			return err
		}
		if a.Status == domain.ActionRejected {
			out = a
			return nil
		}
		if a.Status == domain.ActionApproved {
			return errors.NewActionAlreadyDecided(a.ID, string(a.Status))
		}
		now := s.now()
		a.Status = domain.ActionRejected
		a.DecidedAt = &now
		a.DecidedBy = decider
		out, err = tx.PutAction(ctx, a)
		return err
	})
	if err != nil {
		return domain.ProposedAction{}, err
	}
	return out, nil
}

// apply performs the mutation the action's payload implies.
func (s *Service) apply(ctx context.Context, tx repo.Store, a domain.ProposedAction) error {
	if a.TaskID == "" {
		return nil
	}
	snap, err := tx.GetSnapshot(ctx, a.PlanID)
	if err != nil {
		return err
	}
	t, ok := snap.TaskByID(a.TaskID)
	if !ok {
		return errors.NewTaskNotFound(a.PlanID, a.TaskID)
	}

	switch a.Type {
	case ActionShiftDueDate:
		shiftTaskDates(&t, shiftDays(a.Payload))
	case ActionReassignOrReschedule:
		if names, ok := stringSlice(a.Payload["assignees"]); ok && len(names) > 0 {
			t.Assignees = names
		} else {
			shiftTaskDates(&t, shiftDays(a.Payload))
		}
	default:
		return errors.Newf(errors.KindValidation, errors.ErrCodeUnknownActionType,
			"unknown action type %q", a.Type)
	}
	t.ModifiedAt = s.now()
	return tx.PutTask(ctx, t)
}

func shiftTaskDates(t *domain.Task, days int) {
	if t.DueAt != nil {
		d := t.DueAt.AddDate(0, 0, days)
		t.DueAt = &d
	}
	if t.StartAt != nil {
		d := t.StartAt.AddDate(0, 0, days)
		t.StartAt = &d
	}
}

func stringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// DeleteEvent removes the event and every action derived from it.
func (s *Service) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	return s.store.Update(ctx, func(tx repo.Store) error {
		if err := tx.DeleteEvent(ctx, planID, eventID); err != nil {
			return err
		}
		actions, err := tx.ListActions(ctx, planID, eventID)
		if err != nil {
			return err
		}
		for _, a := range actions {
			if err := tx.DeleteAction(ctx, planID, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAction removes a single action regardless of its status.
func (s *Service) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	return s.store.Update(ctx, func(tx repo.Store) error {
		return tx.DeleteAction(ctx, planID, actionID)
	})
}

// Alerts is the dashboard view: recent events plus pending actions.
type Alerts struct {
	PlanID         string                  `json:"planId"`
	Events         []domain.ExternalEvent  `json:"externalEvents"`
	PendingActions []domain.ProposedAction `json:"pendingActions"`
	PendingCount   int                     `json:"pendingActionsCount"`
}

// GetAlerts lists recent events and pending actions for the plan.
func (s *Service) GetAlerts(ctx context.Context, planID string) (Alerts, error) {
	events, err := s.store.ListEvents(ctx, planID)
	if err != nil {
		return Alerts{}, err
	}
	if len(events) > alertEventLimit {
		events = events[len(events)-alertEventLimit:]
	}
	actions, err := s.store.ListActions(ctx, planID, 0)
	if err != nil {
		return Alerts{}, err
	}
	var pending []domain.ProposedAction
	for _, a := range actions {
		if a.Status == domain.ActionPending {
			pending = append(pending, a)
		}
	}
	out := Alerts{PlanID: planID, Events: events, PendingCount: len(pending)}
	if len(pending) > alertActionLimit {
		pending = pending[:alertActionLimit]
	}
	out.PendingActions = pending
	return out, nil
}
