// Package planner is the request-level facade over the planning core.
// It owns plan mutations (transactional, lock-checked, dirty-tracked),
// template cloning and the analytical read operations, delegating the
// math to the dedicated engines and the persistence to the repository.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/congresstwin/congresstwin/internal/cpath"
	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/events"
	"github.com/congresstwin/congresstwin/internal/fingerprint"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/lockmgr"
	"github.com/congresstwin/congresstwin/internal/log"
	"github.com/congresstwin/congresstwin/internal/memo"
	"github.com/congresstwin/congresstwin/internal/montecarlo"
	"github.com/congresstwin/congresstwin/internal/repo"
)

// Service wires the repository, the lock manager and the event workflow
// into the operation surface consumed by the CLI.
type Service struct {
	store  repo.DB
	locks  *lockmgr.Manager
	events *events.Service
	logger *log.Logger

	mcCache *memo.Cache[*montecarlo.Result]
	cpCache *memo.Cache[*cpath.Result]

	now func() time.Time

	defaultIterations int
	queuingK          float64
	attentionBound    int
}

// New builds the facade. A nil logger falls back to the package
// default.
func New(store repo.DB, locks *lockmgr.Manager, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		store:   store,
		locks:   locks,
		logger:  logger,
		mcCache: memo.New[*montecarlo.Result](memo.DefaultSize),
		cpCache: memo.New[*cpath.Result](memo.DefaultSize),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.events = events.NewService(store, locks, logger)
	return s
}

// WithClock fixes the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.events = s.events.WithClock(now)
	return s
}

// WithSimulationDefaults sets the iteration count and queuing factor
// used when a request leaves them unset.
func (s *Service) WithSimulationDefaults(iterations int, queuingK float64) *Service {
	s.defaultIterations = iterations
	s.queuingK = queuingK
	return s
}

// WithAttentionBound caps each attention view's list.
func (s *Service) WithAttentionBound(bound int) *Service {
	s.attentionBound = bound
	return s
}

// Events exposes the external-event workflow behind the facade.
func (s *Service) Events() *events.Service { return s.events }

// RestoreLocks loads persisted locks into the in-memory manager.
// Called once at startup.
func (s *Service) RestoreLocks(ctx context.Context) error {
	locks, err := s.store.ListLocks(ctx)
	if err != nil {
		return err
	}
	s.locks.Restore(locks)
	return nil
}

// ListPlans returns all stored plans.
func (s *Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.store.ListPlans(ctx)
}

// GetPlan loads one plan's full snapshot.
func (s *Service) GetPlan(ctx context.Context, planID string) (*domain.Snapshot, error) {
	return s.store.GetSnapshot(ctx, planID)
}

// GetBuckets returns the plan's buckets.
func (s *Service) GetBuckets(ctx context.Context, planID string) ([]domain.Bucket, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	return snap.Buckets, nil
}

// GetTasks returns the plan's tasks.
func (s *Service) GetTasks(ctx context.Context, planID string) ([]domain.Task, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	return snap.Tasks, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, planID, taskID string) (domain.Task, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return domain.Task{}, err
	}
	t, ok := snap.TaskByID(taskID)
	if !ok {
		return domain.Task{}, errors.NewTaskNotFound(planID, taskID)
	}
	return t, nil
}

// CreatePlan stores a new plan shell.
func (s *Service) CreatePlan(ctx context.Context, p domain.Plan) (domain.Plan, error) {
	if p.ID == "" {
		return domain.Plan{}, errors.New(errors.KindValidation, errors.ErrCodePlanInvalid, "plan id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	err := s.store.Update(ctx, func(tx repo.Store) error {
		return tx.PutPlan(ctx, p)
	})
	if err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

// DeletePlan removes a plan and everything under it, releasing its
// locks.
func (s *Service) DeletePlan(ctx context.Context, planID string) error {
	err := s.store.Update(ctx, func(tx repo.Store) error {
		return tx.DeletePlan(ctx, planID)
	})
	if err != nil {
		return err
	}
	s.locks.ReleaseAll(planID)
	s.invalidate(planID)
	return nil
}

// AcquireLock takes or renews the advisory lock and persists it.
func (s *Service) AcquireLock(ctx context.Context, planID, taskID, userID string, ttl time.Duration) (domain.TaskLock, error) {
	if _, err := s.GetTask(ctx, planID, taskID); err != nil {
		return domain.TaskLock{}, err
	}
	l, err := s.locks.Acquire(planID, taskID, userID, ttl)
	if err != nil {
		return domain.TaskLock{}, err
	}
	err = s.store.Update(ctx, func(tx repo.Store) error {
		return tx.PutLock(ctx, l)
	})
	if err != nil {
		return domain.TaskLock{}, err
	}
	return l, nil
}

// ReleaseLock drops the holder's lock and its persisted record.
func (s *Service) ReleaseLock(ctx context.Context, planID, taskID, userID string) error {
	if err := s.locks.Release(planID, taskID, userID); err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx repo.Store) error {
		return tx.DeleteLock(ctx, planID, taskID)
	})
}

// GetLock returns the live lock on a task, if any.
func (s *Service) GetLock(planID, taskID string) (domain.TaskLock, bool) {
	return s.locks.Get(planID, taskID)
}

// ListProposedActions returns the plan's actions, optionally filtered
// by status. Empty status means all.
func (s *Service) ListProposedActions(ctx context.Context, planID string, status domain.ActionStatus) ([]domain.ProposedAction, error) {
	actions, err := s.store.ListActions(ctx, planID, 0)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return actions, nil
	}
	out := actions[:0]
	for _, a := range actions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// IngestEvent records a disruption and derives proposed actions.
func (s *Service) IngestEvent(ctx context.Context, e domain.ExternalEvent) (events.IngestResult, error) {
	return s.events.Ingest(ctx, e)
}

// ApproveAction applies a proposed action atomically with its status
// change, then invalidates the plan's cached analytics.
func (s *Service) ApproveAction(ctx context.Context, planID string, actionID int64, decider string) (domain.ProposedAction, error) {
	a, err := s.events.Approve(ctx, planID, actionID, decider)
	if err != nil {
		return a, err
	}
	if err := s.refreshDirty(ctx, planID); err != nil {
		s.logger.WithError(err).Warn("dirty refresh after approval failed", "plan_id", planID)
	}
	s.invalidate(planID)
	return a, nil
}

// RejectAction marks a proposed action rejected.
func (s *Service) RejectAction(ctx context.Context, planID string, actionID int64, decider string) (domain.ProposedAction, error) {
	return s.events.Reject(ctx, planID, actionID, decider)
}

// ListEvents returns the plan's external events.
func (s *Service) ListEvents(ctx context.Context, planID string) ([]domain.ExternalEvent, error) {
	return s.store.ListEvents(ctx, planID)
}

// DeleteEvent removes an event and its actions.
func (s *Service) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	return s.events.DeleteEvent(ctx, planID, eventID)
}

// DeleteAction removes a proposed action.
func (s *Service) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	return s.events.DeleteAction(ctx, planID, actionID)
}

// MarkSynced records an external sync: the current fingerprint becomes
// the baseline, the dirty flag clears, and the previous sync instant
// shifts down to feed the recently-changed window.
func (s *Service) MarkSynced(ctx context.Context, planID string) (domain.SyncState, error) {
	var out domain.SyncState
	err := s.store.Update(ctx, func(tx repo.Store) error {
		snap, err := tx.GetSnapshot(ctx, planID)
		if err != nil {
			return err
		}
		fp, err := fingerprint.Hash(snap)
		if err != nil {
			return err
		}
		st, err := tx.GetSyncState(ctx, planID)
		if err != nil {
			return err
		}
		now := s.now()
		st.PlanID = planID
		st.PreviousSyncAt = st.LastSyncAt
		st.LastSyncAt = &now
		st.Fingerprint = fp
		st.Dirty = false
		out = st
		return tx.PutSyncState(ctx, st)
	})
	return out, err
}

// GetSyncState returns the plan's sync record.
func (s *Service) GetSyncState(ctx context.Context, planID string) (domain.SyncState, error) {
	return s.store.GetSyncState(ctx, planID)
}

// markDirty recomputes the dirty flag inside the mutation transaction
// by comparing the post-write fingerprint to the last-sync baseline.
func (s *Service) markDirty(ctx context.Context, tx repo.Store, planID string) error {
	snap, err := tx.GetSnapshot(ctx, planID)
	if err != nil {
		return err
	}
	fp, err := fingerprint.Hash(snap)
	if err != nil {
		return err
	}
	st, err := tx.GetSyncState(ctx, planID)
	if err != nil {
		return err
	}
	st.PlanID = planID
	st.Dirty = st.Fingerprint != fp
	return tx.PutSyncState(ctx, st)
}

// refreshDirty runs markDirty in its own transaction, for mutations
// that happen outside the facade's own Update (action approval).
func (s *Service) refreshDirty(ctx context.Context, planID string) error {
	return s.store.Update(ctx, func(tx repo.Store) error {
		return s.markDirty(ctx, tx, planID)
	})
}

// invalidate drops the plan's cached analytics after a mutation.
func (s *Service) invalidate(planID string) {
	s.cpCache.Remove(cpKey(planID))
	// Monte Carlo keys carry params; the fingerprint check invalidates
	// them lazily on the next lookup.
}

func cpKey(planID string) string { return "cp:" + planID }

func mcKey(planID string, iterations int, seed *uint64, eventDate *time.Time) string {
	k := fmt.Sprintf("mc:%s:%d", planID, iterations)
	if seed != nil {
		k += fmt.Sprintf(":s%d", *seed)
	}
	if eventDate != nil {
		k += ":e" + eventDate.UTC().Format(time.RFC3339)
	}
	return k
}

// loadGraph builds the plan's DAG in repairing mode: a corrupt store
// must still produce a usable snapshot, with the dropped edges surfaced
// to the caller.
func loadGraph(snap *domain.Snapshot) (*graph.Graph, error) {
	return graph.BuildRepaired(snap.Tasks, snap.Dependencies)
}

// pointDurations derives the deterministic per-task duration estimates
// from planned start/due spans.
func pointDurations(snap *domain.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if days, ok := t.PlannedDays(); ok {
			out[t.ID] = days
		}
	}
	return out
}
