package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

// Memory is the in-process backend. Readers see an immutable state
// pointer; Update clones the state, mutates the clone and swaps the
// pointer on success, so a failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.RWMutex
	wmu   sync.Mutex
	state *memState
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) Close() error { return nil }

// Update implements the transactional unit of work.
func (m *Memory) Update(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("store update", err)
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()

	m.mu.RLock()
	base := m.state
	m.mu.RUnlock()

	work := base.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *Memory) read() *memTx {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &memTx{s: m.state}
}

func (m *Memory) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return m.read().ListPlans(ctx)
}

func (m *Memory) GetSnapshot(ctx context.Context, planID string) (*domain.Snapshot, error) {
	return m.read().GetSnapshot(ctx, planID)
}

func (m *Memory) PutPlan(ctx context.Context, p domain.Plan) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutPlan(ctx, p) })
}

func (m *Memory) DeletePlan(ctx context.Context, planID string) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeletePlan(ctx, planID) })
}

func (m *Memory) PutBucket(ctx context.Context, b domain.Bucket) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutBucket(ctx, b) })
}

func (m *Memory) DeleteBucket(ctx context.Context, planID, bucketID string) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteBucket(ctx, planID, bucketID) })
}

func (m *Memory) PutTask(ctx context.Context, t domain.Task) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutTask(ctx, t) })
}

func (m *Memory) DeleteTask(ctx context.Context, planID, taskID string) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteTask(ctx, planID, taskID) })
}

func (m *Memory) PutSubtask(ctx context.Context, s domain.Subtask) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutSubtask(ctx, s) })
}

func (m *Memory) DeleteSubtask(ctx context.Context, planID, taskID, subtaskID string) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteSubtask(ctx, planID, taskID, subtaskID) })
}

func (m *Memory) PutDependency(ctx context.Context, d domain.Dependency) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutDependency(ctx, d) })
}

func (m *Memory) DeleteDependency(ctx context.Context, planID, predecessorID, successorID string) error {
	return m.Update(ctx, func(tx Store) error {
		return tx.DeleteDependency(ctx, planID, predecessorID, successorID)
	})
}

func (m *Memory) ListSamples(ctx context.Context) ([]domain.HistoricalSample, error) {
	return m.read().ListSamples(ctx)
}

func (m *Memory) AddSamples(ctx context.Context, samples []domain.HistoricalSample) error {
	return m.Update(ctx, func(tx Store) error { return tx.AddSamples(ctx, samples) })
}

func (m *Memory) ListLocks(ctx context.Context) ([]domain.TaskLock, error) {
	return m.read().ListLocks(ctx)
}

func (m *Memory) PutLock(ctx context.Context, l domain.TaskLock) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutLock(ctx, l) })
}

func (m *Memory) DeleteLock(ctx context.Context, planID, taskID string) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteLock(ctx, planID, taskID) })
}

func (m *Memory) PutEvent(ctx context.Context, e domain.ExternalEvent) (domain.ExternalEvent, error) {
	var out domain.ExternalEvent
	err := m.Update(ctx, func(tx Store) error {
		var err error
		out, err = tx.PutEvent(ctx, e)
		return err
	})
	return out, err
}

func (m *Memory) GetEvent(ctx context.Context, planID string, eventID int64) (domain.ExternalEvent, error) {
	return m.read().GetEvent(ctx, planID, eventID)
}

func (m *Memory) ListEvents(ctx context.Context, planID string) ([]domain.ExternalEvent, error) {
	return m.read().ListEvents(ctx, planID)
}

func (m *Memory) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteEvent(ctx, planID, eventID) })
}

func (m *Memory) PutAction(ctx context.Context, a domain.ProposedAction) (domain.ProposedAction, error) {
	var out domain.ProposedAction
	err := m.Update(ctx, func(tx Store) error {
		var err error
		out, err = tx.PutAction(ctx, a)
		return err
	})
	return out, err
}

func (m *Memory) GetAction(ctx context.Context, planID string, actionID int64) (domain.ProposedAction, error) {
	return m.read().GetAction(ctx, planID, actionID)
}

func (m *Memory) ListActions(ctx context.Context, planID string, eventID int64) ([]domain.ProposedAction, error) {
	return m.read().ListActions(ctx, planID, eventID)
}

func (m *Memory) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	return m.Update(ctx, func(tx Store) error { return tx.DeleteAction(ctx, planID, actionID) })
}

func (m *Memory) GetSyncState(ctx context.Context, planID string) (domain.SyncState, error) {
	return m.read().GetSyncState(ctx, planID)
}

func (m *Memory) PutSyncState(ctx context.Context, s domain.SyncState) error {
	return m.Update(ctx, func(tx Store) error { return tx.PutSyncState(ctx, s) })
}

type depKey struct {
	pred string
	succ string
}

type memState struct {
	plans    map[string]domain.Plan
	buckets  map[string]map[string]domain.Bucket
	tasks    map[string]map[string]domain.Task
	subtasks map[string]map[string][]domain.Subtask
	deps     map[string]map[depKey]domain.Dependency
	samples  []domain.HistoricalSample
	locks    map[string]map[string]domain.TaskLock
	events   map[string]map[int64]domain.ExternalEvent
	actions  map[string]map[int64]domain.ProposedAction
	sync     map[string]domain.SyncState

	nextEventID  int64
	nextActionID int64
}

func newMemState() *memState {
	return &memState{
		plans:        make(map[string]domain.Plan),
		buckets:      make(map[string]map[string]domain.Bucket),
		tasks:        make(map[string]map[string]domain.Task),
		subtasks:     make(map[string]map[string][]domain.Subtask),
		deps:         make(map[string]map[depKey]domain.Dependency),
		locks:        make(map[string]map[string]domain.TaskLock),
		events:       make(map[string]map[int64]domain.ExternalEvent),
		actions:      make(map[string]map[int64]domain.ProposedAction),
		sync:         make(map[string]domain.SyncState),
		nextEventID:  1,
		nextActionID: 1,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextEventID = s.nextEventID
	c.nextActionID = s.nextActionID
	for id, p := range s.plans {
		c.plans[id] = p
	}
	for pid, m := range s.buckets {
		cm := make(map[string]domain.Bucket, len(m))
		for id, b := range m {
			cm[id] = b
		}
		c.buckets[pid] = cm
	}
	for pid, m := range s.tasks {
		cm := make(map[string]domain.Task, len(m))
		for id, t := range m {
			cm[id] = copyTask(t)
		}
		c.tasks[pid] = cm
	}
	for pid, m := range s.subtasks {
		cm := make(map[string][]domain.Subtask, len(m))
		for tid, list := range m {
			cm[tid] = append([]domain.Subtask(nil), list...)
		}
		c.subtasks[pid] = cm
	}
	for pid, m := range s.deps {
		cm := make(map[depKey]domain.Dependency, len(m))
		for k, d := range m {
			cm[k] = d
		}
		c.deps[pid] = cm
	}
	c.samples = append([]domain.HistoricalSample(nil), s.samples...)
	for pid, m := range s.locks {
		cm := make(map[string]domain.TaskLock, len(m))
		for id, l := range m {
			cm[id] = l
		}
		c.locks[pid] = cm
	}
	for pid, m := range s.events {
		cm := make(map[int64]domain.ExternalEvent, len(m))
		for id, e := range m {
			cm[id] = e
		}
		c.events[pid] = cm
	}
	for pid, m := range s.actions {
		cm := make(map[int64]domain.ProposedAction, len(m))
		for id, a := range m {
			cm[id] = a
		}
		c.actions[pid] = cm
	}
	for pid, st := range s.sync {
		c.sync[pid] = st
	}
	return c
}

func copyTask(t domain.Task) domain.Task {
	t.Assignees = append([]string(nil), t.Assignees...)
	t.Categories = append([]string(nil), t.Categories...)
	return t
}

// memTx serves both live reads and transactional writes; callers
// provide the synchronization.
type memTx struct {
	s *memState
}

func (t *memTx) ListPlans(context.Context) ([]domain.Plan, error) {
	out := make([]domain.Plan, 0, len(t.s.plans))
	for _, p := range t.s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetSnapshot(_ context.Context, planID string) (*domain.Snapshot, error) {
	p, ok := t.s.plans[planID]
	if !ok {
		return nil, errors.NewPlanNotFound(planID)
	}
	snap := &domain.Snapshot{Plan: p, Subtasks: make(map[string][]domain.Subtask)}
	for _, b := range t.s.buckets[planID] {
		snap.Buckets = append(snap.Buckets, b)
	}
	sort.Slice(snap.Buckets, func(i, j int) bool { return snap.Buckets[i].ID < snap.Buckets[j].ID })
	for _, task := range t.s.tasks[planID] {
		snap.Tasks = append(snap.Tasks, copyTask(task))
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	for tid, list := range t.s.subtasks[planID] {
		snap.Subtasks[tid] = append([]domain.Subtask(nil), list...)
	}
	for _, d := range t.s.deps[planID] {
		snap.Dependencies = append(snap.Dependencies, d)
	}
	sort.Slice(snap.Dependencies, func(i, j int) bool {
		a, b := snap.Dependencies[i], snap.Dependencies[j]
		if a.PredecessorID != b.PredecessorID {
			return a.PredecessorID < b.PredecessorID
		}
		return a.SuccessorID < b.SuccessorID
	})
	return snap, nil
}

func (t *memTx) PutPlan(_ context.Context, p domain.Plan) error {
	t.s.plans[p.ID] = p
	return nil
}

func (t *memTx) DeletePlan(_ context.Context, planID string) error {
	if _, ok := t.s.plans[planID]; !ok {
		return errors.NewPlanNotFound(planID)
	}
	delete(t.s.plans, planID)
	delete(t.s.buckets, planID)
	delete(t.s.tasks, planID)
	delete(t.s.subtasks, planID)
	delete(t.s.deps, planID)
	delete(t.s.locks, planID)
	delete(t.s.events, planID)
	delete(t.s.actions, planID)
	delete(t.s.sync, planID)
	return nil
}

func (t *memTx) requirePlan(planID string) error {
	if _, ok := t.s.plans[planID]; !ok {
		return errors.NewPlanNotFound(planID)
	}
	return nil
}

func (t *memTx) PutBucket(_ context.Context, b domain.Bucket) error {
	if err := t.requirePlan(b.PlanID); err != nil {
		return err
	}
	if t.s.buckets[b.PlanID] == nil {
		t.s.buckets[b.PlanID] = make(map[string]domain.Bucket)
	}
	t.s.buckets[b.PlanID][b.ID] = b
	return nil
}

func (t *memTx) DeleteBucket(_ context.Context, planID, bucketID string) error {
	if _, ok := t.s.buckets[planID][bucketID]; !ok {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeBucketNotFound,
			"bucket not found: %s/%s", planID, bucketID)
	}
	delete(t.s.buckets[planID], bucketID)
	return nil
}

func (t *memTx) PutTask(_ context.Context, task domain.Task) error {
	if err := t.requirePlan(task.PlanID); err != nil {
		return err
	}
	if t.s.tasks[task.PlanID] == nil {
		t.s.tasks[task.PlanID] = make(map[string]domain.Task)
	}
	t.s.tasks[task.PlanID][task.ID] = copyTask(task)
	return nil
}

func (t *memTx) DeleteTask(_ context.Context, planID, taskID string) error {
	if _, ok := t.s.tasks[planID][taskID]; !ok {
		return errors.NewTaskNotFound(planID, taskID)
	}
	delete(t.s.tasks[planID], taskID)
	if m := t.s.subtasks[planID]; m != nil {
		delete(m, taskID)
	}
	for k := range t.s.deps[planID] {
		if k.pred == taskID || k.succ == taskID {
			delete(t.s.deps[planID], k)
		}
	}
	if m := t.s.locks[planID]; m != nil {
		delete(m, taskID)
	}
	return nil
}

func (t *memTx) PutSubtask(_ context.Context, st domain.Subtask) error {
	if _, ok := t.s.tasks[st.PlanID][st.TaskID]; !ok {
		return errors.NewTaskNotFound(st.PlanID, st.TaskID)
	}
	if t.s.subtasks[st.PlanID] == nil {
		t.s.subtasks[st.PlanID] = make(map[string][]domain.Subtask)
	}
	list := t.s.subtasks[st.PlanID][st.TaskID]
	for i := range list {
		if list[i].ID == st.ID {
			list[i] = st
			return nil
		}
	}
	t.s.subtasks[st.PlanID][st.TaskID] = append(list, st)
	return nil
}

func (t *memTx) DeleteSubtask(_ context.Context, planID, taskID, subtaskID string) error {
	list := t.s.subtasks[planID][taskID]
	for i := range list {
		if list[i].ID == subtaskID {
			t.s.subtasks[planID][taskID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.KindNotFound, errors.ErrCodeSubtaskNotFound,
		"subtask not found: %s/%s/%s", planID, taskID, subtaskID)
}

func (t *memTx) PutDependency(_ context.Context, d domain.Dependency) error {
	if err := t.requirePlan(d.PlanID); err != nil {
		return err
	}
	if t.s.deps[d.PlanID] == nil {
		t.s.deps[d.PlanID] = make(map[depKey]domain.Dependency)
	}
	t.s.deps[d.PlanID][depKey{d.PredecessorID, d.SuccessorID}] = d
	return nil
}

func (t *memTx) DeleteDependency(_ context.Context, planID, predecessorID, successorID string) error {
	k := depKey{predecessorID, successorID}
	if _, ok := t.s.deps[planID][k]; !ok {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeDependencyNotFound,
			"dependency not found: %s: %s -> %s", planID, predecessorID, successorID)
	}
	delete(t.s.deps[planID], k)
	return nil
}

func (t *memTx) ListSamples(context.Context) ([]domain.HistoricalSample, error) {
	return append([]domain.HistoricalSample(nil), t.s.samples...), nil
}

func (t *memTx) AddSamples(_ context.Context, samples []domain.HistoricalSample) error {
	t.s.samples = append(t.s.samples, samples...)
	return nil
}

func (t *memTx) ListLocks(context.Context) ([]domain.TaskLock, error) {
	var out []domain.TaskLock
	for _, m := range t.s.locks {
		for _, l := range m {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlanID != out[j].PlanID {
			return out[i].PlanID < out[j].PlanID
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out, nil
}

func (t *memTx) PutLock(_ context.Context, l domain.TaskLock) error {
	if t.s.locks[l.PlanID] == nil {
		t.s.locks[l.PlanID] = make(map[string]domain.TaskLock)
	}
	t.s.locks[l.PlanID][l.TaskID] = l
	return nil
}

func (t *memTx) DeleteLock(_ context.Context, planID, taskID string) error {
	delete(t.s.locks[planID], taskID)
	return nil
}

func (t *memTx) PutEvent(_ context.Context, e domain.ExternalEvent) (domain.ExternalEvent, error) {
	if err := t.requirePlan(e.PlanID); err != nil {
		return domain.ExternalEvent{}, err
	}
	if e.ID == 0 {
		e.ID = t.s.nextEventID
		t.s.nextEventID++
	}
	if t.s.events[e.PlanID] == nil {
		t.s.events[e.PlanID] = make(map[int64]domain.ExternalEvent)
	}
	t.s.events[e.PlanID][e.ID] = e
	return e, nil
}

func (t *memTx) GetEvent(_ context.Context, planID string, eventID int64) (domain.ExternalEvent, error) {
	e, ok := t.s.events[planID][eventID]
	if !ok {
		return domain.ExternalEvent{}, errors.Newf(errors.KindNotFound, errors.ErrCodeEventNotFound,
			"event not found: %s/%d", planID, eventID)
	}
	return e, nil
}

func (t *memTx) ListEvents(_ context.Context, planID string) ([]domain.ExternalEvent, error) {
	out := make([]domain.ExternalEvent, 0, len(t.s.events[planID]))
	for _, e := range t.s.events[planID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DeleteEvent(_ context.Context, planID string, eventID int64) error {
	if _, ok := t.s.events[planID][eventID]; !ok {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeEventNotFound,
			"event not found: %s/%d", planID, eventID)
	}
	delete(t.s.events[planID], eventID)
	return nil
}

func (t *memTx) PutAction(_ context.Context, a domain.ProposedAction) (domain.ProposedAction, error) {
	if err := t.requirePlan(a.PlanID); err != nil {
		return domain.ProposedAction{}, err
	}
	if a.ID == 0 {
		a.ID = t.s.nextActionID
		t.s.nextActionID++
	}
	if t.s.actions[a.PlanID] == nil {
		t.s.actions[a.PlanID] = make(map[int64]domain.ProposedAction)
	}
	t.s.actions[a.PlanID][a.ID] = a
	return a, nil
}

func (t *memTx) GetAction(_ context.Context, planID string, actionID int64) (domain.ProposedAction, error) {
	a, ok := t.s.actions[planID][actionID]
	if !ok {
		return domain.ProposedAction{}, errors.Newf(errors.KindNotFound, errors.ErrCodeActionNotFound,
			"action not found: %s/%d", planID, actionID)
	}
	return a, nil
}

func (t *memTx) ListActions(_ context.Context, planID string, eventID int64) ([]domain.ProposedAction, error) {
	var out []domain.ProposedAction
	for _, a := range t.s.actions[planID] {
		if eventID != 0 && a.EventID != eventID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DeleteAction(_ context.Context, planID string, actionID int64) error {
	if _, ok := t.s.actions[planID][actionID]; !ok {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeActionNotFound,
			"action not found: %s/%d", planID, actionID)
	}
	delete(t.s.actions[planID], actionID)
	return nil
}

func (t *memTx) GetSyncState(_ context.Context, planID string) (domain.SyncState, error) {
	st, ok := t.s.sync[planID]
	if !ok {
		return domain.SyncState{PlanID: planID}, nil
	}
	return st, nil
}

func (t *memTx) PutSyncState(_ context.Context, s domain.SyncState) error {
	t.s.sync[s.PlanID] = s
	return nil
}
