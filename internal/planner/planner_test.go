package planner

import (
	"context"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/lockmgr"
	"github.com/congresstwin/congresstwin/internal/repo"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := repo.NewMemory()
	locks := lockmgr.New(lockmgr.WithClock(func() time.Time { return now }))
	svc := New(store, locks, nil).WithClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := svc.CreatePlan(ctx, domain.Plan{ID: "P1", Name: "Congress 2026", EventDate: tp(now.AddDate(0, 6, 0))}); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	err := store.Update(ctx, func(tx repo.Store) error {
		return tx.PutBucket(ctx, domain.Bucket{PlanID: "P1", ID: "B1", Name: "Logistics"})
	})
	if err != nil {
		t.Fatalf("seed bucket: %v", err)
	}
	return svc
}

func seedTask(t *testing.T, svc *Service, id, title string) domain.Task {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), "alice", domain.Task{
		PlanID:   "P1",
		ID:       id,
		Title:    title,
		BucketID: "B1",
		StartAt:  tp(now.AddDate(0, 0, 1)),
		DueAt:    tp(now.AddDate(0, 0, 8)),
	})
	if err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	svc := newTestService(t)
	task := seedTask(t, svc, "", "Book venue")

	if task.ID == "" {
		t.Error("no id assigned")
	}
	if task.Status != domain.StatusNotStarted {
		t.Errorf("status = %q", task.Status)
	}
	if task.OrderHint == "" {
		t.Error("no order hint assigned")
	}
	if task.CreatedBy != "alice" {
		t.Errorf("created by = %q", task.CreatedBy)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	title := "Book larger venue"
	pct := 40
	status := domain.StatusInProgress
	got, err := svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{
		Title:           &title,
		Status:          &status,
		PercentComplete: &pct,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != title || got.PercentComplete != 40 || got.Status != domain.StatusInProgress {
		t.Errorf("task = %+v", got)
	}
	// Untouched fields survive a partial patch.
	if got.BucketID != "B1" || got.StartAt == nil {
		t.Errorf("patch clobbered fields: %+v", got)
	}
}

func TestCompletionReconciled(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	pct := 100
	got, err := svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{PercentComplete: &pct})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.CompletedAt == nil || got.CompletedBy != "alice" {
		t.Errorf("completion not reconciled: %+v", got)
	}

	// Reopening drops the completion fields.
	status := domain.StatusInProgress
	pct = 60
	got, err = svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{Status: &status, PercentComplete: &pct})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got.CompletedAt != nil || got.CompletedBy != "" {
		t.Errorf("completion fields survived reopen: %+v", got)
	}
}

func TestMutationBlockedByForeignLock(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	if _, err := svc.AcquireLock(ctx, "P1", "T1", "bob", 0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	title := "hijack"
	_, err := svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{Title: &title})
	if errors.CodeOf(err) != errors.ErrCodeLockedByOther {
		t.Fatalf("err = %v, want LOCK-001", err)
	}

	// The holder mutates freely.
	if _, err := svc.UpdateTask(ctx, "bob", "P1", "T1", TaskPatch{Title: &title}); err != nil {
		t.Fatalf("holder update: %v", err)
	}

	if err := svc.ReleaseLock(ctx, "P1", "T1", "bob"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{Title: &title}); err != nil {
		t.Fatalf("update after release: %v", err)
	}
}

func TestAddDependencyRefusesCycle(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	seedTask(t, svc, "T2", "Invite speakers")
	seedTask(t, svc, "T3", "Print agenda")
	ctx := context.Background()

	for _, d := range []domain.Dependency{
		{PlanID: "P1", PredecessorID: "T1", SuccessorID: "T2", Type: domain.FinishStart},
		{PlanID: "P1", PredecessorID: "T2", SuccessorID: "T3", Type: domain.FinishStart},
	} {
		if err := svc.AddDependency(ctx, "alice", d); err != nil {
			t.Fatalf("add %s->%s: %v", d.PredecessorID, d.SuccessorID, err)
		}
	}

	// T3 -> T1 would close the loop; the edge must not land.
	err := svc.AddDependency(ctx, "alice", domain.Dependency{
		PlanID: "P1", PredecessorID: "T3", SuccessorID: "T1", Type: domain.FinishStart,
	})
	if errors.CodeOf(err) != errors.ErrCodeCycleDetected {
		t.Fatalf("err = %v, want DEP-004", err)
	}
	snap, err := svc.GetPlan(ctx, "P1")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if len(snap.Dependencies) != 2 {
		t.Errorf("dependencies = %d, want 2 (refused edge persisted)", len(snap.Dependencies))
	}
}

func TestAddDependencyRefusesDuplicate(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	seedTask(t, svc, "T2", "Invite speakers")
	ctx := context.Background()

	d := domain.Dependency{PlanID: "P1", PredecessorID: "T1", SuccessorID: "T2", Type: domain.FinishStart}
	if err := svc.AddDependency(ctx, "alice", d); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := svc.AddDependency(ctx, "alice", d)
	if errors.CodeOf(err) != errors.ErrCodeDuplicateDependency {
		t.Fatalf("err = %v, want DEP-003", err)
	}
}

func TestDirtyTracking(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	st, err := svc.GetSyncState(ctx, "P1")
	if err != nil {
		t.Fatalf("sync state: %v", err)
	}
	if !st.Dirty {
		t.Error("plan not dirty after mutation")
	}

	if _, err := svc.MarkSynced(ctx, "P1"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	st, _ = svc.GetSyncState(ctx, "P1")
	if st.Dirty {
		t.Error("plan dirty right after sync")
	}
	if st.LastSyncAt == nil || !st.LastSyncAt.Equal(now) {
		t.Errorf("last sync = %v", st.LastSyncAt)
	}

	title := "Book bigger venue"
	if _, err := svc.UpdateTask(ctx, "alice", "P1", "T1", TaskPatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, _ = svc.GetSyncState(ctx, "P1")
	if !st.Dirty {
		t.Error("plan not dirty after post-sync mutation")
	}

	// A second sync shifts the previous-sync window down.
	if _, err := svc.MarkSynced(ctx, "P1"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	st, _ = svc.GetSyncState(ctx, "P1")
	if st.PreviousSyncAt == nil || !st.PreviousSyncAt.Equal(now) {
		t.Errorf("previous sync = %v", st.PreviousSyncAt)
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	sub, err := svc.AddSubtask(ctx, "alice", domain.Subtask{PlanID: "P1", TaskID: "T1", Title: "Get quotes"})
	if err != nil {
		t.Fatalf("add subtask: %v", err)
	}
	if sub.ID == "" || sub.OrderHint == "" {
		t.Errorf("subtask defaults missing: %+v", sub)
	}

	sub.Checked = true
	got, err := svc.UpdateSubtask(ctx, "alice", sub)
	if err != nil {
		t.Fatalf("update subtask: %v", err)
	}
	if !got.Checked {
		t.Error("checked not persisted")
	}

	if err := svc.DeleteSubtask(ctx, "alice", "P1", "T1", sub.ID); err != nil {
		t.Fatalf("delete subtask: %v", err)
	}
	snap, _ := svc.GetPlan(ctx, "P1")
	if len(snap.Subtasks["T1"]) != 0 {
		t.Errorf("subtasks = %+v, want none", snap.Subtasks["T1"])
	}

	_, err = svc.UpdateSubtask(ctx, "alice", sub)
	if errors.CodeOf(err) != errors.ErrCodeSubtaskNotFound {
		t.Fatalf("err = %v, want TASK-003", err)
	}
}

func TestDeleteTaskReleasesLock(t *testing.T) {
	svc := newTestService(t)
	seedTask(t, svc, "T1", "Book venue")
	ctx := context.Background()

	if _, err := svc.AcquireLock(ctx, "P1", "T1", "alice", 0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.DeleteTask(ctx, "alice", "P1", "T1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := svc.GetLock("P1", "T1"); ok {
		t.Error("lock survived task deletion")
	}
	if _, err := svc.GetTask(ctx, "P1", "T1"); !errors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRestoreLocks(t *testing.T) {
	store := repo.NewMemory()
	ctx := context.Background()
	err := store.Update(ctx, func(tx repo.Store) error {
		if err := tx.PutPlan(ctx, domain.Plan{ID: "P1", Name: "p", CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.PutTask(ctx, domain.Task{PlanID: "P1", ID: "T1", Title: "t", Status: domain.StatusNotStarted, CreatedAt: now, ModifiedAt: now}); err != nil {
			return err
		}
		return tx.PutLock(ctx, domain.TaskLock{PlanID: "P1", TaskID: "T1", HolderID: "bob", AcquiredAt: now, TTL: time.Hour})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	locks := lockmgr.New(lockmgr.WithClock(func() time.Time { return now }))
	svc := New(store, locks, nil).WithClock(func() time.Time { return now })
	if err := svc.RestoreLocks(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	l, ok := svc.GetLock("P1", "T1")
	if !ok || l.HolderID != "bob" {
		t.Errorf("lock = %+v (%v)", l, ok)
	}
}
