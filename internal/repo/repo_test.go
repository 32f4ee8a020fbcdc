package repo

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

var origin = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func backends(t *testing.T) map[string]DB {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "twin.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	mem := NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	return map[string]DB{"memory": mem, "sqlite": sq}
}

func seedPlan(t *testing.T, db DB, planID string) {
	t.Helper()
	err := db.PutPlan(context.Background(), domain.Plan{
		ID: planID, Name: "Congress 2025", EventDate: tp(origin.AddDate(0, 0, 60)), CreatedAt: origin,
	})
	if err != nil {
		t.Fatalf("put plan: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")

			if err := db.PutBucket(ctx, domain.Bucket{PlanID: "P1", ID: "B1", Name: "Logistics", OrderHint: "m"}); err != nil {
				t.Fatalf("put bucket: %v", err)
			}
			task := domain.Task{
				PlanID: "P1", ID: "T1", Title: "Book venue", BucketID: "B1",
				Status: domain.StatusInProgress, PercentComplete: 40,
				StartAt: tp(origin), DueAt: tp(origin.AddDate(0, 0, 5)),
				Priority: 3, Assignees: []string{"alice", "bob"},
				Categories: []string{"venue"}, Description: "Main hall",
				OrderHint: "m", CreatedAt: origin, ModifiedAt: origin.Add(time.Hour),
				CreatedBy: "alice",
			}
			if err := db.PutTask(ctx, task); err != nil {
				t.Fatalf("put task: %v", err)
			}
			if err := db.PutTask(ctx, domain.Task{PlanID: "P1", ID: "T2", Title: "Invite speakers",
				Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin}); err != nil {
				t.Fatalf("put task 2: %v", err)
			}
			if err := db.PutSubtask(ctx, domain.Subtask{PlanID: "P1", TaskID: "T1", ID: "S1",
				Title: "Sign contract", ModifiedAt: origin}); err != nil {
				t.Fatalf("put subtask: %v", err)
			}
			if err := db.PutDependency(ctx, domain.Dependency{PlanID: "P1",
				PredecessorID: "T1", SuccessorID: "T2", Type: domain.FinishStart}); err != nil {
				t.Fatalf("put dependency: %v", err)
			}

			snap, err := db.GetSnapshot(ctx, "P1")
			if err != nil {
				t.Fatalf("get snapshot: %v", err)
			}
			if snap.Plan.Name != "Congress 2025" || snap.Plan.EventDate == nil {
				t.Fatalf("plan fields lost: %+v", snap.Plan)
			}
			if len(snap.Buckets) != 1 || snap.Buckets[0].Name != "Logistics" {
				t.Fatalf("buckets = %+v", snap.Buckets)
			}
			if len(snap.Tasks) != 2 {
				t.Fatalf("want 2 tasks, got %d", len(snap.Tasks))
			}
			got := snap.Tasks[0]
			if got.ID != "T1" || !reflect.DeepEqual(got.Assignees, task.Assignees) ||
				got.DueAt == nil || !got.DueAt.Equal(*task.DueAt) ||
				got.PercentComplete != 40 || got.Priority != 3 {
				t.Fatalf("task round trip lost fields: %+v", got)
			}
			if len(snap.Subtasks["T1"]) != 1 || snap.Subtasks["T1"][0].Title != "Sign contract" {
				t.Fatalf("subtasks = %+v", snap.Subtasks)
			}
			if len(snap.Dependencies) != 1 || snap.Dependencies[0].Type != domain.FinishStart {
				t.Fatalf("dependencies = %+v", snap.Dependencies)
			}
		})
	}
}

func TestUnknownPlan(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := db.GetSnapshot(ctx, "nope"); !errors.IsNotFound(err) {
				t.Fatalf("snapshot of unknown plan: %v", err)
			}
			err := db.PutTask(ctx, domain.Task{PlanID: "nope", ID: "T1", Title: "x",
				Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin})
			if errors.CodeOf(err) != errors.ErrCodePlanNotFound {
				t.Fatalf("put task into unknown plan: %v", err)
			}
		})
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")
			for _, id := range []string{"T1", "T2"} {
				if err := db.PutTask(ctx, domain.Task{PlanID: "P1", ID: id, Title: id,
					Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin}); err != nil {
					t.Fatalf("put %s: %v", id, err)
				}
			}
			if err := db.PutSubtask(ctx, domain.Subtask{PlanID: "P1", TaskID: "T1", ID: "S1",
				Title: "s", ModifiedAt: origin}); err != nil {
				t.Fatalf("put subtask: %v", err)
			}
			if err := db.PutDependency(ctx, domain.Dependency{PlanID: "P1",
				PredecessorID: "T1", SuccessorID: "T2"}); err != nil {
				t.Fatalf("put dep: %v", err)
			}
			if err := db.PutLock(ctx, domain.TaskLock{PlanID: "P1", TaskID: "T1",
				HolderID: "alice", AcquiredAt: origin, TTL: time.Hour}); err != nil {
				t.Fatalf("put lock: %v", err)
			}

			if err := db.DeleteTask(ctx, "P1", "T1"); err != nil {
				t.Fatalf("delete task: %v", err)
			}
			snap, err := db.GetSnapshot(ctx, "P1")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if len(snap.Tasks) != 1 || len(snap.Dependencies) != 0 || len(snap.Subtasks["T1"]) != 0 {
				t.Fatalf("cascade incomplete: %+v", snap)
			}
			locks, err := db.ListLocks(ctx)
			if err != nil {
				t.Fatalf("list locks: %v", err)
			}
			if len(locks) != 0 {
				t.Fatalf("lock should be gone, got %+v", locks)
			}
			if err := db.DeleteTask(ctx, "P1", "T1"); !errors.IsNotFound(err) {
				t.Fatalf("double delete: %v", err)
			}
		})
	}
}

func TestDeletePlanCascades(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")
			if err := db.PutTask(ctx, domain.Task{PlanID: "P1", ID: "T1", Title: "x",
				Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin}); err != nil {
				t.Fatalf("put task: %v", err)
			}
			if _, err := db.PutEvent(ctx, domain.ExternalEvent{PlanID: "P1", Type: "flight_cancellation",
				Title: "KL1234 cancelled", Severity: domain.SeverityHigh, CreatedAt: origin}); err != nil {
				t.Fatalf("put event: %v", err)
			}

			if err := db.DeletePlan(ctx, "P1"); err != nil {
				t.Fatalf("delete plan: %v", err)
			}
			if _, err := db.GetSnapshot(ctx, "P1"); !errors.IsNotFound(err) {
				t.Fatalf("plan should be gone: %v", err)
			}
			events, err := db.ListEvents(ctx, "P1")
			if err != nil {
				t.Fatalf("list events: %v", err)
			}
			if len(events) != 0 {
				t.Fatalf("events should cascade, got %+v", events)
			}
		})
	}
}

func TestEventAndActionIDs(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")

			e1, err := db.PutEvent(ctx, domain.ExternalEvent{PlanID: "P1", Type: "flight_cancellation",
				Title: "KL1234 cancelled", Severity: domain.SeverityHigh,
				AffectedTaskIDs: []string{"T1"}, Payload: map[string]any{"flight": "KL1234"},
				CreatedAt: origin})
			if err != nil {
				t.Fatalf("put event: %v", err)
			}
			if e1.ID == 0 {
				t.Fatal("event id should be assigned")
			}
			e2, err := db.PutEvent(ctx, domain.ExternalEvent{PlanID: "P1", Type: "participant_meeting_cancelled",
				Title: "Meeting off", Severity: domain.SeverityMedium, CreatedAt: origin})
			if err != nil {
				t.Fatalf("put event 2: %v", err)
			}
			if e2.ID == e1.ID {
				t.Fatalf("event ids must be unique: %d", e2.ID)
			}

			// Updating in place keeps the id.
			e1.AcknowledgedAt = tp(origin.Add(time.Hour))
			if _, err := db.PutEvent(ctx, e1); err != nil {
				t.Fatalf("ack event: %v", err)
			}
			got, err := db.GetEvent(ctx, "P1", e1.ID)
			if err != nil {
				t.Fatalf("get event: %v", err)
			}
			if got.AcknowledgedAt == nil || got.Payload["flight"] != "KL1234" {
				t.Fatalf("event update lost fields: %+v", got)
			}

			a1, err := db.PutAction(ctx, domain.ProposedAction{PlanID: "P1", EventID: e1.ID,
				TaskID: "T1", Type: "shift_due_date", Title: "Shift due",
				Payload: map[string]any{"shift_days": float64(2)}, Status: domain.ActionPending,
				CreatedAt: origin})
			if err != nil {
				t.Fatalf("put action: %v", err)
			}
			if _, err := db.PutAction(ctx, domain.ProposedAction{PlanID: "P1", EventID: e2.ID,
				TaskID: "T1", Type: "reassign_or_reschedule", Title: "Reassign",
				Status: domain.ActionPending, CreatedAt: origin}); err != nil {
				t.Fatalf("put action 2: %v", err)
			}

			forEvent, err := db.ListActions(ctx, "P1", e1.ID)
			if err != nil {
				t.Fatalf("list actions: %v", err)
			}
			if len(forEvent) != 1 || forEvent[0].ID != a1.ID {
				t.Fatalf("actions for event = %+v", forEvent)
			}
			all, err := db.ListActions(ctx, "P1", 0)
			if err != nil {
				t.Fatalf("list all actions: %v", err)
			}
			if len(all) != 2 {
				t.Fatalf("want 2 actions, got %d", len(all))
			}

			if err := db.DeleteAction(ctx, "P1", a1.ID); err != nil {
				t.Fatalf("delete action: %v", err)
			}
			if _, err := db.GetAction(ctx, "P1", a1.ID); !errors.IsNotFound(err) {
				t.Fatalf("deleted action should be gone: %v", err)
			}
		})
	}
}

func TestSamples(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := []domain.HistoricalSample{
				{Bucket: "Logistics", TaskType: "venue", PlannedDays: 3, ActualDays: 4,
					Assignees: []string{"alice"}, Terminal: domain.StatusCompleted},
				{Bucket: "Program", PlannedDays: 2, ActualDays: 2,
					Terminal: domain.StatusCompleted, BlockCount: 1},
			}
			if err := db.AddSamples(ctx, in); err != nil {
				t.Fatalf("add samples: %v", err)
			}
			out, err := db.ListSamples(ctx)
			if err != nil {
				t.Fatalf("list samples: %v", err)
			}
			if len(out) != 2 || out[0].Bucket != "Logistics" || out[0].ActualDays != 4 ||
				out[1].BlockCount != 1 {
				t.Fatalf("samples = %+v", out)
			}
		})
	}
}

func TestSyncState(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")

			st, err := db.GetSyncState(ctx, "P1")
			if err != nil {
				t.Fatalf("get default sync state: %v", err)
			}
			if st.Dirty || st.Fingerprint != "" || st.LastSyncAt != nil {
				t.Fatalf("default sync state = %+v", st)
			}

			want := domain.SyncState{PlanID: "P1", LastSyncAt: tp(origin.Add(time.Hour)),
				PreviousSyncAt: tp(origin), Fingerprint: "abc123", Dirty: true}
			if err := db.PutSyncState(ctx, want); err != nil {
				t.Fatalf("put sync state: %v", err)
			}
			got, err := db.GetSyncState(ctx, "P1")
			if err != nil {
				t.Fatalf("get sync state: %v", err)
			}
			if !got.Dirty || got.Fingerprint != "abc123" ||
				got.LastSyncAt == nil || !got.LastSyncAt.Equal(*want.LastSyncAt) ||
				got.PreviousSyncAt == nil || !got.PreviousSyncAt.Equal(origin) {
				t.Fatalf("sync state round trip = %+v", got)
			}
		})
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")

			boom := errors.New(errors.KindValidation, errors.ErrCodeTaskInvalid, "boom")
			err := db.Update(ctx, func(tx Store) error {
				if err := tx.PutTask(ctx, domain.Task{PlanID: "P1", ID: "T1", Title: "x",
					Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin}); err != nil {
					return err
				}
				return boom
			})
			if errors.CodeOf(err) != errors.ErrCodeTaskInvalid {
				t.Fatalf("fn error should surface unchanged: %v", err)
			}

			snap, err := db.GetSnapshot(ctx, "P1")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if len(snap.Tasks) != 0 {
				t.Fatalf("failed transaction leaked writes: %+v", snap.Tasks)
			}
		})
	}
}

func TestUpdateCommitsAtomically(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedPlan(t, db, "P1")

			err := db.Update(ctx, func(tx Store) error {
				for _, id := range []string{"T1", "T2", "T3"} {
					if err := tx.PutTask(ctx, domain.Task{PlanID: "P1", ID: id, Title: id,
						Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin}); err != nil {
						return err
					}
				}
				return tx.PutDependency(ctx, domain.Dependency{PlanID: "P1",
					PredecessorID: "T1", SuccessorID: "T2"})
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			snap, err := db.GetSnapshot(ctx, "P1")
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if len(snap.Tasks) != 3 || len(snap.Dependencies) != 1 {
				t.Fatalf("commit incomplete: %d tasks, %d deps", len(snap.Tasks), len(snap.Dependencies))
			}
		})
	}
}

func TestMemorySnapshotIsolatedFromWrites(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()
	seedPlan(t, db, "P1")
	if err := db.PutTask(ctx, domain.Task{PlanID: "P1", ID: "T1", Title: "before",
		Status: domain.StatusNotStarted, CreatedAt: origin, ModifiedAt: origin,
		Assignees: []string{"alice"}}); err != nil {
		t.Fatalf("put task: %v", err)
	}

	snap, err := db.GetSnapshot(ctx, "P1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Tasks[0].Title = "mutated"
	snap.Tasks[0].Assignees[0] = "mallory"

	again, err := db.GetSnapshot(ctx, "P1")
	if err != nil {
		t.Fatalf("snapshot again: %v", err)
	}
	if again.Tasks[0].Title != "before" || again.Tasks[0].Assignees[0] != "alice" {
		t.Fatalf("snapshot aliasing leaked a mutation: %+v", again.Tasks[0])
	}
}
