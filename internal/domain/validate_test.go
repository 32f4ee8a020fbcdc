package domain

import (
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/errors"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func validTask() Task {
	return Task{
		PlanID: "p1",
		ID:     "t1",
		Title:  "Book venue",
		Status: StatusNotStarted,
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr bool
	}{
		{name: "valid minimal", mutate: func(*Task) {}},
		{
			name: "valid completed",
			mutate: func(tk *Task) {
				tk.Status = StatusCompleted
				tk.PercentComplete = 100
				tk.CompletedAt = date(2026, 3, 1)
			},
		},
		{
			name:    "missing id",
			mutate:  func(tk *Task) { tk.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing title",
			mutate:  func(tk *Task) { tk.Title = "" },
			wantErr: true,
		},
		{
			name:    "unknown status",
			mutate:  func(tk *Task) { tk.Status = Status("paused") },
			wantErr: true,
		},
		{
			name:    "percent above range",
			mutate:  func(tk *Task) { tk.Status = StatusInProgress; tk.PercentComplete = 101 },
			wantErr: true,
		},
		{
			name:    "not started with progress",
			mutate:  func(tk *Task) { tk.PercentComplete = 40 },
			wantErr: true,
		},
		{
			name: "completed without full progress",
			mutate: func(tk *Task) {
				tk.Status = StatusCompleted
				tk.PercentComplete = 90
				tk.CompletedAt = date(2026, 3, 1)
			},
			wantErr: true,
		},
		{
			name: "completed without timestamp",
			mutate: func(tk *Task) {
				tk.Status = StatusCompleted
				tk.PercentComplete = 100
			},
			wantErr: true,
		},
		{
			name:    "completion timestamp on open task",
			mutate:  func(tk *Task) { tk.CompletedAt = date(2026, 3, 1) },
			wantErr: true,
		},
		{
			name: "start after due",
			mutate: func(tk *Task) {
				tk.StartAt = date(2026, 3, 10)
				tk.DueAt = date(2026, 3, 5)
			},
			wantErr: true,
		},
		{
			name:    "priority out of range",
			mutate:  func(tk *Task) { tk.Priority = 11 },
			wantErr: true,
		},
		{
			name:    "duplicate assignee",
			mutate:  func(tk *Task) { tk.Assignees = []string{"u1", "u1"} },
			wantErr: true,
		},
		{
			name:    "empty assignee",
			mutate:  func(tk *Task) { tk.Assignees = []string{""} },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := validTask()
			tt.mutate(&tk)
			err := tk.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !errors.IsValidation(err) {
					t.Errorf("error kind = %v, want validation", errors.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDependencyValidate(t *testing.T) {
	tests := []struct {
		name    string
		dep     Dependency
		wantErr bool
	}{
		{
			name: "valid",
			dep:  Dependency{PlanID: "p1", PredecessorID: "t1", SuccessorID: "t2", Type: FinishStart},
		},
		{
			name:    "self edge",
			dep:     Dependency{PlanID: "p1", PredecessorID: "t1", SuccessorID: "t1", Type: FinishStart},
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			dep:     Dependency{PlanID: "p1", PredecessorID: "t1", Type: FinishStart},
			wantErr: true,
		},
		{
			name:    "unknown type",
			dep:     Dependency{PlanID: "p1", PredecessorID: "t1", SuccessorID: "t2", Type: DependencyType("XX")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExternalEventValidate(t *testing.T) {
	ev := ExternalEvent{PlanID: "p1", Type: "flight_cancellation", Severity: SeverityHigh}
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev.Severity = Severity("catastrophic")
	if err := ev.Validate(); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestTaskHelpers(t *testing.T) {
	tk := Task{
		StartAt:     date(2026, 3, 1),
		DueAt:       date(2026, 3, 8),
		CompletedAt: date(2026, 3, 10),
		Status:      StatusInProgress,
		Assignees:   []string{"u1", "u2"},
	}
	if d, ok := tk.PlannedDays(); !ok || d != 7 {
		t.Errorf("PlannedDays = (%v, %v), want (7, true)", d, ok)
	}
	if d, ok := tk.ActualDays(); !ok || d != 9 {
		t.Errorf("ActualDays = (%v, %v), want (9, true)", d, ok)
	}
	if !tk.HasAssignee("u2") || tk.HasAssignee("u3") {
		t.Error("HasAssignee mismatch")
	}
	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !tk.Overdue(now) {
		t.Error("expected task overdue")
	}
	tk.Status = StatusCompleted
	if tk.Overdue(now) {
		t.Error("completed task must not be overdue")
	}
}

func TestLockExpiry(t *testing.T) {
	l := TaskLock{
		AcquiredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TTL:        15 * time.Minute,
	}
	if l.Expired(l.AcquiredAt.Add(14 * time.Minute)) {
		t.Error("lock expired before TTL")
	}
	if !l.Expired(l.AcquiredAt.Add(16 * time.Minute)) {
		t.Error("lock not expired after TTL")
	}
}
