package cost

import (
	"math"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/graph"
)

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func within(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestScheduleCostTardyAndEarly(t *testing.T) {
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "P1"},
		Tasks: []domain.Task{
			// Completed 2 days late: tardiness 1*2^2 = 4.
			{ID: "T1", Status: domain.StatusCompleted, PercentComplete: 100, Priority: 5,
				StartAt: tp(now.AddDate(0, 0, -10)), DueAt: tp(now.AddDate(0, 0, -4)),
				CompletedAt: tp(now.AddDate(0, 0, -2))},
			// Completed 4 days early: earliness bonus -0.5*4 = -2.
			{ID: "T2", Status: domain.StatusCompleted, PercentComplete: 100, Priority: 5,
				StartAt: tp(now.AddDate(0, 0, -10)), DueAt: tp(now.AddDate(0, 0, -2)),
				CompletedAt: tp(now.AddDate(0, 0, -6))},
		},
	}
	b := Compute(snap, nil, DefaultWeights(), now)
	if !within(b.Schedule, 2.0, 1e-9) {
		t.Fatalf("schedule = %v, want 4 - 2 = 2", b.Schedule)
	}
	if !within(b.Total, 2.0, 1e-9) {
		t.Fatalf("total = %v, want w1*2", b.Total)
	}
}

func TestScheduleCostCriticalMultiplier(t *testing.T) {
	mk := func(deps []domain.Dependency) float64 {
		snap := &domain.Snapshot{
			Plan: domain.Plan{ID: "P1"},
			Tasks: []domain.Task{
				// 1 day late on every variant.
				{ID: "T1", Status: domain.StatusCompleted, PercentComplete: 100, Priority: 5,
					StartAt: tp(now.AddDate(0, 0, -5)), DueAt: tp(now.AddDate(0, 0, -2)),
					CompletedAt: tp(now.AddDate(0, 0, -1))},
				{ID: "T2", Status: domain.StatusNotStarted, Priority: 5},
				{ID: "T3", Status: domain.StatusNotStarted, Priority: 5},
			},
			Dependencies: deps,
		}
		g, err := graph.Build(snap.Tasks, snap.Dependencies)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return Compute(snap, g, DefaultWeights(), now).Schedule
	}

	plain := mk(nil)
	critical := mk([]domain.Dependency{
		{PredecessorID: "T1", SuccessorID: "T2"},
		{PredecessorID: "T1", SuccessorID: "T3"},
	})
	if !within(critical-plain, 3.0, 1e-9) {
		t.Fatalf("critical multiplier delta = %v, want gamma*1 = 3", critical-plain)
	}
}

func TestResourceCost(t *testing.T) {
	tasks := make([]domain.Task, 0, 7)
	for i := 0; i < 7; i++ {
		tasks = append(tasks, domain.Task{
			ID: string(rune('A' + i)), Status: domain.StatusNotStarted,
			Assignees: []string{"alice"},
		})
	}
	tasks = append(tasks, domain.Task{ID: "Z", Status: domain.StatusNotStarted, Assignees: []string{"bob"}})

	snap := &domain.Snapshot{Plan: domain.Plan{ID: "P1"}, Tasks: tasks}
	b := Compute(snap, nil, DefaultWeights(), now)

	// alice: 7 tasks -> over-allocation (7-5)^2 = 4, switches 0.2*6 = 1.2.
	// bob: 1 task -> nothing.
	if !within(b.Resource, 5.2, 1e-9) {
		t.Fatalf("resource = %v, want 5.2", b.Resource)
	}
}

func TestRiskCostNotStarted(t *testing.T) {
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "P1"},
		Tasks: []domain.Task{
			{ID: "T1", Status: domain.StatusNotStarted, Priority: 1,
				StartAt: tp(now.AddDate(0, 0, 1)), DueAt: tp(now.AddDate(0, 0, 6))},
		},
	}
	b := Compute(snap, nil, DefaultWeights(), now)
	// p=0.3 base, impact (11-1)/10 = 1.0, eta 2 -> 0.6.
	if !within(b.Risk, 0.6, 1e-9) {
		t.Fatalf("risk = %v, want 0.6", b.Risk)
	}
}

func TestRiskCostBehindSchedule(t *testing.T) {
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "P1"},
		Tasks: []domain.Task{
			// 10-day window, 8 elapsed, 30% done: expected elapsed 3,
			// overrun 5 of 10 -> p = 0.5; impact (11-5)/10 = 0.6.
			{ID: "T1", Status: domain.StatusInProgress, PercentComplete: 30, Priority: 5,
				StartAt: tp(now.AddDate(0, 0, -8)), DueAt: tp(now.AddDate(0, 0, 2))},
		},
	}
	b := Compute(snap, nil, DefaultWeights(), now)
	if !within(b.Risk, 2*0.5*0.6, 1e-9) {
		t.Fatalf("risk = %v, want 0.6", b.Risk)
	}
}

func TestWeightsApplied(t *testing.T) {
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "P1"},
		Tasks: []domain.Task{
			{ID: "T1", Status: domain.StatusCompleted, PercentComplete: 100, Priority: 5,
				StartAt: tp(now.AddDate(0, 0, -5)), DueAt: tp(now.AddDate(0, 0, -3)),
				CompletedAt: tp(now.AddDate(0, 0, -1))},
		},
	}
	w := Weights{Schedule: 2.0}
	b := Compute(snap, nil, w, now)
	if !within(b.Total, 2*b.Schedule, 1e-9) {
		t.Fatalf("total = %v, want 2*schedule = %v", b.Total, 2*b.Schedule)
	}
}

func TestEmptyAndPlaceholders(t *testing.T) {
	b := Compute(&domain.Snapshot{Plan: domain.Plan{ID: "P1"}}, nil, DefaultWeights(), now)
	if b.Schedule != 0 || b.Resource != 0 || b.Risk != 0 || b.Total != 0 {
		t.Fatalf("empty plan should cost nothing, got %+v", b)
	}
	if b.Quality != 0 || b.Disruption != 0 {
		t.Fatalf("quality and disruption are placeholders, got %+v", b)
	}
}
