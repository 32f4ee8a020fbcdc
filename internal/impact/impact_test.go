package impact

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/history"
)

var origin = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func chainFixture(t *testing.T) (*domain.Snapshot, *graph.Graph) {
	t.Helper()
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "p1", Name: "Congress"},
		Tasks: []domain.Task{
			{PlanID: "p1", ID: "T1", Title: "Book venue", Status: domain.StatusNotStarted},
			{PlanID: "p1", ID: "T2", Title: "Invite speakers", Status: domain.StatusNotStarted},
			{PlanID: "p1", ID: "T3", Title: "Publish agenda", Status: domain.StatusNotStarted},
		},
		Dependencies: []domain.Dependency{
			{PlanID: "p1", PredecessorID: "T1", SuccessorID: "T2", Type: domain.FinishStart},
			{PlanID: "p1", PredecessorID: "T2", SuccessorID: "T3", Type: domain.FinishStart},
		},
	}
	g, err := graph.Build(snap.Tasks, snap.Dependencies)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}
	return snap, g
}

func TestAnalyzeSlippageOnChain(t *testing.T) {
	snap, g := chainFixture(t)
	slip := 3.0
	res, err := Analyze(context.Background(), Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    "T2",
		Change:    Change{SlippageDays: &slip},
		Durations: map[string]float64{"T1": 2, "T2": 3, "T3": 4},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.DeltaPlanEndDays != 3 {
		t.Errorf("delta plan end = %v, want 3", res.DeltaPlanEndDays)
	}
	if !reflect.DeepEqual(res.AffectedTaskIDs, []string{"T2", "T3"}) {
		t.Errorf("affected = %v, want [T2 T3]", res.AffectedTaskIDs)
	}
	if !reflect.DeepEqual(res.Downstream, []string{"T3"}) {
		t.Errorf("downstream = %v, want [T3]", res.Downstream)
	}
	if !res.CriticalPathImpact {
		t.Error("expected critical path impact on a chain")
	}
	if !strings.Contains(res.Statement, "3 days") || !strings.Contains(res.Statement, "downstream") {
		t.Errorf("statement = %q", res.Statement)
	}
}

func TestAnalyzeDueDateShift(t *testing.T) {
	snap, g := chainFixture(t)
	due := origin.AddDate(0, 0, 5)
	snap.Tasks[1].StartAt = &origin
	snap.Tasks[1].DueAt = &due
	newDue := due.AddDate(0, 0, 3)
	res, err := Analyze(context.Background(), Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    "T2",
		Change:    Change{DueAt: &newDue},
		Durations: map[string]float64{"T1": 2, "T2": 5, "T3": 4},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.DeltaPlanEndDays != 3 {
		t.Errorf("delta plan end = %v, want 3", res.DeltaPlanEndDays)
	}
}

func TestAnalyzeOffPathChange(t *testing.T) {
	// T2 short branch of a diamond: slipping it within its slack moves
	// nothing but itself.
	snap := &domain.Snapshot{
		Plan: domain.Plan{ID: "p1"},
		Tasks: []domain.Task{
			{PlanID: "p1", ID: "T1", Title: "a", Status: domain.StatusNotStarted},
			{PlanID: "p1", ID: "T2", Title: "b", Status: domain.StatusNotStarted},
			{PlanID: "p1", ID: "T3", Title: "c", Status: domain.StatusNotStarted},
			{PlanID: "p1", ID: "T4", Title: "d", Status: domain.StatusNotStarted},
		},
		Dependencies: []domain.Dependency{
			{PlanID: "p1", PredecessorID: "T1", SuccessorID: "T2", Type: domain.FinishStart},
			{PlanID: "p1", PredecessorID: "T1", SuccessorID: "T3", Type: domain.FinishStart},
			{PlanID: "p1", PredecessorID: "T2", SuccessorID: "T4", Type: domain.FinishStart},
			{PlanID: "p1", PredecessorID: "T3", SuccessorID: "T4", Type: domain.FinishStart},
		},
	}
	g, err := graph.Build(snap.Tasks, snap.Dependencies)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}
	slip := 1.0
	res, err := Analyze(context.Background(), Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    "T2",
		Change:    Change{SlippageDays: &slip},
		Durations: map[string]float64{"T1": 1, "T2": 1, "T3": 5, "T4": 1},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.DeltaPlanEndDays != 0 {
		t.Errorf("delta plan end = %v, want 0 inside slack", res.DeltaPlanEndDays)
	}
	if !reflect.DeepEqual(res.AffectedTaskIDs, []string{"T2"}) {
		t.Errorf("affected = %v, want [T2]", res.AffectedTaskIDs)
	}
	// T4 is downstream and on the path, so the preview still flags CP
	// exposure even though this slip absorbs into slack.
	if !res.CriticalPathImpact {
		t.Error("expected critical path exposure via downstream T4")
	}
}

func TestAnalyzeUnknownTask(t *testing.T) {
	snap, g := chainFixture(t)
	_, err := Analyze(context.Background(), Input{Snapshot: snap, Graph: g, TaskID: "T9"})
	if !errors.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	snap, g := chainFixture(t)
	slip := 2.0
	in := Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    "T1",
		Change:    Change{SlippageDays: &slip},
		Durations: map[string]float64{"T1": 2, "T2": 3, "T3": 4},
	}
	a, err := Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	b, err := Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different results")
	}
}

func TestAnalyzeSimulatedDelta(t *testing.T) {
	snap, g := chainFixture(t)
	slip := 3.0
	pert := map[string]history.PERT{
		"T1": {Optimistic: 1, MostLikely: 2, Pessimistic: 3},
		"T2": {Optimistic: 1, MostLikely: 3, Pessimistic: 5},
		"T3": {Optimistic: 2, MostLikely: 4, Pessimistic: 6},
	}
	// Give T2 a window so the slippage reaches the simulated durations.
	due := origin.AddDate(0, 0, 3)
	snap.Tasks[1].StartAt = &origin
	snap.Tasks[1].DueAt = &due
	res, err := Analyze(context.Background(), Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    "T2",
		Change:    Change{SlippageDays: &slip},
		Durations: map[string]float64{"T1": 2, "T2": 3, "T3": 4},
		Simulate: &SimulationOptions{
			Iterations: 1000,
			Seed:       42,
			TaskPERT:   pert,
			Origin:     origin,
		},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Simulation == nil {
		t.Fatal("expected simulation delta")
	}
	// TaskPERT overrides pin the sampled durations, so the seeded
	// runs agree and the delta collapses to zero.
	if math.Abs(res.Simulation.DeltaP50Days) > 1e-9 {
		t.Errorf("delta p50 = %v, want 0 under identical overrides", res.Simulation.DeltaP50Days)
	}
}
