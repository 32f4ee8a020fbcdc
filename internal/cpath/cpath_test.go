package cpath

import (
	"reflect"
	"testing"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/graph"
)

func mustBuild(t *testing.T, ids []string, deps []domain.Dependency) *graph.Graph {
	t.Helper()
	tasks := make([]domain.Task, len(ids))
	for i, id := range ids {
		tasks[i] = domain.Task{PlanID: "p1", ID: id, Title: id, Status: domain.StatusNotStarted}
	}
	g, err := graph.Build(tasks, deps)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}
	return g
}

func dep(pred, succ string, typ domain.DependencyType) domain.Dependency {
	return domain.Dependency{PlanID: "p1", PredecessorID: pred, SuccessorID: succ, Type: typ}
}

func TestComputeLinearChain(t *testing.T) {
	// Most-likely durations 2, 3, 4: deterministic end at day 9.
	g := mustBuild(t, []string{"T1", "T2", "T3"}, []domain.Dependency{
		dep("T1", "T2", domain.FinishStart),
		dep("T2", "T3", domain.FinishStart),
	})
	res := Compute(g, map[string]float64{"T1": 2, "T2": 3, "T3": 4}, Options{})

	if res.End != 9 {
		t.Errorf("End = %v, want 9", res.End)
	}
	if !reflect.DeepEqual(res.Canonical, []string{"T1", "T2", "T3"}) {
		t.Errorf("Canonical = %v, want [T1 T2 T3]", res.Canonical)
	}
	for id, want := range map[string][2]float64{
		"T1": {0, 2}, "T2": {2, 5}, "T3": {5, 9},
	} {
		got := res.Timings[id]
		if got.EarliestStart != want[0] || got.EarliestFinish != want[1] {
			t.Errorf("%s = (%v, %v), want (%v, %v)", id, got.EarliestStart, got.EarliestFinish, want[0], want[1])
		}
		if !got.OnPath || got.Slack != 0 {
			t.Errorf("%s slack = %v onPath = %v, want on path with zero slack", id, got.Slack, got.OnPath)
		}
	}
}

func TestComputeParallelTie(t *testing.T) {
	// Diamond, all durations 2: every task is on the path, the
	// canonical ordering breaks the T2/T3 tie lexicographically.
	g := mustBuild(t, []string{"T1", "T2", "T3", "T4"}, []domain.Dependency{
		dep("T1", "T2", domain.FinishStart),
		dep("T1", "T3", domain.FinishStart),
		dep("T2", "T4", domain.FinishStart),
		dep("T3", "T4", domain.FinishStart),
	})
	d := map[string]float64{"T1": 2, "T2": 2, "T3": 2, "T4": 2}
	res := Compute(g, d, Options{})

	if res.End != 6 {
		t.Errorf("End = %v, want 6", res.End)
	}
	if !reflect.DeepEqual(res.Canonical, []string{"T1", "T2", "T4"}) {
		t.Errorf("Canonical = %v, want [T1 T2 T4]", res.Canonical)
	}
	for _, id := range []string{"T1", "T2", "T3", "T4"} {
		if !res.Timings[id].OnPath {
			t.Errorf("%s not on path", id)
		}
	}
}

func TestComputeSlack(t *testing.T) {
	// T2 is the short branch: slack 3, off the path.
	g := mustBuild(t, []string{"T1", "T2", "T3", "T4"}, []domain.Dependency{
		dep("T1", "T2", domain.FinishStart),
		dep("T1", "T3", domain.FinishStart),
		dep("T2", "T4", domain.FinishStart),
		dep("T3", "T4", domain.FinishStart),
	})
	res := Compute(g, map[string]float64{"T1": 1, "T2": 2, "T3": 5, "T4": 1}, Options{})

	if got := res.Timings["T2"]; got.Slack != 3 || got.OnPath {
		t.Errorf("T2 slack = %v onPath = %v, want slack 3 off path", got.Slack, got.OnPath)
	}
	if got := res.Timings["T3"]; got.Slack != 0 || !got.OnPath {
		t.Errorf("T3 slack = %v onPath = %v, want slack 0 on path", got.Slack, got.OnPath)
	}
	if !reflect.DeepEqual(res.Canonical, []string{"T1", "T3", "T4"}) {
		t.Errorf("Canonical = %v, want [T1 T3 T4]", res.Canonical)
	}
}

func TestComputeTypedConstraints(t *testing.T) {
	tests := []struct {
		name    string
		typ     domain.DependencyType
		wantES  float64 // earliest start of T2
		wantEnd float64
	}{
		// T1 has duration 4, T2 duration 2.
		{name: "finish to start", typ: domain.FinishStart, wantES: 4, wantEnd: 6},
		{name: "start to start", typ: domain.StartStart, wantES: 0, wantEnd: 4},
		{name: "finish to finish", typ: domain.FinishFinish, wantES: 2, wantEnd: 4},
		{name: "start to finish", typ: domain.StartFinish, wantES: 0, wantEnd: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, []string{"T1", "T2"}, []domain.Dependency{dep("T1", "T2", tt.typ)})
			res := Compute(g, map[string]float64{"T1": 4, "T2": 2}, Options{})
			if got := res.Timings["T2"].EarliestStart; got != tt.wantES {
				t.Errorf("ES(T2) = %v, want %v", got, tt.wantES)
			}
			if res.End != tt.wantEnd {
				t.Errorf("End = %v, want %v", res.End, tt.wantEnd)
			}
		})
	}
}

func TestComputeSingleTask(t *testing.T) {
	g := mustBuild(t, []string{"T1"}, nil)
	res := Compute(g, map[string]float64{"T1": 3}, Options{})
	if res.End != 3 {
		t.Errorf("End = %v, want 3", res.End)
	}
	if !reflect.DeepEqual(res.Canonical, []string{"T1"}) {
		t.Errorf("Canonical = %v, want [T1]", res.Canonical)
	}
}

func TestComputeEmptyPlan(t *testing.T) {
	g := mustBuild(t, nil, nil)
	res := Compute(g, nil, Options{})
	if res.End != 0 {
		t.Errorf("End = %v, want 0", res.End)
	}
	if len(res.Canonical) != 0 {
		t.Errorf("Canonical = %v, want empty", res.Canonical)
	}
}

func TestComputeDefaultDuration(t *testing.T) {
	g := mustBuild(t, []string{"T1", "T2"}, []domain.Dependency{dep("T1", "T2", domain.FinishStart)})
	res := Compute(g, nil, Options{})
	if res.End != 2 {
		t.Errorf("End = %v, want 2 with default durations", res.End)
	}
	res = Compute(g, nil, Options{DefaultDuration: 5})
	if res.End != 10 {
		t.Errorf("End = %v, want 10 with default 5", res.End)
	}
}
