package history

import (
	"math"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
)

func sample(bucket string, planned, actual float64, terminal domain.Status, blocks int, assignees ...string) domain.HistoricalSample {
	return domain.HistoricalSample{
		Bucket:      bucket,
		PlannedDays: planned,
		ActualDays:  actual,
		Terminal:    terminal,
		BlockCount:  blocks,
		Assignees:   assignees,
	}
}

func TestAnalyzePERTTriple(t *testing.T) {
	samples := []domain.HistoricalSample{
		sample("Logistics", 2, 1, domain.StatusCompleted, 0),
		sample("Logistics", 2, 2, domain.StatusCompleted, 0),
		sample("Logistics", 2, 3, domain.StatusCompleted, 0),
		sample("Logistics", 2, 4, domain.StatusCompleted, 0),
		sample("Logistics", 2, 5, domain.StatusCompleted, 0),
	}
	a := Analyze(samples, nil, Options{})

	p, fitted := a.Calibration.For("Logistics", "")
	if !fitted {
		t.Fatal("expected fitted triple for Logistics")
	}
	// Actuals 1..5: P10 = 1.4, median = 3, P90 = 4.6.
	if math.Abs(p.Optimistic-1.4) > 1e-9 || p.MostLikely != 3 || math.Abs(p.Pessimistic-4.6) > 1e-9 {
		t.Errorf("triple = %+v, want (1.4, 3, 4.6)", p)
	}
	if p.Optimistic > p.MostLikely || p.MostLikely > p.Pessimistic {
		t.Errorf("triple not ordered: %+v", p)
	}
}

func TestAnalyzePriorFallback(t *testing.T) {
	samples := []domain.HistoricalSample{
		sample("Sparse", 2, 3, domain.StatusCompleted, 0),
		sample("Sparse", 2, 4, domain.StatusCompleted, 0),
	}
	a := Analyze(samples, nil, Options{})

	p, fitted := a.Calibration.For("Sparse", "")
	if fitted {
		t.Fatal("two samples must fall back to the prior")
	}
	if p != DefaultPrior() {
		t.Errorf("prior = %+v, want %+v", p, DefaultPrior())
	}
	if _, fitted := a.Calibration.For("Unknown", ""); fitted {
		t.Error("unknown bucket must fall back to the prior")
	}
}

func TestAnalyzeTaskTypeSpecificity(t *testing.T) {
	var samples []domain.HistoricalSample
	for i := 0; i < 3; i++ {
		s := sample("Program", 2, 2, domain.StatusCompleted, 0)
		s.TaskType = "review"
		samples = append(samples, s)
	}
	for i := 0; i < 3; i++ {
		samples = append(samples, sample("Program", 2, 8, domain.StatusCompleted, 0))
	}
	a := Analyze(samples, nil, Options{})

	typed, fitted := a.Calibration.For("Program", "review")
	if !fitted || typed.MostLikely != 2 {
		t.Errorf("typed triple = %+v fitted = %v, want most likely 2", typed, fitted)
	}
	generic, fitted := a.Calibration.For("Program", "setup")
	if !fitted {
		t.Fatal("expected bucket-level fallback to be fitted")
	}
	if generic.MostLikely <= 2 {
		t.Errorf("bucket triple most likely = %v, want above the typed value", generic.MostLikely)
	}
}

func TestAnalyzeBiasAndBlockRate(t *testing.T) {
	samples := []domain.HistoricalSample{
		sample("Logistics", 2, 3, domain.StatusCompleted, 1),
		sample("Logistics", 2, 3, domain.StatusCompleted, 0),
		sample("Logistics", 2, 3, domain.StatusCompleted, 0),
		sample("Logistics", 2, 3, domain.StatusCancelled, 2),
	}
	a := Analyze(samples, nil, Options{})

	if got := a.Calibration.BiasFor("Logistics"); got != 1.5 {
		t.Errorf("bias = %v, want 1.5", got)
	}
	if got := a.Calibration.BiasFor("Unknown"); got != 1 {
		t.Errorf("bias for unknown bucket = %v, want 1", got)
	}
	if got := a.BlockRates["Logistics"]; got != 0.5 {
		t.Errorf("block rate = %v, want 0.5", got)
	}
}

func TestAnalyzeAssignees(t *testing.T) {
	samples := []domain.HistoricalSample{
		sample("B", 2, 4, domain.StatusCompleted, 0, "u1"),
		sample("B", 2, 2, domain.StatusCompleted, 0, "u1"),
		sample("B", 2, 5, domain.StatusCancelled, 0, "u1"),
		sample("B", 2, 1, domain.StatusCompleted, 0, "u2"),
	}
	a := Analyze(samples, nil, Options{})

	u1 := a.Assignees["u1"]
	if u1.Total != 3 || u1.Completed != 2 {
		t.Errorf("u1 counts = %d/%d, want 2/3", u1.Completed, u1.Total)
	}
	if math.Abs(u1.CompletionRate-2.0/3.0) > 1e-9 {
		t.Errorf("u1 completion rate = %v", u1.CompletionRate)
	}
	if u1.MeanDurationDays != 3 {
		t.Errorf("u1 mean duration = %v, want 3", u1.MeanDurationDays)
	}
	if u1.OverrunCount != 2 {
		t.Errorf("u1 overruns = %d, want 2", u1.OverrunCount)
	}
	if u2 := a.Assignees["u2"]; u2.CompletionRate != 1 {
		t.Errorf("u2 completion rate = %v, want 1", u2.CompletionRate)
	}
}

func TestAnalyzeThroughputFromTraces(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d) }
	traces := []PlanTrace{{
		PlanID: "h1",
		Tasks: []TraceTask{
			{Title: "A", Assignees: []string{"u1"}, StartAt: day(0), CompletedAt: day(2)},
			{Title: "B", Assignees: []string{"u1"}, StartAt: day(3), CompletedAt: day(9)},
			{Title: "C", Assignees: []string{"u1"}, StartAt: day(10), CompletedAt: day(16)},
		},
	}}
	a := Analyze(nil, traces, Options{})

	// 3 tasks over a 14-day completion span = 1.5 tasks/week.
	if got := a.Assignees["u1"].TasksPerWeek; math.Abs(got-1.5) > 1e-9 {
		t.Errorf("tasks/week = %v, want 1.5", got)
	}
}

func TestMineImplicitDeps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d) }
	trace := func(gap int) PlanTrace {
		return PlanTrace{Tasks: []TraceTask{
			{Title: "Book Venue", StartAt: day(0), CompletedAt: day(2)},
			{Title: "Send Invites", StartAt: day(2 + gap), CompletedAt: day(5 + gap)},
		}}
	}
	a := Analyze(nil, []PlanTrace{trace(0), trace(1), trace(2)}, Options{})

	if len(a.ImplicitDeps) != 1 {
		t.Fatalf("implicit deps = %v, want exactly one", a.ImplicitDeps)
	}
	d := a.ImplicitDeps[0]
	if d.Before != "book venue" || d.After != "send invites" {
		t.Errorf("pair = %s -> %s", d.Before, d.After)
	}
	if d.Confidence != 1 || d.Support != 3 {
		t.Errorf("confidence = %v support = %d, want 1.0 and 3", d.Confidence, d.Support)
	}
}

func TestMineImplicitDepsBelowThreshold(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d) }
	forward := PlanTrace{Tasks: []TraceTask{
		{Title: "A", StartAt: day(0), CompletedAt: day(1)},
		{Title: "B", StartAt: day(2), CompletedAt: day(3)},
	}}
	backward := PlanTrace{Tasks: []TraceTask{
		{Title: "B", StartAt: day(0), CompletedAt: day(1)},
		{Title: "A", StartAt: day(2), CompletedAt: day(3)},
	}}
	a := Analyze(nil, []PlanTrace{forward, backward}, Options{})

	if len(a.ImplicitDeps) != 0 {
		t.Errorf("implicit deps = %v, want none at 0.5 confidence", a.ImplicitDeps)
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{0.5, 2.5},
		{1, 4},
		{0.25, 1.75},
	}
	for _, tt := range tests {
		if got := percentile(vals, tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(empty) = %v, want 0", got)
	}
}
