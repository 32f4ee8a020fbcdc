// Package impact previews "what if we change this task" questions:
// downstream closure, deterministic plan-end shift from re-running the
// critical path in memory, and an optional seeded low-iteration Monte
// Carlo delta. Nothing here persists anything.
package impact

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/congresstwin/congresstwin/internal/cpath"
	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/history"
	"github.com/congresstwin/congresstwin/internal/montecarlo"
)

// Change is the proposed partial edit. Nil fields are untouched.
type Change struct {
	StartAt         *time.Time
	DueAt           *time.Time
	Assignees       []string
	PercentComplete *int
	// SlippageDays shifts the task's duration directly and takes
	// precedence over a due-date delta.
	SlippageDays *float64
}

// SimulationOptions enables the probabilistic delta.
type SimulationOptions struct {
	Iterations  int // default 1000
	Seed        uint64
	Calibration history.Calibration
	TaskPERT    map[string]history.PERT
	EventDate   *time.Time
	Origin      time.Time
}

// SimulationDelta compares seeded runs before and after the change.
type SimulationDelta struct {
	DeltaP50Days              float64 `json:"deltaP50Days"`
	DeltaP95Days              float64 `json:"deltaP95Days"`
	DeltaProbabilityOnTimePct float64 `json:"deltaProbabilityOnTimePercent"`
}

// Input is one preview request.
type Input struct {
	Snapshot *domain.Snapshot
	Graph    *graph.Graph
	TaskID   string
	Change   Change
	// Durations are the point estimates driving the deterministic
	// critical-path comparison.
	Durations map[string]float64
	Epsilon   float64
	// Simulate turns on the Monte Carlo delta when non-nil.
	Simulate *SimulationOptions
}

// Result is the preview outcome.
type Result struct {
	TaskID string `json:"taskId"`
	// Downstream is the transitive successor closure, excluding the
	// task itself, ascending by id.
	Downstream []string `json:"downstream"`
	// AffectedTaskIDs are tasks whose earliest finish moves by more
	// than epsilon, including the edited task, ascending by id.
	AffectedTaskIDs    []string         `json:"affectedTaskIds"`
	DeltaPlanEndDays   float64          `json:"deltaPlanEndDays"`
	CriticalPathImpact bool             `json:"criticalPathImpact"`
	Statement          string           `json:"impactStatement"`
	Simulation         *SimulationDelta `json:"simulation,omitempty"`
}

// Analyze runs the preview. Identical inputs give identical results;
// the seeded simulation keeps that true for the probabilistic part.
func Analyze(ctx context.Context, in Input) (*Result, error) {
	task, ok := in.Snapshot.TaskByID(in.TaskID)
	if !ok {
		return nil, errors.NewTaskNotFound(in.Snapshot.Plan.ID, in.TaskID)
	}
	eps := in.Epsilon
	if eps <= 0 {
		eps = 1e-9
	}

	delta := durationDelta(task, in.Change)

	before := cpath.Compute(in.Graph, in.Durations, cpath.Options{Epsilon: eps})
	changed := make(map[string]float64, len(in.Durations)+1)
	for k, v := range in.Durations {
		changed[k] = v
	}
	base, ok := changed[in.TaskID]
	if !ok {
		base = cpath.DefaultDuration
	}
	changed[in.TaskID] = math.Max(0, base+delta)
	after := cpath.Compute(in.Graph, changed, cpath.Options{Epsilon: eps})

	res := &Result{
		TaskID:           in.TaskID,
		Downstream:       in.Graph.Downstream(in.TaskID),
		DeltaPlanEndDays: after.End - before.End,
	}
	for _, id := range in.Graph.IDs() {
		if math.Abs(after.Timings[id].EarliestFinish-before.Timings[id].EarliestFinish) > eps {
			res.AffectedTaskIDs = append(res.AffectedTaskIDs, id)
		}
	}
	sort.Strings(res.AffectedTaskIDs)

	res.CriticalPathImpact = before.Timings[in.TaskID].OnPath
	for _, id := range res.Downstream {
		if before.Timings[id].OnPath {
			res.CriticalPathImpact = true
			break
		}
	}

	res.Statement = Statement(in.Snapshot, delta, res.Downstream)

	if in.Simulate != nil {
		sim, err := simulateDelta(ctx, in, task)
		if err != nil {
			return nil, err
		}
		res.Simulation = sim
	}
	return res, nil
}

// durationDelta converts the proposed edit into a duration shift in
// days for the critical-path arithmetic.
func durationDelta(task domain.Task, c Change) float64 {
	if c.SlippageDays != nil {
		return *c.SlippageDays
	}
	delta := 0.0
	if c.DueAt != nil && task.DueAt != nil {
		delta += c.DueAt.Sub(*task.DueAt).Hours() / 24
	}
	if c.StartAt != nil && task.StartAt != nil {
		delta -= c.StartAt.Sub(*task.StartAt).Hours() / 24
	}
	return delta
}

// Statement renders the dependency-lens impact line for a slip of
// delta days over the downstream task ids. A zero delta reads as a
// hypothetical three-day slip.
func Statement(snap *domain.Snapshot, delta float64, downstream []string) string {
	if len(downstream) == 0 {
		return "No downstream dependencies."
	}
	titles := make([]string, 0, 5)
	for _, id := range downstream {
		if t, ok := snap.TaskByID(id); ok {
			titles = append(titles, t.Title)
		}
		if len(titles) == 5 {
			break
		}
	}
	more := ""
	if len(downstream) > 5 {
		more = ", ..."
	}
	days := delta
	if days == 0 {
		days = 3 // hypothetical slip used when the edit moves no dates
	}
	return fmt.Sprintf("If this task slips %s days, %d downstream task(s) may move: %s%s.",
		formatDays(days), len(downstream), strings.Join(titles, ", "), more)
}

func formatDays(d float64) string {
	if d == math.Trunc(d) {
		return fmt.Sprintf("%d", int(d))
	}
	return fmt.Sprintf("%.1f", d)
}

// simulateDelta applies the change to a copy of the snapshot and
// compares two runs under the same seed.
func simulateDelta(ctx context.Context, in Input, task domain.Task) (*SimulationDelta, error) {
	opts := in.Simulate
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = 1000
	}
	seed := opts.Seed

	run := func(snap *domain.Snapshot, g *graph.Graph) (*montecarlo.Result, error) {
		return montecarlo.Run(ctx, montecarlo.Input{
			Snapshot:           snap,
			Graph:              g,
			Calibration:        opts.Calibration,
			TaskPERT:           opts.TaskPERT,
			Iterations:         iterations,
			Seed:               &seed,
			EventDate:          opts.EventDate,
			Origin:             opts.Origin,
			AllowPriorFallback: true,
		})
	}

	before, err := run(in.Snapshot, in.Graph)
	if err != nil {
		return nil, err
	}

	patched := patchSnapshot(in.Snapshot, task, in.Change)
	g, err := graph.Build(patched.Tasks, patched.Dependencies)
	if err != nil {
		return nil, err
	}
	after, err := run(patched, g)
	if err != nil {
		return nil, err
	}

	return &SimulationDelta{
		DeltaP50Days:              after.EndDays.P50 - before.EndDays.P50,
		DeltaP95Days:              after.EndDays.P95 - before.EndDays.P95,
		DeltaProbabilityOnTimePct: after.ProbabilityOnTimePercent - before.ProbabilityOnTimePercent,
	}, nil
}

// patchSnapshot returns a copy of snap with the change applied to one
// task. The input snapshot is never mutated.
func patchSnapshot(snap *domain.Snapshot, task domain.Task, c Change) *domain.Snapshot {
	out := &domain.Snapshot{
		Plan:         snap.Plan,
		Buckets:      snap.Buckets,
		Subtasks:     snap.Subtasks,
		Dependencies: snap.Dependencies,
		Tasks:        append([]domain.Task(nil), snap.Tasks...),
	}
	for i := range out.Tasks {
		if out.Tasks[i].ID != task.ID {
			continue
		}
		t := out.Tasks[i]
		if c.StartAt != nil {
			v := *c.StartAt
			t.StartAt = &v
		}
		if c.DueAt != nil {
			v := *c.DueAt
			t.DueAt = &v
		}
		if c.Assignees != nil {
			t.Assignees = append([]string(nil), c.Assignees...)
		}
		if c.PercentComplete != nil {
			t.PercentComplete = *c.PercentComplete
		}
		if c.SlippageDays != nil && t.DueAt != nil {
			v := t.DueAt.Add(time.Duration(*c.SlippageDays * 24 * float64(time.Hour)))
			t.DueAt = &v
		}
		out.Tasks[i] = t
	}
	return out
}
