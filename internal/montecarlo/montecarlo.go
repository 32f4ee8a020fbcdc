// Package montecarlo samples full schedule walks over the plan DAG:
// Beta-PERT task durations calibrated from history, bucket bias,
// assignee queuing delay, and per-iteration critical-path extraction.
// A fixed seed reproduces results bit-exactly within one invocation.
package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/history"
)

const (
	// DefaultIterations is the sample count when the caller passes 0.
	DefaultIterations = 10000
	// DefaultQueuingK is the queuing penalty in days per concurrent
	// task beyond the first on a shared assignee.
	DefaultQueuingK = 0.25
	// cancelCheckEvery bounds how many iterations run between
	// context checks.
	cancelCheckEvery = 256
	// tieEps is the float tolerance for equally binding predecessors.
	tieEps = 1e-12
)

// Input carries everything one simulation run needs. The snapshot and
// graph are read-only; the run never touches the repository.
type Input struct {
	Snapshot    *domain.Snapshot
	Graph       *graph.Graph
	Calibration history.Calibration
	// TaskPERT overrides the calibration per task id, highest
	// precedence in triple resolution.
	TaskPERT   map[string]history.PERT
	Iterations int
	// Seed pins the RNG stream. Nil draws a fresh random seed.
	Seed      *uint64
	EventDate *time.Time
	// Origin is day zero of the schedule arithmetic. Zero means now.
	Origin   time.Time
	QueuingK float64
	// AllowPriorFallback lets buckets without a fitted triple and
	// without a start/due window use the calibration prior instead of
	// failing with insufficient calibration.
	AllowPriorFallback bool
}

// Bottleneck is one high-variance task in the ranked bottleneck list.
type Bottleneck struct {
	TaskID        string  `json:"taskId"`
	Title         string  `json:"title"`
	Bucket        string  `json:"bucket"`
	StdDevDays    float64 `json:"stdDevDays"`
	CPProbability float64 `json:"cpProbability"`
}

// TaskFinish summarizes one task's finish distribution.
type TaskFinish struct {
	P50Days float64   `json:"p50Days"`
	P95Days float64   `json:"p95Days"`
	P50Date time.Time `json:"p50Date"`
	P95Date time.Time `json:"p95Date"`
}

// Percentiles holds the plan-end distribution in days from the origin.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// Result is the aggregated simulation output.
type Result struct {
	PlanID     string    `json:"planId"`
	Iterations int       `json:"iterations"`
	Seed       uint64    `json:"seed"`
	Origin     time.Time `json:"origin"`
	EventDate  time.Time `json:"eventDate"`

	EndDays                  Percentiles          `json:"endDays"`
	EndDates                 map[string]time.Time `json:"endDates"`
	ProbabilityOnTimePercent float64              `json:"probabilityOnTimePercent"`

	// CPProbability maps task id to the fraction of iterations in
	// which the task sat on the simulated critical path, in [0, 1].
	CPProbability map[string]float64    `json:"cpProbability"`
	Bottlenecks   []Bottleneck          `json:"bottlenecks"`
	RiskHeatmap   map[string]float64    `json:"riskHeatmap"`
	TaskFinish    map[string]TaskFinish `json:"taskFinish"`
	Suggestions   []Suggestion          `json:"suggestions"`
}

// Run executes the simulation. ctx is checked every 256 iterations; on
// cancellation the run stops with a Cancelled error and no output.
func Run(ctx context.Context, in Input) (*Result, error) {
	if in.Snapshot == nil || in.Graph == nil {
		return nil, errors.New(errors.KindValidation, errors.ErrCodePlanInvalid, "simulation requires a snapshot and graph")
	}
	iterations := in.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	k := in.QueuingK
	if k <= 0 {
		k = DefaultQueuingK
	}
	origin := in.Origin
	if origin.IsZero() {
		origin = time.Now().UTC()
	}
	seed := rand.Uint64()
	if in.Seed != nil {
		seed = *in.Seed
	}

	order := in.Graph.TopoOrder()
	triples, err := resolveTriples(in)
	if err != nil {
		return nil, err
	}

	res := &Result{
		PlanID:        in.Snapshot.Plan.ID,
		Iterations:    iterations,
		Seed:          seed,
		Origin:        origin,
		EventDate:     resolveEventDate(in, origin),
		CPProbability: make(map[string]float64, len(order)),
		RiskHeatmap:   make(map[string]float64),
		TaskFinish:    make(map[string]TaskFinish, len(order)),
		EndDates:      make(map[string]time.Time, 5),
	}
	if len(order) == 0 {
		res.EndDates = endDateMap(res.EndDays, origin)
		res.ProbabilityOnTimePercent = 100
		return res, nil
	}

	taskByID := make(map[string]domain.Task, len(order))
	bucketOf := make(map[string]string, len(order))
	startFloor := make(map[string]float64, len(order))
	for _, t := range in.Snapshot.Tasks {
		taskByID[t.ID] = t
		bucketOf[t.ID] = in.Snapshot.BucketName(t.BucketID)
		if t.StartAt != nil {
			if f := t.StartAt.Sub(origin).Hours() / 24; f > 0 {
				startFloor[t.ID] = f
			}
		}
	}

	s := newSampler(seed)
	st := newRunState(order, iterations)

	for it := 0; it < iterations; it++ {
		if it%cancelCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewCancelled("monte carlo simulation", ctx.Err())
			default:
			}
		}
		simulateOnce(s, in, st, order, taskByID, bucketOf, startFloor, triples, k)
	}

	aggregate(res, st, in, taskByID, bucketOf, iterations, origin)
	res.Suggestions = suggest(res, in.Snapshot)
	return res, nil
}

// runState accumulates per-iteration samples.
type runState struct {
	start    map[string]float64
	finish   map[string]float64
	binding  map[string]string // task -> predecessor whose bound fixed its start
	finishes map[string][]float64
	cpCounts map[string]int
	buckets  map[string][]float64
	ends     []float64
}

func newRunState(order []string, iterations int) *runState {
	st := &runState{
		start:    make(map[string]float64, len(order)),
		finish:   make(map[string]float64, len(order)),
		binding:  make(map[string]string, len(order)),
		finishes: make(map[string][]float64, len(order)),
		cpCounts: make(map[string]int, len(order)),
		buckets:  make(map[string][]float64),
		ends:     make([]float64, 0, iterations),
	}
	for _, id := range order {
		st.finishes[id] = make([]float64, 0, iterations)
	}
	return st
}

func simulateOnce(
	s *sampler,
	in Input,
	st *runState,
	order []string,
	taskByID map[string]domain.Task,
	bucketOf map[string]string,
	startFloor map[string]float64,
	triples map[string]history.PERT,
	k float64,
) {
	clear(st.start)
	clear(st.finish)
	clear(st.binding)
	bucketSum := make(map[string]float64, 8)

	end := 0.0
	endTask := ""
	for _, v := range order {
		d := s.PERT(triples[v]) * in.Calibration.BiasFor(bucketOf[v])

		start := startFloor[v]
		binding := ""
		ties := 0
		for _, e := range in.Graph.Predecessors(v) {
			var bound float64
			switch e.Type {
			case domain.StartStart:
				bound = st.start[e.From]
			case domain.FinishFinish:
				bound = st.finish[e.From] - d
			case domain.StartFinish:
				bound = st.start[e.From] - d
			default: // FS
				bound = st.finish[e.From]
			}
			switch {
			case bound > start+tieEps:
				start = bound
				binding = e.From
				ties = 1
			case binding != "" && bound >= start-tieEps:
				// Equally binding predecessors share critical-path
				// credit: pick uniformly among the tied edges.
				ties++
				if s.rng.IntN(ties) == 0 {
					binding = e.From
				}
			}
		}
		d += queuingDelay(k, taskByID[v], st, taskByID, start, order, v)

		st.start[v] = start
		st.finish[v] = start + d
		st.binding[v] = binding
		st.finishes[v] = append(st.finishes[v], start+d)
		bucketSum[bucketOf[v]] += d

		if st.finish[v] > end || endTask == "" {
			end = st.finish[v]
			endTask = v
		}
	}

	st.ends = append(st.ends, end)
	for b, sum := range bucketSum {
		st.buckets[b] = append(st.buckets[b], sum)
	}

	// Walk binding predecessors back from the end task: that chain is
	// this iteration's maximum-weight path.
	for cur := endTask; cur != ""; cur = st.binding[cur] {
		st.cpCounts[cur]++
	}
}

// queuingDelay charges k days per in-progress task beyond the first
// that shares an assignee with t at the moment t starts. Only tasks
// already scheduled this iteration count, which matches the
// topological processing order.
func queuingDelay(
	k float64,
	t domain.Task,
	st *runState,
	taskByID map[string]domain.Task,
	at float64,
	order []string,
	self string,
) float64 {
	if len(t.Assignees) == 0 {
		return 0
	}
	mine := make(map[string]bool, len(t.Assignees))
	for _, a := range t.Assignees {
		mine[a] = true
	}
	load := 0
	for _, id := range order {
		if id == self {
			continue
		}
		fin, scheduled := st.finish[id]
		if !scheduled {
			continue
		}
		other := taskByID[id]
		shared := false
		for _, a := range other.Assignees {
			if mine[a] {
				shared = true
				break
			}
		}
		if shared && st.start[id] <= at && at < fin {
			load++
		}
	}
	return k * math.Max(0, float64(load)-1)
}

func resolveTriples(in Input) (map[string]history.PERT, error) {
	out := make(map[string]history.PERT, len(in.Snapshot.Tasks))
	for _, t := range in.Snapshot.Tasks {
		if p, ok := in.TaskPERT[t.ID]; ok {
			out[t.ID] = p
			continue
		}
		bucket := in.Snapshot.BucketName(t.BucketID)
		if p, fitted := in.Calibration.For(bucket, ""); fitted {
			out[t.ID] = p
			continue
		}
		if days, ok := t.PlannedDays(); ok {
			base := math.Max(0.5, days)
			out[t.ID] = history.PERT{
				Optimistic:  base * 0.7,
				MostLikely:  base,
				Pessimistic: base * 1.5,
			}
			continue
		}
		if !in.AllowPriorFallback {
			return nil, errors.NewInsufficientCalibration(bucket)
		}
		out[t.ID] = in.Calibration.Prior
	}
	return out, nil
}

func resolveEventDate(in Input, origin time.Time) time.Time {
	if in.EventDate != nil {
		return in.EventDate.UTC()
	}
	if in.Snapshot.Plan.EventDate != nil {
		return in.Snapshot.Plan.EventDate.UTC()
	}
	var latest *time.Time
	for _, t := range in.Snapshot.Tasks {
		if t.DueAt != nil && (latest == nil || t.DueAt.After(*latest)) {
			latest = t.DueAt
		}
	}
	if latest != nil {
		return latest.UTC().AddDate(0, 0, 3)
	}
	return origin.AddDate(0, 0, 30)
}

func aggregate(
	res *Result,
	st *runState,
	in Input,
	taskByID map[string]domain.Task,
	bucketOf map[string]string,
	iterations int,
	origin time.Time,
) {
	sort.Float64s(st.ends)
	res.EndDays = Percentiles{
		P10: percentile(st.ends, 0.10),
		P50: percentile(st.ends, 0.50),
		P75: percentile(st.ends, 0.75),
		P90: percentile(st.ends, 0.90),
		P95: percentile(st.ends, 0.95),
	}
	res.EndDates = endDateMap(res.EndDays, origin)

	target := res.EventDate.Sub(origin).Hours() / 24
	onTime := 0
	for _, e := range st.ends {
		if e <= target {
			onTime++
		}
	}
	res.ProbabilityOnTimePercent = math.Round(float64(onTime)/float64(iterations)*1000) / 10

	for id, n := range st.cpCounts {
		res.CPProbability[id] = float64(n) / float64(iterations)
	}

	for b, sums := range st.buckets {
		res.RiskHeatmap[b] = sampleVariance(sums)
	}

	var bottlenecks []Bottleneck
	for id, fins := range st.finishes {
		sorted := append([]float64(nil), fins...)
		sort.Float64s(sorted)
		p50 := percentile(sorted, 0.50)
		p95 := percentile(sorted, 0.95)
		res.TaskFinish[id] = TaskFinish{
			P50Days: p50,
			P95Days: p95,
			P50Date: addDays(origin, p50),
			P95Date: addDays(origin, p95),
		}
		bottlenecks = append(bottlenecks, Bottleneck{
			TaskID:        id,
			Title:         taskByID[id].Title,
			Bucket:        bucketOf[id],
			StdDevDays:    math.Sqrt(sampleVariance(fins)),
			CPProbability: res.CPProbability[id],
		})
	}
	sort.Slice(bottlenecks, func(i, j int) bool {
		if bottlenecks[i].StdDevDays != bottlenecks[j].StdDevDays {
			return bottlenecks[i].StdDevDays > bottlenecks[j].StdDevDays
		}
		return bottlenecks[i].TaskID < bottlenecks[j].TaskID
	})
	if len(bottlenecks) > 20 {
		bottlenecks = bottlenecks[:20]
	}
	res.Bottlenecks = bottlenecks
}

func endDateMap(p Percentiles, origin time.Time) map[string]time.Time {
	return map[string]time.Time{
		"p10": addDays(origin, p.P10),
		"p50": addDays(origin, p.P50),
		"p75": addDays(origin, p.P75),
		"p90": addDays(origin, p.P90),
		"p95": addDays(origin, p.P95),
	}
}

func addDays(t time.Time, days float64) time.Time {
	return t.Add(time.Duration(days * 24 * float64(time.Hour))).UTC()
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return ss / float64(len(xs)-1)
}

// percentile returns the q-quantile of sorted values with linear
// interpolation.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
