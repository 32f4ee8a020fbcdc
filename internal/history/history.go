// Package history fits calibration parameters from completed plans:
// Beta-PERT triples per bucket and task type, schedule bias, assignee
// throughput, bucket block rates, phase planned-vs-actual and implicit
// dependency hints. Everything here is a pure function of its inputs.
package history

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
)

// PERT is an (optimistic, most likely, pessimistic) duration triple in
// days, O <= M <= P.
type PERT struct {
	Optimistic  float64 `json:"optimistic"`
	MostLikely  float64 `json:"mostLikely"`
	Pessimistic float64 `json:"pessimistic"`
}

// Mean returns the Beta-PERT expected value (O + 4M + P) / 6.
func (p PERT) Mean() float64 {
	return (p.Optimistic + 4*p.MostLikely + p.Pessimistic) / 6
}

// Degenerate reports whether the triple collapses to a point mass.
func (p PERT) Degenerate() bool {
	return p.Pessimistic-p.Optimistic < 1e-9
}

// DefaultPrior is the triangular fallback triple used when a bucket has
// fewer than MinSamples completed tasks.
func DefaultPrior() PERT {
	return PERT{Optimistic: 1, MostLikely: 3, Pessimistic: 7}
}

// Calibration is the PERT lookup handed to the simulator. Triples are
// keyed by bucket and, when the samples carry one, by bucket|taskType.
type Calibration struct {
	Triples map[string]PERT    `json:"triples"`
	Bias    map[string]float64 `json:"bias"`
	Prior   PERT               `json:"prior"`
	// SampleCounts records how many samples backed each key, for
	// diagnostics and the insufficient-calibration decision.
	SampleCounts map[string]int `json:"sampleCounts"`
}

// For resolves the triple for (bucket, taskType), most specific first,
// falling back to the prior. The second return is false on fallback.
func (c Calibration) For(bucket, taskType string) (PERT, bool) {
	if taskType != "" {
		if p, ok := c.Triples[bucket+"|"+taskType]; ok {
			return p, true
		}
	}
	if p, ok := c.Triples[bucket]; ok {
		return p, true
	}
	return c.Prior, false
}

// BiasFor returns the multiplicative schedule bias for a bucket,
// mean(actual)/mean(planned), defaulting to 1.
func (c Calibration) BiasFor(bucket string) float64 {
	if b, ok := c.Bias[bucket]; ok && b > 0 {
		return b
	}
	return 1
}

// AssigneeStats aggregates one assignee's historical record.
type AssigneeStats struct {
	Completed        int     `json:"completed"`
	Total            int     `json:"total"`
	CompletionRate   float64 `json:"completionRate"`
	MeanDurationDays float64 `json:"meanDurationDays"`
	TasksPerWeek     float64 `json:"tasksPerWeek"`
	OverrunCount     int     `json:"overrunCount"`
}

// PhaseStats compares planned against actual durations for one bucket.
type PhaseStats struct {
	Bucket          string  `json:"bucket"`
	Count           int     `json:"count"`
	MeanPlannedDays float64 `json:"meanPlannedDays"`
	MeanActualDays  float64 `json:"meanActualDays"`
}

// ImplicitDependency is an ordered pair of task titles that finished in
// the same order across enough past plans to suggest a real precedence.
type ImplicitDependency struct {
	Before     string  `json:"before"`
	After      string  `json:"after"`
	Confidence float64 `json:"confidence"`
	Support    int     `json:"support"`
}

// TraceTask is one completed task inside a plan trace, carrying the
// temporal data the flat samples drop.
type TraceTask struct {
	Title       string
	Bucket      string
	Assignees   []string
	StartAt     time.Time
	CompletedAt time.Time
}

// PlanTrace is the completed-task sequence of one historical plan.
type PlanTrace struct {
	PlanID string
	Tasks  []TraceTask
}

// Analysis is the full output bundle.
type Analysis struct {
	Calibration  Calibration              `json:"calibration"`
	Assignees    map[string]AssigneeStats `json:"assignees"`
	BlockRates   map[string]float64       `json:"blockRates"`
	Phases       []PhaseStats             `json:"phases"`
	ImplicitDeps []ImplicitDependency     `json:"implicitDependencies"`
}

// Options tunes the estimation thresholds.
type Options struct {
	// Prior replaces the default triangular fallback when non-zero.
	Prior PERT
	// MinSamples is the minimum completed-task count per key before a
	// fitted triple replaces the prior. Default 3.
	MinSamples int
	// ImplicitConfidence is the precedence-rate threshold. Default 0.7.
	ImplicitConfidence float64
	// ImplicitMinSupport is the minimum co-occurrence count. Default 2.
	ImplicitMinSupport int
}

func (o Options) normalized() Options {
	if o.Prior == (PERT{}) {
		o.Prior = DefaultPrior()
	}
	if o.MinSamples <= 0 {
		o.MinSamples = 3
	}
	if o.ImplicitConfidence <= 0 {
		o.ImplicitConfidence = 0.7
	}
	if o.ImplicitMinSupport <= 0 {
		o.ImplicitMinSupport = 2
	}
	return o
}

// Analyze derives the full calibration bundle from flat samples plus
// optional per-plan traces (needed only for throughput and implicit
// dependency mining).
func Analyze(samples []domain.HistoricalSample, traces []PlanTrace, opts Options) *Analysis {
	opts = opts.normalized()
	a := &Analysis{
		Calibration: Calibration{
			Triples:      make(map[string]PERT),
			Bias:         make(map[string]float64),
			Prior:        opts.Prior,
			SampleCounts: make(map[string]int),
		},
		Assignees:  make(map[string]AssigneeStats),
		BlockRates: make(map[string]float64),
	}

	fitTriples(a, samples, opts)
	fitBias(a, samples)
	fitBlockRates(a, samples)
	a.Phases = fitPhases(samples)
	fitAssignees(a, samples, traces)
	a.ImplicitDeps = mineImplicitDeps(traces, opts)
	return a
}

func completedActuals(samples []domain.HistoricalSample, match func(domain.HistoricalSample) bool) []float64 {
	var out []float64
	for _, s := range samples {
		if s.Terminal == domain.StatusCompleted && s.ActualDays > 0 && match(s) {
			out = append(out, s.ActualDays)
		}
	}
	return out
}

func fitTriples(a *Analysis, samples []domain.HistoricalSample, opts Options) {
	keys := make(map[string]func(domain.HistoricalSample) bool)
	for _, s := range samples {
		b := s.Bucket
		if _, ok := keys[b]; !ok {
			keys[b] = func(x domain.HistoricalSample) bool { return x.Bucket == b }
		}
		if s.TaskType != "" {
			k := b + "|" + s.TaskType
			if _, ok := keys[k]; !ok {
				tt := s.TaskType
				keys[k] = func(x domain.HistoricalSample) bool { return x.Bucket == b && x.TaskType == tt }
			}
		}
	}
	for key, match := range keys {
		actuals := completedActuals(samples, match)
		a.Calibration.SampleCounts[key] = len(actuals)
		if len(actuals) < opts.MinSamples {
			continue
		}
		sort.Float64s(actuals)
		a.Calibration.Triples[key] = PERT{
			Optimistic:  percentile(actuals, 0.10),
			MostLikely:  percentile(actuals, 0.50),
			Pessimistic: percentile(actuals, 0.90),
		}
	}
}

func fitBias(a *Analysis, samples []domain.HistoricalSample) {
	type acc struct{ planned, actual float64 }
	sums := make(map[string]*acc)
	for _, s := range samples {
		if s.Terminal != domain.StatusCompleted || s.PlannedDays <= 0 || s.ActualDays <= 0 {
			continue
		}
		if sums[s.Bucket] == nil {
			sums[s.Bucket] = &acc{}
		}
		sums[s.Bucket].planned += s.PlannedDays
		sums[s.Bucket].actual += s.ActualDays
	}
	for b, s := range sums {
		if s.planned > 0 {
			a.Calibration.Bias[b] = s.actual / s.planned
		}
	}
}

func fitBlockRates(a *Analysis, samples []domain.HistoricalSample) {
	total := make(map[string]int)
	blocked := make(map[string]int)
	for _, s := range samples {
		total[s.Bucket]++
		if s.BlockCount > 0 {
			blocked[s.Bucket]++
		}
	}
	for b, n := range total {
		a.BlockRates[b] = float64(blocked[b]) / float64(n)
	}
}

func fitPhases(samples []domain.HistoricalSample) []PhaseStats {
	type acc struct {
		n               int
		planned, actual float64
	}
	sums := make(map[string]*acc)
	for _, s := range samples {
		if s.Terminal != domain.StatusCompleted {
			continue
		}
		if sums[s.Bucket] == nil {
			sums[s.Bucket] = &acc{}
		}
		sums[s.Bucket].n++
		sums[s.Bucket].planned += s.PlannedDays
		sums[s.Bucket].actual += s.ActualDays
	}
	out := make([]PhaseStats, 0, len(sums))
	for b, s := range sums {
		out = append(out, PhaseStats{
			Bucket:          b,
			Count:           s.n,
			MeanPlannedDays: s.planned / float64(s.n),
			MeanActualDays:  s.actual / float64(s.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

func fitAssignees(a *Analysis, samples []domain.HistoricalSample, traces []PlanTrace) {
	for _, s := range samples {
		for _, u := range s.Assignees {
			st := a.Assignees[u]
			st.Total++
			if s.Terminal == domain.StatusCompleted {
				st.Completed++
				st.MeanDurationDays += s.ActualDays
			}
			if s.ActualDays > s.PlannedDays && s.PlannedDays > 0 {
				st.OverrunCount++
			}
			a.Assignees[u] = st
		}
	}
	for u, st := range a.Assignees {
		if st.Completed > 0 {
			st.MeanDurationDays /= float64(st.Completed)
		}
		if st.Total > 0 {
			st.CompletionRate = float64(st.Completed) / float64(st.Total)
		}
		a.Assignees[u] = st
	}

	// Throughput needs real timestamps, which only traces carry.
	type span struct {
		first, last time.Time
		count       int
	}
	spans := make(map[string]*span)
	for _, tr := range traces {
		for _, tt := range tr.Tasks {
			for _, u := range tt.Assignees {
				sp := spans[u]
				if sp == nil {
					sp = &span{first: tt.CompletedAt, last: tt.CompletedAt}
					spans[u] = sp
				}
				if tt.CompletedAt.Before(sp.first) {
					sp.first = tt.CompletedAt
				}
				if tt.CompletedAt.After(sp.last) {
					sp.last = tt.CompletedAt
				}
				sp.count++
			}
		}
	}
	for u, sp := range spans {
		st := a.Assignees[u]
		weeks := sp.last.Sub(sp.first).Hours() / (24 * 7)
		if weeks < 1 {
			weeks = 1
		}
		st.TasksPerWeek = float64(sp.count) / weeks
		a.Assignees[u] = st
	}
}

// mineImplicitDeps finds ordered title pairs where, across plans
// containing both, the first reliably completed before the second
// started.
func mineImplicitDeps(traces []PlanTrace, opts Options) []ImplicitDependency {
	type pair struct{ before, after string }
	cooccur := make(map[pair]int) // keyed with before < after
	precede := make(map[pair]int) // keyed in observed order

	for _, tr := range traces {
		byTitle := make(map[string]TraceTask, len(tr.Tasks))
		for _, t := range tr.Tasks {
			byTitle[normalizeTitle(t.Title)] = t
		}
		titles := make([]string, 0, len(byTitle))
		for k := range byTitle {
			titles = append(titles, k)
		}
		sort.Strings(titles)
		for i, ta := range titles {
			for _, tb := range titles[i+1:] {
				cooccur[pair{ta, tb}]++
				a, b := byTitle[ta], byTitle[tb]
				switch {
				case precedes(a, b):
					precede[pair{ta, tb}]++
				case precedes(b, a):
					precede[pair{tb, ta}]++
				}
			}
		}
	}

	var out []ImplicitDependency
	for p, n := range precede {
		support := cooccur[pair{p.before, p.after}]
		if support == 0 {
			support = cooccur[pair{p.after, p.before}]
		}
		if support < opts.ImplicitMinSupport {
			continue
		}
		conf := float64(n) / float64(support)
		if conf >= opts.ImplicitConfidence {
			out = append(out, ImplicitDependency{
				Before:     p.before,
				After:      p.after,
				Confidence: math.Round(conf*100) / 100,
				Support:    support,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Before != out[j].Before {
			return out[i].Before < out[j].Before
		}
		return out[i].After < out[j].After
	})
	return out
}

func precedes(a, b TraceTask) bool {
	if !b.StartAt.IsZero() {
		return !a.CompletedAt.After(b.StartAt)
	}
	return a.CompletedAt.Before(b.CompletedAt)
}

func normalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// percentile returns the q-quantile of sorted values with linear
// interpolation between closest ranks.
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
