// Package cpath computes earliest/latest schedules and the critical
// path over a plan DAG. All arithmetic is in fractional days relative
// to a common origin; calendar mapping happens at the service layer.
//
// Constraint mapping per dependency type, predecessor u → successor v:
//
//	FS: ES(v) >= EF(u)
//	SS: ES(v) >= ES(u)
//	FF: EF(v) >= EF(u)
//	SF: EF(v) >= ES(u)
//
// Every type also counts as a precedence edge for topological ordering,
// so a plan that is cyclic under any mix of types is rejected upstream
// by the graph builder.
package cpath

import (
	"math"
	"sort"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/graph"
)

// DefaultDuration is the point estimate, in days, for tasks with no
// calibration and no usable start/due window.
const DefaultDuration = 1.0

// Timing is one task's schedule window.
type Timing struct {
	EarliestStart  float64
	EarliestFinish float64
	LatestStart    float64
	LatestFinish   float64
	Slack          float64
	OnPath         bool
}

// Result is the full critical-path computation for one plan snapshot.
type Result struct {
	// Timings is keyed by task id and covers every node of the graph.
	Timings map[string]Timing
	// Canonical is one ordered critical path, ties broken by picking
	// the lexicographically smallest id at each step.
	Canonical []string
	// End is the plan end in days from the origin, max earliest finish.
	End float64
}

// Options tunes the computation.
type Options struct {
	// Epsilon is the slack threshold for on-path membership.
	Epsilon float64
	// DefaultDuration overrides the package default when > 0.
	DefaultDuration float64
}

// Compute runs the forward and backward passes over g. durations maps
// task id to its point-estimate duration in days; missing entries use
// the default. Pure function of its inputs.
func Compute(g *graph.Graph, durations map[string]float64, opts Options) *Result {
	def := opts.DefaultDuration
	if def <= 0 {
		def = DefaultDuration
	}
	eps := opts.Epsilon
	if eps < floatSlop {
		eps = floatSlop
	}

	order := g.TopoOrder()
	res := &Result{
		Timings:   make(map[string]Timing, len(order)),
		Canonical: []string{},
	}
	if len(order) == 0 {
		return res
	}

	dur := func(id string) float64 {
		if d, ok := durations[id]; ok && d >= 0 {
			return d
		}
		return def
	}

	es := make(map[string]float64, len(order))
	ef := make(map[string]float64, len(order))
	for _, v := range order {
		start := 0.0
		d := dur(v)
		for _, e := range g.Predecessors(v) {
			var bound float64
			switch e.Type {
			case domain.StartStart:
				bound = es[e.From]
			case domain.FinishFinish:
				bound = ef[e.From] - d
			case domain.StartFinish:
				bound = es[e.From] - d
			default: // FS
				bound = ef[e.From]
			}
			if bound > start {
				start = bound
			}
		}
		es[v] = start
		ef[v] = start + d
		if ef[v] > res.End {
			res.End = ef[v]
		}
	}

	lf := make(map[string]float64, len(order))
	ls := make(map[string]float64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		d := dur(v)
		finish := res.End
		for _, e := range g.Successors(v) {
			var bound float64
			switch e.Type {
			case domain.StartStart:
				bound = ls[e.To] + d
			case domain.FinishFinish:
				bound = lf[e.To]
			case domain.StartFinish:
				bound = lf[e.To] + d
			default: // FS
				bound = ls[e.To]
			}
			if bound < finish {
				finish = bound
			}
		}
		lf[v] = finish
		ls[v] = finish - d
	}

	for _, v := range order {
		slack := ls[v] - es[v]
		if math.Abs(slack) < floatSlop {
			slack = 0
		}
		res.Timings[v] = Timing{
			EarliestStart:  es[v],
			EarliestFinish: ef[v],
			LatestStart:    ls[v],
			LatestFinish:   lf[v],
			Slack:          slack,
			OnPath:         slack <= eps,
		}
	}

	res.Canonical = canonicalPath(g, res, eps)
	return res
}

const floatSlop = 1e-9

// canonicalPath walks tight edges between on-path tasks from the
// smallest eligible source, preferring the smallest successor id.
func canonicalPath(g *graph.Graph, res *Result, eps float64) []string {
	tight := func(e graph.Edge) bool {
		u, v := res.Timings[e.From], res.Timings[e.To]
		var lhs, rhs float64
		switch e.Type {
		case domain.StartStart:
			lhs, rhs = u.EarliestStart, v.EarliestStart
		case domain.FinishFinish:
			lhs, rhs = u.EarliestFinish, v.EarliestFinish
		case domain.StartFinish:
			lhs, rhs = u.EarliestStart, v.EarliestFinish
		default:
			lhs, rhs = u.EarliestFinish, v.EarliestStart
		}
		return u.OnPath && v.OnPath && math.Abs(lhs-rhs) <= eps
	}

	// Sources: on-path tasks with no tight incoming edge.
	var sources []string
	for _, id := range g.IDs() {
		t := res.Timings[id]
		if !t.OnPath {
			continue
		}
		hasTight := false
		for _, e := range g.Predecessors(id) {
			if tight(e) {
				hasTight = true
				break
			}
		}
		if !hasTight {
			sources = append(sources, id)
		}
	}
	if len(sources) == 0 {
		return []string{}
	}
	sort.Strings(sources)

	// Prefer a source that actually starts at the origin; isolated
	// on-path stubs can otherwise shadow the real chain.
	start := sources[0]
	for _, s := range sources {
		if res.Timings[s].EarliestStart <= eps {
			start = s
			break
		}
	}

	path := []string{start}
	cur := start
	for {
		next := ""
		for _, e := range g.Successors(cur) {
			if tight(e) && (next == "" || e.To < next) {
				next = e.To
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		cur = next
	}
}
