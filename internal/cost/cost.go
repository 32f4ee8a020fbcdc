// Package cost computes the multi-objective plan cost
//
//	C_total = w1*schedule + w2*resource + w3*risk + w4*quality + w5*disruption
//
// used to compare plan variants. Quality and disruption are
// placeholders pending speaker/topic data and replan tracking.
package cost

import (
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/graph"
)

const (
	tardinessAlpha = 1.0
	earlinessBeta  = 0.5
	criticalGamma  = 3.0

	overAllocDelta   = 1.0
	underUtilEpsilon = 0.5
	switchZeta       = 0.2
	maxConcurrent    = 5.0
	minConcurrent    = 1.0

	riskEta       = 2.0
	notStartedPr  = 0.3
	criticalShare = 0.7
)

// Weights scale the five cost terms.
type Weights struct {
	Schedule   float64 `json:"w1"`
	Resource   float64 `json:"w2"`
	Risk       float64 `json:"w3"`
	Quality    float64 `json:"w4"`
	Disruption float64 `json:"w5"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Schedule: 1.0, Resource: 0.8, Risk: 1.2, Quality: 0.5, Disruption: 0.3}
}

// Breakdown is the per-term cost before weighting, plus the weighted
// total.
type Breakdown struct {
	PlanID     string  `json:"planId"`
	Schedule   float64 `json:"schedule"`
	Resource   float64 `json:"resource"`
	Risk       float64 `json:"risk"`
	Quality    float64 `json:"quality"`
	Disruption float64 `json:"disruption"`
	Total      float64 `json:"totalCost"`
	Weights    Weights `json:"weights"`
}

// Compute evaluates the cost of the snapshot at now. The graph
// supplies successor counts for the critical-path multiplier and the
// risk impact term; nil means no dependency information.
func Compute(snap *domain.Snapshot, g *graph.Graph, w Weights, now time.Time) Breakdown {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	b := Breakdown{PlanID: snap.Plan.ID, Weights: w}
	succ := successorCounts(snap, g)

	b.Schedule = scheduleCost(snap.Tasks, succ, now)
	b.Resource = resourceCost(snap.Tasks)
	b.Risk = riskCost(snap.Tasks, succ, now)

	b.Total = w.Schedule*b.Schedule +
		w.Resource*b.Resource +
		w.Risk*b.Risk +
		w.Quality*b.Quality +
		w.Disruption*b.Disruption
	return b
}

func successorCounts(snap *domain.Snapshot, g *graph.Graph) map[string]int {
	counts := make(map[string]int, len(snap.Tasks))
	if g == nil {
		return counts
	}
	for _, t := range snap.Tasks {
		counts[t.ID] = len(g.Successors(t.ID))
	}
	return counts
}

// scheduleCost charges quadratic tardiness, credits linear earliness,
// and adds a linear multiplier for late tasks feeding many successors.
func scheduleCost(tasks []domain.Task, succ map[string]int, now time.Time) float64 {
	maxSucc := 0
	for _, n := range succ {
		if n > maxSucc {
			maxSucc = n
		}
	}
	criticalMin := float64(maxSucc) * criticalShare

	var cost float64
	for _, t := range tasks {
		if t.DueAt == nil || t.StartAt == nil {
			continue
		}
		end := projectedEnd(t, now)
		tardiness := days(end.Sub(*t.DueAt))
		earliness := days(t.DueAt.Sub(end))
		if tardiness > 0 {
			cost += tardinessAlpha * tardiness * tardiness
			if maxSucc > 0 && float64(succ[t.ID]) >= criticalMin {
				cost += criticalGamma * tardiness
			}
		}
		if earliness > 0 {
			cost -= earlinessBeta * earliness
		}
	}
	return cost
}

// projectedEnd is the completion date if known, the due date for
// finished-but-unstamped tasks, and otherwise an extrapolation from
// the remaining share of the planned window.
func projectedEnd(t domain.Task, now time.Time) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	if t.PercentComplete >= 100 {
		return *t.DueAt
	}
	planned := days(t.DueAt.Sub(*t.StartAt))
	remaining := planned * (1 - float64(t.PercentComplete)/100)
	return now.Add(time.Duration(remaining * float64(24*time.Hour)))
}

func resourceCost(tasks []domain.Task) float64 {
	loads := make(map[string]float64)
	for _, t := range tasks {
		for _, a := range t.Assignees {
			loads[a]++
		}
	}
	var cost float64
	for _, u := range loads {
		if u > maxConcurrent {
			over := u - maxConcurrent
			cost += overAllocDelta * over * over
		}
		if u < minConcurrent {
			cost += underUtilEpsilon * (minConcurrent - u)
		}
		if u > 1 {
			cost += switchZeta * (u - 1)
		}
	}
	return cost
}

// riskCost estimates P(delay) per open task from its progress against
// elapsed time, then scales by priority and fan-out.
func riskCost(tasks []domain.Task, succ map[string]int, now time.Time) float64 {
	var cost float64
	for _, t := range tasks {
		if t.DueAt == nil || t.StartAt == nil || t.CompletedAt != nil {
			continue
		}
		planned := days(t.DueAt.Sub(*t.StartAt))
		if planned <= 0 {
			continue
		}
		var elapsed float64
		if t.StartAt.Before(now) {
			elapsed = days(now.Sub(*t.StartAt))
		}
		progress := float64(t.PercentComplete) / 100

		var delayProb float64
		if progress > 0 {
			expected := planned * progress
			if elapsed > expected {
				delayProb = min((elapsed-expected)/planned, 1.0)
			}
		} else {
			delayProb = notStartedPr
		}
		if delayProb == 0 {
			continue
		}
		impact := float64(11-t.Priority)/10 + float64(succ[t.ID])*0.1
		cost += riskEta * delayProb * impact
	}
	return cost
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}
