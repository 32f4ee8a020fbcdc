// Package intelligence fuses the analytical engines into a per-task
// report: risk score, dependency risks, timeline and resource
// suggestions, assignee recommendations and optional simulation
// summaries. Sub-computations that fail degrade to a diagnostic
// instead of failing the call; only an unknown task is an error.
package intelligence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/congresstwin/congresstwin/internal/cpath"
	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/graph"
	"github.com/congresstwin/congresstwin/internal/history"
	"github.com/congresstwin/congresstwin/internal/markov"
	"github.com/congresstwin/congresstwin/internal/montecarlo"
)

const (
	factorCap = 3

	weightHighDeps  = 30.0
	weightTimeline  = 25.0
	weightResource  = 20.0
	weightCritical  = 15.0
	weightOverdue   = 10.0
	atRiskWindow    = 3 * 24 * time.Hour
	tightSlackDays  = 2.0
	overloadActive  = 4
	recommendations = 3
	quickIterations = 1000
)

// DependencyRisk grades one upstream dependency.
type DependencyRisk struct {
	TaskID     string        `json:"taskId"`
	Title      string        `json:"title"`
	Level      string        `json:"riskLevel"`
	Status     domain.Status `json:"status"`
	OnPath     bool          `json:"onCriticalPath"`
	Delayed    bool          `json:"isDelayed"`
	DelayDays  int           `json:"delayDays"`
	Suggestion string        `json:"suggestion"`
}

// Suggestion is one actionable finding.
type Suggestion struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// AssigneeRecommendation scores one candidate assignee.
type AssigneeRecommendation struct {
	Assignee       string  `json:"assignee"`
	Score          float64 `json:"score"`
	ActiveTasks    int     `json:"activeTasks"`
	OverdueTasks   int     `json:"overdueTasks"`
	CompletionRate float64 `json:"completionRate"`
	Current        bool    `json:"currentlyAssigned"`
	Reason         string  `json:"reason"`
}

// MonteCarloSummary is the simulation slice relevant to one task.
type MonteCarloSummary struct {
	P50FinishDays float64 `json:"p50FinishDays"`
	P95FinishDays float64 `json:"p95FinishDays"`
	CPProbability float64 `json:"cpProbability"`
}

// MarkovSummary is the state model slice for one task.
type MarkovSummary struct {
	CurrentState markov.State `json:"currentState"`
	ExpectedDays float64      `json:"expectedDaysToAbsorption"`
	VarianceDays float64      `json:"varianceDays"`
}

// Report is the full intelligence bundle for one task.
type Report struct {
	PlanID              string                   `json:"planId"`
	TaskID              string                   `json:"taskId"`
	RiskScore           int                      `json:"riskScore"`
	RiskFactors         []string                 `json:"riskFactors"`
	DependencyRisks     []DependencyRisk         `json:"dependencyRisks"`
	TimelineSuggestions []Suggestion             `json:"timelineSuggestions"`
	ResourceSuggestions []Suggestion             `json:"resourceSuggestions"`
	CriticalPath        []Suggestion             `json:"criticalPathSuggestions"`
	OptimalAssignees    []AssigneeRecommendation `json:"optimalAssignees"`
	MonteCarlo          *MonteCarloSummary       `json:"monteCarloSummary,omitempty"`
	Markov              *MarkovSummary           `json:"markovSummary,omitempty"`
	// Diagnostics records failed sub-computations by section name.
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}

// Options tunes the analysis.
type Options struct {
	Now time.Time
	// Durations maps task id to planned days for the deterministic
	// critical path. Missing entries use the cpath default.
	Durations map[string]float64
	// History feeds completion rates and the calibration. Nil skips
	// the historical terms.
	History *history.Analysis
	// IncludeSimulations enables the Monte Carlo and Markov summaries.
	IncludeSimulations bool
	Iterations         int
	Seed               *uint64
}

// Analyze builds the report for (plan, task).
func Analyze(ctx context.Context, snap *domain.Snapshot, g *graph.Graph, taskID string, opts Options) (*Report, error) {
	task, ok := snap.TaskByID(taskID)
	if !ok {
		return nil, errors.NewTaskNotFound(snap.Plan.ID, taskID)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	rep := &Report{
		PlanID:      snap.Plan.ID,
		TaskID:      taskID,
		Diagnostics: map[string]string{},
	}

	cp := cpath.Compute(g, opts.Durations, cpath.Options{})
	onPath := cp.Timings[taskID].OnPath
	slack := cp.Timings[taskID].Slack

	var mc *montecarlo.Result
	if opts.IncludeSimulations {
		mc = runSimulation(ctx, snap, g, opts, rep)
		rep.Markov = markovSummary(task, opts.Now, rep)
	}

	rep.DependencyRisks = dependencyRisks(snap, g, taskID, cp, opts.Now)
	rep.TimelineSuggestions = timelineSuggestions(task, onPath, slack, opts.Now)
	rep.ResourceSuggestions, rep.OptimalAssignees = resourceAnalysis(snap, task, opts)
	rep.CriticalPath = criticalPathSuggestions(onPath, mc, taskID)
	if mc != nil {
		rep.MonteCarlo = &MonteCarloSummary{
			P50FinishDays: mc.TaskFinish[taskID].P50Days,
			P95FinishDays: mc.TaskFinish[taskID].P95Days,
			CPProbability: mc.CPProbability[taskID],
		}
	}

	rep.RiskScore, rep.RiskFactors = score(rep, task, onPath, opts.Now)
	if len(rep.Diagnostics) == 0 {
		rep.Diagnostics = nil
	}
	return rep, nil
}

func runSimulation(ctx context.Context, snap *domain.Snapshot, g *graph.Graph, opts Options, rep *Report) *montecarlo.Result {
	iters := opts.Iterations
	if iters <= 0 {
		iters = quickIterations
	}
	in := montecarlo.Input{
		Snapshot:           snap,
		Graph:              g,
		Iterations:         iters,
		Seed:               opts.Seed,
		Origin:             opts.Now,
		AllowPriorFallback: true,
	}
	if opts.History != nil {
		in.Calibration = opts.History.Calibration
	}
	if in.Calibration.Prior == (history.PERT{}) {
		in.Calibration.Prior = history.DefaultPrior()
	}
	mc, err := montecarlo.Run(ctx, in)
	if err != nil {
		rep.Diagnostics["monte_carlo"] = err.Error()
		return nil
	}
	return mc
}

func markovSummary(task domain.Task, now time.Time, rep *Report) *MarkovSummary {
	state := markov.StateOf(task, now)
	abs, err := markov.ExpectedAbsorption(markov.Default("task"))
	if err != nil {
		rep.Diagnostics["markov"] = err.Error()
		return &MarkovSummary{CurrentState: state}
	}
	return &MarkovSummary{
		CurrentState: state,
		ExpectedDays: abs.ExpectedDays[state],
		VarianceDays: abs.VarianceDays[state],
	}
}

// dependencyRisks grades each direct upstream task. High means delayed
// and on the critical path; medium means delayed or blocked.
func dependencyRisks(snap *domain.Snapshot, g *graph.Graph, taskID string, cp *cpath.Result, now time.Time) []DependencyRisk {
	var out []DependencyRisk
	for _, e := range g.Predecessors(taskID) {
		uid := e.From
		u, ok := snap.TaskByID(uid)
		if !ok {
			continue
		}
		delayed, delayDays := upstreamDelay(u, now)
		onPath := cp.Timings[uid].OnPath

		level := "low"
		switch {
		case delayed && onPath:
			level = "high"
		case delayed || u.Status == domain.StatusBlocked:
			level = "medium"
		}
		out = append(out, DependencyRisk{
			TaskID:     uid,
			Title:      u.Title,
			Level:      level,
			Status:     u.Status,
			OnPath:     onPath,
			Delayed:    delayed,
			DelayDays:  delayDays,
			Suggestion: dependencySuggestion(u, level, delayDays),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func upstreamDelay(u domain.Task, now time.Time) (bool, int) {
	if u.DueAt == nil {
		return false, 0
	}
	if u.CompletedAt != nil {
		if u.CompletedAt.After(*u.DueAt) {
			return true, int(u.CompletedAt.Sub(*u.DueAt).Hours() / 24)
		}
		return false, 0
	}
	if u.Status != domain.StatusCompleted && now.After(*u.DueAt) {
		return true, int(now.Sub(*u.DueAt).Hours() / 24)
	}
	return false, 0
}

func dependencySuggestion(u domain.Task, level string, delayDays int) string {
	switch level {
	case "high":
		return fmt.Sprintf("Dependency %q is delayed by %d days on the critical path. Consider parallel work or expediting.", u.Title, delayDays)
	case "medium":
		if delayDays > 0 {
			return fmt.Sprintf("Dependency %q is delayed by %d days. Monitor closely.", u.Title, delayDays)
		}
		return fmt.Sprintf("Dependency %q is blocked. Unblock before it stalls this task.", u.Title)
	default:
		if u.Status != domain.StatusCompleted {
			return fmt.Sprintf("Waiting on dependency %q. Ensure it stays on track.", u.Title)
		}
		return "Dependency is on track."
	}
}

func timelineSuggestions(task domain.Task, onPath bool, slack float64, now time.Time) []Suggestion {
	var out []Suggestion
	if task.DueAt != nil && task.DueAt.Before(now) && task.Status != domain.StatusCompleted {
		days := int(now.Sub(*task.DueAt).Hours() / 24)
		out = append(out, Suggestion{
			Type:        "overdue",
			Severity:    "high",
			Title:       fmt.Sprintf("Overdue by %d days", days),
			Description: "The due date has passed and the task is not completed.",
			Action:      "Re-plan the due date or accelerate the remaining work.",
		})
	}
	if task.DueAt != nil && !task.DueAt.Before(now) &&
		task.DueAt.Sub(now) <= atRiskWindow && task.PercentComplete < 50 {
		out = append(out, Suggestion{
			Type:        "at_risk",
			Severity:    "high",
			Title:       "Due soon with low progress",
			Description: fmt.Sprintf("Due within 3 days at %d%% complete.", task.PercentComplete),
			Action:      "Add resources or descope to make the date.",
		})
	}
	if onPath && slack < tightSlackDays {
		out = append(out, Suggestion{
			Type:        "cp_tight",
			Severity:    "medium",
			Title:       "Critical path with little slack",
			Description: fmt.Sprintf("On the critical path with %.1f days of slack.", slack),
			Action:      "Protect this task from scope changes and interruptions.",
		})
	}
	return out
}

type workload struct {
	active  int
	overdue int
}

func workloads(snap *domain.Snapshot, excludeTaskID string, now time.Time) map[string]workload {
	out := make(map[string]workload)
	for _, t := range snap.Tasks {
		if t.ID == excludeTaskID {
			continue
		}
		for _, a := range t.Assignees {
			w := out[a]
			if t.Status != domain.StatusCompleted && t.Status != domain.StatusCancelled {
				w.active++
				if t.DueAt != nil && t.DueAt.Before(now) {
					w.overdue++
				}
			}
			out[a] = w
		}
	}
	return out
}

// resourceAnalysis flags overloaded current assignees and scores the
// plan's assignee pool:
//
//	score = 0.5*completionRate - 0.3*load/maxLoad - 0.2*overdue/maxOverdue
func resourceAnalysis(snap *domain.Snapshot, task domain.Task, opts Options) ([]Suggestion, []AssigneeRecommendation) {
	loads := workloads(snap, task.ID, opts.Now)

	var suggestions []Suggestion
	for _, a := range task.Assignees {
		if w := loads[a]; w.active >= overloadActive {
			suggestions = append(suggestions, Suggestion{
				Type:        "resource_overload",
				Severity:    "high",
				Title:       fmt.Sprintf("%s is overloaded", a),
				Description: fmt.Sprintf("%s has %d active tasks (%d overdue).", a, w.active, w.overdue),
				Action:      "Rebalance their workload before it stalls this task.",
			})
		}
	}

	maxLoad, maxOverdue := 1, 1
	for _, w := range loads {
		maxLoad = max(maxLoad, w.active)
		maxOverdue = max(maxOverdue, w.overdue)
	}
	current := make(map[string]bool, len(task.Assignees))
	for _, a := range task.Assignees {
		current[a] = true
	}

	var recs []AssigneeRecommendation
	for a, w := range loads {
		rate := 0.5
		if opts.History != nil {
			if st, ok := opts.History.Assignees[a]; ok && st.Total > 0 {
				rate = st.CompletionRate
			}
		}
		s := 0.5*rate - 0.3*float64(w.active)/float64(maxLoad) - 0.2*float64(w.overdue)/float64(maxOverdue)
		recs = append(recs, AssigneeRecommendation{
			Assignee:       a,
			Score:          math.Round(s*1000) / 1000,
			ActiveTasks:    w.active,
			OverdueTasks:   w.overdue,
			CompletionRate: rate,
			Current:        current[a],
			Reason: fmt.Sprintf("%s: %d active tasks, %d overdue, %.0f%% historical completion rate",
				a, w.active, w.overdue, rate*100),
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Assignee < recs[j].Assignee
	})
	if len(recs) > recommendations {
		recs = recs[:recommendations]
	}

	if len(recs) > 0 && !recs[0].Current {
		suggestions = append(suggestions, Suggestion{
			Type:        "reassignment",
			Severity:    "low",
			Title:       "Consider reassignment",
			Description: fmt.Sprintf("%s has lower load and a better track record.", recs[0].Assignee),
			Action:      fmt.Sprintf("Reassign to %s for better balance.", recs[0].Assignee),
		})
	}
	return suggestions, recs
}

func criticalPathSuggestions(onPath bool, mc *montecarlo.Result, taskID string) []Suggestion {
	critical := onPath
	if mc != nil && mc.CPProbability[taskID] > 0.5 {
		critical = true
	}
	if !critical {
		return nil
	}
	return []Suggestion{{
		Type:        "critical_path",
		Severity:    "high",
		Title:       "On critical path",
		Description: "Delays on this task move the plan end date.",
		Action:      "Prioritize this task and ensure adequate resources.",
	}}
}

// score applies 30H + 25T + 20R + 15C + 10O with H, T, R capped at 3.
func score(rep *Report, task domain.Task, onPath bool, now time.Time) (int, []string) {
	var factors []string

	h := 0
	for _, r := range rep.DependencyRisks {
		if r.Level == "high" {
			h++
		}
	}
	if h > 0 {
		factors = append(factors, fmt.Sprintf("%d high-risk dependencies", h))
	}
	t := 0
	for _, s := range rep.TimelineSuggestions {
		if s.Severity == "high" {
			t++
		}
	}
	if t > 0 {
		factors = append(factors, fmt.Sprintf("%d timeline risks", t))
	}
	r := 0
	for _, s := range rep.ResourceSuggestions {
		if s.Type == "resource_overload" {
			r++
		}
	}
	if r > 0 {
		factors = append(factors, fmt.Sprintf("%d overloaded assignees", r))
	}
	c := 0.0
	if onPath {
		c = 1
		factors = append(factors, "on critical path")
	}
	o := 0.0
	if task.DueAt != nil && task.DueAt.Before(now) && task.Status != domain.StatusCompleted {
		o = 1
		factors = append(factors, "overdue")
	}

	raw := weightHighDeps*float64(min(h, factorCap)) +
		weightTimeline*float64(min(t, factorCap)) +
		weightResource*float64(min(r, factorCap)) +
		weightCritical*c +
		weightOverdue*o
	return int(math.Round(math.Min(100, raw))), factors
}
