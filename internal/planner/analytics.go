package planner

import (
	"context"
	"sort"
	"time"

	"github.com/congresstwin/congresstwin/internal/attention"
	"github.com/congresstwin/congresstwin/internal/cost"
	"github.com/congresstwin/congresstwin/internal/cpath"
	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/fingerprint"
	"github.com/congresstwin/congresstwin/internal/history"
	"github.com/congresstwin/congresstwin/internal/impact"
	"github.com/congresstwin/congresstwin/internal/intelligence"
	"github.com/congresstwin/congresstwin/internal/markov"
	"github.com/congresstwin/congresstwin/internal/montecarlo"
)

// defaultMilestoneLead is used when neither the caller nor the plan
// carries an event date.
const defaultMilestoneLead = 21 * 24 * time.Hour

// Dependencies is the neighbourhood of one task.
type Dependencies struct {
	TaskID string `json:"taskId"`
	// Upstream and Downstream are the direct neighbours, ascending.
	Upstream   []string `json:"upstream"`
	Downstream []string `json:"downstream"`
	Statement  string   `json:"impactStatement"`
}

// GetDependencies returns a task's direct dependency neighbourhood
// with a one-line impact statement.
func (s *Service) GetDependencies(ctx context.Context, planID, taskID string) (*Dependencies, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.TaskByID(taskID); !ok {
		return nil, errors.NewTaskNotFound(planID, taskID)
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	d := &Dependencies{TaskID: taskID, Upstream: []string{}, Downstream: []string{}}
	for _, e := range g.Predecessors(taskID) {
		d.Upstream = append(d.Upstream, e.From)
	}
	for _, e := range g.Successors(taskID) {
		d.Downstream = append(d.Downstream, e.To)
	}
	sort.Strings(d.Upstream)
	sort.Strings(d.Downstream)

	transitive := g.Downstream(taskID)
	sort.Strings(transitive)
	d.Statement = impact.Statement(snap, 0, transitive)
	return d, nil
}

// TaskListing is one execution-lens row: the task enriched with risk
// badges, direct dependency counts, and the critical-path flag.
type TaskListing struct {
	domain.Task
	RiskBadges      []string `json:"riskBadges"`
	UpstreamCount   int      `json:"upstreamCount"`
	DownstreamCount int      `json:"downstreamCount"`
	OnCriticalPath  bool     `json:"onCriticalPath"`
}

// GetExecutionTasks lists the plan's tasks with per-task risk badges
// (blocked, blocking, at_risk, overdue). Blocked means an unfinished
// predecessor stands in the way; blocking means the task itself holds
// up a critical-path successor; at_risk follows the milestone rule
// against the plan's event date.
func (s *Service) GetExecutionTasks(ctx context.Context, planID string) ([]TaskListing, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	cp := cpath.Compute(g, pointDurations(snap), cpath.Options{})
	onPath := make(map[string]bool, len(cp.Canonical))
	for _, id := range cp.Canonical {
		onPath[id] = true
	}

	byID := make(map[string]domain.Task, len(snap.Tasks))
	for _, t := range snap.Tasks {
		byID[t.ID] = t
	}
	blocking := make(map[string]bool)
	for _, id := range cp.Canonical {
		for _, e := range g.Predecessors(id) {
			if p, ok := byID[e.From]; ok && p.Status != domain.StatusCompleted {
				blocking[e.From] = true
			}
		}
	}

	now := s.now()
	event := now.Add(defaultMilestoneLead)
	if snap.Plan.EventDate != nil {
		event = snap.Plan.EventDate.UTC()
	}

	out := make([]TaskListing, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		row := TaskListing{
			Task:            t,
			RiskBadges:      []string{},
			UpstreamCount:   len(g.Predecessors(t.ID)),
			DownstreamCount: len(g.Successors(t.ID)),
			OnCriticalPath:  onPath[t.ID],
		}
		unfinished := t.Status != domain.StatusCompleted
		blocked := false
		if unfinished {
			for _, e := range g.Predecessors(t.ID) {
				if p, ok := byID[e.From]; ok && p.Status != domain.StatusCompleted {
					blocked = true
					break
				}
			}
		}
		if blocked {
			row.RiskBadges = append(row.RiskBadges, "blocked")
		}
		if blocking[t.ID] {
			row.RiskBadges = append(row.RiskBadges, "blocking")
		}
		if unfinished && (t.DueAt == nil || t.DueAt.After(event)) {
			row.RiskBadges = append(row.RiskBadges, "at_risk")
		}
		if unfinished && t.DueAt != nil && t.DueAt.Before(now) {
			row.RiskBadges = append(row.RiskBadges, "overdue")
		}
		out = append(out, row)
	}
	return out, nil
}

// CriticalPath is the deterministic longest path through the plan.
type CriticalPath struct {
	PlanID  string        `json:"planId"`
	TaskIDs []string      `json:"taskIds"`
	Tasks   []domain.Task `json:"tasks"`
	EndDays float64       `json:"endDays"`
	// Excluded lists edges dropped by the repairing load, if any.
	Excluded []domain.Dependency `json:"excludedEdges,omitempty"`
}

// GetCriticalPath computes (or serves from cache) the canonical
// critical path over the plan's planned durations.
func (s *Service) GetCriticalPath(ctx context.Context, planID string) (*CriticalPath, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint.Hash(snap)
	if err != nil {
		return nil, err
	}
	res, err := s.cpCache.GetOrCompute(cpKey(planID), fp, func() (*cpath.Result, error) {
		return cpath.Compute(g, pointDurations(snap), cpath.Options{}), nil
	})
	if err != nil {
		return nil, err
	}

	out := &CriticalPath{
		PlanID:   planID,
		TaskIDs:  res.Canonical,
		EndDays:  res.End,
		Excluded: g.Excluded,
	}
	for _, id := range res.Canonical {
		if t, ok := snap.TaskByID(id); ok {
			out.Tasks = append(out.Tasks, t)
		}
	}
	return out, nil
}

// GetAttention derives the dashboard views, anchored on the plan's
// sync history for the recently-changed window.
func (s *Service) GetAttention(ctx context.Context, planID string) (*attention.Report, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	st, err := s.store.GetSyncState(ctx, planID)
	if err != nil {
		return nil, err
	}
	cp := cpath.Compute(g, pointDurations(snap), cpath.Options{})
	onPath := make(map[string]bool, len(cp.Timings))
	for id, tm := range cp.Timings {
		onPath[id] = tm.OnPath
	}
	opts := attention.Options{Now: s.now(), OnPath: onPath, ListBound: s.attentionBound}
	if st.PreviousSyncAt != nil {
		opts.PreviousSyncAt = *st.PreviousSyncAt
	}
	rep := attention.Derive(snap, g, opts)
	return &rep, nil
}

// MilestoneTask is one entry of the milestone analysis.
type MilestoneTask struct {
	TaskID string        `json:"taskId"`
	Title  string        `json:"title"`
	Status domain.Status `json:"status"`
	DueAt  *time.Time    `json:"dueDateTime,omitempty"`
	OnPath bool          `json:"onCriticalPath"`
	// DaysAfterEvent is set for at-risk tasks whose due date lands
	// past the event; nil when the task has no due date at all.
	DaysAfterEvent *int `json:"daysAfterEvent,omitempty"`
}

// Milestone splits the plan against an event date.
type Milestone struct {
	PlanID    string          `json:"planId"`
	EventDate time.Time       `json:"eventDate"`
	Before    []MilestoneTask `json:"tasksBeforeEvent"`
	AtRisk    []MilestoneTask `json:"atRiskTasks"`
}

// GetMilestoneAnalysis partitions tasks into those due up to the event
// date and those at risk: unfinished tasks due after it, or unfinished
// tasks with no due date. A zero eventDate falls back to the plan's
// event date, then to three weeks out.
func (s *Service) GetMilestoneAnalysis(ctx context.Context, planID string, eventDate time.Time) (*Milestone, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	if eventDate.IsZero() {
		if snap.Plan.EventDate != nil {
			eventDate = *snap.Plan.EventDate
		} else {
			eventDate = s.now().Add(defaultMilestoneLead)
		}
	}
	eventDate = eventDate.UTC()

	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	cp := cpath.Compute(g, pointDurations(snap), cpath.Options{})

	out := &Milestone{PlanID: planID, EventDate: eventDate, Before: []MilestoneTask{}, AtRisk: []MilestoneTask{}}
	for _, t := range snap.Tasks {
		m := MilestoneTask{
			TaskID: t.ID,
			Title:  t.Title,
			Status: t.Status,
			DueAt:  t.DueAt,
			OnPath: cp.Timings[t.ID].OnPath,
		}
		switch {
		case t.DueAt != nil && !t.DueAt.After(eventDate):
			out.Before = append(out.Before, m)
		case t.Status != domain.StatusCompleted && t.DueAt != nil:
			days := int(t.DueAt.Sub(eventDate).Hours() / 24)
			m.DaysAfterEvent = &days
			out.AtRisk = append(out.AtRisk, m)
		case t.Status != domain.StatusCompleted && t.DueAt == nil:
			out.AtRisk = append(out.AtRisk, m)
		}
	}
	return out, nil
}

// SimulationParams tunes RunMonteCarlo.
type SimulationParams struct {
	Iterations int
	Seed       *uint64
	EventDate  *time.Time
}

// RunMonteCarlo simulates the plan end distribution, calibrated from
// the historical samples and completed-plan traces. Results are cached
// by (plan fingerprint, params).
func (s *Service) RunMonteCarlo(ctx context.Context, planID string, params SimulationParams) (*montecarlo.Result, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	fp, err := fingerprint.Hash(snap)
	if err != nil {
		return nil, err
	}
	analysis, err := s.calibration(ctx, planID)
	if err != nil {
		return nil, err
	}
	iterations := params.Iterations
	if iterations <= 0 {
		iterations = s.defaultIterations
	}
	key := mcKey(planID, iterations, params.Seed, params.EventDate)
	return s.mcCache.GetOrCompute(key, fp, func() (*montecarlo.Result, error) {
		return montecarlo.Run(ctx, montecarlo.Input{
			Snapshot:           snap,
			Graph:              g,
			Calibration:        analysis.Calibration,
			Iterations:         iterations,
			Seed:               params.Seed,
			EventDate:          params.EventDate,
			QueuingK:           s.queuingK,
			Origin:             s.now(),
			AllowPriorFallback: true,
		})
	})
}

// MarkovReport carries the transition matrix, per-state absorption
// expectations and, when a task is named, that task's state.
type MarkovReport struct {
	Matrix     *markov.Matrix     `json:"matrix"`
	Absorption *markov.Absorption `json:"absorption"`

	TaskID           string       `json:"taskId,omitempty"`
	TaskState        markov.State `json:"taskState,omitempty"`
	TaskExpectedDays float64      `json:"taskExpectedDays,omitempty"`
}

// GetMarkov returns the plan's state model, learned from the other
// plans' task lifecycles where history exists and falling back to the
// default matrix otherwise. With a task id it also resolves the task's
// current state and expected days to absorption.
func (s *Service) GetMarkov(ctx context.Context, planID, taskID string) (*MarkovReport, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	obs, err := s.markovObservations(ctx, planID)
	if err != nil {
		return nil, err
	}
	m := markov.Default(planID)
	if len(obs) > 0 {
		m = markov.Learn(planID, obs, 1, markov.DefaultSmoothing)
	}
	abs, err := markov.ExpectedAbsorption(m)
	if err != nil {
		return nil, err
	}
	rep := &MarkovReport{Matrix: m, Absorption: abs}
	if taskID != "" {
		t, ok := snap.TaskByID(taskID)
		if !ok {
			return nil, errors.NewTaskNotFound(planID, taskID)
		}
		rep.TaskID = taskID
		rep.TaskState = markov.StateOf(t, s.now())
		rep.TaskExpectedDays = abs.ExpectedDays[rep.TaskState]
	}
	return rep, nil
}

// ComputeCost evaluates the multi-objective cost of the plan's current
// state. Zero weights fall back to the defaults.
func (s *Service) ComputeCost(ctx context.Context, planID string, w cost.Weights) (cost.Breakdown, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return cost.Breakdown{}, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return cost.Breakdown{}, err
	}
	if w == (cost.Weights{}) {
		w = cost.DefaultWeights()
	}
	return cost.Compute(snap, g, w, s.now()), nil
}

// AnalyzeImpact previews a hypothetical change without persisting it.
func (s *Service) AnalyzeImpact(ctx context.Context, planID, taskID string, change impact.Change, simulate bool) (*impact.Result, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	in := impact.Input{
		Snapshot:  snap,
		Graph:     g,
		TaskID:    taskID,
		Change:    change,
		Durations: pointDurations(snap),
	}
	if simulate {
		analysis, err := s.calibration(ctx, planID)
		if err != nil {
			return nil, err
		}
		in.Simulate = &impact.SimulationOptions{
			Calibration: analysis.Calibration,
			Origin:      s.now(),
		}
	}
	return impact.Analyze(ctx, in)
}

// GetTaskIntelligence builds the fused per-task report.
func (s *Service) GetTaskIntelligence(ctx context.Context, planID, taskID string, includeSimulations bool) (*intelligence.Report, error) {
	snap, err := s.store.GetSnapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(snap)
	if err != nil {
		return nil, err
	}
	analysis, err := s.calibration(ctx, planID)
	if err != nil {
		return nil, err
	}
	return intelligence.Analyze(ctx, snap, g, taskID, intelligence.Options{
		Now:                s.now(),
		Durations:          pointDurations(snap),
		History:            analysis,
		IncludeSimulations: includeSimulations,
	})
}

// GetHistoricalInsights returns the full mined history bundle:
// calibration triples and bias, assignee throughput, bucket block
// rates, phase planned-vs-actual durations, and implicit dependency
// hints. The named plan is excluded from its own history.
func (s *Service) GetHistoricalInsights(ctx context.Context, planID string) (*history.Analysis, error) {
	if planID != "" {
		if _, err := s.store.GetSnapshot(ctx, planID); err != nil {
			return nil, err
		}
	}
	return s.calibration(ctx, planID)
}

// calibration fits the historical analysis from stored samples plus
// traces derived from other plans that have fully completed.
func (s *Service) calibration(ctx context.Context, exceptPlanID string) (*history.Analysis, error) {
	samples, err := s.store.ListSamples(ctx)
	if err != nil {
		return nil, err
	}
	traces, err := s.completedTraces(ctx, exceptPlanID)
	if err != nil {
		return nil, err
	}
	return history.Analyze(samples, traces, history.Options{}), nil
}

// markovObservations infers state sequences from the other plans'
// tasks. Completed tasks contribute the full lifecycle path, blocked
// tasks an in-progress/blocked/recovery loop, in-progress tasks one
// planning step. Tasks still waiting contribute nothing.
func (s *Service) markovObservations(ctx context.Context, exceptPlanID string) ([]markov.Observation, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var obs []markov.Observation
	for _, p := range plans {
		if p.ID == exceptPlanID {
			continue
		}
		snap, err := s.store.GetSnapshot(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range snap.Tasks {
			var seq []markov.State
			switch markov.StateOf(t, now) {
			case markov.Completed:
				seq = []markov.State{markov.NotStarted, markov.Planning, markov.InProgress, markov.Completed}
			case markov.Blocked:
				seq = []markov.State{markov.InProgress, markov.Blocked, markov.InProgress}
			case markov.InProgress:
				seq = []markov.State{markov.Planning, markov.InProgress}
			default:
				continue
			}
			obs = append(obs, markov.Observation{TaskID: t.ID, States: seq})
		}
	}
	return obs, nil
}

// completedTraces reconstructs per-plan task sequences from plans whose
// tasks have all reached a terminal state. The current plan is skipped.
func (s *Service) completedTraces(ctx context.Context, exceptPlanID string) ([]history.PlanTrace, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	var traces []history.PlanTrace
	for _, p := range plans {
		if p.ID == exceptPlanID {
			continue
		}
		snap, err := s.store.GetSnapshot(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if len(snap.Tasks) == 0 {
			continue
		}
		tr := history.PlanTrace{PlanID: p.ID}
		terminal := true
		for _, t := range snap.Tasks {
			if !t.Status.Terminal() {
				terminal = false
				break
			}
			if t.Status == domain.StatusCompleted && t.StartAt != nil && t.CompletedAt != nil {
				tr.Tasks = append(tr.Tasks, history.TraceTask{
					Title:       t.Title,
					Bucket:      snap.BucketName(t.BucketID),
					Assignees:   t.Assignees,
					StartAt:     *t.StartAt,
					CompletedAt: *t.CompletedAt,
				})
			}
		}
		if terminal && len(tr.Tasks) > 0 {
			traces = append(traces, tr)
		}
	}
	return traces, nil
}
