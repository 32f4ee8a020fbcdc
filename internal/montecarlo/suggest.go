package montecarlo

import (
	"fmt"

	"github.com/congresstwin/congresstwin/internal/domain"
)

// Suggestion is one agent recommendation derived from the simulation.
type Suggestion struct {
	ID         string `json:"id"`
	Type       string `json:"type"`     // enhancement | modification
	Priority   string `json:"priority"` // high | medium | low
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	TaskID     string `json:"taskId,omitempty"`
	ActionHint string `json:"actionHint"`
}

// suggest derives recommendations from the aggregated result, keyed on
// the on-time probability and the bottleneck ranking.
func suggest(res *Result, snap *domain.Snapshot) []Suggestion {
	var out []Suggestion

	if res.ProbabilityOnTimePercent < 70 && len(res.Bottlenecks) > 0 {
		top := res.Bottlenecks[0]
		out = append(out, Suggestion{
			ID:       "s1",
			Type:     "enhancement",
			Priority: "high",
			Title:    "Add buffer to highest-variance task",
			Detail: fmt.Sprintf("Task %q (%s) varies by ±%.1f days across runs. Add a 1-2 day buffer or parallel prep to protect the event date.",
				top.Title, top.TaskID, top.StdDevDays),
			TaskID:     top.TaskID,
			ActionHint: "Consider shifting a predecessor or adding a backup owner.",
		})
	}

	if res.ProbabilityOnTimePercent < 85 {
		out = append(out, Suggestion{
			ID:       "s2",
			Type:     "modification",
			Priority: "medium",
			Title:    "Tighten due dates on non-critical tasks",
			Detail: fmt.Sprintf("On-time probability is %.0f%%. Bringing forward due dates off the critical path creates slack where it matters.",
				res.ProbabilityOnTimePercent),
			ActionHint: "Review the slack column in the critical-path view.",
		})
	}

	cpTasks := 0
	for _, p := range res.CPProbability {
		if p >= 0.5 {
			cpTasks++
		}
	}
	if cpTasks >= 4 {
		out = append(out, Suggestion{
			ID:       "s3",
			Type:     "enhancement",
			Priority: "medium",
			Title:    "Parallelize where possible",
			Detail: fmt.Sprintf("%d tasks dominate the simulated critical path. Some may be able to start earlier and run in parallel.",
				cpTasks),
			ActionHint: "Check the dependency graph for tasks that can start earlier.",
		})
	}

	if len(snap.Tasks) > 0 {
		out = append(out, Suggestion{
			ID:         "s4",
			Type:       "modification",
			Priority:   "low",
			Title:      "Re-run after the next sync",
			Detail:     "Percent complete and due dates shift between syncs; a fresh run reflects the latest state.",
			ActionHint: "Sync the plan, then rerun the simulation.",
		})
	}

	return out
}
