// Package attention derives the "needs a look" views over a plan
// snapshot: blockers, overdue, due-soon, due-soon on the critical
// path, and recently changed. All views are pure reads.
package attention

import (
	"sort"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/graph"
)

const (
	// DefaultListBound caps each view's task list.
	DefaultListBound = 20

	dueSoonWindow      = 7 * 24 * time.Hour
	recentFallbackSpan = 24 * time.Hour
)

// View is one attention category: a full count plus a bounded list.
type View struct {
	Count int           `json:"count"`
	Tasks []domain.Task `json:"tasks"`
}

// Report bundles the five views.
type Report struct {
	Blockers        View `json:"blockers"`
	Overdue         View `json:"overdue"`
	DueNext7        View `json:"dueNext7"`
	CriticalDueNext View `json:"criticalDueNext"`
	RecentlyChanged View `json:"recentlyChanged"`
}

// Options tune the derivation.
type Options struct {
	// Now anchors the due-date windows. Zero means time.Now().UTC().
	Now time.Time
	// PreviousSyncAt opens the recently-changed window. Zero falls
	// back to the last 24 hours.
	PreviousSyncAt time.Time
	// ListBound caps each view's list. Zero or negative means
	// DefaultListBound.
	ListBound int
	// OnPath marks tasks on the canonical critical path, for the
	// critical-due-next view. Nil means no tasks are on path.
	OnPath map[string]bool
}

func (o Options) normalized() Options {
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	if o.ListBound <= 0 {
		o.ListBound = DefaultListBound
	}
	return o
}

// Derive computes all five views over the snapshot. The graph supplies
// predecessor links for the blocker rule; a nil graph means no task is
// blocked by its predecessors.
func Derive(snap *domain.Snapshot, g *graph.Graph, opts Options) Report {
	opts = opts.normalized()
	if snap == nil {
		return Report{}
	}

	byID := make(map[string]domain.Task, len(snap.Tasks))
	for _, t := range snap.Tasks {
		byID[t.ID] = t
	}

	var blockers, overdue, due7, cpDue7, recent []domain.Task
	for _, t := range snap.Tasks {
		if isBlocker(t, g, byID) {
			blockers = append(blockers, t)
		}
		switch {
		case isOverdue(t, opts.Now):
			overdue = append(overdue, t)
		case isDueSoon(t, opts.Now):
			due7 = append(due7, t)
			if opts.OnPath[t.ID] {
				cpDue7 = append(cpDue7, t)
			}
		}
		if recentlyChanged(t, opts.Now, opts.PreviousSyncAt) {
			recent = append(recent, t)
		}
	}

	return Report{
		Blockers:        makeView(blockers, opts.ListBound),
		Overdue:         makeView(overdue, opts.ListBound),
		DueNext7:        makeView(due7, opts.ListBound),
		CriticalDueNext: makeView(cpDue7, opts.ListBound),
		RecentlyChanged: makeView(recent, opts.ListBound),
	}
}

func isBlocker(t domain.Task, g *graph.Graph, byID map[string]domain.Task) bool {
	if t.Status == domain.StatusBlocked {
		return true
	}
	if t.Status != domain.StatusNotStarted || g == nil {
		return false
	}
	for _, e := range g.Predecessors(t.ID) {
		if p, ok := byID[e.From]; ok && p.Status != domain.StatusCompleted {
			return true
		}
	}
	return false
}

func isOverdue(t domain.Task, now time.Time) bool {
	if t.DueAt == nil || terminal(t.Status) {
		return false
	}
	return t.DueAt.Before(now)
}

func isDueSoon(t domain.Task, now time.Time) bool {
	if t.DueAt == nil || terminal(t.Status) {
		return false
	}
	due := *t.DueAt
	return !due.Before(now) && !due.After(now.Add(dueSoonWindow))
}

func recentlyChanged(t domain.Task, now, prevSync time.Time) bool {
	if t.ModifiedAt.IsZero() {
		return false
	}
	from := prevSync
	if from.IsZero() {
		from = now.Add(-recentFallbackSpan)
	}
	return !t.ModifiedAt.Before(from) && t.ModifiedAt.Before(now)
}

func terminal(s domain.Status) bool {
	return s == domain.StatusCompleted || s == domain.StatusCancelled
}

// makeView sorts by due ascending with nil dues last, ties broken by
// id, then truncates to bound. Count is taken before truncation.
func makeView(tasks []domain.Task, bound int) View {
	sort.Slice(tasks, func(i, j int) bool {
		di, dj := tasks[i].DueAt, tasks[j].DueAt
		switch {
		case di == nil && dj == nil:
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.Before(*dj)
		}
		return tasks[i].ID < tasks[j].ID
	})
	v := View{Count: len(tasks), Tasks: tasks}
	if len(v.Tasks) > bound {
		v.Tasks = v.Tasks[:bound]
	}
	if v.Tasks == nil {
		v.Tasks = []domain.Task{}
	}
	return v
}
