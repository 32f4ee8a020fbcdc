// Package graph builds the per-plan dependency DAG used by the
// critical-path engine, the Monte Carlo simulator and the impact
// analyzer. Node order is deterministic: Kahn's algorithm with ties
// broken by ascending task id, so isolated tasks sort by id.
package graph

import (
	"container/heap"
	"sort"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

// Edge is one typed dependency inside the graph. All four dependency
// types contribute a precedence edge predecessor → successor; the type
// only changes which endpoints the scheduling constraint binds (see the
// critical-path engine).
type Edge struct {
	From string
	To   string
	Type domain.DependencyType
}

// Graph is an immutable adjacency view over one plan's tasks and
// dependencies.
type Graph struct {
	ids   []string
	index map[string]int
	succ  map[string][]Edge
	pred  map[string][]Edge
	topo  []string

	// Excluded holds edges dropped during a repairing build because
	// they closed a cycle. Empty after a strict Build.
	Excluded []domain.Dependency
}

// Build constructs the DAG from tasks and dependencies. Edges whose
// endpoints are not in tasks are rejected as validation errors. A cycle
// fails the build with CycleDetected carrying the node ids on the cycle.
func Build(tasks []domain.Task, deps []domain.Dependency) (*Graph, error) {
	g, err := assemble(tasks, deps)
	if err != nil {
		return nil, err
	}
	order, residual := g.kahn()
	if len(residual) > 0 {
		return nil, errors.NewCycleDetected(g.extractCycle(residual))
	}
	g.topo = order
	return g, nil
}

// BuildRepaired constructs the DAG like Build but never fails on
// cycles: offending edges are excluded one at a time until the rest is
// acyclic, and the dropped edges are reported on Graph.Excluded. Used
// on the read path where a corrupt store must still produce a usable
// snapshot.
func BuildRepaired(tasks []domain.Task, deps []domain.Dependency) (*Graph, error) {
	kept := append([]domain.Dependency(nil), deps...)
	var excluded []domain.Dependency
	for {
		g, err := assemble(tasks, kept)
		if err != nil {
			return nil, err
		}
		order, residual := g.kahn()
		if len(residual) == 0 {
			g.topo = order
			g.Excluded = excluded
			return g, nil
		}
		cycle := g.extractCycle(residual)
		drop := pickCycleEdge(kept, cycle)
		excluded = append(excluded, kept[drop])
		kept = append(kept[:drop], kept[drop+1:]...)
	}
}

func assemble(tasks []domain.Task, deps []domain.Dependency) (*Graph, error) {
	g := &Graph{
		ids:   make([]string, 0, len(tasks)),
		index: make(map[string]int, len(tasks)),
		succ:  make(map[string][]Edge, len(tasks)),
		pred:  make(map[string][]Edge, len(tasks)),
	}
	for _, t := range tasks {
		if _, dup := g.index[t.ID]; dup {
			return nil, errors.Newf(errors.KindValidation, errors.ErrCodeTaskInvalid, "duplicate task id %s", t.ID)
		}
		g.index[t.ID] = len(g.ids)
		g.ids = append(g.ids, t.ID)
	}
	sort.Strings(g.ids)
	for i, id := range g.ids {
		g.index[id] = i
	}
	for _, d := range deps {
		if _, ok := g.index[d.PredecessorID]; !ok {
			return nil, errors.NewTaskNotFound(d.PlanID, d.PredecessorID)
		}
		if _, ok := g.index[d.SuccessorID]; !ok {
			return nil, errors.NewTaskNotFound(d.PlanID, d.SuccessorID)
		}
		e := Edge{From: d.PredecessorID, To: d.SuccessorID, Type: d.Type}
		g.succ[d.PredecessorID] = append(g.succ[d.PredecessorID], e)
		g.pred[d.SuccessorID] = append(g.pred[d.SuccessorID], e)
	}
	for id := range g.succ {
		es := g.succ[id]
		sort.Slice(es, func(i, j int) bool { return es[i].To < es[j].To })
	}
	for id := range g.pred {
		es := g.pred[id]
		sort.Slice(es, func(i, j int) bool { return es[i].From < es[j].From })
	}
	return g, nil
}

// kahn returns the deterministic topological order and the ids left
// with unresolved predecessors (non-empty iff the graph has a cycle).
func (g *Graph) kahn() ([]string, []string) {
	indeg := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indeg[id] = len(g.pred[id])
	}

	ready := &idHeap{}
	for _, id := range g.ids {
		if indeg[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, e := range g.succ[id] {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				heap.Push(ready, e.To)
			}
		}
	}

	if len(order) == len(g.ids) {
		return order, nil
	}
	residual := make([]string, 0, len(g.ids)-len(order))
	for _, id := range g.ids {
		if indeg[id] > 0 {
			residual = append(residual, id)
		}
	}
	return order, residual
}

// extractCycle walks predecessor links inside the residual subgraph
// until a node repeats, then returns the ids on that cycle sorted
// ascending.
func (g *Graph) extractCycle(residual []string) []string {
	inResidual := make(map[string]bool, len(residual))
	for _, id := range residual {
		inResidual[id] = true
	}

	seen := make(map[string]int)
	path := []string{residual[0]}
	seen[residual[0]] = 0
	cur := residual[0]
	for {
		next := ""
		for _, e := range g.pred[cur] {
			if inResidual[e.From] {
				next = e.From
				break
			}
		}
		if at, ok := seen[next]; ok {
			cycle := append([]string(nil), path[at:]...)
			sort.Strings(cycle)
			return cycle
		}
		seen[next] = len(path)
		path = append(path, next)
		cur = next
	}
}

// pickCycleEdge returns the index in deps of the lexicographically
// largest edge joining two cycle nodes, so repair is deterministic.
func pickCycleEdge(deps []domain.Dependency, cycle []string) int {
	on := make(map[string]bool, len(cycle))
	for _, id := range cycle {
		on[id] = true
	}
	best := -1
	for i, d := range deps {
		if !on[d.PredecessorID] || !on[d.SuccessorID] {
			continue
		}
		if best < 0 || d.PredecessorID > deps[best].PredecessorID ||
			(d.PredecessorID == deps[best].PredecessorID && d.SuccessorID > deps[best].SuccessorID) {
			best = i
		}
	}
	return best
}

// Contains reports whether id is a node of the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns all node ids in ascending order.
func (g *Graph) IDs() []string { return g.ids }

// TopoOrder returns the deterministic topological order.
func (g *Graph) TopoOrder() []string { return g.topo }

// Successors returns the outgoing edges of id, ordered by target id.
func (g *Graph) Successors(id string) []Edge { return g.succ[id] }

// Predecessors returns the incoming edges of id, ordered by source id.
func (g *Graph) Predecessors(id string) []Edge { return g.pred[id] }

// HasEdge reports whether a pred → succ edge of any type exists.
func (g *Graph) HasEdge(pred, succ string) bool {
	for _, e := range g.succ[pred] {
		if e.To == succ {
			return true
		}
	}
	return false
}

// Downstream returns the transitive successor closure of id, excluding
// id itself, sorted ascending.
func (g *Graph) Downstream(id string) []string {
	return g.closure(id, g.succ, func(e Edge) string { return e.To })
}

// Upstream returns the transitive predecessor closure of id, excluding
// id itself, sorted ascending.
func (g *Graph) Upstream(id string) []string {
	return g.closure(id, g.pred, func(e Edge) string { return e.From })
}

func (g *Graph) closure(id string, adj map[string][]Edge, next func(Edge) string) []string {
	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range adj[cur] {
			n := next(e)
			if !visited[n] {
				visited[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Reaches reports whether to is reachable from from following
// successor edges. Used by the mutation core to refuse cycle-closing
// dependency additions.
func (g *Graph) Reaches(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.succ[cur] {
			if e.To == to {
				return true
			}
			if !visited[e.To] {
				visited[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

type idHeap []string

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)         { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
