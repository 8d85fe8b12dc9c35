// Package dag implements the artifact dependency graph as two plain
// maps keyed by artifact id, rather than a graph of pointer-linked
// nodes: an arena of ids plus adjacency sets, so the structure stays
// trivially serialisable and comparable in tests.
package dag

import (
	"sort"
	"sync"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

// DAG is the compiled dependency graph over artifact ids. dependsOn[id]
// is the set of ids that id requires; dependents[id] is its reverse
// index, the set of ids that require id.
type DAG struct {
	dependsOn  map[string]map[string]struct{}
	dependents map[string]map[string]struct{}
}

// New returns an empty graph.
func New() *DAG {
	return &DAG{
		dependsOn:  make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
}

// AddNode registers id with no dependencies if it is not already present.
func (d *DAG) AddNode(id string) {
	if _, ok := d.dependsOn[id]; !ok {
		d.dependsOn[id] = make(map[string]struct{})
	}
	if _, ok := d.dependents[id]; !ok {
		d.dependents[id] = make(map[string]struct{})
	}
}

// AddEdge records that id depends on requires. Both ids are
// registered as nodes if not already present.
func (d *DAG) AddEdge(id, requires string) {
	d.AddNode(id)
	d.AddNode(requires)
	d.dependsOn[id][requires] = struct{}{}
	d.dependents[requires][id] = struct{}{}
}

// Nodes returns every registered id in sorted order.
func (d *DAG) Nodes() []string {
	ids := make([]string, 0, len(d.dependsOn))
	for id := range d.dependsOn {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DependsOn returns the sorted set of ids id directly requires.
func (d *DAG) DependsOn(id string) []string {
	return sortedKeys(d.dependsOn[id])
}

// Dependents returns the sorted set of ids that directly require id.
func (d *DAG) Dependents(id string) []string {
	return sortedKeys(d.dependents[id])
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate walks the graph with a recursion-stack DFS and returns a
// CycleError naming the cycle path the first time one is found.
func (d *DAG) Validate() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(d.dependsOn))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			cycle := append(append([]string{}, stack...), id)
			return orcherrors.NewCycleError(cycle)
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range d.DependsOn(id) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		return nil
	}

	for _, id := range d.Nodes() {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sorter drives Kahn's algorithm incrementally: the executor asks for
// the currently-ready ids, dispatches them, and reports completion one
// at a time as worker slots free up.
type Sorter struct {
	mu         sync.Mutex
	dependsOn  map[string]map[string]struct{}
	dependents map[string]map[string]struct{}
	indegree   map[string]int
	dispatched map[string]bool
	remaining  int
}

// CreateSorter snapshots the graph into a fresh incremental sorter.
// The DAG itself is not mutated by subsequent Sorter calls.
func (d *DAG) CreateSorter() *Sorter {
	s := &Sorter{
		dependsOn:  make(map[string]map[string]struct{}, len(d.dependsOn)),
		dependents: make(map[string]map[string]struct{}, len(d.dependents)),
		indegree:   make(map[string]int, len(d.dependsOn)),
		dispatched: make(map[string]bool, len(d.dependsOn)),
	}
	for id, deps := range d.dependsOn {
		cp := make(map[string]struct{}, len(deps))
		for dep := range deps {
			cp[dep] = struct{}{}
		}
		s.dependsOn[id] = cp
		s.indegree[id] = len(deps)
	}
	for id, deps := range d.dependents {
		cp := make(map[string]struct{}, len(deps))
		for dep := range deps {
			cp[dep] = struct{}{}
		}
		s.dependents[id] = cp
	}
	s.remaining = len(d.dependsOn)
	return s
}

// GetReady returns, in deterministic sorted order, every id whose
// indegree has reached zero and that has not already been returned by
// a prior call. Each id is returned at most once across the sorter's
// lifetime.
func (s *Sorter) GetReady() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []string
	for id, deg := range s.indegree {
		if deg == 0 && !s.dispatched[id] {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	for _, id := range ready {
		s.dispatched[id] = true
	}
	return ready
}

// Done marks id complete and decrements the indegree of every id that
// depended on it, potentially making new ids ready.
func (s *Sorter) Done(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for dependent := range s.dependents[id] {
		s.indegree[dependent]--
	}
	s.remaining--
}

// IsActive reports whether any node remains that has not been marked
// done, meaning the executor's dispatch loop must keep running.
func (s *Sorter) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining > 0
}
