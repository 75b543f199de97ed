package plan

import (
	"sort"

	"github.com/repoforge/bootstrap/internal/errors"
)

// Graph is the dependency graph of one phase's steps, stored as an index
// arena: nodes are slice positions, edges are index lists. Built once at
// planning time and read-only afterwards, so the executor can consult it
// from multiple goroutines without locking.
type Graph struct {
	steps   []*Step
	index   map[string]int
	edges   [][]int // edges[i] = indexes step i depends on
	reverse [][]int // reverse[i] = indexes that depend on step i
}

// NewGraph builds the graph for a phase. Edges referencing unknown step ids
// return an error; acyclicity is checked separately by Acyclic so planning
// can report cycles before any subprocess runs.
func NewGraph(phase Phase) (*Graph, error) {
	g := &Graph{
		steps:   phase.Steps,
		index:   make(map[string]int, len(phase.Steps)),
		edges:   make([][]int, len(phase.Steps)),
		reverse: make([][]int, len(phase.Steps)),
	}
	for i, step := range phase.Steps {
		g.index[step.ID] = i
	}
	for i, step := range phase.Steps {
		for _, dep := range step.DependsOn {
			j, ok := g.index[dep]
			if !ok {
				return nil, errors.Wrapf(errors.ErrUnknownTool, "step %s depends on unknown step %s", step.ID, dep)
			}
			g.edges[i] = append(g.edges[i], j)
			g.reverse[j] = append(g.reverse[j], i)
		}
	}
	return g, nil
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.steps) }

// Step returns the step at index i.
func (g *Graph) Step(i int) *Step { return g.steps[i] }

// Acyclic verifies the graph has no dependency cycles using a three-color
// depth-first walk. Returns ErrCyclicDependency naming a step on the cycle.
func (g *Graph) Acyclic() error {
	const (
		white = iota // unvisited
		gray         // on the current walk
		black        // fully explored
	)
	color := make([]int, len(g.steps))

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		for _, j := range g.edges[i] {
			switch color[j] {
			case gray:
				return errors.Wrapf(errors.ErrCyclicDependency, "involving %q", g.steps[j].ID)
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		color[i] = black
		return nil
	}

	for i := range g.steps {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Levels returns the steps grouped into topological levels via Kahn's
// algorithm: level 0 holds steps with no dependencies, level N holds steps
// whose dependencies all sit in earlier levels. Ties within a level are
// broken by step id, which makes scheduling order deterministic. Call
// Acyclic first; Levels silently drops steps trapped on a cycle.
func (g *Graph) Levels() [][]*Step {
	remaining := make([]int, len(g.steps)) // unmet dependency count
	for i := range g.steps {
		remaining[i] = len(g.edges[i])
	}

	done := make([]bool, len(g.steps))
	var levels [][]*Step
	for {
		var ready []int
		for i := range g.steps {
			if !done[i] && remaining[i] == 0 {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			return levels
		}
		sort.Slice(ready, func(a, b int) bool {
			return g.steps[ready[a]].ID < g.steps[ready[b]].ID
		})

		level := make([]*Step, len(ready))
		for n, i := range ready {
			level[n] = g.steps[i]
			done[i] = true
			for _, j := range g.reverse[i] {
				remaining[j]--
			}
		}
		levels = append(levels, level)
	}
}

// Dependents returns the transitive closure of steps that depend on the
// given step id, the set to cascade-skip when it fails.
func (g *Graph) Dependents(id string) []*Step {
	start, ok := g.index[id]
	if !ok {
		return nil
	}

	seen := make(map[int]bool)
	queue := []int{start}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range g.reverse[i] {
			if !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}

	var out []*Step
	for i := range seen {
		out = append(out, g.steps[i])
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}
