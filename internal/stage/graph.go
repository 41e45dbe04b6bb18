// Package stage resolves the target build stage and its dependency graph
// from a parsed Dockerfile, per the stage resolution and COPY --from
// provenance rules.
package stage

import (
	"fmt"

	"github.com/wharflab/dgossgen/internal/dockerfile"
)

// Graph is the dependency DAG between stages: an edge from A to B means A
// copies from B (COPY --from=B, or FROM B AS A). Built once per Dockerfile
// and never mutated afterward.
type Graph struct {
	edges        map[int][]int
	reverseEdges map[int][]int
	externalRefs map[int][]string
	stageCount   int
}

// CycleError reports a dependency cycle among stages. Docker's own grammar
// makes this structurally unreachable (a stage can only reference aliases
// declared strictly before it), but spec treats a cycle as a fatal
// parse-time error rather than an assumption, so it is still detected.
type CycleError struct {
	Stages []int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("stage dependency cycle detected involving stages %v", e.Stages)
}

// BuildGraph constructs the dependency graph for stages, resolving each
// FROM base and each COPY/ADD --from= reference against the stages' aliases.
func BuildGraph(stages []dockerfile.Stage) (*Graph, error) {
	g := &Graph{
		edges:        make(map[int][]int),
		reverseEdges: make(map[int][]int),
		externalRefs: make(map[int][]string),
		stageCount:   len(stages),
	}

	byName := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.Name != "" {
			byName[s.Name] = i
		}
	}

	for i, s := range stages {
		if idx, ok := resolveStageRef(s.Base.Image, byName); ok {
			g.addEdge(idx, i)
		} else if s.Base.Image != "" {
			g.addExternalRef(i, s.Base.Image)
		}

		for _, instr := range s.Instructions {
			if instr.Kind != dockerfile.KindCopy && instr.Kind != dockerfile.KindAdd {
				continue
			}
			if instr.Copy == nil || instr.Copy.FromStage == "" {
				continue
			}
			if idx, ok := resolveStageRef(instr.Copy.FromStage, byName); ok {
				g.addEdge(idx, i)
			} else {
				g.addExternalRef(i, instr.Copy.FromStage)
			}
		}
	}

	if cyc := g.findCycle(); cyc != nil {
		return nil, &CycleError{Stages: cyc}
	}

	return g, nil
}

func resolveStageRef(ref string, byName map[string]int) (int, bool) {
	idx, ok := byName[ref]
	return idx, ok
}

func (g *Graph) addEdge(fromStage, toStage int) {
	g.edges[toStage] = append(g.edges[toStage], fromStage)
	g.reverseEdges[fromStage] = append(g.reverseEdges[fromStage], toStage)
}

func (g *Graph) addExternalRef(stageIndex int, ref string) {
	g.externalRefs[stageIndex] = append(g.externalRefs[stageIndex], ref)
}

// findCycle runs a three-color DFS over the edges map and returns the
// stages on the first cycle found, or nil if the graph is acyclic.
func (g *Graph) findCycle() []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, g.stageCount)
	var path []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		path = append(path, n)
		for _, dep := range g.edges[n] {
			switch color[dep] {
			case gray:
				cycle = append(append([]int(nil), path...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	for i := range g.stageCount {
		if color[i] == white {
			if visit(i) {
				return cycle
			}
		}
	}
	return nil
}

// DependsOn reports whether stageA depends on stageB, directly or
// transitively, via COPY --from or FROM.
func (g *Graph) DependsOn(stageA, stageB int) bool {
	visited := make(map[int]bool)
	queue := []int{stageA}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, dep := range g.edges[cur] {
			if dep == stageB {
				return true
			}
			if !visited[dep] {
				queue = append(queue, dep)
			}
		}
	}
	return false
}

// DirectDependencies returns the stages stageIndex directly copies from.
func (g *Graph) DirectDependencies(stageIndex int) []int {
	return g.edges[stageIndex]
}

// DirectDependents returns the stages that directly copy from stageIndex.
func (g *Graph) DirectDependents(stageIndex int) []int {
	return g.reverseEdges[stageIndex]
}

// ExternalRefs returns the external image references made within stageIndex.
func (g *Graph) ExternalRefs(stageIndex int) []string {
	return g.externalRefs[stageIndex]
}

// StageCount returns the total number of stages in the graph.
func (g *Graph) StageCount() int {
	return g.stageCount
}
