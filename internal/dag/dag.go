// Package dag provides directed graph operations for formula dependencies.
// It supports cycle enumeration and deterministic topological sorting.
package dag

import (
	"fmt"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (hierarchy node ID)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph represents a directed graph of dependencies. An edge A -> B means
// "A depends on B" (B must be evaluated before A).
type Graph struct {
	nodes map[string]*Node
	deps  map[string][]string // node -> dependencies
	rdeps map[string][]string // node -> dependents
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		deps:  make(map[string][]string),
		rdeps: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data any) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.deps[id] = []string{}
		g.rdeps[id] = []string{}
	} else {
		g.nodes[id].Data = data
	}
}

// AddEdge records that `from` depends on `to`.
func (g *Graph) AddEdge(from, to string) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("node %q does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("node %q does not exist", to)
	}
	if from == to {
		return fmt.Errorf("self-loop detected: %s", from)
	}
	if !contains(g.deps[from], to) {
		g.deps[from] = append(g.deps[from], to)
	}
	if !contains(g.rdeps[to], from) {
		g.rdeps[to] = append(g.rdeps[to], from)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Dependencies returns the dependencies of a node.
func (g *Graph) Dependencies(id string) []string {
	return g.deps[id]
}

// Dependents returns the nodes that depend on the given node.
func (g *Graph) Dependents(id string) []string {
	return g.rdeps[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Cycles enumerates dependency cycles using DFS with a recursion stack.
// One cycle is reported per re-entry point discovered; the result is sorted
// by the first node of each cycle so callers can report deterministically.
func (g *Graph) Cycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range sorted(g.deps[id]) {
			if !visited[dep] {
				dfs(dep)
			} else if onStack[dep] {
				// Reconstruct the cycle from the stack.
				at := 0
				for i, sid := range stack {
					if sid == dep {
						at = i
						break
					}
				}
				cycle := make([]string, len(stack)-at)
				copy(cycle, stack[at:])
				cycles = append(cycles, cycle)
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			dfs(id)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// TopologicalSort returns nodes ordered so every dependency precedes its
// dependents, using Kahn's algorithm. Ties are broken by node ID so the
// order is stable across calls and machines. Returns an error naming the
// first cycle if the graph is not acyclic.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.deps[id])
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		var unlocked []string
		for _, dep := range g.rdeps[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		// Merge newly ready nodes keeping the queue sorted.
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(result) != len(g.nodes) {
		// Edges remain after the sort completed: a cycle.
		if cycles := g.Cycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("cycle detected: %v", cycles[0])
		}
		return nil, fmt.Errorf("cycle detected among %d unsorted nodes", len(g.nodes)-len(result))
	}
	return result, nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
