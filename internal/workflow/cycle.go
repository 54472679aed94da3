package workflow

import "prompt-chaining/backend/pkg/models"

// Graph is an adjacency list keyed by node id.
type Graph map[string][]string

// BuildGraph derives the transition graph of nodes.
func BuildGraph(nodes []models.WorkflowNode) Graph {
	graph := make(Graph, len(nodes))
	for _, node := range nodes {
		graph[node.ID] = node.Targets()
	}
	return graph
}

// HasCycle reports whether a cycle is reachable from startID. Nodes that
// cannot be reached from startID are never inspected.
func HasCycle(graph Graph, startID string) bool {
	visited := make(map[string]bool, len(graph))
	onStack := make(map[string]bool)

	var dfs func(id string) bool
	dfs = func(id string) bool {
		targets, ok := graph[id]
		if !ok {
			return false
		}
		if onStack[id] {
			return true
		}
		if visited[id] {
			return false
		}

		visited[id] = true
		onStack[id] = true
		for _, target := range targets {
			if dfs(target) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	return dfs(startID)
}

// Reachable returns the set of ids reachable from startID, startID included
// when it is present in graph.
func Reachable(graph Graph, startID string) map[string]bool {
	seen := make(map[string]bool, len(graph))
	stack := []string{startID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		targets, ok := graph[id]
		if !ok {
			continue
		}
		seen[id] = true
		stack = append(stack, targets...)
	}
	return seen
}
