package workflow

import (
	"sort"

	"prompt-chaining/backend/pkg/models"
)

// Validate checks a node set before it is stored. Checks run in a fixed
// order and the first failure is returned as an *Error.
//
//  1. a node with id "start" exists
//  2. prompts use only {{input}} and {{lastOutput}}
//  3. no node sets both next and condition
//  4. every next target exists
//  5. every condition target exists
//  6. no cycle is reachable from start
func Validate(nodes []models.WorkflowNode) error {
	index := models.IndexNodes(nodes)

	if _, ok := index[models.EntryNodeID]; !ok {
		return &Error{Kind: KindMissingEntryPoint}
	}

	for _, node := range nodes {
		if vars := invalidVariables(node.Prompt); len(vars) > 0 {
			return &Error{Kind: KindInvalidPromptVariable, NodeID: node.ID, Variables: vars}
		}

		if node.HasNext() && node.HasCondition() {
			return &Error{Kind: KindConflictingTransition, NodeID: node.ID}
		}

		if node.HasNext() {
			if _, ok := index[node.Next]; !ok {
				return &Error{Kind: KindDanglingNext, NodeID: node.ID, Target: node.Next}
			}
		}

		for _, key := range sortedKeys(node.Condition) {
			target := node.Condition[key]
			if _, ok := index[target]; !ok {
				return &Error{Kind: KindDanglingCondition, NodeID: node.ID, Key: key, Target: target}
			}
		}
	}

	if HasCycle(BuildGraph(nodes), models.EntryNodeID) {
		return &Error{Kind: KindCycleDetected}
	}

	return nil
}

// Unreachable returns the ids of nodes that no path from start visits, in
// definition order. Such nodes are accepted by Validate but never run.
func Unreachable(nodes []models.WorkflowNode) []string {
	reachable := Reachable(BuildGraph(nodes), models.EntryNodeID)
	var ids []string
	for _, node := range nodes {
		if !reachable[node.ID] {
			ids = append(ids, node.ID)
		}
	}
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
