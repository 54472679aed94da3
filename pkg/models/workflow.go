package models

import (
	"time"
)

// EntryNodeID is the id every workflow starts from.
const EntryNodeID = "start"

// WorkflowNode is a single step of a prompt chain.
type WorkflowNode struct {
	ID        string            `json:"id" yaml:"id" bson:"id"`
	Prompt    string            `json:"prompt" yaml:"prompt" bson:"prompt"`
	Next      string            `json:"next,omitempty" yaml:"next,omitempty" bson:"next,omitempty"`
	Condition map[string]string `json:"condition" yaml:"condition" bson:"condition"`
}

// HasNext reports whether the node has an unconditional successor.
func (n WorkflowNode) HasNext() bool {
	return n.Next != ""
}

// HasCondition reports whether the node branches on the completion text.
// A present but empty condition map counts as set and matches no output.
func (n WorkflowNode) HasCondition() bool {
	return n.Condition != nil
}

// IsTerminal reports whether the run ends after this node.
func (n WorkflowNode) IsTerminal() bool {
	return !n.HasNext() && !n.HasCondition()
}

// Targets returns the ids this node can transition to. Condition targets
// take precedence over next.
func (n WorkflowNode) Targets() []string {
	if n.HasCondition() {
		targets := make([]string, 0, len(n.Condition))
		for _, target := range n.Condition {
			targets = append(targets, target)
		}
		return targets
	}
	if n.HasNext() {
		return []string{n.Next}
	}
	return nil
}

// Workflow is the stored definition of a prompt chain. Only the latest one
// is ever used.
type Workflow struct {
	ID        string         `json:"id"`
	Nodes     []WorkflowNode `json:"nodes"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NodeIndex maps node ids to nodes. When ids repeat, the last node wins.
func (w *Workflow) NodeIndex() map[string]WorkflowNode {
	return IndexNodes(w.Nodes)
}

// IndexNodes builds an id lookup for nodes.
func IndexNodes(nodes []WorkflowNode) map[string]WorkflowNode {
	index := make(map[string]WorkflowNode, len(nodes))
	for _, node := range nodes {
		index[node.ID] = node
	}
	return index
}
