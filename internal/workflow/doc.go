// Package workflow validates prompt-chaining definitions and runs them.
//
// A definition is a set of nodes, each holding a prompt template and an
// optional transition: an unconditional next node, or a condition map that
// selects the next node by the exact trimmed completion text. Execution
// always begins at the node with id "start" and ends at the first node
// without a transition.
package workflow
