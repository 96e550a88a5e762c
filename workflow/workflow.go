package workflow

import (
	"fmt"
	"time"

	"github.com/BaSui01/autoflow/types"
)

// Workflow is a validated acyclic graph of nodes. The runner only reads it.
type Workflow struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Nodes       []Node `json:"nodes"`
	// TimeoutMs bounds the whole execution. Zero selects the runner default.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// Node is one unit of work in a workflow.
type Node struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	DependsOn []string       `json:"depends_on,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	// TimeoutMs bounds this node. Zero selects the runner default.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// Timeout returns the workflow timeout or zero.
func (w *Workflow) Timeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// Timeout returns the node timeout or zero.
func (n *Node) Timeout() time.Duration {
	return time.Duration(n.TimeoutMs) * time.Millisecond
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks identity fields and the dependency graph.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return types.NewValidationError("workflow id is required")
	}
	if w.OwnerID == "" {
		return types.NewValidationError("workflow owner is required")
	}
	if len(w.Nodes) == 0 {
		return types.NewValidationError("workflow must have at least one node")
	}
	if w.TimeoutMs < 0 {
		return types.NewValidationError("workflow timeout must not be negative")
	}

	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return types.NewValidationError("node id is required")
		}
		if n.Kind == "" {
			return types.NewValidationError(fmt.Sprintf("node %s: kind is required", n.ID))
		}
		if n.TimeoutMs < 0 {
			return types.NewValidationError(fmt.Sprintf("node %s: timeout must not be negative", n.ID))
		}
		if seen[n.ID] {
			return types.NewValidationError(fmt.Sprintf("duplicate node id %s", n.ID))
		}
		seen[n.ID] = true
	}
	for _, n := range w.Nodes {
		for _, dep := range n.DependsOn {
			if dep == n.ID {
				return types.NewValidationError(fmt.Sprintf("node %s depends on itself", n.ID))
			}
			if !seen[dep] {
				return types.NewValidationError(fmt.Sprintf("node %s depends on unknown node %s", n.ID, dep))
			}
		}
	}

	_, err := w.TopologicalOrder()
	return err
}

// TopologicalOrder returns node ids so that every node follows its
// dependencies. Ties keep declaration order. A cycle is a validation error.
func (w *Workflow) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(w.Nodes))
	dependents := make(map[string][]string, len(w.Nodes))
	for _, n := range w.Nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		for _, dep := range uniq(n.DependsOn) {
			inDegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	queue := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(w.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(inDegree) {
		return nil, types.NewValidationError("workflow contains a dependency cycle")
	}
	return order, nil
}

func uniq(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
