package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// NodeStatus is the execution state of one node.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeSucceeded NodeStatus = "succeeded"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// IsTerminal reports whether the status can no longer change.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeSucceeded || s == NodeFailed || s == NodeSkipped
}

// ExecutionStatus is the overall state of an execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the execution has settled.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed
}

// ErrInvalidTransition is returned for a status change the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid node status transition")

// NodeState is the recorded state of one node.
type NodeState struct {
	NodeID     string     `json:"node_id"`
	Kind       string     `json:"kind,omitempty"`
	Status     NodeStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Snapshot is an immutable copy of an execution record.
type Snapshot struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	RequesterID string          `json:"requester_id"`
	TriggerData any             `json:"trigger_data,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Nodes       []NodeState     `json:"nodes"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// NodeState returns the state of nodeID in the snapshot.
func (s *Snapshot) NodeState(nodeID string) (NodeState, bool) {
	for _, n := range s.Nodes {
		if n.NodeID == nodeID {
			return n, true
		}
	}
	return NodeState{}, false
}

// Execution is the live, mutable record of one workflow run. It is only
// mutated by the runner.
type Execution struct {
	mu          sync.RWMutex
	id          string
	workflowID  string
	requesterID string
	triggerData any
	order       []string
	nodes       map[string]*NodeState
	status      ExecutionStatus
	err         string
	startedAt   time.Time
	finishedAt  *time.Time
}

// NewExecution creates an execution with every node pending. wf must be
// valid.
func NewExecution(id string, wf *Workflow, requesterID string, triggerData any) (*Execution, error) {
	order, err := wf.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	data, err := normalize(triggerData)
	if err != nil {
		return nil, fmt.Errorf("trigger data: %w", err)
	}

	e := &Execution{
		id:          id,
		workflowID:  wf.ID,
		requesterID: requesterID,
		triggerData: data,
		order:       order,
		nodes:       make(map[string]*NodeState, len(order)),
		status:      ExecutionRunning,
		startedAt:   time.Now().UTC(),
	}
	for _, n := range wf.Nodes {
		e.nodes[n.ID] = &NodeState{NodeID: n.ID, Kind: n.Kind, Status: NodePending}
	}
	return e, nil
}

// ID returns the execution id.
func (e *Execution) ID() string { return e.id }

// Status returns the overall status.
func (e *Execution) Status() ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// TriggerData returns a copy of the trigger payload.
func (e *Execution) TriggerData() any {
	return cloneValue(e.triggerData)
}

// Node returns a copy of a node's state.
func (e *Execution) Node(nodeID string) (NodeState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nodes[nodeID]
	if !ok {
		return NodeState{}, false
	}
	return copyState(n), true
}

// Output returns a read-only copy of a succeeded node's output.
func (e *Execution) Output(nodeID string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nodes[nodeID]
	if !ok || n.Status != NodeSucceeded {
		return nil, false
	}
	return cloneValue(n.Output), true
}

// Start moves a node from pending to running.
func (e *Execution) Start(nodeID string) error {
	return e.transition(nodeID, func(n *NodeState, now time.Time) error {
		if n.Status != NodePending {
			return invalid(nodeID, n.Status, NodeRunning)
		}
		n.Status = NodeRunning
		n.StartedAt = &now
		return nil
	})
}

// Succeed records the output of a running node. The output is normalized
// to plain JSON values and stored as an immutable copy.
func (e *Execution) Succeed(nodeID string, output any) error {
	data, err := normalize(output)
	if err != nil {
		return fmt.Errorf("node %s output: %w", nodeID, err)
	}
	return e.transition(nodeID, func(n *NodeState, now time.Time) error {
		if n.Status != NodeRunning {
			return invalid(nodeID, n.Status, NodeSucceeded)
		}
		n.Status = NodeSucceeded
		n.Output = data
		n.FinishedAt = &now
		return nil
	})
}

// Fail marks a running or pending node as failed.
func (e *Execution) Fail(nodeID string, reason string) error {
	return e.transition(nodeID, func(n *NodeState, now time.Time) error {
		if n.Status != NodeRunning && n.Status != NodePending {
			return invalid(nodeID, n.Status, NodeFailed)
		}
		n.Status = NodeFailed
		n.Error = reason
		n.FinishedAt = &now
		return nil
	})
}

// Skip marks a pending node as skipped without running it.
func (e *Execution) Skip(nodeID string, reason string) error {
	return e.transition(nodeID, func(n *NodeState, now time.Time) error {
		if n.Status != NodePending {
			return invalid(nodeID, n.Status, NodeSkipped)
		}
		n.Status = NodeSkipped
		n.Error = reason
		n.FinishedAt = &now
		return nil
	})
}

// Finish settles the overall status once every node is terminal. The
// execution succeeds only if every node succeeded.
func (e *Execution) Finish(reason string) (ExecutionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.IsTerminal() {
		return e.status, fmt.Errorf("execution %s already finished", e.id)
	}
	status := ExecutionSucceeded
	for _, id := range e.order {
		n := e.nodes[id]
		if !n.Status.IsTerminal() {
			return e.status, fmt.Errorf("execution %s: node %s is still %s", e.id, id, n.Status)
		}
		if n.Status != NodeSucceeded {
			status = ExecutionFailed
		}
	}
	if status == ExecutionFailed {
		if reason == "" {
			reason = e.firstFailureLocked()
		}
		e.err = reason
	}
	now := time.Now().UTC()
	e.status = status
	e.finishedAt = &now
	return status, nil
}

func (e *Execution) firstFailureLocked() string {
	for _, id := range e.order {
		if n := e.nodes[id]; n.Status == NodeFailed {
			return fmt.Sprintf("node %s failed: %s", id, n.Error)
		}
	}
	return "one or more nodes did not succeed"
}

// Snapshot returns an immutable copy of the execution record with nodes in
// topological order.
func (e *Execution) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nodes := make([]NodeState, 0, len(e.order))
	for _, id := range e.order {
		nodes = append(nodes, copyState(e.nodes[id]))
	}
	s := Snapshot{
		ID:          e.id,
		WorkflowID:  e.workflowID,
		RequesterID: e.requesterID,
		TriggerData: cloneValue(e.triggerData),
		Status:      e.status,
		Error:       e.err,
		Nodes:       nodes,
		StartedAt:   e.startedAt,
	}
	if e.finishedAt != nil {
		t := *e.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.TriggerData = cloneValue(s.TriggerData)
	out.Nodes = make([]NodeState, len(s.Nodes))
	for i := range s.Nodes {
		out.Nodes[i] = copyState(&s.Nodes[i])
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

func (e *Execution) transition(nodeID string, apply func(*NodeState, time.Time) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.IsTerminal() {
		return fmt.Errorf("%w: execution %s is %s", ErrInvalidTransition, e.id, e.status)
	}
	n, ok := e.nodes[nodeID]
	if !ok {
		return fmt.Errorf("unknown node %s", nodeID)
	}
	return apply(n, time.Now().UTC())
}

func invalid(nodeID string, from, to NodeStatus) error {
	return fmt.Errorf("%w: node %s %s -> %s", ErrInvalidTransition, nodeID, from, to)
}

func copyState(n *NodeState) NodeState {
	out := *n
	out.Output = cloneValue(n.Output)
	if n.StartedAt != nil {
		t := *n.StartedAt
		out.StartedAt = &t
	}
	if n.FinishedAt != nil {
		t := *n.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// normalize converts v to plain JSON values (map[string]any, []any, string,
// float64, bool, nil) so it can be persisted and deep-copied.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cloneValue deep-copies a normalized value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
