package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// testWorkflowStore is a map-backed WorkflowStore.
type testWorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*Workflow
	err       error
}

func newTestWorkflowStore(wfs ...*Workflow) *testWorkflowStore {
	s := &testWorkflowStore{workflows: map[string]*Workflow{}}
	for _, wf := range wfs {
		s.workflows[wf.ID] = wf
	}
	return s
}

func (s *testWorkflowStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// nodeEvent records a status write observed by the execution store.
type nodeEvent struct {
	node   string
	status NodeStatus
}

// testExecutionStore keeps snapshots and the order of node writes.
type testExecutionStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
	events    map[string][]nodeEvent
	createErr error
}

func newTestExecutionStore() *testExecutionStore {
	return &testExecutionStore{
		snapshots: map[string]*Snapshot{},
		events:    map[string][]nodeEvent{},
	}
}

func (s *testExecutionStore) CreateExecution(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *snap
	cp.Nodes = append([]NodeState(nil), snap.Nodes...)
	s.snapshots[snap.ID] = &cp
	return nil
}

func (s *testExecutionStore) UpdateNode(_ context.Context, executionID string, state NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[executionID]
	if !ok {
		return ErrExecutionNotFound
	}
	for i := range snap.Nodes {
		if snap.Nodes[i].NodeID == state.NodeID {
			snap.Nodes[i] = state
		}
	}
	s.events[executionID] = append(s.events[executionID], nodeEvent{node: state.NodeID, status: state.Status})
	return nil
}

func (s *testExecutionStore) FinishExecution(_ context.Context, executionID string, status ExecutionStatus, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[executionID]
	if !ok {
		return ErrExecutionNotFound
	}
	snap.Status = status
	snap.Error = errMsg
	snap.FinishedAt = &finishedAt
	return nil
}

func (s *testExecutionStore) GetExecution(_ context.Context, executionID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	cp := *snap
	cp.Nodes = append([]NodeState(nil), snap.Nodes...)
	return &cp, nil
}

func (s *testExecutionStore) Events(executionID string) []nodeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nodeEvent(nil), s.events[executionID]...)
}

// countingKinds registers builtins plus a "count" kind that records calls.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) inc(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[id]++
}

func (c *callCounter) get(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func newTestKinds(counter *callCounter) *Kinds {
	k := NewKinds()
	if err := RegisterBuiltins(k, BuiltinOptions{}); err != nil {
		panic(err)
	}
	if counter != nil {
		_ = k.Register("count", func(_ context.Context, in NodeInput) (any, error) {
			counter.inc(in.Node.ID)
			return map[string]any{"node": in.Node.ID}, nil
		})
		_ = k.Register("count_fail", func(_ context.Context, in NodeInput) (any, error) {
			counter.inc(in.Node.ID)
			return nil, fmt.Errorf("node %s failed on purpose", in.Node.ID)
		})
	}
	return k
}
