// Package memory is the in-process Store used when no database is
// configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/workflow"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one RWMutex. Values are copied
// on the way in and out.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string][]byte
	executions map[string]*workflow.Snapshot
	webhooks   map[string]trigger.Registration
}

// New returns an empty store.
func New() *Store {
	return &Store{
		workflows:  make(map[string][]byte),
		executions: make(map[string]*workflow.Snapshot),
		webhooks:   make(map[string]trigger.Registration),
	}
}

// SaveWorkflow creates or replaces a definition.
func (s *Store) SaveWorkflow(_ context.Context, wf *workflow.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", wf.ID, err)
	}
	s.mu.Lock()
	s.workflows[wf.ID] = data
	s.mu.Unlock()
	return nil
}

// GetWorkflow returns a copy of the definition.
func (s *Store) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	data, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, id)
	}
	return decodeWorkflow(data)
}

// ListWorkflows returns the definitions owned by ownerID.
func (s *Store) ListWorkflows(_ context.Context, ownerID string) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*workflow.Workflow, 0)
	for _, data := range s.workflows {
		wf, err := decodeWorkflow(data)
		if err != nil {
			return nil, err
		}
		if wf.OwnerID == ownerID {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func decodeWorkflow(data []byte) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &wf, nil
}

// CreateExecution stores a new execution record.
func (s *Store) CreateExecution(_ context.Context, snap *workflow.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[snap.ID]; exists {
		return fmt.Errorf("execution %s already exists", snap.ID)
	}
	s.executions[snap.ID] = snap.Clone()
	return nil
}

// UpdateNode replaces one node state.
func (s *Store) UpdateNode(_ context.Context, executionID string, state workflow.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, executionID)
	}
	cloned := (&workflow.Snapshot{Nodes: []workflow.NodeState{state}}).Clone().Nodes[0]
	for i := range snap.Nodes {
		if snap.Nodes[i].NodeID == state.NodeID {
			snap.Nodes[i] = cloned
			return nil
		}
	}
	snap.Nodes = append(snap.Nodes, cloned)
	return nil
}

// FinishExecution records the terminal status.
func (s *Store) FinishExecution(_ context.Context, executionID string, status workflow.ExecutionStatus, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, executionID)
	}
	snap.Status = status
	snap.Error = errMsg
	snap.FinishedAt = &finishedAt
	return nil
}

// GetExecution returns a copy of the record.
func (s *Store) GetExecution(_ context.Context, executionID string) (*workflow.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, executionID)
	}
	return snap.Clone(), nil
}

// RegisterWebhook stores a new endpoint.
func (s *Store) RegisterWebhook(_ context.Context, reg *trigger.Registration) error {
	if reg == nil || reg.Endpoint == "" {
		return fmt.Errorf("webhook endpoint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.webhooks[reg.Endpoint]; exists {
		return fmt.Errorf("%w: %s", trigger.ErrEndpointTaken, reg.Endpoint)
	}
	r := *reg
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.webhooks[r.Endpoint] = r
	return nil
}

// DeleteWebhook removes an endpoint.
func (s *Store) DeleteWebhook(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[endpoint]; !ok {
		return fmt.Errorf("%w: %s", trigger.ErrEndpointNotFound, endpoint)
	}
	delete(s.webhooks, endpoint)
	return nil
}

// Lookup resolves an endpoint.
func (s *Store) Lookup(_ context.Context, endpoint string) (*trigger.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.webhooks[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trigger.ErrEndpointNotFound, endpoint)
	}
	return &r, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
