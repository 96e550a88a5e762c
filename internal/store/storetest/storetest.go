// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/workflow"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("WorkflowRoundTrip", func(t *testing.T) { testWorkflowRoundTrip(t, newStore(t)) })
	t.Run("WorkflowReplace", func(t *testing.T) { testWorkflowReplace(t, newStore(t)) })
	t.Run("WorkflowNotFound", func(t *testing.T) { testWorkflowNotFound(t, newStore(t)) })
	t.Run("ListWorkflowsByOwner", func(t *testing.T) { testListWorkflows(t, newStore(t)) })
	t.Run("ExecutionLifecycle", func(t *testing.T) { testExecutionLifecycle(t, newStore(t)) })
	t.Run("ExecutionNotFound", func(t *testing.T) { testExecutionNotFound(t, newStore(t)) })
	t.Run("ExecutionIsolation", func(t *testing.T) { testExecutionIsolation(t, newStore(t)) })
	t.Run("ConcurrentNodeUpdates", func(t *testing.T) { testConcurrentNodeUpdates(t, newStore(t)) })
	t.Run("WebhookRegistry", func(t *testing.T) { testWebhookRegistry(t, newStore(t)) })
}

// SampleWorkflow returns a three node chain a -> b -> c owned by owner.
func SampleWorkflow(id, owner string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          id,
		OwnerID:     owner,
		Name:        "sample " + id,
		Description: "chain",
		TimeoutMs:   60000,
		Nodes: []workflow.Node{
			{ID: "a", Kind: "set", Config: map[string]any{"values": map[string]any{"x": float64(1)}}},
			{ID: "b", Kind: "passthrough", DependsOn: []string{"a"}},
			{ID: "c", Kind: "delay", DependsOn: []string{"b"}, Config: map[string]any{"duration": "10ms"}, TimeoutMs: 500},
		},
	}
}

func newSnapshot(t *testing.T, id string, wf *workflow.Workflow, triggerData any) *workflow.Snapshot {
	t.Helper()
	exec, err := workflow.NewExecution(id, wf, wf.OwnerID, triggerData)
	require.NoError(t, err)
	snap := exec.Snapshot()
	return &snap
}

func testWorkflowRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := SampleWorkflow("wf-1", "alice")
	require.NoError(t, s.SaveWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf, got)

	// 返回值是副本
	got.Nodes[0].Config["values"] = "mutated"
	again, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.Nodes[0].Config, again.Nodes[0].Config)
}

func testWorkflowReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := SampleWorkflow("wf-1", "alice")
	require.NoError(t, s.SaveWorkflow(ctx, wf))

	wf.Name = "renamed"
	wf.Nodes = wf.Nodes[:1]
	require.NoError(t, s.SaveWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Len(t, got.Nodes, 1)
}

func testWorkflowNotFound(t *testing.T, s store.Store) {
	_, err := s.GetWorkflow(context.Background(), "missing")
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
}

func testListWorkflows(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveWorkflow(ctx, SampleWorkflow("wf-b", "alice")))
	require.NoError(t, s.SaveWorkflow(ctx, SampleWorkflow("wf-a", "alice")))
	require.NoError(t, s.SaveWorkflow(ctx, SampleWorkflow("wf-c", "bob")))

	list, err := s.ListWorkflows(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-a", list[0].ID)
	assert.Equal(t, "wf-b", list[1].ID)

	none, err := s.ListWorkflows(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testExecutionLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := SampleWorkflow("wf-1", "alice")
	snap := newSnapshot(t, "exec-1", wf, map[string]any{"body": map[string]any{"a": float64(1)}})
	require.NoError(t, s.CreateExecution(ctx, snap))

	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionRunning, got.Status)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "alice", got.RequesterID)
	assert.Equal(t, map[string]any{"body": map[string]any{"a": float64(1)}}, got.TriggerData)
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(got))
	for _, n := range got.Nodes {
		assert.Equal(t, workflow.NodePending, n.Status)
	}

	started := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpdateNode(ctx, "exec-1", workflow.NodeState{
		NodeID: "a", Kind: "set", Status: workflow.NodeRunning, StartedAt: &started,
	}))
	finished := started.Add(5 * time.Millisecond)
	require.NoError(t, s.UpdateNode(ctx, "exec-1", workflow.NodeState{
		NodeID: "a", Kind: "set", Status: workflow.NodeSucceeded,
		Output:    map[string]any{"x": float64(1)},
		StartedAt: &started, FinishedAt: &finished,
	}))
	require.NoError(t, s.UpdateNode(ctx, "exec-1", workflow.NodeState{
		NodeID: "b", Kind: "passthrough", Status: workflow.NodeFailed, Error: "boom",
		StartedAt: &started, FinishedAt: &finished,
	}))
	require.NoError(t, s.UpdateNode(ctx, "exec-1", workflow.NodeState{
		NodeID: "c", Kind: "delay", Status: workflow.NodeSkipped, Error: "dependency b did not succeed",
		FinishedAt: &finished,
	}))

	done := finished.Add(time.Millisecond)
	require.NoError(t, s.FinishExecution(ctx, "exec-1", workflow.ExecutionFailed, "node b failed: boom", done))

	got, err = s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionFailed, got.Status)
	assert.Equal(t, "node b failed: boom", got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, done, *got.FinishedAt, time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(got))

	a, _ := got.NodeState("a")
	assert.Equal(t, workflow.NodeSucceeded, a.Status)
	assert.Equal(t, map[string]any{"x": float64(1)}, a.Output)
	require.NotNil(t, a.StartedAt)
	assert.WithinDuration(t, started, *a.StartedAt, time.Second)

	b, _ := got.NodeState("b")
	assert.Equal(t, workflow.NodeFailed, b.Status)
	assert.Equal(t, "boom", b.Error)
	assert.Nil(t, b.Output)

	c, _ := got.NodeState("c")
	assert.Equal(t, workflow.NodeSkipped, c.Status)
	assert.Nil(t, c.StartedAt)
}

func testExecutionNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrExecutionNotFound)

	err = s.UpdateNode(ctx, "missing", workflow.NodeState{NodeID: "a", Status: workflow.NodeRunning})
	assert.ErrorIs(t, err, workflow.ErrExecutionNotFound)

	err = s.FinishExecution(ctx, "missing", workflow.ExecutionSucceeded, "", time.Now())
	assert.ErrorIs(t, err, workflow.ErrExecutionNotFound)
}

func testExecutionIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := SampleWorkflow("wf-1", "alice")
	require.NoError(t, s.CreateExecution(ctx, newSnapshot(t, "exec-1", wf, nil)))
	require.NoError(t, s.CreateExecution(ctx, newSnapshot(t, "exec-2", wf, nil)))

	require.NoError(t, s.UpdateNode(ctx, "exec-1", workflow.NodeState{NodeID: "a", Kind: "set", Status: workflow.NodeRunning}))
	require.NoError(t, s.FinishExecution(ctx, "exec-1", workflow.ExecutionFailed, "execution cancelled", time.Now()))

	other, err := s.GetExecution(ctx, "exec-2")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionRunning, other.Status)
	a, _ := other.NodeState("a")
	assert.Equal(t, workflow.NodePending, a.Status)
	assert.Nil(t, other.FinishedAt)
}

func testConcurrentNodeUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := &workflow.Workflow{ID: "wide", OwnerID: "alice"}
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		wf.Nodes = append(wf.Nodes, workflow.Node{ID: id, Kind: "passthrough"})
	}
	require.NoError(t, s.CreateExecution(ctx, newSnapshot(t, "exec-wide", wf, nil)))

	var wg sync.WaitGroup
	for _, n := range wf.Nodes {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.UpdateNode(ctx, "exec-wide", workflow.NodeState{
				NodeID: id, Kind: "passthrough", Status: workflow.NodeSucceeded, Output: id,
			}))
		}(n.ID)
	}
	wg.Wait()

	got, err := s.GetExecution(ctx, "exec-wide")
	require.NoError(t, err)
	require.Len(t, got.Nodes, len(wf.Nodes))
	for _, n := range got.Nodes {
		assert.Equal(t, workflow.NodeSucceeded, n.Status, n.NodeID)
		assert.Equal(t, n.NodeID, n.Output)
	}
}

func testWebhookRegistry(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Lookup(ctx, "orders")
	assert.ErrorIs(t, err, trigger.ErrEndpointNotFound)

	reg := &trigger.Registration{Endpoint: "orders", WorkflowID: "wf-1", OwnerID: "alice", Secret: "shh"}
	require.NoError(t, s.RegisterWebhook(ctx, reg))

	got, err := s.Lookup(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, "shh", got.Secret)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.RegisterWebhook(ctx, &trigger.Registration{Endpoint: "orders", WorkflowID: "wf-2", OwnerID: "bob"})
	assert.ErrorIs(t, err, trigger.ErrEndpointTaken)

	require.NoError(t, s.DeleteWebhook(ctx, "orders"))
	assert.ErrorIs(t, s.DeleteWebhook(ctx, "orders"), trigger.ErrEndpointNotFound)
	_, err = s.Lookup(ctx, "orders")
	assert.ErrorIs(t, err, trigger.ErrEndpointNotFound)
}

func nodeIDs(s *workflow.Snapshot) []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.NodeID
	}
	return ids
}
