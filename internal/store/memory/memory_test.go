package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/internal/store/storetest"
	"github.com/BaSui01/autoflow/workflow"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_CreateExecutionDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	exec, err := workflowSnapshot("exec-1")
	require.NoError(t, err)

	require.NoError(t, s.CreateExecution(ctx, exec))
	assert.Error(t, s.CreateExecution(ctx, exec))
}

func TestStore_SnapshotIsCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	snap, err := workflowSnapshot("exec-1")
	require.NoError(t, err)
	require.NoError(t, s.CreateExecution(ctx, snap))

	// 修改调用方持有的快照不影响存储
	snap.Nodes[0].Status = "tampered"

	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", string(got.Nodes[0].Status))

	got.Nodes[0].Status = "tampered"
	again, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", string(again.Nodes[0].Status))
}

func TestStore_Validation(t *testing.T) {
	s := New()
	assert.Error(t, s.SaveWorkflow(context.Background(), nil))
	assert.Error(t, s.RegisterWebhook(context.Background(), nil))
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func workflowSnapshot(id string) (*workflow.Snapshot, error) {
	exec, err := workflow.NewExecution(id, storetest.SampleWorkflow("wf-1", "alice"), "alice", nil)
	if err != nil {
		return nil, err
	}
	snap := exec.Snapshot()
	return &snap, nil
}
