package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecution(t *testing.T) *Execution {
	t.Helper()
	wf := &Workflow{ID: "w", OwnerID: "u", Nodes: []Node{
		{ID: "a", Kind: "set"},
		{ID: "b", Kind: "set", DependsOn: []string{"a"}},
	}}
	exec, err := NewExecution("exec-1", wf, "u", map[string]any{"k": "v"})
	require.NoError(t, err)
	return exec
}

func TestExecution_InitialState(t *testing.T) {
	exec := newTestExecution(t)
	snap := exec.Snapshot()

	assert.Equal(t, "exec-1", snap.ID)
	assert.Equal(t, ExecutionRunning, snap.Status)
	require.Len(t, snap.Nodes, 2)
	for _, n := range snap.Nodes {
		assert.Equal(t, NodePending, n.Status)
	}
	assert.Equal(t, "a", snap.Nodes[0].NodeID)
}

func TestExecution_Transitions(t *testing.T) {
	exec := newTestExecution(t)

	require.NoError(t, exec.Start("a"))
	assert.ErrorIs(t, exec.Start("a"), ErrInvalidTransition)
	assert.ErrorIs(t, exec.Skip("a", "x"), ErrInvalidTransition)
	require.NoError(t, exec.Succeed("a", map[string]any{"x": 1}))

	// terminal states are write-once
	assert.ErrorIs(t, exec.Fail("a", "late"), ErrInvalidTransition)
	assert.ErrorIs(t, exec.Succeed("a", nil), ErrInvalidTransition)

	assert.ErrorIs(t, exec.Succeed("b", nil), ErrInvalidTransition, "pending cannot succeed without running")
	require.NoError(t, exec.Skip("b", "dependency a did not succeed"))

	assert.Error(t, exec.Start("missing"))
}

func TestExecution_FinishRequiresTerminalNodes(t *testing.T) {
	exec := newTestExecution(t)
	_, err := exec.Finish("")
	assert.Error(t, err)

	require.NoError(t, exec.Start("a"))
	require.NoError(t, exec.Fail("a", "boom"))
	require.NoError(t, exec.Skip("b", "dependency a did not succeed"))

	status, err := exec.Finish("")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, status)
	assert.Equal(t, "node a failed: boom", exec.Snapshot().Error)

	_, err = exec.Finish("")
	assert.Error(t, err, "finish is once")
	assert.ErrorIs(t, exec.Fail("b", "x"), ErrInvalidTransition, "terminal execution is immutable")
}

func TestExecution_OutputIsReadOnlyCopy(t *testing.T) {
	exec := newTestExecution(t)
	require.NoError(t, exec.Start("a"))
	require.NoError(t, exec.Succeed("a", map[string]any{"list": []any{"x"}}))

	out, ok := exec.Output("a")
	require.True(t, ok)
	out.(map[string]any)["list"].([]any)[0] = "mutated"
	out.(map[string]any)["extra"] = true

	again, _ := exec.Output("a")
	assert.Equal(t, map[string]any{"list": []any{"x"}}, again)

	_, ok = exec.Output("b")
	assert.False(t, ok)
}

func TestExecution_OutputNormalized(t *testing.T) {
	exec := newTestExecution(t)
	require.NoError(t, exec.Start("a"))

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, exec.Succeed("a", payload{Count: 2}))
	out, _ := exec.Output("a")
	assert.Equal(t, map[string]any{"count": float64(2)}, out)
}

func TestExecution_UnserializableOutput(t *testing.T) {
	exec := newTestExecution(t)
	require.NoError(t, exec.Start("a"))
	assert.Error(t, exec.Succeed("a", make(chan int)))

	st, _ := exec.Node("a")
	assert.Equal(t, NodeRunning, st.Status)
}
