package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/autoflow/types"
)

func TestWorkflow_Validate(t *testing.T) {
	tests := []struct {
		name    string
		wf      Workflow
		wantErr string
	}{
		{
			name: "valid diamond",
			wf: Workflow{ID: "w", OwnerID: "u", Nodes: []Node{
				{ID: "a", Kind: "set"},
				{ID: "b", Kind: "set", DependsOn: []string{"a"}},
				{ID: "c", Kind: "set", DependsOn: []string{"a"}},
				{ID: "d", Kind: "set", DependsOn: []string{"b", "c"}},
			}},
		},
		{name: "missing id", wf: Workflow{OwnerID: "u", Nodes: []Node{{ID: "a", Kind: "set"}}}, wantErr: "workflow id"},
		{name: "missing owner", wf: Workflow{ID: "w", Nodes: []Node{{ID: "a", Kind: "set"}}}, wantErr: "owner"},
		{name: "no nodes", wf: Workflow{ID: "w", OwnerID: "u"}, wantErr: "at least one node"},
		{
			name:    "duplicate node",
			wf:      Workflow{ID: "w", OwnerID: "u", Nodes: []Node{{ID: "a", Kind: "set"}, {ID: "a", Kind: "set"}}},
			wantErr: "duplicate",
		},
		{
			name:    "missing kind",
			wf:      Workflow{ID: "w", OwnerID: "u", Nodes: []Node{{ID: "a"}}},
			wantErr: "kind is required",
		},
		{
			name:    "unknown dependency",
			wf:      Workflow{ID: "w", OwnerID: "u", Nodes: []Node{{ID: "a", Kind: "set", DependsOn: []string{"z"}}}},
			wantErr: "unknown node z",
		},
		{
			name:    "self dependency",
			wf:      Workflow{ID: "w", OwnerID: "u", Nodes: []Node{{ID: "a", Kind: "set", DependsOn: []string{"a"}}}},
			wantErr: "itself",
		},
		{
			name: "cycle",
			wf: Workflow{ID: "w", OwnerID: "u", Nodes: []Node{
				{ID: "a", Kind: "set", DependsOn: []string{"c"}},
				{ID: "b", Kind: "set", DependsOn: []string{"a"}},
				{ID: "c", Kind: "set", DependsOn: []string{"b"}},
			}},
			wantErr: "cycle",
		},
		{
			name:    "negative timeout",
			wf:      Workflow{ID: "w", OwnerID: "u", Nodes: []Node{{ID: "a", Kind: "set", TimeoutMs: -1}}},
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
		})
	}
}

func TestWorkflow_TopologicalOrder(t *testing.T) {
	wf := Workflow{ID: "w", OwnerID: "u", Nodes: []Node{
		{ID: "d", Kind: "set", DependsOn: []string{"b", "c"}},
		{ID: "b", Kind: "set", DependsOn: []string{"a", "a"}},
		{ID: "a", Kind: "set"},
		{ID: "c", Kind: "set", DependsOn: []string{"a"}},
	}}

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	for _, n := range wf.Nodes {
		for _, dep := range n.DependsOn {
			assert.Less(t, pos[dep], pos[n.ID], "%s must precede %s", dep, n.ID)
		}
	}
}

func TestWorkflow_Node(t *testing.T) {
	wf := Workflow{Nodes: []Node{{ID: "a", Kind: "set", TimeoutMs: 1500}}}
	n, ok := wf.Node("a")
	require.True(t, ok)
	assert.Equal(t, "1.5s", n.Timeout().String())
	_, ok = wf.Node("b")
	assert.False(t, ok)
}
