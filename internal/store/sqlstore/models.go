package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/workflow"
)

// WorkflowRecord is a workflow definition. Definition holds the full JSON
// document; OwnerID and Name are copied out for queries.
type WorkflowRecord struct {
	ID         string    `gorm:"column:id;primaryKey;size:128"`
	OwnerID    string    `gorm:"column:owner_id;not null;index;size:128"`
	Name       string    `gorm:"column:name;size:255"`
	Definition []byte    `gorm:"column:definition;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements gorm's tabler.
func (WorkflowRecord) TableName() string { return "workflows" }

// ExecutionRecord is the header row of one execution.
type ExecutionRecord struct {
	ID           string     `gorm:"column:id;primaryKey;size:64"`
	WorkflowID   string     `gorm:"column:workflow_id;not null;index;size:128"`
	RequesterID  string     `gorm:"column:requester_id;not null;index;size:128"`
	Status       string     `gorm:"column:status;not null;index;size:32"`
	ErrorMessage string     `gorm:"column:error_message"`
	TriggerData  []byte     `gorm:"column:trigger_data"`
	StartedAt    time.Time  `gorm:"column:started_at;not null"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements gorm's tabler.
func (ExecutionRecord) TableName() string { return "workflow_executions" }

// NodeStateRecord is one node of one execution. Position keeps the
// topological order of the snapshot.
type NodeStateRecord struct {
	ExecutionID  string     `gorm:"column:execution_id;primaryKey;size:64"`
	NodeID       string     `gorm:"column:node_id;primaryKey;size:128"`
	Position     int        `gorm:"column:position;not null"`
	Kind         string     `gorm:"column:kind;size:64"`
	Status       string     `gorm:"column:status;not null;size:32"`
	Output       []byte     `gorm:"column:output"`
	ErrorMessage string     `gorm:"column:error_message"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
}

// TableName implements gorm's tabler.
func (NodeStateRecord) TableName() string { return "workflow_node_states" }

// WebhookRecord maps an endpoint to a workflow.
type WebhookRecord struct {
	Endpoint   string    `gorm:"column:endpoint;primaryKey;size:255"`
	WorkflowID string    `gorm:"column:workflow_id;not null;index;size:128"`
	OwnerID    string    `gorm:"column:owner_id;not null;index;size:128"`
	Secret     string    `gorm:"column:secret;size:255"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName implements gorm's tabler.
func (WebhookRecord) TableName() string { return "webhooks" }

// Models lists every table the store uses.
func Models() []any {
	return []any{&WorkflowRecord{}, &ExecutionRecord{}, &NodeStateRecord{}, &WebhookRecord{}}
}

// =============================================================================
// conversions
// =============================================================================

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeJSON(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toWorkflowRecord(wf *workflow.Workflow) (*WorkflowRecord, error) {
	def, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("encode workflow %s: %w", wf.ID, err)
	}
	return &WorkflowRecord{ID: wf.ID, OwnerID: wf.OwnerID, Name: wf.Name, Definition: def}, nil
}

func (r *WorkflowRecord) toWorkflow() (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if err := json.Unmarshal(r.Definition, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", r.ID, err)
	}
	return &wf, nil
}

func toNodeStateRecord(executionID string, position int, n workflow.NodeState) (*NodeStateRecord, error) {
	out, err := encodeJSON(n.Output)
	if err != nil {
		return nil, fmt.Errorf("encode output of node %s: %w", n.NodeID, err)
	}
	return &NodeStateRecord{
		ExecutionID:  executionID,
		NodeID:       n.NodeID,
		Position:     position,
		Kind:         n.Kind,
		Status:       string(n.Status),
		Output:       out,
		ErrorMessage: n.Error,
		StartedAt:    utcPtr(n.StartedAt),
		FinishedAt:   utcPtr(n.FinishedAt),
	}, nil
}

func (r *NodeStateRecord) toNodeState() (workflow.NodeState, error) {
	out, err := decodeJSON(r.Output)
	if err != nil {
		return workflow.NodeState{}, fmt.Errorf("decode output of node %s: %w", r.NodeID, err)
	}
	return workflow.NodeState{
		NodeID:     r.NodeID,
		Kind:       r.Kind,
		Status:     workflow.NodeStatus(r.Status),
		Output:     out,
		Error:      r.ErrorMessage,
		StartedAt:  utcPtr(r.StartedAt),
		FinishedAt: utcPtr(r.FinishedAt),
	}, nil
}

func toWebhookRecord(reg *trigger.Registration) *WebhookRecord {
	created := reg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &WebhookRecord{
		Endpoint:   reg.Endpoint,
		WorkflowID: reg.WorkflowID,
		OwnerID:    reg.OwnerID,
		Secret:     reg.Secret,
		CreatedAt:  created.UTC(),
	}
}

func (r *WebhookRecord) toRegistration() *trigger.Registration {
	return &trigger.Registration{
		Endpoint:   r.Endpoint,
		WorkflowID: r.WorkflowID,
		OwnerID:    r.OwnerID,
		Secret:     r.Secret,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
