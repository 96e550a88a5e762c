package workflow

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWorkflowNotFound is returned by a WorkflowStore for an unknown id.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrExecutionNotFound is returned by an ExecutionStore for an unknown id.
	ErrExecutionNotFound = errors.New("execution not found")
)

// WorkflowStore reads workflow definitions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
}

// ExecutionStore persists execution records. The runner is the only writer.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, snap *Snapshot) error
	UpdateNode(ctx context.Context, executionID string, state NodeState) error
	FinishExecution(ctx context.Context, executionID string, status ExecutionStatus, errMsg string, finishedAt time.Time) error
	GetExecution(ctx context.Context, executionID string) (*Snapshot, error)
}
