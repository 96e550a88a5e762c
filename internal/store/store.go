package store

import (
	"context"

	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/workflow"
)

// Store is the persistence surface of the service.
type Store interface {
	workflow.WorkflowStore
	workflow.ExecutionStore
	trigger.Registry

	// SaveWorkflow creates or replaces a definition by id.
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error
	// ListWorkflows returns the definitions owned by ownerID ordered by id.
	ListWorkflows(ctx context.Context, ownerID string) ([]*workflow.Workflow, error)

	// RegisterWebhook stores a new endpoint. An existing endpoint yields
	// trigger.ErrEndpointTaken.
	RegisterWebhook(ctx context.Context, reg *trigger.Registration) error
	// DeleteWebhook removes an endpoint or returns trigger.ErrEndpointNotFound.
	DeleteWebhook(ctx context.Context, endpoint string) error

	Ping(ctx context.Context) error
	Close() error
}
