package trigger

import (
	"context"
	"errors"
	"time"
)

// ErrEndpointNotFound is returned by a Registry for an unknown endpoint.
var ErrEndpointNotFound = errors.New("webhook endpoint not found")

// ErrEndpointTaken is returned when registering an endpoint that already
// maps to a workflow.
var ErrEndpointTaken = errors.New("webhook endpoint already registered")

// Registration maps one endpoint to one workflow.
type Registration struct {
	Endpoint   string    `json:"endpoint"`
	WorkflowID string    `json:"workflow_id"`
	OwnerID    string    `json:"owner_id"`
	Secret     string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Registry resolves webhook endpoints.
type Registry interface {
	Lookup(ctx context.Context, endpoint string) (*Registration, error)
}
