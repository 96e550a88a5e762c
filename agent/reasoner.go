package agent

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
)

// Request is what the reasoning backend sees on each round: the full
// conversation history and every step emitted so far in this call.
type Request struct {
	History []types.Message
	Steps   []Step
	Tools   []tools.Definition
}

// ToolCall asks the executor to invoke a tool.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Action is the backend's decision for one round. Exactly one of ToolCall
// and Final is set.
type Action struct {
	Thought  string
	ToolCall *ToolCall
	Final    *string
}

// Reasoner decides the next action of a reasoning loop.
type Reasoner interface {
	Next(ctx context.Context, req Request) (Action, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, req Request) (Action, error)

// Next implements Reasoner.
func (f ReasonerFunc) Next(ctx context.Context, req Request) (Action, error) {
	return f(ctx, req)
}

// FinalAction returns an Action carrying a final answer.
func FinalAction(text string) Action {
	return Action{Final: &text}
}
