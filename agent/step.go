package agent

import (
	"encoding/json"
	"time"
)

// StepType 步骤类型
type StepType string

const (
	StepThought    StepType = "thought"
	StepToolCall   StepType = "tool_call"
	StepToolResult StepType = "tool_result"
	StepFinal      StepType = "final"
	StepError      StepType = "error"
)

// Step is one immutable entry of an execution trace.
type Step struct {
	Type       StepType        `json:"type"`
	Content    string          `json:"content,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Progress   *float64        `json:"progress,omitempty"`
	Iteration  int             `json:"iteration"`
}

// ExecutionResult is the terminal outcome of one Execute call.
type ExecutionResult struct {
	Success    bool          `json:"success"`
	Steps      []Step        `json:"steps"`
	Response   string        `json:"response,omitempty"`
	Error      string        `json:"error,omitempty"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
