package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
)

// scriptedReasoner returns actions in order and records every request.
type scriptedReasoner struct {
	mu       sync.Mutex
	actions  []Action
	errs     []error
	requests []Request
	block    chan struct{}
}

func (r *scriptedReasoner) Next(ctx context.Context, req Request) (Action, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	idx := len(r.requests) - 1
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Action{}, ctx.Err()
		}
	}
	if idx < len(r.errs) && r.errs[idx] != nil {
		return Action{}, r.errs[idx]
	}
	if idx < len(r.actions) {
		return r.actions[idx], nil
	}
	return Action{ToolCall: &ToolCall{Name: "echo", Arguments: json.RawMessage(`{}`)}}, nil
}

func (r *scriptedReasoner) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// fakeInvoker serves tools from a map of canned results.
type fakeInvoker struct {
	mu      sync.Mutex
	results map[string]json.RawMessage
	calls   []string
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	res, ok := f.results[name]
	if !ok {
		return nil, errors.New("tool exploded")
	}
	return res, nil
}

func (f *fakeInvoker) Definitions() []tools.Definition {
	return []tools.Definition{{Name: "echo"}}
}

type recordedRun struct {
	status string
}

type fakeRecorder struct {
	mu    sync.Mutex
	runs  []recordedRun
	steps map[string]int
	tools map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{steps: map[string]int{}, tools: map[string]int{}}
}

func (f *fakeRecorder) RecordAgentRun(status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedRun{status: status})
}

func (f *fakeRecorder) RecordAgentStep(stepType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[stepType]++
}

func (f *fakeRecorder) RecordToolCall(tool, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[tool+":"+status]++
}

func final(text string) Action { return FinalAction(text) }

func userMsgs(contents ...string) []types.Message {
	out := make([]types.Message, 0, len(contents))
	for _, c := range contents {
		out = append(out, types.NewUserMessage(c))
	}
	return out
}
