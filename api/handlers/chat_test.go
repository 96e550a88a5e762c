package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/agent"
	"github.com/BaSui01/autoflow/api"
	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
)

// scriptedReasoner calls a tool on the first round when asked to and answers
// with the number of history messages it saw.
type scriptedReasoner struct {
	mu        sync.Mutex
	useTool   bool
	histories [][]types.Message
}

func (s *scriptedReasoner) Next(_ context.Context, req agent.Request) (agent.Action, error) {
	s.mu.Lock()
	s.histories = append(s.histories, req.History)
	s.mu.Unlock()

	if s.useTool && len(req.Steps) == 0 {
		return agent.Action{ToolCall: &agent.ToolCall{Name: "echo", Arguments: json.RawMessage(`{"v":1}`)}}, nil
	}
	last := req.History[len(req.History)-1].Content
	return agent.FinalAction("reply to " + last), nil
}

func (s *scriptedReasoner) lastHistory() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histories[len(s.histories)-1]
}

func newChatHandler(t *testing.T, reasoner agent.Reasoner) (*ChatHandler, *agent.Sessions) {
	t.Helper()
	reg := tools.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(tools.Definition{Name: "echo", Description: "echo"},
		func(_ context.Context, args json.RawMessage) (json.RawMessage, error) { return args, nil },
		tools.Options{}))

	factory := func(scope string, history []types.Message) *agent.Executor {
		return agent.NewExecutor(scope, reasoner, reg, agent.WithHistory(history))
	}
	sessions := agent.NewSessions(func(scope string) *agent.Executor { return factory(scope, nil) }, nil)
	return NewChatHandler(sessions, factory, 0, nil), sessions
}

func postChat(t *testing.T, h *ChatHandler, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat", &buf)
	if userID != "" {
		req = req.WithContext(types.WithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	h.HandleChat(w, req)
	return w
}

// parseEvents returns the JSON payload of every SSE data line.
func parseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestChatHandler_StreamsStepsThenDone(t *testing.T) {
	h, _ := newChatHandler(t, &scriptedReasoner{useTool: true})

	w := postChat(t, h, "alice", api.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseEvents(t, w.Body.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev["type"].(string))
	}
	assert.Equal(t, []string{"tool_call", "tool_result", "final", "done"}, kinds)

	done := events[len(events)-1]
	assert.Equal(t, true, done["success"])
	assert.Equal(t, "reply to hi", done["response"])
}

func TestChatHandler_SessionKeepsHistory(t *testing.T) {
	r := &scriptedReasoner{}
	h, sessions := newChatHandler(t, r)

	postChat(t, h, "alice", api.ChatRequest{Message: "one"})
	postChat(t, h, "alice", api.ChatRequest{Message: "two"})

	hist := r.lastHistory()
	require.Len(t, hist, 3)
	assert.Equal(t, "one", hist[0].Content)
	assert.Equal(t, types.RoleAssistant, hist[1].Role)
	assert.Equal(t, "two", hist[2].Content)

	// A different project is a different scope.
	postChat(t, h, "alice", api.ChatRequest{Message: "three", ProjectID: "other"})
	assert.Len(t, r.lastHistory(), 1)
	assert.Equal(t, 2, sessions.Len())
}

func TestChatHandler_ClientHistoryUsesFreshExecutor(t *testing.T) {
	r := &scriptedReasoner{}
	h, sessions := newChatHandler(t, r)

	postChat(t, h, "alice", api.ChatRequest{
		Message: "m3",
		ConversationHistory: []types.Message{
			{Role: types.RoleUser, Content: "m1"},
			{Role: types.RoleAssistant, Content: "m2"},
		},
	})

	hist := r.lastHistory()
	require.Len(t, hist, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{hist[0].Content, hist[1].Content, hist[2].Content})
	assert.Zero(t, sessions.Len(), "client-owned history must not create a server session")
}

func TestChatHandler_Validation(t *testing.T) {
	h, _ := newChatHandler(t, &scriptedReasoner{})

	tests := []struct {
		name string
		body any
	}{
		{"empty message", api.ChatRequest{Message: "  "}},
		{"bad history role", api.ChatRequest{Message: "x", ConversationHistory: []types.Message{{Role: types.RoleSystem, Content: "s"}}}},
		{"unknown field", map[string]any{"message": "x", "model": "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(t, h, "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestChatHandler_NotConfigured(t *testing.T) {
	h, _ := newChatHandler(t, nil)

	w := postChat(t, h, "", api.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatHandler_FailureEndsWithDoneEvent(t *testing.T) {
	failing := agent.ReasonerFunc(func(context.Context, agent.Request) (agent.Action, error) {
		return agent.Action{}, assert.AnError
	})
	h, _ := newChatHandler(t, failing)

	w := postChat(t, h, "", api.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	events := parseEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	done := events[len(events)-1]
	assert.Equal(t, "done", done["type"])
	assert.Equal(t, false, done["success"])
	assert.NotEmpty(t, done["error"])
}

func TestScopeID(t *testing.T) {
	assert.Equal(t, "anonymous:default", ScopeID("", ""))
	assert.Equal(t, "u1:p1", ScopeID("u1", "p1"))
	assert.Equal(t, "u1:default", ScopeID("u1", ""))
}
