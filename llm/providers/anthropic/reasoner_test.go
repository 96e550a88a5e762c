package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/autoflow/agent"
	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func newTestReasoner(t *testing.T, stub *stubMessagesClient) *Reasoner {
	t.Helper()
	r, err := New(stub, Options{Model: "claude-sonnet-4-5", SystemPrompt: "be brief"})
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	assert.Error(t, err)
	_, err = New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
	_, err = NewFromAPIKey("", "", Options{Model: "m"})
	assert.Error(t, err)
}

func TestNext_TextBecomesFinal(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
	}}
	r := newTestReasoner(t, stub)

	action, err := r.Next(context.Background(), agent.Request{
		History: []types.Message{types.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	require.NotNil(t, action.Final)
	assert.Equal(t, "world", *action.Final)
	assert.Nil(t, action.ToolCall)

	require.Len(t, stub.lastParams.Messages, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, stub.lastParams.Messages[0].Role)
	assert.Equal(t, int64(DefaultMaxTokens), stub.lastParams.MaxTokens)
	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be brief", stub.lastParams.System[0].Text)
}

func TestNext_ToolUseBecomesToolCall(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "let me check"},
			{Type: "tool_use", ID: "tool-1", Name: "calculator", Input: json.RawMessage(`{"op":"add","a":1,"b":2}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	r := newTestReasoner(t, stub)

	action, err := r.Next(context.Background(), agent.Request{
		History: []types.Message{types.NewUserMessage("1+2?")},
		Tools: []tools.Definition{{
			Name:        "calculator",
			Description: "math",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`),
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, action.ToolCall)
	assert.Equal(t, "calculator", action.ToolCall.Name)
	assert.JSONEq(t, `{"op":"add","a":1,"b":2}`, string(action.ToolCall.Arguments))
	assert.Equal(t, "let me check", action.Thought)
	assert.Nil(t, action.Final)

	require.Len(t, stub.lastParams.Tools, 1)
	require.NotNil(t, stub.lastParams.Tools[0].OfTool)
	assert.Equal(t, "calculator", stub.lastParams.Tools[0].OfTool.Name)
}

func TestNext_PriorStepsReplayedAsToolBlocks(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "3"}},
	}}
	r := newTestReasoner(t, stub)

	steps := []agent.Step{
		{Type: agent.StepThought, Content: "need math", Iteration: 1},
		{Type: agent.StepToolCall, ToolName: "calculator", ToolArgs: json.RawMessage(`{"a":1}`), Iteration: 1},
		{Type: agent.StepToolResult, ToolName: "calculator", ToolResult: json.RawMessage(`{"result":3}`), Iteration: 1},
		{Type: agent.StepToolCall, ToolName: "http_get", Iteration: 2},
		{Type: agent.StepError, ToolName: "http_get", Content: "tool http_get failed", Iteration: 2},
	}
	_, err := r.Next(context.Background(), agent.Request{
		History: []types.Message{types.NewUserMessage("1+2?")},
		Steps:   steps,
	})
	require.NoError(t, err)

	msgs := stub.lastParams.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	require.NotNil(t, msgs[1].Content[1].OfToolUse)
	assert.Equal(t, toolUseID(1), msgs[1].Content[1].OfToolUse.ID)

	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, toolUseID(1), msgs[2].Content[0].OfToolResult.ToolUseID)

	require.NotNil(t, msgs[4].Content[0].OfToolResult)
	assert.Equal(t, toolUseID(2), msgs[4].Content[0].OfToolResult.ToolUseID)
	assert.True(t, msgs[4].Content[0].OfToolResult.IsError.Value)
}

func TestNext_UpstreamErrorWrapped(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("overloaded")}
	r := newTestReasoner(t, stub)

	_, err := r.Next(context.Background(), agent.Request{History: []types.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))
}

type usageRecorder struct {
	statuses []string
	input    int64
	output   int64
}

func (u *usageRecorder) RecordLLMRequest(provider, model, status string, _ time.Duration, in, out int64) {
	u.statuses = append(u.statuses, provider+"/"+model+"/"+status)
	u.input += in
	u.output += out
}

func TestNext_RecordsUsage(t *testing.T) {
	rec := &usageRecorder{}
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
		Usage:   sdk.Usage{InputTokens: 12, OutputTokens: 3},
	}}
	r, err := New(stub, Options{Model: "claude-sonnet-4-5", Metrics: rec})
	require.NoError(t, err)

	_, err = r.Next(context.Background(), agent.Request{History: []types.Message{types.NewUserMessage("hi")}})
	require.NoError(t, err)

	stub.err = errors.New("overloaded")
	_, err = r.Next(context.Background(), agent.Request{History: []types.Message{types.NewUserMessage("hi")}})
	require.Error(t, err)

	assert.Equal(t, []string{"anthropic/claude-sonnet-4-5/success", "anthropic/claude-sonnet-4-5/error"}, rec.statuses)
	assert.Equal(t, int64(12), rec.input)
	assert.Equal(t, int64(3), rec.output)
}

func TestNext_EmptyResponse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	r := newTestReasoner(t, stub)

	_, err := r.Next(context.Background(), agent.Request{History: []types.Message{types.NewUserMessage("hi")}})
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestNext_NoMessages(t *testing.T) {
	r := newTestReasoner(t, &stubMessagesClient{})
	_, err := r.Next(context.Background(), agent.Request{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestReasoner_DrivesExecutor(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hi back"}},
	}}
	r := newTestReasoner(t, stub)

	e := agent.NewExecutor("scope", r, nil)
	res, err := e.Execute(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi back", res.Response)
}
