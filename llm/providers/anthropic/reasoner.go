package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/agent"
	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
)

// DefaultMaxTokens caps a single completion when Options.MaxTokens is unset.
const DefaultMaxTokens = 1024

// MessagesClient is the subset of the SDK used here. *sdk.MessageService
// satisfies it.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Recorder receives per-request usage. internal/metrics.Collector
// satisfies it.
type Recorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordLLMRequest(string, string, string, time.Duration, int64, int64) {}

// Options configures the reasoner.
type Options struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
	Logger       *zap.Logger
	Metrics      Recorder
}

// Reasoner implements agent.Reasoner on top of Claude Messages.
type Reasoner struct {
	msg       MessagesClient
	model     string
	maxTokens int
	system    string
	logger    *zap.Logger
	metrics   Recorder
}

var _ agent.Reasoner = (*Reasoner)(nil)

// New builds a reasoner from a Messages client.
func New(msg MessagesClient, opts Options) (*Reasoner, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Reasoner{
		msg:       msg,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		system:    opts.SystemPrompt,
		logger:    logger.With(zap.String("component", "anthropic_reasoner")),
		metrics:   metrics,
	}, nil
}

// NewFromAPIKey builds a reasoner using the default SDK HTTP client.
func NewFromAPIKey(apiKey, baseURL string, opts Options) (*Reasoner, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(reqOpts...)
	return New(&client.Messages, opts)
}

// Next asks Claude for the next action.
func (r *Reasoner) Next(ctx context.Context, req agent.Request) (agent.Action, error) {
	params, err := r.buildParams(req)
	if err != nil {
		return agent.Action{}, err
	}

	start := time.Now()
	msg, err := r.msg.New(ctx, params)
	if err != nil {
		r.metrics.RecordLLMRequest("anthropic", r.model, "error", time.Since(start), 0, 0)
		r.logger.Warn("messages.new failed", zap.Error(err))
		return agent.Action{}, types.NewError(types.ErrUpstreamError, "anthropic messages.new failed").
			WithCause(err).
			WithRetryable(true)
	}
	r.metrics.RecordLLMRequest("anthropic", r.model, "success", time.Since(start), msg.Usage.InputTokens, msg.Usage.OutputTokens)
	return translateResponse(msg)
}

func (r *Reasoner) buildParams(req agent.Request) (sdk.MessageNewParams, error) {
	msgs := encodeHistory(req.History)
	msgs = append(msgs, encodeSteps(req.Steps)...)
	if len(msgs) == 0 {
		return sdk.MessageNewParams{}, types.NewValidationError("no messages to send")
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(r.maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(r.model),
	}
	if r.system != "" {
		params.System = []sdk.TextBlockParam{{Text: r.system}}
	}
	if len(req.Tools) > 0 {
		toolList, err := encodeTools(req.Tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = toolList
	}
	return params, nil
}

func encodeHistory(history []types.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case types.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case types.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

// toolUseID derives a stable tool_use id for the call made in an iteration.
func toolUseID(iteration int) string {
	return fmt.Sprintf("toolu_autoflow_%d", iteration)
}

// encodeSteps replays prior tool rounds as tool_use / tool_result pairs.
func encodeSteps(steps []agent.Step) []sdk.MessageParam {
	var out []sdk.MessageParam
	var thought string
	pending := ""

	for _, s := range steps {
		switch s.Type {
		case agent.StepThought:
			thought = s.Content
		case agent.StepToolCall:
			var blocks []sdk.ContentBlockParamUnion
			if thought != "" {
				blocks = append(blocks, sdk.NewTextBlock(thought))
			}
			var input any = map[string]any{}
			if len(s.ToolArgs) > 0 {
				input = s.ToolArgs
			}
			pending = toolUseID(s.Iteration)
			blocks = append(blocks, sdk.NewToolUseBlock(pending, input, s.ToolName))
			out = append(out, sdk.NewAssistantMessage(blocks...))
			thought = ""
		case agent.StepToolResult, agent.StepError:
			if pending == "" {
				continue
			}
			content := s.Content
			if s.Type == agent.StepToolResult && len(s.ToolResult) > 0 {
				content = string(s.ToolResult)
			}
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(pending, content, s.Type == agent.StepError)))
			pending = ""
		}
	}
	return out
}

func encodeTools(defs []tools.Definition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := sdk.ToolInputSchemaParam{}
		if len(def.Parameters) > 0 {
			var m map[string]any
			if err := json.Unmarshal(def.Parameters, &m); err != nil {
				return nil, fmt.Errorf("anthropic: tool %s schema: %w", def.Name, err)
			}
			schema.ExtraFields = m
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (agent.Action, error) {
	if msg == nil {
		return agent.Action{}, types.NewError(types.ErrUpstreamError, "anthropic: response message is nil")
	}

	var text []string
	var call *agent.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				text = append(text, block.Text)
			}
		case "tool_use":
			if call != nil {
				// one tool call per iteration; the backend sees the rest again next round
				continue
			}
			call = &agent.ToolCall{Name: block.Name, Arguments: block.Input}
		}
	}

	joined := strings.Join(text, "\n")
	if call != nil {
		return agent.Action{Thought: joined, ToolCall: call}, nil
	}
	if joined == "" {
		return agent.Action{}, types.NewError(types.ErrUpstreamError, "anthropic: empty response")
	}
	return agent.FinalAction(joined), nil
}
