package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/autoflow/stream"
	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds the reasoning loop when no option is given.
const DefaultMaxIterations = 10

// Recorder receives execution metrics. internal/metrics.Collector satisfies it.
type Recorder interface {
	RecordAgentRun(status string, duration time.Duration)
	RecordAgentStep(stepType string)
	RecordToolCall(tool, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAgentRun(string, time.Duration)         {}
func (nopRecorder) RecordAgentStep(string)                       {}
func (nopRecorder) RecordToolCall(string, string, time.Duration) {}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxIterations sets the iteration cap. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithStepBuffer sets how many steps the loop may run ahead of the consumer.
func WithStepBuffer(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.stepBuffer = n
		}
	}
}

// WithHistory seeds the conversation history.
func WithHistory(history []types.Message) Option {
	return func(e *Executor) {
		e.history = append(e.history, history...)
	}
}

// Executor owns the conversation history of one scope and runs one reasoning
// loop at a time over it.
type Executor struct {
	scopeID       string
	reasoner      Reasoner
	invoker       tools.Invoker
	maxIterations int
	stepBuffer    int
	logger        *zap.Logger
	metrics       Recorder
	tracer        trace.Tracer

	execMu  sync.Mutex // held for the whole loop
	running atomic.Bool

	mu       sync.RWMutex
	history  []types.Message
	lastUsed time.Time
}

// NewExecutor creates an executor for scopeID. invoker may be nil, in which
// case every tool call is recorded as an error step.
func NewExecutor(scopeID string, reasoner Reasoner, invoker tools.Invoker, opts ...Option) *Executor {
	e := &Executor{
		scopeID:       scopeID,
		reasoner:      reasoner,
		invoker:       invoker,
		maxIterations: DefaultMaxIterations,
		stepBuffer:    16,
		logger:        zap.NewNop(),
		metrics:       nopRecorder{},
		tracer:        otel.Tracer("autoflow/agent"),
		lastUsed:      time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "agent_executor"), zap.String("scope", scopeID))
	return e
}

// ScopeID returns the scope the executor serves.
func (e *Executor) ScopeID() string { return e.scopeID }

// Busy reports whether a reasoning loop is in progress.
func (e *Executor) Busy() bool { return e.running.Load() }

// LastUsed returns the time of the last Start or AddToHistory.
func (e *Executor) LastUsed() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUsed
}

// AddToHistory appends a user or assistant message. Messages are not
// deduplicated and the history is not bounded.
func (e *Executor) AddToHistory(msg types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	e.mu.Lock()
	e.history = append(e.history, msg)
	e.lastUsed = time.Now()
	e.mu.Unlock()
	return nil
}

// History returns a copy of the conversation history.
func (e *Executor) History() []types.Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Run is one in-flight reasoning loop. Steps must be consumed (or the run
// cancelled) for the loop to make progress.
type Run struct {
	steps  *stream.Stream[Step]
	done   chan struct{}
	result *ExecutionResult
}

// Steps returns the ordered step stream.
func (r *Run) Steps() *stream.Stream[Step] { return r.steps }

// Cancel abandons the run. The loop stops at its next emission.
func (r *Run) Cancel() { r.steps.Cancel() }

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the loop finishes and returns its result.
func (r *Run) Wait() *ExecutionResult {
	<-r.done
	return r.result
}

// Start appends userMessage to the history and launches the reasoning loop.
// It returns ErrBusy when another loop is running on this executor.
func (e *Executor) Start(ctx context.Context, userMessage string) (*Run, error) {
	if userMessage == "" {
		return nil, types.NewValidationError("message is required")
	}
	if e.reasoner == nil {
		return nil, ErrReasonerNotSet
	}
	if !e.execMu.TryLock() {
		return nil, ErrBusy
	}
	e.running.Store(true)

	if err := e.AddToHistory(types.NewUserMessage(userMessage)); err != nil {
		e.running.Store(false)
		e.execMu.Unlock()
		return nil, err
	}

	run := &Run{
		steps: stream.New[Step](ctx, e.stepBuffer),
		done:  make(chan struct{}),
	}

	go func() {
		defer func() {
			e.running.Store(false)
			e.execMu.Unlock()
		}()
		run.result = e.loop(run.steps.Context(), run.steps)
		run.steps.Close(nil)
		close(run.done)
	}()
	return run, nil
}

// Execute runs a complete turn and collects every step.
func (e *Executor) Execute(ctx context.Context, userMessage string) (*ExecutionResult, error) {
	run, err := e.Start(ctx, userMessage)
	if err != nil {
		return nil, err
	}
	stream.Collect(run.Steps())
	return run.Wait(), nil
}

type loopState struct {
	e        *Executor
	out      *stream.Stream[Step]
	steps    []Step
	lastTS   time.Time
	maxIters int
}

func (s *loopState) emit(step Step) error {
	ts := time.Now()
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	step.Timestamp = ts
	step.ToolArgs = cloneRaw(step.ToolArgs)
	step.ToolResult = cloneRaw(step.ToolResult)
	if step.Iteration > 0 {
		p := float64(step.Iteration) / float64(s.maxIters)
		step.Progress = &p
	}

	if err := s.out.Emit(step); err != nil {
		return err
	}
	s.steps = append(s.steps, step)
	s.e.metrics.RecordAgentStep(string(step.Type))
	return nil
}

func (s *loopState) snapshot() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

func (e *Executor) loop(ctx context.Context, out *stream.Stream[Step]) *ExecutionResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("agent.scope", e.scopeID),
		attribute.Int("agent.max_iterations", e.maxIterations),
	))
	defer span.End()

	history := e.History()
	var defs []tools.Definition
	if e.invoker != nil {
		defs = e.invoker.Definitions()
	}

	st := &loopState{e: e, out: out, maxIters: e.maxIterations}
	result := &ExecutionResult{}

	finish := func(err error) *ExecutionResult {
		result.Steps = st.steps
		result.Duration = time.Since(start)
		status := "success"
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			status = "failure"
			span.SetStatus(codes.Error, result.Error)
		} else {
			result.Success = true
		}
		span.SetAttributes(attribute.Int("agent.iterations", result.Iterations))
		e.metrics.RecordAgentRun(status, result.Duration)
		e.logger.Info("agent run finished",
			zap.Bool("success", result.Success),
			zap.Int("iterations", result.Iterations),
			zap.Int("steps", len(result.Steps)),
			zap.Duration("duration", result.Duration))
		return result
	}

	for iter := 1; iter <= e.maxIterations; iter++ {
		result.Iterations = iter

		action, err := e.reasoner.Next(ctx, Request{History: history, Steps: st.snapshot(), Tools: defs})
		if err != nil {
			if errors.Is(err, stream.ErrCancelled) || ctx.Err() != nil {
				return finish(fmt.Errorf("execution cancelled: %w", ctx.Err()))
			}
			e.logger.Warn("reasoning backend failed", zap.Int("iteration", iter), zap.Error(err))
			msg := fmt.Sprintf("reasoning failed: %v", err)
			if emitErr := st.emit(Step{Type: StepError, Content: msg, Iteration: iter}); emitErr != nil {
				return finish(emitErr)
			}
			return finish(errors.New(msg))
		}

		if action.Thought != "" {
			if err := st.emit(Step{Type: StepThought, Content: action.Thought, Iteration: iter}); err != nil {
				return finish(err)
			}
		}

		switch {
		case action.Final != nil:
			answer := *action.Final
			if err := st.emit(Step{Type: StepFinal, Content: answer, Iteration: iter}); err != nil {
				return finish(err)
			}
			if err := e.AddToHistory(types.NewAssistantMessage(answer)); err != nil {
				return finish(err)
			}
			result.Response = answer
			return finish(nil)

		case action.ToolCall != nil:
			if err := e.runTool(ctx, st, action.ToolCall, iter); err != nil {
				return finish(err)
			}

		default:
			if err := st.emit(Step{Type: StepError, Content: ErrEmptyAction.Error(), Iteration: iter}); err != nil {
				return finish(err)
			}
			return finish(ErrEmptyAction)
		}
	}

	e.logger.Warn("iteration cap reached", zap.Int("max_iterations", e.maxIterations))
	msg := fmt.Sprintf("Stopped after %d iterations without a final answer.", e.maxIterations)
	if err := st.emit(Step{Type: StepFinal, Content: msg, Iteration: e.maxIterations}); err != nil {
		return finish(err)
	}
	return finish(ErrMaxIterations)
}

// runTool emits the tool_call step, invokes the tool and emits either a
// tool_result or an error step. Only stream failures are returned.
func (e *Executor) runTool(ctx context.Context, st *loopState, call *ToolCall, iter int) error {
	if err := st.emit(Step{
		Type:      StepToolCall,
		Content:   fmt.Sprintf("Calling tool %s", call.Name),
		ToolName:  call.Name,
		ToolArgs:  call.Arguments,
		Iteration: iter,
	}); err != nil {
		return err
	}

	if e.invoker == nil {
		return st.emit(Step{
			Type:      StepError,
			Content:   fmt.Sprintf("tool %s failed: %v", call.Name, tools.ErrToolNotFound),
			ToolName:  call.Name,
			Iteration: iter,
		})
	}

	start := time.Now()
	res, err := e.invoker.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		e.metrics.RecordToolCall(call.Name, "failure", time.Since(start))
		e.logger.Debug("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return st.emit(Step{
			Type:      StepError,
			Content:   fmt.Sprintf("tool %s failed: %v", call.Name, err),
			ToolName:  call.Name,
			Iteration: iter,
		})
	}
	e.metrics.RecordToolCall(call.Name, "success", time.Since(start))
	if len(res) > 0 && !json.Valid(res) {
		res, _ = json.Marshal(string(res))
	}
	return st.emit(Step{
		Type:       StepToolResult,
		Content:    string(res),
		ToolName:   call.Name,
		ToolResult: res,
		Iteration:  iter,
	})
}
