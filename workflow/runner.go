package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/autoflow/types"
)

// Runner defaults.
const (
	DefaultMaxConcurrency   = 8
	DefaultNodeTimeout      = 5 * time.Minute
	DefaultExecutionTimeout = 30 * time.Minute
	persistTimeout          = 10 * time.Second
)

// ErrRunnerClosed is returned by ExecuteWorkflow after Shutdown.
var ErrRunnerClosed = errors.New("workflow runner is shut down")

// Recorder receives runner metrics. internal/metrics.Collector satisfies it.
type Recorder interface {
	RecordWorkflowExecution(status string, duration time.Duration)
	RecordNodeExecution(kind, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkflowExecution(string, time.Duration)     {}
func (nopRecorder) RecordNodeExecution(string, string, time.Duration) {}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxConcurrency bounds how many nodes of one execution run at once.
func WithMaxConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithNodeTimeout sets the default per-node timeout.
func WithNodeTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.nodeTimeout = d
		}
	}
}

// WithExecutionTimeout sets the default overall timeout.
func WithExecutionTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.executionTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Recorder) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithIDGenerator replaces the execution id generator.
func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// Runner executes workflow graphs asynchronously.
type Runner struct {
	workflows        WorkflowStore
	executions       ExecutionStore
	kinds            *Kinds
	maxConcurrency   int
	nodeTimeout      time.Duration
	executionTimeout time.Duration
	logger           *zap.Logger
	metrics          Recorder
	tracer           trace.Tracer
	newID            func() string

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner.
func NewRunner(workflows WorkflowStore, executions ExecutionStore, kinds *Kinds, opts ...RunnerOption) *Runner {
	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		workflows:        workflows,
		executions:       executions,
		kinds:            kinds,
		maxConcurrency:   DefaultMaxConcurrency,
		nodeTimeout:      DefaultNodeTimeout,
		executionTimeout: DefaultExecutionTimeout,
		logger:           zap.NewNop(),
		metrics:          nopRecorder{},
		tracer:           otel.Tracer("autoflow/workflow"),
		newID:            uuid.NewString,
		baseCtx:          baseCtx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "workflow_runner"))
	return r
}

// Validate checks the graph and that every node kind is registered.
func (r *Runner) Validate(wf *Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	for _, n := range wf.Nodes {
		if _, ok := r.kinds.Lookup(n.Kind); !ok {
			return types.NewValidationError(fmt.Sprintf("node %s: unknown kind %s (available: %s)",
				n.ID, n.Kind, strings.Join(r.kinds.Names(), ", ")))
		}
	}
	return nil
}

// ExecuteWorkflow starts an execution and returns its id without waiting
// for completion. The execution outlives ctx; only its values are kept.
func (r *Runner) ExecuteWorkflow(ctx context.Context, workflowID string, triggerData any, requesterID string) (string, error) {
	wf, err := r.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			return "", types.NewNotFoundError(fmt.Sprintf("workflow %s not found", workflowID)).WithCause(err)
		}
		return "", types.NewInternalError("load workflow", err)
	}
	if wf.OwnerID != requesterID {
		return "", types.NewForbiddenError("workflow is owned by another user")
	}
	if err := r.Validate(wf); err != nil {
		return "", err
	}

	exec, err := NewExecution(r.newID(), wf, requesterID, triggerData)
	if err != nil {
		return "", types.NewValidationError(err.Error())
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", types.NewInternalError("start execution", ErrRunnerClosed)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	snap := exec.Snapshot()
	if err := r.executions.CreateExecution(ctx, &snap); err != nil {
		r.wg.Done()
		return "", types.NewInternalError("create execution", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.baseCtx, cancel)
	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()
		r.run(runCtx, wf, exec)
	}()

	r.logger.Info("workflow execution started",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", exec.ID()),
		zap.Int("nodes", len(wf.Nodes)))
	return exec.ID(), nil
}

// Wait blocks until every in-flight execution has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting executions, cancels in-flight ones and waits for
// them to record their terminal state.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nodeDone struct {
	id       string
	output   any
	err      error
	duration time.Duration
}

func (r *Runner) run(ctx context.Context, wf *Workflow, exec *Execution) {
	start := time.Now()
	timeout := wf.Timeout()
	if timeout <= 0 {
		timeout = r.executionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = types.WithExecutionID(ctx, exec.ID())

	ctx, span := r.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.execution_id", exec.ID()),
		attribute.Int("workflow.nodes", len(wf.Nodes)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("workflow_id", wf.ID), zap.String("execution_id", exec.ID()))

	nodes := make(map[string]Node, len(wf.Nodes))
	remaining := make(map[string]int, len(wf.Nodes))
	dependents := make(map[string][]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		deps := uniq(n.DependsOn)
		n.DependsOn = deps
		nodes[n.ID] = n
		remaining[n.ID] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	total := len(wf.Nodes)
	readyCh := make(chan string, total)
	doneCh := make(chan nodeDone, total)
	for _, n := range wf.Nodes {
		if remaining[n.ID] == 0 {
			readyCh <- n.ID
		}
	}

	release := func(id string) {
		for _, next := range dependents[id] {
			remaining[next]--
			if remaining[next] == 0 {
				readyCh <- next
			}
		}
	}

	sem := semaphore.NewWeighted(int64(r.maxConcurrency))
	settled := 0
	for settled < total {
		select {
		case id := <-readyCh:
			node := nodes[id]
			if blocker := r.blockingDependency(exec, node); blocker != "" {
				r.settle(ctx, exec, node, func() error {
					return exec.Skip(id, fmt.Sprintf("dependency %s did not succeed", blocker))
				}, NodeSkipped, 0, logger)
				settled++
				release(id)
				continue
			}
			if err := ctx.Err(); err != nil {
				r.settle(ctx, exec, node, func() error { return exec.Fail(id, cancelReason(ctx, timeout)) }, NodeFailed, 0, logger)
				settled++
				release(id)
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				r.settle(ctx, exec, node, func() error { return exec.Fail(id, cancelReason(ctx, timeout)) }, NodeFailed, 0, logger)
				settled++
				release(id)
				continue
			}
			if err := exec.Start(id); err != nil {
				sem.Release(1)
				logger.Error("node start rejected", zap.String("node_id", id), zap.Error(err))
				r.settle(ctx, exec, node, func() error { return exec.Fail(id, err.Error()) }, NodeFailed, 0, logger)
				settled++
				release(id)
				continue
			}
			r.persistNode(ctx, exec, id, logger)

			go func(n Node) {
				defer sem.Release(1)
				started := time.Now()
				out, err := r.runNode(ctx, exec, n)
				doneCh <- nodeDone{id: n.ID, output: out, err: err, duration: time.Since(started)}
			}(node)

		case d := <-doneCh:
			node := nodes[d.id]
			if d.err == nil {
				if err := exec.Succeed(d.id, d.output); err != nil {
					d.err = err
				}
			}
			if d.err != nil {
				r.settle(ctx, exec, node, func() error { return exec.Fail(d.id, d.err.Error()) }, NodeFailed, d.duration, logger)
			} else {
				r.persistNode(ctx, exec, d.id, logger)
				r.metrics.RecordNodeExecution(node.Kind, string(NodeSucceeded), d.duration)
			}
			settled++
			release(d.id)
		}
	}

	reason := ""
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = fmt.Sprintf("workflow timed out after %s", timeout)
	}
	status, err := exec.Finish(reason)
	if err != nil {
		logger.Error("finish execution", zap.Error(err))
	}
	snap := exec.Snapshot()
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	finishedAt := time.Now().UTC()
	if snap.FinishedAt != nil {
		finishedAt = *snap.FinishedAt
	}
	if err := r.executions.FinishExecution(persistCtx, exec.ID(), status, snap.Error, finishedAt); err != nil {
		logger.Error("persist execution status", zap.Error(err))
	}

	duration := time.Since(start)
	r.metrics.RecordWorkflowExecution(string(status), duration)
	span.SetAttributes(attribute.String("workflow.status", string(status)))
	if status != ExecutionSucceeded {
		span.SetStatus(codes.Error, snap.Error)
	}
	logger.Info("workflow execution finished",
		zap.String("status", string(status)),
		zap.Duration("duration", duration))
}

// blockingDependency returns the first dependency that did not succeed.
func (r *Runner) blockingDependency(exec *Execution, n Node) string {
	for _, dep := range n.DependsOn {
		st, _ := exec.Node(dep)
		if st.Status != NodeSucceeded {
			return dep
		}
	}
	return ""
}

// settle applies a terminal transition, persists it and records metrics.
func (r *Runner) settle(ctx context.Context, exec *Execution, n Node, apply func() error, status NodeStatus, d time.Duration, logger *zap.Logger) {
	if err := apply(); err != nil {
		logger.Error("node transition rejected", zap.String("node_id", n.ID), zap.Error(err))
		return
	}
	r.persistNode(ctx, exec, n.ID, logger)
	r.metrics.RecordNodeExecution(n.Kind, string(status), d)
	if status == NodeFailed {
		st, _ := exec.Node(n.ID)
		logger.Warn("node failed", zap.String("node_id", n.ID), zap.String("error", st.Error))
	}
}

func (r *Runner) persistNode(ctx context.Context, exec *Execution, nodeID string, logger *zap.Logger) {
	st, ok := exec.Node(nodeID)
	if !ok {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.executions.UpdateNode(persistCtx, exec.ID(), st); err != nil {
		logger.Error("persist node state", zap.String("node_id", nodeID), zap.Error(err))
	}
}

// runNode executes one node under its own timeout. A node function that
// ignores cancellation is abandoned once the timeout fires.
func (r *Runner) runNode(ctx context.Context, exec *Execution, n Node) (any, error) {
	fn, ok := r.kinds.Lookup(n.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown node kind %s", n.Kind)
	}

	timeout := n.Timeout()
	if timeout <= 0 {
		timeout = r.nodeTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nodeCtx, span := r.tracer.Start(nodeCtx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node_id", n.ID),
		attribute.String("workflow.node_kind", n.Kind),
	))
	defer span.End()

	inputs := make(map[string]any, len(n.DependsOn))
	for _, dep := range n.DependsOn {
		if out, ok := exec.Output(dep); ok {
			inputs[dep] = out
		}
	}
	in := NodeInput{
		ExecutionID: exec.ID(),
		Node:        n,
		TriggerData: exec.TriggerData(),
		Inputs:      inputs,
	}

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("node panicked: %v", p)}
			}
		}()
		out, err := fn(nodeCtx, in)
		done <- result{out: out, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-nodeCtx.Done():
		res = result{err: nodeCtx.Err()}
	}

	if res.err != nil && nodeCtx.Err() != nil {
		switch {
		case ctx.Err() != nil:
			res.err = errors.New(cancelReason(ctx, 0))
		case errors.Is(nodeCtx.Err(), context.DeadlineExceeded):
			res.err = types.NewTimeoutError(fmt.Sprintf("node timed out after %s", timeout))
		}
	}
	if res.err != nil {
		span.SetStatus(codes.Error, res.err.Error())
	}
	return res.out, res.err
}

func cancelReason(ctx context.Context, timeout time.Duration) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if timeout > 0 {
			return fmt.Sprintf("workflow timed out after %s", timeout)
		}
		return "workflow timed out"
	}
	return "workflow cancelled"
}
