package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/types"
	"github.com/BaSui01/autoflow/workflow"
)

// SignatureHeader carries the optional HMAC-SHA256 body signature.
const SignatureHeader = "X-Webhook-Signature"

// Runner starts workflow executions. *workflow.Runner satisfies it.
type Runner interface {
	ExecuteWorkflow(ctx context.Context, workflowID string, triggerData any, requesterID string) (string, error)
}

// Recorder receives trigger metrics.
type Recorder interface {
	RecordWebhookTrigger(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhookTrigger(string) {}

// Result is the outcome of one webhook call.
type Result struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"executionId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// Manager maps webhook calls to workflow executions.
type Manager struct {
	registry  Registry
	workflows workflow.WorkflowStore
	runner    Runner
	logger    *zap.Logger
	metrics   Recorder
}

// NewManager creates a trigger manager.
func NewManager(registry Registry, workflows workflow.WorkflowStore, runner Runner, opts ...Option) *Manager {
	m := &Manager{
		registry:  registry,
		workflows: workflows,
		runner:    runner,
		logger:    zap.NewNop(),
		metrics:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "trigger_manager"))
	return m
}

// HandleWebhookTrigger resolves endpoint and starts the mapped workflow on
// behalf of its owner. Client-side problems are reported in the Result; the
// returned error is reserved for internal failures.
func (m *Manager) HandleWebhookTrigger(ctx context.Context, endpoint string, raw RawRequest) (Result, error) {
	reg, err := m.registry.Lookup(ctx, endpoint)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			m.metrics.RecordWebhookTrigger("unknown_endpoint")
			return Result{Success: false, Error: "unknown endpoint"}, nil
		}
		m.metrics.RecordWebhookTrigger("error")
		return Result{}, types.NewInternalError("lookup webhook endpoint", err)
	}

	if reg.Secret != "" && !VerifySignature(reg.Secret, raw.Body, headerValue(raw.Headers, SignatureHeader)) {
		m.logger.Warn("webhook signature mismatch", zap.String("endpoint", endpoint))
		m.metrics.RecordWebhookTrigger("invalid_signature")
		return Result{Success: false, Error: "invalid signature"}, nil
	}

	wf, err := m.workflows.GetWorkflow(ctx, reg.WorkflowID)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			m.metrics.RecordWebhookTrigger("rejected")
			return Result{Success: false, Error: "workflow not found"}, nil
		}
		m.metrics.RecordWebhookTrigger("error")
		return Result{}, types.NewInternalError("load workflow", err)
	}

	payload := Normalize(raw)
	id, err := m.runner.ExecuteWorkflow(ctx, wf.ID, payload, wf.OwnerID)
	if err != nil {
		switch types.GetErrorCode(err) {
		case types.ErrInvalidRequest, types.ErrNotFound, types.ErrForbidden:
			e, _ := types.AsError(err)
			m.metrics.RecordWebhookTrigger("rejected")
			return Result{Success: false, Error: e.Message}, nil
		}
		m.metrics.RecordWebhookTrigger("error")
		m.logger.Error("start workflow from webhook", zap.String("endpoint", endpoint), zap.Error(err))
		return Result{}, err
	}

	m.metrics.RecordWebhookTrigger("accepted")
	m.logger.Info("webhook triggered workflow",
		zap.String("endpoint", endpoint),
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", id))
	return Result{Success: true, ExecutionID: id}, nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

func headerValue(headers map[string][]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
