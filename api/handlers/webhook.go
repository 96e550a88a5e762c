package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/api"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/types"
	"github.com/BaSui01/autoflow/workflow"
)

// =============================================================================
// 🪝 Webhook Handler
// =============================================================================

// DefaultWebhookBodyLimit 未配置时的 webhook 请求体上限
const DefaultWebhookBodyLimit int64 = 1 << 20

var endpointPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// WebhookRepository 管理端点注册
type WebhookRepository interface {
	trigger.Registry
	RegisterWebhook(ctx context.Context, reg *trigger.Registration) error
	DeleteWebhook(ctx context.Context, endpoint string) error
}

// WebhookTrigger 把一次调用映射为执行，*trigger.Manager 实现了它
type WebhookTrigger interface {
	HandleWebhookTrigger(ctx context.Context, endpoint string, raw trigger.RawRequest) (trigger.Result, error)
}

// WebhookHandler 处理 webhook 注册与触发
type WebhookHandler struct {
	webhooks  WebhookRepository
	workflows workflow.WorkflowStore
	trigger   WebhookTrigger
	maxBody   int64
	logger    *zap.Logger
}

// NewWebhookHandler 创建 webhook 处理器，maxBody <= 0 时使用默认上限
func NewWebhookHandler(webhooks WebhookRepository, workflows workflow.WorkflowStore, trig WebhookTrigger, maxBody int64, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = DefaultWebhookBodyLimit
	}
	return &WebhookHandler{
		webhooks:  webhooks,
		workflows: workflows,
		trigger:   trig,
		maxBody:   maxBody,
		logger:    logger.With(zap.String("handler", "webhook")),
	}
}

// HandleRegister 处理 POST /api/webhooks，调用者必须拥有目标工作流
func (h *WebhookHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req api.RegisterWebhookRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if !endpointPattern.MatchString(req.Endpoint) {
		WriteError(w, types.NewValidationError("endpoint must be 1-128 letters, digits, '-' or '_'"), h.logger)
		return
	}
	if req.WorkflowID == "" {
		WriteError(w, types.NewValidationError("workflowId is required"), h.logger)
		return
	}

	wf, err := h.workflows.GetWorkflow(r.Context(), req.WorkflowID)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			WriteError(w, types.NewNotFoundError(fmt.Sprintf("workflow %s not found", req.WorkflowID)), h.logger)
			return
		}
		WriteError(w, types.NewInternalError("load workflow", err), h.logger)
		return
	}
	if wf.OwnerID != userID {
		WriteError(w, types.NewForbiddenError("workflow is owned by another user"), h.logger)
		return
	}

	reg := &trigger.Registration{
		Endpoint:   req.Endpoint,
		WorkflowID: wf.ID,
		OwnerID:    userID,
		Secret:     req.Secret,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.webhooks.RegisterWebhook(r.Context(), reg); err != nil {
		if errors.Is(err, trigger.ErrEndpointTaken) {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "endpoint already registered").
				WithHTTPStatus(http.StatusConflict), h.logger)
			return
		}
		WriteError(w, types.NewInternalError("register webhook", err), h.logger)
		return
	}

	h.logger.Info("webhook registered",
		zap.String("endpoint", reg.Endpoint),
		zap.String("workflow_id", reg.WorkflowID))
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: reg, Timestamp: time.Now()})
}

// HandleDelete 处理 DELETE /api/webhooks/registrations/{endpoint}
func (h *WebhookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	endpoint := chi.URLParam(r, "endpoint")

	reg, err := h.webhooks.Lookup(r.Context(), endpoint)
	if err != nil {
		if errors.Is(err, trigger.ErrEndpointNotFound) {
			WriteError(w, types.NewNotFoundError(fmt.Sprintf("endpoint %s not found", endpoint)), h.logger)
			return
		}
		WriteError(w, types.NewInternalError("lookup webhook", err), h.logger)
		return
	}
	if reg.OwnerID != userID {
		WriteError(w, types.NewForbiddenError("endpoint is owned by another user"), h.logger)
		return
	}
	if err := h.webhooks.DeleteWebhook(r.Context(), endpoint); err != nil && !errors.Is(err, trigger.ErrEndpointNotFound) {
		WriteError(w, types.NewInternalError("delete webhook", err), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTrigger 处理任意方法的 /api/webhooks/{endpoint}。
// 客户端问题返回 400 {success:false,error}，内部故障返回 500
func (h *WebhookHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, trigger.Result{Success: false, Error: "request body too large"})
			return
		}
		WriteJSON(w, http.StatusBadRequest, trigger.Result{Success: false, Error: "failed to read request body"})
		return
	}

	res, err := h.trigger.HandleWebhookTrigger(r.Context(), endpoint, trigger.RawRequest{
		Method:      r.Method,
		Headers:     r.Header,
		Query:       r.URL.Query(),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil {
		h.logger.Error("webhook trigger failed", zap.String("endpoint", endpoint), zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, trigger.Result{Success: false, Error: "internal error"})
		return
	}
	if !res.Success {
		WriteJSON(w, http.StatusBadRequest, res)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
