package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/api"
	"github.com/BaSui01/autoflow/types"
	"github.com/BaSui01/autoflow/workflow"
)

// =============================================================================
// 🔀 工作流 Handler
// =============================================================================

// WorkflowRepository 读写工作流定义
type WorkflowRepository interface {
	workflow.WorkflowStore
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error
	ListWorkflows(ctx context.Context, ownerID string) ([]*workflow.Workflow, error)
}

// WorkflowRunner 校验并启动执行，*workflow.Runner 实现了它
type WorkflowRunner interface {
	Validate(wf *workflow.Workflow) error
	ExecuteWorkflow(ctx context.Context, workflowID string, triggerData any, requesterID string) (string, error)
}

// WorkflowHandler 处理工作流定义与执行相关请求
type WorkflowHandler struct {
	workflows  WorkflowRepository
	executions workflow.ExecutionStore
	runner     WorkflowRunner
	logger     *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(workflows WorkflowRepository, executions workflow.ExecutionStore, runner WorkflowRunner, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		workflows:  workflows,
		executions: executions,
		runner:     runner,
		logger:     logger.With(zap.String("handler", "workflow")),
	}
}

// HandleExecute 处理 POST /api/workflows/execute
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req api.ExecuteWorkflowRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if strings.TrimSpace(req.WorkflowID) == "" {
		WriteError(w, types.NewValidationError("workflowId is required"), h.logger)
		return
	}

	id, err := h.runner.ExecuteWorkflow(r.Context(), req.WorkflowID, req.TriggerData, userID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.ExecuteWorkflowResponse{Success: true, ExecutionID: id})
}

// HandleCreate 处理 POST /api/workflows。调用者成为所有者；
// 已存在且属于他人的 id 返回 403
func (h *WorkflowHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var wf workflow.Workflow
	if err := DecodeJSONBody(w, r, &wf); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	wf.OwnerID = userID

	if err := h.runner.Validate(&wf); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	existing, err := h.workflows.GetWorkflow(r.Context(), wf.ID)
	switch {
	case err == nil && existing.OwnerID != userID:
		WriteError(w, types.NewForbiddenError("workflow is owned by another user"), h.logger)
		return
	case err != nil && !errors.Is(err, workflow.ErrWorkflowNotFound):
		WriteError(w, types.NewInternalError("load workflow", err), h.logger)
		return
	}

	if err := h.workflows.SaveWorkflow(r.Context(), &wf); err != nil {
		WriteError(w, types.NewInternalError("save workflow", err), h.logger)
		return
	}
	h.logger.Info("workflow saved", zap.String("workflow_id", wf.ID), zap.String("owner_id", userID))
	WriteSuccess(w, &wf)
}

// HandleList 处理 GET /api/workflows
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	wfs, err := h.workflows.ListWorkflows(r.Context(), userID)
	if err != nil {
		WriteError(w, types.NewInternalError("list workflows", err), h.logger)
		return
	}
	WriteSuccess(w, wfs)
}

// HandleGet 处理 GET /api/workflows/{id}
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	wf, err := h.ownedWorkflow(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, wf)
}

// HandleGetExecution 处理 GET /api/executions/{id}，仅发起者可见
func (h *WorkflowHandler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := h.executions.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			WriteError(w, types.NewNotFoundError(fmt.Sprintf("execution %s not found", id)), h.logger)
			return
		}
		WriteError(w, types.NewInternalError("load execution", err), h.logger)
		return
	}
	if snap.RequesterID != userID {
		WriteError(w, types.NewForbiddenError("execution belongs to another user"), h.logger)
		return
	}
	WriteSuccess(w, snap)
}

// ownedWorkflow 加载工作流并校验所有者
func (h *WorkflowHandler) ownedWorkflow(ctx context.Context, id, userID string) (*workflow.Workflow, error) {
	wf, err := h.workflows.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			return nil, types.NewNotFoundError(fmt.Sprintf("workflow %s not found", id))
		}
		return nil, types.NewInternalError("load workflow", err)
	}
	if wf.OwnerID != userID {
		return nil, types.NewForbiddenError("workflow is owned by another user")
	}
	return wf, nil
}
