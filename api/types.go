package api

import (
	"github.com/BaSui01/autoflow/types"
)

// =============================================================================
// 对话
// =============================================================================

// DefaultProjectID 未指定 projectId 时使用的会话作用域
const DefaultProjectID = "default"

// ChatRequest 流式对话请求
type ChatRequest struct {
	// 用户消息
	Message string `json:"message"`
	// 会话作用域，与调用者 ID 组合选择执行器
	ProjectID string `json:"projectId,omitempty"`
	// 客户端持有的历史；提供时本次请求使用独立执行器
	ConversationHistory []types.Message `json:"conversationHistory,omitempty"`
}

// ChatDoneEvent 是 SSE 流的最后一个事件
type ChatDoneEvent struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// =============================================================================
// 工作流
// =============================================================================

// ExecuteWorkflowRequest 启动工作流执行
type ExecuteWorkflowRequest struct {
	WorkflowID  string `json:"workflowId"`
	TriggerData any    `json:"triggerData,omitempty"`
}

// ExecuteWorkflowResponse 执行已被接受
type ExecuteWorkflowResponse struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"executionId"`
}

// =============================================================================
// Webhook
// =============================================================================

// RegisterWebhookRequest 将端点映射到调用者拥有的工作流
type RegisterWebhookRequest struct {
	Endpoint   string `json:"endpoint"`
	WorkflowID string `json:"workflowId"`
	// 可选的 HMAC-SHA256 密钥，设置后请求需携带 X-Webhook-Signature
	Secret string `json:"secret,omitempty"`
}
