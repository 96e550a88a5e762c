package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/agent"
	"github.com/BaSui01/autoflow/api"
	"github.com/BaSui01/autoflow/stream"
	"github.com/BaSui01/autoflow/types"
)

// =============================================================================
// 💬 对话 Handler
// =============================================================================

// anonymousUser 是未认证调用者的作用域前缀
const anonymousUser = "anonymous"

// ExecutorFactory 为作用域创建执行器，history 为客户端提供的初始历史
type ExecutorFactory func(scopeID string, history []types.Message) *agent.Executor

// ChatHandler 把一次对话轮次以 SSE 推送给客户端
type ChatHandler struct {
	sessions  *agent.Sessions
	factory   ExecutorFactory
	stepDelay time.Duration
	logger    *zap.Logger
}

// NewChatHandler 创建对话处理器。sessions 缓存服务端持有历史的执行器，
// factory 用于客户端自带历史的一次性执行器
func NewChatHandler(sessions *agent.Sessions, factory ExecutorFactory, stepDelay time.Duration, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		sessions:  sessions,
		factory:   factory,
		stepDelay: stepDelay,
		logger:    logger.With(zap.String("handler", "chat")),
	}
}

// ScopeID 组合调用者与项目得到会话作用域
func ScopeID(userID, projectID string) string {
	if userID == "" {
		userID = anonymousUser
	}
	if projectID == "" {
		projectID = api.DefaultProjectID
	}
	return userID + ":" + projectID
}

// HandleChat 处理 POST /api/agent/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, types.NewValidationError("message is required"), h.logger)
		return
	}
	for i, msg := range req.ConversationHistory {
		if err := msg.Validate(); err != nil {
			WriteError(w, types.NewValidationError(fmt.Sprintf("conversationHistory[%d]: invalid role %q", i, msg.Role)), h.logger)
			return
		}
	}

	userID, _ := types.UserID(r.Context())
	scope := ScopeID(userID, req.ProjectID)

	var exec *agent.Executor
	if req.ConversationHistory != nil {
		exec = h.factory(scope, req.ConversationHistory)
	} else {
		exec = h.sessions.Get(scope)
	}

	run, err := exec.Start(r.Context(), req.Message)
	if err != nil {
		WriteError(w, startError(err), h.logger)
		return
	}

	rc := http.NewResponseController(w)
	// 对话轮次可能超过服务器写超时
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	err = stream.Drain(r.Context(), run.Steps(), h.stepDelay, func(step agent.Step) error {
		return writeEvent(w, rc, step)
	})
	result := run.Wait()
	if err != nil {
		h.logger.Debug("chat stream aborted", zap.String("scope", scope), zap.Error(err))
		return
	}

	done := api.ChatDoneEvent{
		Type:     "done",
		Success:  result.Success,
		Response: result.Response,
		Error:    result.Error,
	}
	if err := writeEvent(w, rc, done); err != nil {
		h.logger.Debug("write done event failed", zap.String("scope", scope), zap.Error(err))
	}
}

// startError 将执行器启动错误映射为 API 错误
func startError(err error) error {
	switch {
	case errors.Is(err, agent.ErrBusy):
		return types.NewError(types.ErrAgentBusy, "a reply is already being generated for this conversation").
			WithHTTPStatus(http.StatusConflict).WithRetryable(true)
	case errors.Is(err, agent.ErrReasonerNotSet):
		return types.NewError(types.ErrInternalError, "chat is not configured").
			WithHTTPStatus(http.StatusServiceUnavailable).WithCause(err)
	default:
		return err
	}
}

// writeEvent 写出一个 SSE data 事件并刷新
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
