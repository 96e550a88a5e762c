package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 agent、workflow、trigger、cache
// 与 anthropic 各包的 Recorder 接口
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// Agent 指标
	agentRunsTotal   *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentStepsTotal  *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// 工作流指标
	workflowExecutionsTotal   *prometheus.CounterVec
	workflowExecutionDuration *prometheus.HistogramVec
	nodeExecutionsTotal       *prometheus.CounterVec
	nodeExecutionDuration     *prometheus.HistogramVec
	webhookTriggersTotal      *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg；reg 为 nil 时使用默认注册表
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"},
	)

	// Agent 指标
	c.agentRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Total number of agent runs",
		},
		[]string{"status"},
	)

	c.agentRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_duration_seconds",
			Help:      "Agent run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.agentStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_steps_total",
			Help:      "Total number of agent steps emitted",
		},
		[]string{"type"},
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// 工作流指标
	c.workflowExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of finished workflow executions",
		},
		[]string{"status"},
	)

	c.workflowExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800},
		},
		[]string{"status"},
	)

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of workflow nodes reaching a terminal status",
		},
		[]string{"kind", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Workflow node duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	c.webhookTriggersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_triggers_total",
			Help:      "Total number of webhook deliveries by outcome",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录一次模型调用
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentRun 记录一次完整的 agent 运行
func (c *Collector) RecordAgentRun(status string, duration time.Duration) {
	c.agentRunsTotal.WithLabelValues(status).Inc()
	c.agentRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAgentStep 记录一个已发出的步骤
func (c *Collector) RecordAgentStep(stepType string) {
	c.agentStepsTotal.WithLabelValues(stepType).Inc()
}

// RecordToolCall 记录一次工具调用
func (c *Collector) RecordToolCall(tool, status string, duration time.Duration) {
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordWorkflowExecution 记录一次执行的终态
func (c *Collector) RecordWorkflowExecution(status string, duration time.Duration) {
	c.workflowExecutionsTotal.WithLabelValues(status).Inc()
	c.workflowExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNodeExecution 记录节点终态
func (c *Collector) RecordNodeExecution(kind, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(kind, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWebhookTrigger 记录 webhook 投递结果
func (c *Collector) RecordWebhookTrigger(status string) {
	c.webhookTriggersTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusClass 将 HTTP 状态码归类为 2xx/3xx/4xx/5xx
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
