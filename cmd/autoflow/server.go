package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/agent"
	"github.com/BaSui01/autoflow/api/handlers"
	"github.com/BaSui01/autoflow/config"
	"github.com/BaSui01/autoflow/internal/cache"
	"github.com/BaSui01/autoflow/internal/database"
	"github.com/BaSui01/autoflow/internal/metrics"
	"github.com/BaSui01/autoflow/internal/migration"
	"github.com/BaSui01/autoflow/internal/server"
	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/internal/store/memory"
	"github.com/BaSui01/autoflow/internal/store/sqlstore"
	"github.com/BaSui01/autoflow/internal/telemetry"
	"github.com/BaSui01/autoflow/internal/tlsutil"
	"github.com/BaSui01/autoflow/llm/providers/anthropic"
	"github.com/BaSui01/autoflow/tools"
	"github.com/BaSui01/autoflow/trigger"
	"github.com/BaSui01/autoflow/types"
	"github.com/BaSui01/autoflow/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 AutoFlow 的全部组件并管理其生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry  *telemetry.Providers
	registerer prometheus.Registerer // nil 表示默认注册表
	collector  *metrics.Collector

	store      store.Store
	executions workflow.ExecutionStore
	cache      *cache.Manager

	tools    *tools.Registry
	reasoner agent.Reasoner
	sessions *agent.Sessions
	runner   *workflow.Runner
	triggers *trigger.Manager

	health *handlers.HealthHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 后台任务（会话回收、限流清理）的生命周期
	cancelBackground context.CancelFunc
}

// NewServer 创建服务器，组件在 Start 中初始化
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化组件并启动 HTTP 与 Metrics 服务（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	if err := s.initComponents(ctx); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel
	if s.cfg.Agent.SessionSweepInterval > 0 && s.cfg.Agent.SessionIdleTimeout > 0 {
		go s.sessions.RunSweeper(bgCtx, s.cfg.Agent.SessionSweepInterval, s.cfg.Agent.SessionIdleTimeout)
	}

	// HTTP 服务
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Metrics 服务
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("jwt_enabled", s.cfg.JWT.Enabled()),
		zap.Bool("chat_enabled", s.reasoner != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 按依赖顺序创建指标、存储、缓存、Agent、工作流与触发器
func (s *Server) initComponents(ctx context.Context) error {
	// 1. 指标收集器
	s.collector = metrics.NewCollector("autoflow", s.prometheusRegisterer(), s.logger)

	// 2. 存储
	if err := s.initStore(ctx); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	// 3. 执行状态缓存
	if err := s.initCache(); err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}

	// 4. Agent 与工作流
	if err := s.initAgent(); err != nil {
		return fmt.Errorf("failed to init agent: %w", err)
	}
	if err := s.initWorkflow(); err != nil {
		return fmt.Errorf("failed to init workflow runner: %w", err)
	}

	// 5. Webhook 触发器
	s.triggers = trigger.NewManager(s.store, s.store, s.runner,
		trigger.WithLogger(s.logger),
		trigger.WithMetrics(s.collector),
	)
	return nil
}

func (s *Server) prometheusRegisterer() prometheus.Registerer {
	if s.registerer != nil {
		return s.registerer
	}
	return prometheus.DefaultRegisterer
}

// initStore 选择存储实现：未配置数据库驱动时使用内存存储
func (s *Server) initStore(ctx context.Context) error {
	if s.cfg.Database.Driver == "" {
		s.logger.Warn("Database driver not configured, using in-memory store")
		s.store = memory.New()
		s.executions = s.store
		return nil
	}

	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger)
	if err != nil {
		return err
	}

	if s.cfg.Database.AutoMigrate {
		m, err := migration.NewMigratorFromGorm(s.cfg.Database.Driver, db)
		if err != nil {
			_ = pool.Close()
			return fmt.Errorf("failed to create migrator: %w", err)
		}
		if err := m.Up(ctx); err != nil {
			_ = pool.Close()
			return fmt.Errorf("auto-migrate failed: %w", err)
		}
		s.logger.Info("Database migrations applied")
	}

	if err := s.prometheusRegisterer().Register(pool.StatsCollector(s.cfg.Database.Name)); err != nil {
		s.logger.Warn("Failed to register database pool metrics", zap.Error(err))
	}

	s.store = sqlstore.New(pool, s.logger)
	s.executions = s.store
	return nil
}

// initCache 在启用 Redis 时用写穿缓存包装执行记录存储
func (s *Server) initCache() error {
	if !s.cfg.Redis.Enabled {
		return nil
	}
	mgr, err := cache.NewManager(cache.ConfigFrom(s.cfg.Redis), s.logger)
	if err != nil {
		return err
	}
	s.cache = mgr
	s.executions = cache.NewExecutionCache(s.store, mgr, s.cfg.Redis.TTL, s.logger, cache.WithRecorder(s.collector))
	return nil
}

// initAgent 初始化工具注册表、推理后端与会话表。未配置 LLM 时对话返回 503
func (s *Server) initAgent() error {
	s.tools = tools.NewRegistry(s.logger)
	if s.cfg.Agent.BuiltinTools {
		if err := tools.RegisterBuiltins(s.tools, tlsutil.OutboundClient(s.cfg.Agent.ToolTimeout)); err != nil {
			return err
		}
	}

	switch s.cfg.LLM.Provider {
	case "":
		s.logger.Info("LLM provider not configured, chat endpoints return 503")
	case "anthropic":
		reasoner, err := anthropic.NewFromAPIKey(s.cfg.LLM.APIKey, s.cfg.LLM.BaseURL, anthropic.Options{
			Model:        s.cfg.LLM.Model,
			MaxTokens:    s.cfg.LLM.MaxTokens,
			SystemPrompt: s.cfg.LLM.SystemPrompt,
			Logger:       s.logger,
			Metrics:      s.collector,
		})
		if err != nil {
			return err
		}
		s.reasoner = reasoner
		s.logger.Info("Reasoner initialized",
			zap.String("provider", s.cfg.LLM.Provider),
			zap.String("model", s.cfg.LLM.Model))
	default:
		return fmt.Errorf("unsupported LLM provider: %s", s.cfg.LLM.Provider)
	}

	s.sessions = agent.NewSessions(func(scopeID string) *agent.Executor {
		return s.newExecutor(scopeID, nil)
	}, s.logger)
	return nil
}

// newExecutor 创建一个执行器，history 为初始对话历史
func (s *Server) newExecutor(scopeID string, history []types.Message) *agent.Executor {
	opts := []agent.Option{
		agent.WithMaxIterations(s.cfg.Agent.MaxIterations),
		agent.WithStepBuffer(s.cfg.Agent.StepBuffer),
		agent.WithLogger(s.logger),
		agent.WithMetrics(s.collector),
	}
	if len(history) > 0 {
		opts = append(opts, agent.WithHistory(history))
	}
	return agent.NewExecutor(scopeID, s.reasoner, s.tools, opts...)
}

func (s *Server) initWorkflow() error {
	kinds := workflow.NewKinds()
	builtins := workflow.BuiltinOptions{
		HTTPClient: tlsutil.OutboundClient(s.cfg.Workflow.HTTPTimeout),
	}
	if s.reasoner != nil {
		builtins.Agent = func(scopeID string) *agent.Executor {
			return s.newExecutor(scopeID, nil)
		}
	}
	if err := workflow.RegisterBuiltins(kinds, builtins); err != nil {
		return err
	}
	s.logger.Info("Workflow node kinds registered", zap.Strings("kinds", kinds.Names()))

	s.runner = workflow.NewRunner(s.store, s.executions, kinds,
		workflow.WithLogger(s.logger),
		workflow.WithMetrics(s.collector),
		workflow.WithMaxConcurrency(s.cfg.Workflow.MaxConcurrency),
		workflow.WithNodeTimeout(s.cfg.Workflow.NodeTimeout),
		workflow.WithExecutionTimeout(s.cfg.Workflow.ExecutionTimeout),
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// Routes 构建完整路由
func (s *Server) Routes(bgCtx context.Context) http.Handler {
	s.health = handlers.NewHealthHandler(s.logger)
	s.health.RegisterCheck(handlers.NewCheck("store", s.store.Ping))
	if s.cache != nil {
		s.health.RegisterCheck(handlers.NewCheck("redis", s.cache.Ping))
	}

	chat := handlers.NewChatHandler(s.sessions, s.newExecutor, s.cfg.Agent.StepDelay, s.logger)
	workflows := handlers.NewWorkflowHandler(s.store, s.executions, s.runner, s.logger)
	webhooks := handlers.NewWebhookHandler(s.store, s.store, s.triggers, s.cfg.Webhook.MaxBodyBytes, s.logger)

	if !s.cfg.JWT.Enabled() {
		s.logger.Warn("JWT not configured, authenticated endpoints will reject every request")
	}
	optionalAuth := JWTAuth(s.cfg.JWT, AuthOptional, s.logger)
	requiredAuth := JWTAuth(s.cfg.JWT, AuthRequired, s.logger)

	r := chi.NewRouter()
	r.Use(
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	// 健康检查
	r.Get("/health", s.health.HandleHealth)
	r.Get("/healthz", s.health.HandleHealth)
	r.Get("/ready", s.health.HandleReady)
	r.Get("/version", s.health.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	r.Route("/api", func(r chi.Router) {
		r.With(optionalAuth).Post("/agent/chat", chat.HandleChat)

		r.Group(func(r chi.Router) {
			r.Use(requiredAuth)
			r.Post("/workflows/execute", workflows.HandleExecute)
			r.Post("/workflows", workflows.HandleCreate)
			r.Get("/workflows", workflows.HandleList)
			r.Get("/workflows/{id}", workflows.HandleGet)
			r.Get("/executions/{id}", workflows.HandleGetExecution)
			r.Post("/webhooks", webhooks.HandleRegister)
			r.Delete("/webhooks/registrations/{endpoint}", webhooks.HandleDelete)
		})

		// Webhook 由签名保护，不走 JWT
		r.HandleFunc("/webhooks/{endpoint}", webhooks.HandleTrigger)
	})

	return r
}

func (s *Server) startHTTPServer(bgCtx context.Context) error {
	s.httpManager = server.NewManager("http", s.Routes(bgCtx),
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort <= 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}
	s.metricsManager = server.NewManager("metrics", s.metricsHandler(),
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	return s.metricsManager.Start()
}

// metricsHandler 暴露 /metrics，使用与注册表一致的 Gatherer
func (s *Server) metricsHandler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if g, ok := s.registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return Chain(mux, Recovery(s.logger), SecurityHeaders())
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或服务出错，然后优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		if err := s.httpManager.WaitForShutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("HTTP server stopped with error", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 依次关闭 HTTP 服务、运行中的执行、遥测与存储
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.runner != nil {
		if err := s.runner.Shutdown(ctx); err != nil {
			s.logger.Warn("Workflow executions did not finish before shutdown", zap.Error(err))
		}
	}

	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Cache close error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
