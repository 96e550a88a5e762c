package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AgentConfig{}, cfg.Agent)
	assert.NotEqual(t, WorkflowConfig{}, cfg.Workflow)
	assert.NotEqual(t, WebhookConfig{}, cfg.Webhook)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	// JWT 默认关闭
	assert.False(t, cfg.JWT.Enabled())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	// SSE 长连接不设写超时
	assert.Zero(t, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 16, cfg.StepBuffer)
	assert.Zero(t, cfg.StepDelay)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SessionSweepInterval)
	assert.True(t, cfg.BuiltinTools)
}

func TestDefaultWorkflowConfig(t *testing.T) {
	cfg := DefaultWorkflowConfig()
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.NodeTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ExecutionTimeout)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Empty(t, cfg.Provider)
	assert.Empty(t, cfg.APIKey)
	assert.NotEmpty(t, cfg.Model)
	assert.Equal(t, 1024, cfg.MaxTokens)
	assert.NotEmpty(t, cfg.SystemPrompt)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Empty(t, cfg.Driver, "empty driver selects the in-memory store")
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}

func TestDefaultLogAndTelemetryConfig(t *testing.T) {
	logCfg := DefaultLogConfig()
	assert.Equal(t, "info", logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)
	assert.Equal(t, []string{"stdout"}, logCfg.OutputPaths)

	tel := DefaultTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "autoflow", tel.ServiceName)
	assert.InDelta(t, 0.1, tel.SampleRate, 0.0001)
}
