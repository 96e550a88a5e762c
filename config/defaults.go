// =============================================================================
// 📦 AutoFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		JWT:       JWTConfig{},
		Agent:     DefaultAgentConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Webhook:   DefaultWebhookConfig(),
		LLM:       DefaultLLMConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:        10,
		StepBuffer:           16,
		StepDelay:            0,
		SessionIdleTimeout:   30 * time.Minute,
		SessionSweepInterval: 5 * time.Minute,
		BuiltinTools:         true,
		ToolTimeout:          30 * time.Second,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxConcurrency:   8,
		NodeTimeout:      5 * time.Minute,
		ExecutionTimeout: 30 * time.Minute,
		HTTPTimeout:      30 * time.Second,
	}
}

// DefaultWebhookConfig 返回默认 Webhook 配置
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		MaxBodyBytes: 1 << 20,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置，Provider 为空时对话接口不可用
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:     "",
		Model:        "claude-sonnet-4-5",
		MaxTokens:    1024,
		SystemPrompt: "You are a helpful assistant. Use the available tools when they help answer the user.",
		Timeout:      60 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置，Driver 为空时使用内存存储
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "",
		Host:            "localhost",
		Port:            5432,
		User:            "autoflow",
		Name:            "autoflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     false,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		TTL:          24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "autoflow",
		SampleRate:   0.1,
	}
}
