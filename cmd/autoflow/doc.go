// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AutoFlow 服务端程序入口。

# 概述

cmd/autoflow 组装对话执行器、工作流运行器与 Webhook 触发器，对外提供
HTTP API，并负责数据库迁移、健康检查和版本查询等子命令。配置按
默认值、YAML 文件、AUTOFLOW_* 环境变量的顺序叠加。

# 核心类型

  - Server: 组件装配与 HTTP、Metrics 双端口的生命周期
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler
  - AuthMode: JWT 认证模式（可选 / 必需）

# 主要能力

  - 子命令：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）
  - 认证：对话接口可选 JWT，工作流与 Webhook 管理接口必需 JWT，
    Webhook 触发接口由签名保护
  - 存储：未配置数据库时使用内存存储，否则使用 GORM 存储并可自动迁移；
    启用 Redis 时执行记录走写穿缓存
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 等待执行结束 →
    遥测 → 缓存与存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
