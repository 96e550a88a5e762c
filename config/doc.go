// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

// Package config 提供 AutoFlow 的配置加载。
//
// 配置按 默认值 → YAML 文件 → AUTOFLOW_* 环境变量 的顺序叠加，
// 环境变量键名由结构体 env tag 拼接而成，例如 AUTOFLOW_WORKFLOW_NODE_TIMEOUT。
// Config.Validate 在服务启动前检查端口、超时、推理后端与存储驱动。
package config
