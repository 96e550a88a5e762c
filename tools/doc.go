// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package tools 定义 Agent 与外部工具之间的调用边界。

# 概述

Invoker 是执行器唯一依赖的接口：按名称调用工具并返回 JSON 结果或错误。
Registry 是默认实现，负责工具注册、JSON Schema 参数校验、单工具超时与
令牌桶限流。内置工具包括 current_time、http_get 与 calculator。

# 核心接口

  - Invoker: Invoke(ctx, name, args) 与 Definitions()
  - Registry: 默认注册中心实现
  - Definition: 工具名称、描述与参数 Schema
*/
package tools
