// Copyright 2026 AutoFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 基于 Anthropic Messages API 实现 agent.Reasoner。
每一轮推理将对话历史、本次调用已产生的工具步骤以及可用工具定义
映射为一次 Messages.New 请求，再将响应转换为 agent.Action。

# 协议映射

  - 历史消息 → user / assistant 文本消息
  - tool_call Step → assistant 消息中的 tool_use 块（ID 由迭代序号派生）
  - tool_result / error Step → user 消息中的 tool_result 块（error 置 is_error）
  - tools.Definition → Tool 参数（JSON Schema 放入 input_schema）
  - 响应中的 tool_use 块 → Action.ToolCall，其前的文本 → Action.Thought
  - 仅含文本的响应 → Action.Final

# 错误

SDK 调用失败统一包装为 types.Error（UPSTREAM_ERROR，可重试）。
*/
package anthropic
