// Copyright 2024 AutoFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent 实现对话式 Agent 执行器。

# 概述

Executor 为单个会话作用域持有对话历史，并驱动 推理 → 行动 → 观察 循环：
每一轮调用 Reasoner 决定下一步，必要时通过 tools.Invoker 调用工具，
并将每一步以不可变 Step 的形式按序写入 stream.Stream。

	┌──────────┐   Next    ┌──────────┐  Invoke  ┌──────────────┐
	│ Executor │ ────────► │ Reasoner │          │ tools.Invoker│
	│          │ ◄──────── │          │          │              │
	│          │ ─────────────────────────────►  │              │
	└────┬─────┘                                 └──────────────┘
	     │ Emit(Step)
	     ▼
	stream.Stream[Step] ──► SSE / Collect

# 失败策略

单次工具调用失败可恢复：记录为 error 类型的 Step 后继续循环。
推理后端失败不可恢复：记录 error Step 并以 success=false 结束。
达到最大迭代次数时发出 final Step，结果为 success=false。

# 会话

Sessions 由调用方持有，按作用域（用户 + 项目）缓存 Executor，
同一作用域同一时刻只允许一个推理循环（并发 Start 返回 ErrBusy）。
*/
package agent
