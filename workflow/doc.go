// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供工作流图执行引擎。

# 概述

Workflow 是由节点组成的有向无环图，节点通过 DependsOn 声明依赖。
Runner 校验图结构后分配全新的执行 ID、持久化初始状态并立即返回，
随后在后台 goroutine 中按依赖关系并发执行节点。

# 执行语义

  - 节点在其全部依赖进入终态（succeeded / failed / skipped）后才会被调度
  - 任一依赖未成功的节点被标记为 skipped，且该状态向下游传递
  - 相互独立的分支互不影响（舱壁隔离）
  - 并发度受 MaxConcurrency 信号量约束，每个节点拥有独立超时
  - 全部节点 succeeded 时整体为 succeeded，否则为 failed

# 核心接口与类型

  - Workflow / Node: 工作流定义（只读）
  - Execution: 执行期状态，带状态迁移校验
  - Snapshot: 执行记录的不可变副本
  - WorkflowStore: 工作流定义读取接口
  - ExecutionStore: 执行记录持久化接口
  - Kinds / NodeFunc: 节点类型注册表
  - Runner: 图执行器
*/
package workflow
