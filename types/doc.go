// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 AutoFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、trigger、
api 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message: 对话消息（Role + Content + Timestamp）
  - Role: 消息角色（user / assistant，system / tool 仅供后端编码）
  - Error / ErrorCode: 结构化错误体系，对应校验、认证、未找到、执行、内部五类错误

# 主要能力

  - Context 传播：WithTraceID / WithUserID / WithExecutionID
  - 错误工具链：AsError / IsErrorCode / GetErrorCode / IsRetryable
  - 常用错误构造：NewValidationError / NewNotFoundError / NewForbiddenError 等
*/
package types
