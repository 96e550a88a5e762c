// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 AutoFlow 的 HTTP 请求处理器。

  - ChatHandler：POST /api/agent/chat，把执行器的 Step 流以 SSE 推送，
    最后发送 {type:"done"} 事件。
  - WorkflowHandler：工作流定义的创建、读取与执行，执行记录查询。
  - WebhookHandler：端点注册与任意方法的触发。
  - HealthHandler：存活、就绪与版本端点。

所有非流式错误都经 WriteError 转为统一的 Response 结构，
状态码由 types.Error 的错误码决定。
*/
package handlers
