// Package api 定义 AutoFlow HTTP 接口的请求与响应结构。
//
// 端点概览：
//
//	POST /api/agent/chat             SSE 对话流，最后一个事件为 {type:"done"}
//	POST /api/workflows/execute      启动工作流执行
//	POST /api/workflows              创建或替换工作流定义
//	GET  /api/workflows              列出调用者的工作流
//	GET  /api/workflows/{id}         读取工作流定义
//	GET  /api/executions/{id}        读取执行记录与节点状态
//	POST /api/webhooks               注册 webhook 端点
//	*    /api/webhooks/{endpoint}    触发映射的工作流
//
// 除 webhook 触发与健康检查外，工作流相关端点需要 Bearer JWT。
package api
