// 版权所有 2024 AutoFlow Authors. 版权所有。

// Package telemetry 封装 OpenTelemetry SDK 初始化，为 AutoFlow 的执行器、
// 工作流运行器和 HTTP 层提供全局 TracerProvider 与 MeterProvider。
// 遥测关闭时保持 noop 实现，不连接任何外部服务。
package telemetry
