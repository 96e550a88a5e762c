// 版权所有 2024 AutoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标收集能力。

# 概述

Collector 在构造时把全部指标注册到调用方传入的 Registerer，测试
使用独立的 prometheus.NewRegistry，服务进程使用默认注册表并由
指标端口的 /metrics 暴露。

# 指标分组

  - HTTP：请求数、耗时、请求与响应大小，状态码按 2xx/4xx 等归类。
  - LLM：按 provider/model 统计调用次数、耗时与输入输出 token。
  - Agent：运行次数与耗时、按类型统计的步骤数、工具调用次数与耗时。
  - 工作流：执行终态与耗时、节点终态与耗时、webhook 投递结果。
  - 缓存：执行状态缓存的命中与未命中。

Collector 同时满足 agent.Recorder、workflow.Recorder、
trigger.Recorder、cache.Recorder 与 anthropic.Recorder。
*/
package metrics
