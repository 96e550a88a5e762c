// 版权所有 2024 AutoFlow Authors. 版权所有。

/*
包 server 管理 AutoFlow HTTP 服务器的生命周期：非阻塞启动、
信号监听与优雅关闭。

  - Manager：封装 net/http.Server，cmd/autoflow 为 API 端口和
    指标端口各创建一个实例。
  - Config：监听地址、超时与关闭时限；ConfigFrom 由应用的
    server 配置段构造。WriteTimeout 为 0 时 SSE 对话流不受写超时限制。
*/
package server
