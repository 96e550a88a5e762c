// Package tlsutil 提供出站连接的安全配置：
// 加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）供 Redis 与 HTTP 客户端使用，
// 以及在出站请求中注入 trace 上下文的 HTTP Transport。
package tlsutil
