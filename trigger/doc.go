// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package trigger 将入站 Webhook 请求映射为工作流执行。

# 概述

Manager 根据 endpoint 在 Registry 中查找注册信息，校验可选的 HMAC 签名，
把原始请求规范化为 Payload（headers / body / query / method），
然后以工作流所有者的身份调用 Runner 启动一次执行。

# 规范化规则

  - application/json                     → 解码后的 JSON 值
  - application/x-www-form-urlencoded    → 扁平 map（同名字段取第一个值）
  - text/*                               → 字符串
  - 其他类型                              → 字符串
  - 任何解析失败                          → body 为 nil

同一 endpoint 的并发请求彼此独立，各自产生一次执行。
*/
package trigger
