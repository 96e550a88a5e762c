// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package stream 提供有序、可取消的单生产者/单消费者事件流原语。

# 概述

Agent 执行器通过 Stream[T] 向调用方推送不可变的 Step 记录。生产者调用
Emit 逐个发送，消费者从 C() 读取；任意一方取消后生产者立即解除阻塞。
流不会丢弃或重排元素，背压由有界缓冲区显式表达。

# 核心类型

  - Stream[T]: 有序可取消通道（Emit / Close / C / Cancel / Err）
  - Drain: 带节奏延迟的消费辅助函数（仅用于展示，不影响正确性）
  - Collect: 读取全部元素
*/
package stream
