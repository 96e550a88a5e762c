// 版权所有 2024 AutoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，以及工作流执行状态的
写穿缓存。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括
初始化、健康检查与优雅关闭；ExecutionCache 装饰任意
workflow.ExecutionStore，让轮询执行状态的请求优先命中 Redis。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 等基础操作、
    GetJSON/SetJSON 序列化方法，以及基于 WATCH 的 Update 读改写。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔。ConfigFrom 由应用 redis 配置生成。
  - ExecutionCache：执行记录写穿缓存。写入先落底层存储，再在
    事务中修改缓存快照；缓存异常只记录日志。

# 错误语义

  - ErrCacheMiss：键不存在，可用 IsCacheMiss 判断。
  - ErrClosed：管理器已关闭。
*/
package cache
