// Copyright (c) AutoFlow Authors.
// Licensed under the MIT License.

/*
Package store 定义 AutoFlow 的持久化接口。

Store 聚合了工作流定义、执行记录与 Webhook 注册三类数据，
由 workflow.Runner、trigger.Manager 与 HTTP handlers 共同使用。

# 实现

  - memory：进程内实现，未配置数据库时使用，也用于测试
  - sqlstore：基于 GORM 的关系型实现，支持 PostgreSQL / MySQL / SQLite

cache 包提供 ExecutionStore 的 Redis 写穿装饰器。storetest 包提供
所有实现共用的一致性测试。
*/
package store
