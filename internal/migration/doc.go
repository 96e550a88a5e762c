// 版权所有 2024 AutoFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供数据库 Schema 迁移管理能力，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件，建立工作流定义、
执行记录、节点状态与 Webhook 注册四张表。迁移器复用 database.Open
打开的连接，因此 sqlite 与存储层使用同一个纯 Go 驱动。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例。
    取消 ctx 会在当前迁移完成后停止。
  - Config：迁移配置，包含数据库类型、连接、迁移表名与锁超时。
  - CLI：命令行交互层，Run 按子命令分发并输出格式化结果。

# 主要能力

  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig
    打开专用连接；NewMigratorFromGorm 复用已有连接池，供服务启动时
    自动迁移使用。
  - 辅助工具：ParseDatabaseType 解析类型字符串，GetMigrationsPath
    返回内嵌目录。
*/
package migration
