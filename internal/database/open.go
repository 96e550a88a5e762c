package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/autoflow/config"
)

// Dialector 按驱动名返回 GORM 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	case "":
		return nil, fmt.Errorf("database driver not configured")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", cfg.Driver)
	}
}

// Open 根据配置打开数据库连接，SQL 日志以 debug 级别写入 zap
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// PoolConfigFrom 将应用配置映射为连接池配置，未设置的项取默认值
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if pc.MaxIdleConns > pc.MaxOpenConns {
		pc.MaxIdleConns = pc.MaxOpenConns
	}
	// sqlite 只允许单写连接；连接不回收，否则 :memory: 库会随连接丢失
	if cfg.Driver == "sqlite" {
		pc.MaxOpenConns = 1
		pc.MaxIdleConns = 1
		pc.ConnMaxLifetime = 0
		pc.ConnMaxIdleTime = 0
	}
	return pc
}

type zapWriter struct {
	sugar *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.sugar.Debugf(format, args...)
}

// NewGormLogger 返回写入 zap 的 GORM 日志器，慢查询阈值 500ms
func NewGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zapWriter{sugar: logger.With(zap.String("component", "gorm")).Sugar()},
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
