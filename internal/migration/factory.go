package migration

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	appconfig "github.com/BaSui01/autoflow/config"
	"github.com/BaSui01/autoflow/internal/database"
)

// NewMigratorFromConfig creates a new migrator from application configuration
func NewMigratorFromConfig(cfg *appconfig.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig opens a dedicated connection for the
// migrator. The connection is closed with the migrator.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	gdb, err := database.Open(dbCfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DB:           sqlDB,
		OwnsDB:       true,
		TableName:    "schema_migrations",
	})
}

// NewMigratorFromGorm runs migrations over an existing GORM connection,
// typically the pool the store is about to use.
func NewMigratorFromGorm(driver string, gdb *gorm.DB) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DB:           sqlDB,
		TableName:    "schema_migrations",
	})
}
