package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/autoflow/config"
	"github.com/BaSui01/autoflow/internal/database"
	"github.com/BaSui01/autoflow/internal/store"
	"github.com/BaSui01/autoflow/internal/store/sqlstore"
	"github.com/BaSui01/autoflow/internal/store/storetest"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "invalid", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/mysql", GetMigrationsPath(DatabaseTypeMySQL))
	assert.Equal(t, "migrations/sqlite", GetMigrationsPath(DatabaseTypeSQLite))
}

func TestEmbeddedMigrations_EveryDialectHasSameVersions(t *testing.T) {
	var versions [][]uint
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		m := &DefaultMigrator{config: &Config{DatabaseType: dbType}}
		migrations, err := m.getAvailableMigrations()
		require.NoError(t, err, dbType)
		require.NotEmpty(t, migrations, dbType)

		var vs []uint
		for i, mig := range migrations {
			if i > 0 {
				assert.Greater(t, mig.version, migrations[i-1].version)
			}
			vs = append(vs, mig.version)
		}
		versions = append(versions, vs)
	}
	assert.Equal(t, versions[0], versions[1])
	assert.Equal(t, versions[0], versions[2])
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is required")

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	gdb, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func TestMigrator_SQLite_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "autoflow.db")
	migrator, err := NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite", Name: dbPath}, zap.NewNop())
	require.NoError(t, err)
	defer migrator.Close()

	ctx := context.Background()

	version, dirty, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up(ctx))
	// 再次执行为空操作
	require.NoError(t, migrator.Up(ctx))

	version, dirty, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Name)
	}

	info, err := migrator.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	require.NoError(t, migrator.Down(ctx))
	newVersion, _, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Less(t, newVersion, version)
}

func TestMigrator_CancelledContext(t *testing.T) {
	gdb := openMemory(t)
	migrator, err := NewMigratorFromGorm("sqlite", gdb)
	require.NoError(t, err)
	defer migrator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, migrator.Up(ctx), context.Canceled)

	version, _, err := migrator.Version(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_SchemaMatchesStoreModels(t *testing.T) {
	gdb := openMemory(t)
	migrator, err := NewMigratorFromGorm("sqlite", gdb)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))
	// 借用的连接在 Close 后仍可用
	require.NoError(t, migrator.Close())

	for _, model := range sqlstore.Models() {
		assert.True(t, gdb.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, gdb.Migrator().HasColumn(&sqlstore.NodeStateRecord{}, "position"))
	assert.True(t, gdb.Migrator().HasColumn(&sqlstore.ExecutionRecord{}, "trigger_data"))
}

func TestMigrator_StoreConformanceOnMigratedSchema(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		gdb := openMemory(t)
		migrator, err := NewMigratorFromGorm("sqlite", gdb)
		require.NoError(t, err)
		require.NoError(t, migrator.Up(context.Background()))

		pc := database.PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite"})
		pc.HealthCheckInterval = 0
		pm, err := database.NewPoolManager(gdb, pc, zap.NewNop())
		require.NoError(t, err)
		return sqlstore.New(pm, zap.NewNop())
	})
}

func TestCLI_Output(t *testing.T) {
	gdb := openMemory(t)
	migrator, err := NewMigratorFromGorm("sqlite", gdb)
	require.NoError(t, err)
	defer migrator.Close()

	cli := NewCLI(migrator)
	var buf bytes.Buffer
	cli.SetOutput(&buf)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, buf.String(), "Migrations complete. Current version: 1")

	buf.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, buf.String(), "init_schema")
	assert.Contains(t, buf.String(), "Applied")
	assert.Contains(t, buf.String(), "Pending: 0")

	buf.Reset()
	require.NoError(t, cli.RunInfo(ctx))
	assert.Contains(t, buf.String(), "Current Version:    1")

	buf.Reset()
	require.NoError(t, cli.RunDown(ctx))
	assert.Contains(t, buf.String(), "Rollback complete. Current version: 0")
}

func TestCLI_Run(t *testing.T) {
	gdb := openMemory(t)
	migrator, err := NewMigratorFromGorm("sqlite", gdb)
	require.NoError(t, err)
	defer migrator.Close()

	cli := NewCLI(migrator)
	var buf bytes.Buffer
	cli.SetOutput(&buf)
	ctx := context.Background()

	require.NoError(t, cli.Run(ctx, "steps", []string{"1"}))
	version, _, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, cli.Run(ctx, "reset", nil))
	version, _, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, cli.Run(ctx, "goto", []string{"1"}))
	require.NoError(t, cli.Run(ctx, "force", []string{"1"}))

	assert.ErrorIs(t, cli.Run(ctx, "sideways", nil), ErrUnknownCommand)
	assert.Error(t, cli.Run(ctx, "goto", nil))
	assert.Error(t, cli.Run(ctx, "goto", []string{"-1"}))
	assert.Error(t, cli.Run(ctx, "steps", []string{"x"}))
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf, "autoflow")
	assert.Contains(t, buf.String(), "autoflow migrate up")
	assert.Contains(t, buf.String(), "steps <n>")
}
