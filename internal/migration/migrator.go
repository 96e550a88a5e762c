package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// =============================================================================
// Embedded Migration Files
// =============================================================================

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// =============================================================================
// Types and Interfaces
// =============================================================================

// DatabaseType represents the type of database
type DatabaseType string

const (
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres DatabaseType = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL DatabaseType = "mysql"
	// DatabaseTypeSQLite represents SQLite database
	DatabaseTypeSQLite DatabaseType = "sqlite"
)

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version   uint
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Dirty     bool
}

// MigrationInfo contains information about the current migration state
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config holds the configuration for the migrator
type Config struct {
	// DatabaseType selects the embedded SQL dialect (postgres, mysql, sqlite)
	DatabaseType DatabaseType

	// DB is an open connection, normally the one returned by database.Open
	DB *sql.DB

	// OwnsDB closes DB together with the migrator. A borrowed postgres
	// connection keeps one session pinned until its pool is closed.
	OwnsDB bool

	// TableName is the name of the migrations table (default: schema_migrations)
	TableName string

	// LockTimeout is the timeout for acquiring migration lock
	LockTimeout time.Duration
}

// Migrator defines the interface for database migrations
type Migrator interface {
	// Up applies all pending migrations
	Up(ctx context.Context) error

	// Down rolls back the last migration
	Down(ctx context.Context) error

	// DownAll rolls back all migrations
	DownAll(ctx context.Context) error

	// Steps applies or rolls back n migrations
	// Positive n applies migrations, negative n rolls back
	Steps(ctx context.Context, n int) error

	// Goto migrates to a specific version
	Goto(ctx context.Context, version uint) error

	// Force sets the migration version without running migrations
	Force(ctx context.Context, version int) error

	// Version returns the current migration version
	Version(ctx context.Context) (uint, bool, error)

	// Status returns the status of all migrations
	Status(ctx context.Context) ([]MigrationStatus, error)

	// Info returns information about the current migration state
	Info(ctx context.Context) (*MigrationInfo, error)

	// Close closes the migrator and releases resources
	Close() error
}

// =============================================================================
// Default Migrator Implementation
// =============================================================================

// DefaultMigrator implements the Migrator interface using golang-migrate
type DefaultMigrator struct {
	config   *Config
	migrate  *migrate.Migrate
	dbDriver database.Driver
}

// NewMigrator creates a new migrator instance
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.DB == nil {
		return nil, errors.New("database connection is required")
	}

	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	m := &DefaultMigrator{
		config: cfg,
	}

	if err := m.init(); err != nil {
		if cfg.OwnsDB {
			_ = cfg.DB.Close()
		}
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}

	return m, nil
}

// init initializes the migrator
func (m *DefaultMigrator) init() error {
	var err error

	if err = m.config.DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m.dbDriver, err = m.createDatabaseDriver()
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := m.createSourceDriver()
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, string(m.config.DatabaseType), m.dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.migrate.LockTimeout = m.config.LockTimeout

	return nil
}

// createDatabaseDriver creates a database driver for golang-migrate
func (m *DefaultMigrator) createDatabaseDriver() (database.Driver, error) {
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(m.config.DB, &postgres.Config{
			MigrationsTable: m.config.TableName,
		})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(m.config.DB, &mysql.Config{
			MigrationsTable: m.config.TableName,
		})
	case DatabaseTypeSQLite:
		return sqlite3.WithInstance(m.config.DB, &sqlite3.Config{
			MigrationsTable: m.config.TableName,
		})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}
}

// createSourceDriver creates a source driver for migration files
func (m *DefaultMigrator) createSourceDriver() (source.Driver, error) {
	fsys, dir, err := migrationsFS(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}
	return iofs.New(fsys, dir)
}

// migrationsFS returns the embedded files of one dialect
func migrationsFS(dbType DatabaseType) (fs.FS, string, error) {
	switch dbType {
	case DatabaseTypePostgres:
		return postgresFS, GetMigrationsPath(dbType), nil
	case DatabaseTypeMySQL:
		return mysqlFS, GetMigrationsPath(dbType), nil
	case DatabaseTypeSQLite:
		return sqliteFS, GetMigrationsPath(dbType), nil
	default:
		return nil, "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// run executes fn and asks golang-migrate to stop after the current
// migration when ctx is cancelled.
func (m *DefaultMigrator) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up applies all pending migrations
func (m *DefaultMigrator) Up(ctx context.Context) error {
	if err := m.run(ctx, m.migrate.Up); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the last migration
func (m *DefaultMigrator) Down(ctx context.Context) error {
	if err := m.run(ctx, func() error { return m.migrate.Steps(-1) }); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// DownAll rolls back all migrations
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	if err := m.run(ctx, m.migrate.Down); err != nil {
		return fmt.Errorf("migration down all failed: %w", err)
	}
	return nil
}

// Steps applies or rolls back n migrations
func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	if err := m.run(ctx, func() error { return m.migrate.Steps(n) }); err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Goto migrates to a specific version
func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	if err := m.run(ctx, func() error { return m.migrate.Migrate(version) }); err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force sets the migration version without running migrations
func (m *DefaultMigrator) Force(_ context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version returns the current migration version
func (m *DefaultMigrator) Version(_ context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status returns the status of all migrations
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := m.getAvailableMigrations()
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.version,
			Name:    mig.name,
			Applied: mig.version <= currentVersion,
			Dirty:   dirty && mig.version == currentVersion,
		})
	}

	return statuses, nil
}

// Info returns information about the current migration state
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	currentVersion, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	migrations, err := m.getAvailableMigrations()
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.version <= currentVersion {
			applied++
		}
	}

	return &MigrationInfo{
		CurrentVersion:    currentVersion,
		Dirty:             dirty,
		TotalMigrations:   len(migrations),
		AppliedMigrations: applied,
		PendingMigrations: len(migrations) - applied,
	}, nil
}

// Close closes the migrator and releases resources. A borrowed
// connection is left open for its owner.
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil || !m.config.OwnsDB {
		return nil
	}

	sourceErr, dbErr := m.migrate.Close()
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

// migrationFile represents a migration file
type migrationFile struct {
	version uint
	name    string
}

// getAvailableMigrations returns all available migrations
func (m *DefaultMigrator) getAvailableMigrations() ([]migrationFile, error) {
	fsys, dir, err := migrationsFS(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	seen := make(map[uint]bool)
	var migrations []migrationFile

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		// Parse version from filename (e.g., 000001_init_schema.up.sql)
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}

		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}

		if seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true

		// Extract migration name
		migName := strings.TrimSuffix(parts[1], ".up.sql")

		migrations = append(migrations, migrationFile{
			version: uint(version),
			name:    migName,
		})
	}

	// Sort by version
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// ParseDatabaseType parses a database type string
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// GetMigrationsPath returns the embedded directory of a database type
func GetMigrationsPath(dbType DatabaseType) string {
	return path.Join("migrations", string(dbType))
}
