package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `autoflow migrate <subcommand> [args] [--config path]`.
func runMigrate(args []string) {
	if len(args) < 1 {
		migration.PrintUsage(os.Stdout, "autoflow")
		os.Exit(1)
	}

	subcommand := args[0]
	if subcommand == "help" || subcommand == "-h" || subcommand == "--help" {
		migration.PrintUsage(os.Stdout, "autoflow")
		return
	}

	positional, flagArgs := splitPositional(args[1:])
	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite); overrides the config")
	_ = fs.Parse(flagArgs)

	if err := migrate(context.Background(), subcommand, positional, *configPath, *dbType); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		if errors.Is(err, migration.ErrUnknownCommand) {
			migration.PrintUsage(os.Stderr, "autoflow")
		}
		os.Exit(1)
	}
}

func migrate(ctx context.Context, subcommand string, positional []string, configPath, dbType string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	if cfg.Database.Driver == "" {
		return errors.New("database.driver is not configured")
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	m, err := migration.NewMigratorFromConfig(cfg, logger.With(zap.String("command", "migrate")))
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return migration.NewCLI(m).Run(ctx, subcommand, positional)
}

// splitPositional separates leading positional arguments (e.g. the version
// of `goto 3`) from the flags that follow them.
func splitPositional(args []string) (positional, flags []string) {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			return args[:i], args[i:]
		}
	}
	return args, nil
}
