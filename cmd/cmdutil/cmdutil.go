// Package cmdutil holds the setup shared by the trustboard commands:
// configuration, logging and the database connection.
package cmdutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/trustboard/config"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/logging"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
)

// ConfigFlag names the optional config file.
const ConfigFlag = "config"

// CommonFlags returns the flags every command accepts. Unset flags fall
// back to the environment and then to the config file and defaults, so
// their own default values are empty.
func CommonFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		ConfigFlag: &cobraflags.StringFlag{
			Name:  ConfigFlag,
			Usage: "Path to a YAML, TOML or JSON config file",
		},
		config.KeyDBURL: &cobraflags.StringFlag{
			Name:  config.KeyDBURL,
			Usage: "Database URL: postgres://, mysql:// or a SQLite file path (default community.db)",
		},
		config.KeyDBDriver: &cobraflags.StringFlag{
			Name:  config.KeyDBDriver,
			Usage: "database/sql driver override: pgx, postgres, mysql, sqlite or sqlite3",
		},
		config.KeyLogLevel: &cobraflags.StringFlag{
			Name:  config.KeyLogLevel,
			Usage: "Log level: debug, info, warn or error (default info)",
		},
		config.KeyLogFormat: &cobraflags.StringFlag{
			Name:  config.KeyLogFormat,
			Usage: "Log format: json or console (default json)",
		},
	}
}

// Env is what a command runs with.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	sync   func() error
}

// Setup loads the configuration of cmd and builds its logger.
func Setup(cmd *cobra.Command) (*Env, error) {
	v := config.New()
	path, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s: %w", ConfigFlag, err)
	}
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, sync, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &Env{Config: cfg, Logger: logger, sync: sync}, nil
}

// Close flushes the logger.
func (e *Env) Close() {
	// stderr and stdout cannot be synced on every platform
	_ = e.sync()
}

// Connect opens the configured database.
func (e *Env) Connect() (*dbschema.DatabaseConnection, error) {
	var opts []dbschema.ConnectOption
	if e.Config.Database.Driver != "" {
		opts = append(opts, dbschema.WithDriver(e.Config.Database.Driver))
	}
	conn, err := dbschema.ConnectToDatabase(e.Config.Database.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	e.Logger.Debug("Connected to database", "dialect", conn.Dialect())
	return conn, nil
}

// Migrator returns a migrator over the embedded migrations for the dialect
// of conn.
func (e *Env) Migrator(conn *dbschema.DatabaseConnection) (*migrator.Migrator, error) {
	provider, err := migrations.Provider(conn.Dialect())
	if err != nil {
		return nil, err
	}
	return migrator.NewMigrator(conn, provider).WithLogger(e.Logger), nil
}

// Migrate applies every pending migration.
func (e *Env) Migrate(ctx context.Context, conn *dbschema.DatabaseConnection) error {
	m, err := e.Migrator(conn)
	if err != nil {
		return err
	}
	if err := m.MigrateUp(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
