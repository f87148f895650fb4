package migrate

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/trustboard/cmd/cmdutil"
	"github.com/stokaro/trustboard/migration/generator"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
)

// NewMigrateCommand returns the schema migration command tree.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect the embedded schema migrations.

Examples:
  trustboard migrate up
  trustboard migrate down
  trustboard migrate to 3
  trustboard migrate status
  trustboard migrate new --name add_company_tags`,
	}

	cmd.AddCommand(
		dbCommand("up", "Apply every pending migration", cobra.NoArgs, func(cmd *cobra.Command, m *migrator.Migrator, _ []string) error {
			return m.MigrateUp(cmd.Context())
		}),
		dbCommand("down", "Roll back the latest migration", cobra.NoArgs, func(cmd *cobra.Command, m *migrator.Migrator, _ []string) error {
			return m.MigrateDown(cmd.Context())
		}),
		dbCommand("to <version>", "Migrate up or down to a version", cobra.ExactArgs(1), func(cmd *cobra.Command, m *migrator.Migrator, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return m.MigrateTo(cmd.Context(), version)
		}),
		dbCommand("status", "Print the migration status as JSON", cobra.NoArgs, statusCommand),
		newMigrationCommand(),
	)
	return cmd
}

type migrateFunc func(cmd *cobra.Command, m *migrator.Migrator, args []string) error

func dbCommand(use, short string, args cobra.PositionalArgs, run migrateFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			conn, err := env.Connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			m, err := env.Migrator(conn)
			if err != nil {
				return err
			}
			return run(cmd, m, args)
		},
	}
	cobraflags.RegisterMap(cmd, cmdutil.CommonFlags())
	return cmd
}

func statusCommand(cmd *cobra.Command, m *migrator.Migrator, _ []string) error {
	status, err := m.GetMigrationStatus(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

const (
	nameFlag = "name"
	dirFlag  = "dir"
)

func newMigrationFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		nameFlag: &cobraflags.StringFlag{
			Name:  nameFlag,
			Usage: "Name for the migration (required)",
		},
		dirFlag: &cobraflags.StringFlag{
			Name:  dirFlag,
			Value: "./migration/migrations",
			Usage: "Directory holding one subdirectory of migrations per dialect",
		},
	}
}

func newMigrationCommand() *cobra.Command {
	flags := newMigrationFlags()
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create empty migration files for every dialect",
		Long: `Create empty up and down migration files in each dialect directory, numbered
after the newest existing migration, for editing by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := generator.NewMigration(generator.Options{
				Dir:        flags[dirFlag].GetString(),
				Name:       flags[nameFlag].GetString(),
				MinVersion: migrations.AddModerationColumnsVersion + 1,
			})
			if err != nil {
				return fmt.Errorf("error generating migration files: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated migration %d:\n", res.Version)
			for _, f := range res.Files {
				fmt.Fprintf(out, "  %-8s UP:   %s\n", f.Dialect, f.UpFile)
				fmt.Fprintf(out, "  %-8s DOWN: %s\n", "", f.DownFile)
			}
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}
