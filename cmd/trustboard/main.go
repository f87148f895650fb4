package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stokaro/trustboard/cmd/admin"
	"github.com/stokaro/trustboard/cmd/migrate"
	"github.com/stokaro/trustboard/cmd/serve"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trustboard",
		Short: "Community forum and company directory",
		Long: `trustboard runs a community forum together with a directory of companies
rated safe or fraudulent by its members.

Settings come from flags, TRUSTBOARD_* environment variables (the legacy
DATABASE_URL, PORT, SESSION_SECRET, NODE_ENV, BASE_URL and SMTP_* names are
honoured too) and an optional --config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serve.NewServeCommand(),
		migrate.NewMigrateCommand(),
		admin.NewAdminCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
