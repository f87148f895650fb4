package admin

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/trustboard/admin"
	"github.com/stokaro/trustboard/cmd/cmdutil"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/store"
)

// NewAdminCommand returns the account administration commands.
func NewAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Grant or revoke administrator rights",
		Long: `Grant or revoke administrator rights by username. Users who are signed in
keep their current rights until they sign in again.`,
	}
	cmd.AddCommand(
		setAdminCommand("promote", "Make a user an administrator", true),
		setAdminCommand("demote", "Revoke administrator rights from a user", false),
	)
	return cmd
}

func setAdminCommand(name, short string, isAdmin bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
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

			if err := env.Migrate(cmd.Context(), conn); err != nil {
				return err
			}

			svc := admin.NewService(store.New(conn, clock.Real()), nil).WithLogger(env.Logger)
			if err := svc.SetAdmin(cmd.Context(), args[0], isAdmin); err != nil {
				return fmt.Errorf("failed to %s %s: %w", name, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: is_admin=%t\n", args[0], isAdmin)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, cmdutil.CommonFlags())
	return cmd
}
