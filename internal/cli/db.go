// db.go implements "kamiwaza-install db init".
//
// Without flags it performs the same non-destructive initialization as
// the install. With --reset it drops every configured database first,
// after an interactive confirmation unless --yes is given.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/dbinit"
)

func newDBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(newDBInitCommand(a))
	return cmd
}

func newDBInitCommand(a *app) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create and verify the platform databases",
		Long: `Create every configured database and schema if it does not exist, then
verify it. Nothing is dropped unless --reset is given.

Examples:
  kamiwaza-install db init
  kamiwaza-install db init --reset
  kamiwaza-install db init --reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.newInstaller(cmd)
			if err != nil {
				return err
			}
			return in.RunDatabase(cmd.Context(), dbinit.Options{
				Reset:            reset,
				SkipConfirmation: a.flags.assumeYes,
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the databases before recreating them (destroys data)")
	return cmd
}
