// keys.go implements the "kamiwaza-install keys" command,
// which regenerates the JWT signing keypair on its own.

package cli

import (
	"github.com/spf13/cobra"
)

func newKeysCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate the JWT signing keypair",
		Long: `Generate a fresh RSA keypair for signing JWTs into the runtime directory,
which sits next to the installer binary unless runtime_dir says otherwise.
Existing keys are replaced atomically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.newInstaller(cmd)
			if err != nil {
				return err
			}
			return in.RunKeys(cmd.Context())
		},
	}
}
