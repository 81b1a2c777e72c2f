// check.go implements the "kamiwaza-install check" command.
//
// check runs the discovery steps of the install (virtual environment,
// requirement manifest, config files) and reports what it found without
// prompting, writing keys, starting containers or touching the database.

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
)

type checkFlags struct {
	// strict turns anything missing, or any published port already in
	// use, into exit code 1.
	strict bool
}

func newCheckCommand(a *app) *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report installation prerequisites without changing anything",
		Long: `Check the virtual environment, the requirement manifest and the expected
config files, the same way the install does, without side effects.

Examples:
  kamiwaza-install check
  kamiwaza-install check --json
  kamiwaza-install check --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Exit with code 1 when anything is missing")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, flags *checkFlags) error {
	if a.flags.jsonOutput {
		// The step output would corrupt the JSON document.
		a.deps.Out = io.Discard
	}
	in, err := a.newInstaller(cmd)
	if err != nil {
		return err
	}

	report, err := in.Check(cmd.Context())
	if err != nil {
		return err
	}

	if a.flags.jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		if missing := report.Missing(); missing > 0 {
			in.Printer().Hint("%d item(s) missing", missing)
		}
		if conflicts := report.Conflicts(); conflicts > 0 {
			in.Printer().Hint("%d published port(s) already in use", conflicts)
		}
		if report.Missing() == 0 && report.Conflicts() == 0 {
			in.Printer().Success("All prerequisites found")
		}
	}

	if flags.strict && (report.Missing() > 0 || report.Conflicts() > 0) {
		return model.ReportedCLIError(model.ExitGeneralError, "prerequisites missing", nil)
	}
	return nil
}
