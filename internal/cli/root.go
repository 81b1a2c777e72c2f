// Package cli implements the cobra-based CLI commands for kamiwaza-install.
//
// The root command runs the full install sequence. The subcommands (check,
// keys, db init) run parts of it on their own and are defined in their own
// files within this package. This file defines the root command, the global
// flags and the exit code handling.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/console"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/install"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/logging"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// globalFlags are bound to persistent flags on the root command, which
// makes them available to every subcommand.
type globalFlags struct {
	// configPath points at an install.yaml/.json file. Empty means the
	// first of config.DefaultFileNames found in the working directory.
	configPath string

	// assumeYes skips the virtual environment prompt and, for db init
	// --reset, the drop confirmation.
	assumeYes bool

	// verbose lowers the diagnostic log level to debug.
	verbose bool

	// jsonOutput switches check output and error messages to JSON.
	jsonOutput bool
}

// app holds the state shared by the commands of one root command.
// deps is empty in production; tests use it to replace collaborators.
type app struct {
	flags globalFlags
	deps  install.Deps
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kamiwaza-install",
		Short: "Kamiwaza platform installer",
		Long: `kamiwaza-install prepares a Kamiwaza installation: it checks the Python
virtual environment, requirement manifests and expected config files,
generates the JWT signing keypair, brings up the container dependencies
with containers-up.sh and initializes the databases.

It is meant to be launched by install.sh or setup.sh, which set
KAMIWAZA_RUN_FROM_INSTALL.`,

		// Unknown flags are ignored so the invocation guard, and not a
		// flag parse error, decides the outcome of a direct launch.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// Steps print their own failures; Execute prints the rest.
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// Stray positional arguments are tolerated like unknown flags,
		// except one that looks like a misspelt subcommand.
		Args: rejectMistypedSubcommand,

		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.flags.configPath, "config", "", "Path to an install config file (yaml, json or jsonc)")
	rootCmd.PersistentFlags().BoolVarP(&a.flags.assumeYes, "yes", "y", false, "Do not prompt; continue without a virtual environment")
	rootCmd.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&a.flags.jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(newCheckCommand(a))
	rootCmd.AddCommand(newKeysCommand(a))
	rootCmd.AddCommand(newDBCommand(a))

	return rootCmd
}

// rejectMistypedSubcommand fails when the first argument is close to a
// subcommand name, so "kamiwaza-install chek" reports the typo instead of
// generating keys, starting containers and initializing the database.
// Other arguments are ignored.
func rejectMistypedSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	// SuggestionsFor matches by Levenshtein distance (2 by default) and by
	// prefix, against the names and aliases of the available subcommands.
	suggestions := cmd.SuggestionsFor(args[0])
	if len(suggestions) == 0 {
		return nil
	}
	return model.NewCLIError(model.ExitGeneralError,
		fmt.Sprintf("unknown command %q for %q; did you mean %q?", args[0], cmd.CommandPath(), suggestions[0]))
}

// runInstall runs the full sequence and prints the step summary.
func (a *app) runInstall(cmd *cobra.Command) error {
	in, err := a.newInstaller(cmd)
	if err != nil {
		return err
	}
	results, err := in.Run(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout())
	install.PrintSummary(cmd.OutOrStdout(), results)
	return err
}

// newInstaller loads the configuration and builds an Installer writing to
// the command's streams.
func (a *app) newInstaller(cmd *cobra.Command) (*install.Installer, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}

	deps := a.deps
	if deps.Out == nil {
		deps.Out = cmd.OutOrStdout()
		deps.Color = !logging.NoColor()
	}
	if deps.In == nil {
		deps.In = cmd.InOrStdin()
	}
	deps.Logger = logging.New(cmd.ErrOrStderr(), logging.Options{Verbose: a.flags.verbose})
	deps.Logger.Debug().Str("root", cfg.Root).Str("config", a.flags.configPath).Msg("configuration loaded")

	return install.New(cfg, install.Options{AssumeYes: a.flags.assumeYes}, deps), nil
}

// Execute runs the root command against the process environment and
// returns the exit code. main passes it to os.Exit after releasing the
// signal context; nothing in the installer exits the process itself.
func Execute(ctx context.Context, rootCmd *cobra.Command) int {
	return int(Run(ctx, rootCmd, os.Getenv))
}

// Run checks the invocation guard, executes rootCmd and translates the
// result into an exit code. The guard runs before cobra parses any flag,
// so it fires regardless of the arguments given.
func Run(ctx context.Context, rootCmd *cobra.Command, getenv func(string) string) model.ExitCode {
	out := console.NewPrinter(rootCmd.OutOrStdout(), !logging.NoColor())
	if err := install.Guard(getenv, out); err != nil {
		return model.ExitGeneralError
	}

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json")

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if !cliErr.Reported {
			printError(rootCmd.ErrOrStderr(), jsonOutput, cliErr.Message, cliErr.Err)
		}
		return cliErr.Code
	}

	// Generic error (flag parsing, unknown subcommand) exits with code 1.
	printError(rootCmd.ErrOrStderr(), jsonOutput, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, jsonOutput bool, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	// Text format: "Error: <message>" on stderr.
	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}
