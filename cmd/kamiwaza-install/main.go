// Package main is the entry point for the kamiwaza-install CLI.
//
// install.sh and setup.sh launch this binary with KAMIWAZA_RUN_FROM_INSTALL
// set. It delegates all functionality to the internal/cli package, which
// defines the cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// by GoReleaser during the release process. During development, they
// default to "dev", "none", and "unknown" respectively.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/cli"
)

// version, commit, and date are set by GoReleaser at build time
// via ldflags. They provide binary identification for the --version flag
// output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// SIGINT and SIGTERM cancel the context, which aborts the
	// stabilization wait, readiness polling and the running
	// containers-up.sh.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.Execute(ctx, cli.NewRootCommand())

	// os.Exit skips deferred calls, so the signal handler is released
	// explicitly first.
	stop()
	os.Exit(code)
}
