// Package install wires the installer's collaborators into the ordered
// step list the sequencer runs.
//
// The steps, in order:
//
//  1. invocation guard (fatal)
//  2. virtual environment check (fatal on a declined prompt)
//  3. requirement manifest discovery (soft)
//  4. config file discovery (never fails)
//  5. JWT keypair generation (fatal)
//  6. container bring-up (soft)
//  7. stabilization wait (soft)
//  8. container bring-up retry (fatal)
//  9. non-destructive database initialization (fatal)
//
// Every collaborator sits behind a small interface or function field in
// Deps so tests can replace it.
package install

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/console"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/dbinit"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/docker"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/keygen"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/port"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/requirements"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/sequencer"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/supervisor"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/venv"
)

// GuardEnv must hold a truthy value for the installer to run. install.sh
// and setup.sh set it.
const GuardEnv = "KAMIWAZA_RUN_FROM_INSTALL"

// Options are the per-run switches from the command line.
type Options struct {
	// AssumeYes skips the "continue without a virtual environment" prompt.
	AssumeYes bool
}

// KeyGenerator writes a JWT signing keypair into a directory.
// *keygen.Generator satisfies it.
type KeyGenerator interface {
	Generate(dir string) (*keygen.KeyPair, error)
}

// DockerConnector returns a readiness API and a function that releases it.
type DockerConnector func(ctx context.Context) (docker.ContainerAPI, func() error, error)

// DatabaseFunc runs the database initializer.
type DatabaseFunc func(ctx context.Context, opts dbinit.Options) ([]dbinit.Status, error)

// RegistryFunc opens the installed-distribution registry for a
// site-packages directory.
type RegistryFunc func(sitePackages string) requirements.Registry

// Deps are the installer's collaborators. Zero fields get production
// defaults in New.
type Deps struct {
	Out      io.Writer
	In       io.Reader
	Color    bool
	Getenv   func(string) string
	Runner   supervisor.CommandRunner
	Keys     KeyGenerator
	Docker   DockerConnector
	Database DatabaseFunc
	Registry RegistryFunc
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Installer runs the install sequence for one configuration.
type Installer struct {
	cfg      *config.Config
	opts     Options
	out      *console.Printer
	prompt   *console.Prompter
	getenv   func(string) string
	sup      *supervisor.Supervisor
	keys     KeyGenerator
	docker   DockerConnector
	database DatabaseFunc
	registry RegistryFunc
	clock    clock.Clock
	logger   zerolog.Logger

	// env is filled by the virtual environment step and read by the
	// discovery steps after it.
	env venv.Env

	// ports is filled by the check command's port step.
	ports []port.Status
}

// New creates an Installer. Missing Deps fields are filled with the real
// implementations: stdout/stdin, os.Getenv, exec, the RSA generator, the
// Docker Engine API, lib/pq and the wall clock.
func New(cfg *config.Config, opts Options, deps Deps) *Installer {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Runner == nil {
		deps.Runner = supervisor.ExecRunner{}
	}
	if deps.Keys == nil {
		deps.Keys = &keygen.Generator{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Docker == nil {
		deps.Docker = connectDocker
	}
	if deps.Registry == nil {
		deps.Registry = func(dir string) requirements.Registry {
			return requirements.NewSitePackages(dir)
		}
	}

	in := &Installer{
		cfg:      cfg,
		opts:     opts,
		out:      console.NewPrinter(deps.Out, deps.Color),
		prompt:   console.NewPrompter(deps.In, deps.Out),
		getenv:   deps.Getenv,
		sup:      supervisor.New(cfg, deps.Runner, deps.Logger, supervisor.WithClock(deps.Clock)),
		keys:     deps.Keys,
		docker:   deps.Docker,
		database: deps.Database,
		registry: deps.Registry,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if in.database == nil {
		in.database = func(ctx context.Context, opts dbinit.Options) ([]dbinit.Status, error) {
			return dbinit.Initialize(ctx, cfg.Database, opts, in.prompt, in.clock, in.logger)
		}
	}
	return in
}

// Printer returns the console printer the steps write to.
func (in *Installer) Printer() *console.Printer {
	return in.out
}

// Steps returns the full install sequence.
func (in *Installer) Steps() []sequencer.Step {
	return []sequencer.Step{
		{Name: "Invocation guard", Fatal: true, Run: in.checkGuard},
		{Name: "Virtual environment", Fatal: true, Run: in.checkVenv},
		{Name: "Requirements", Run: in.checkRequirements},
		{Name: "Config files", Run: in.checkConfigs},
		{Name: "JWT keypair", Fatal: true, Run: in.generateKeys},
		{Name: "Container bring-up", Run: in.bringUp},
		{Name: "Stabilization", Run: in.stabilize},
		{Name: "Container retry", Fatal: true, Run: in.ensureUp},
		{Name: "Database", Fatal: true, Run: in.initDatabase},
	}
}

// Run executes the full sequence.
func (in *Installer) Run(ctx context.Context) ([]model.StepResult, error) {
	return sequencer.New(in.logger, in.Steps()...).Run(ctx)
}

// RunKeys runs only the keypair step.
func (in *Installer) RunKeys(ctx context.Context) error {
	return in.generateKeys(ctx)
}

// RunDatabase runs only the database step with explicit options.
func (in *Installer) RunDatabase(ctx context.Context, opts dbinit.Options) error {
	return in.runDatabase(ctx, opts)
}

// GuardPassed reports whether GuardEnv holds a truthy value. Any non-empty
// value counts except the usual spellings of false.
func GuardPassed(getenv func(string) string) bool {
	v := strings.ToLower(strings.TrimSpace(getenv(GuardEnv)))
	switch v {
	case "", "0", "false", "no", "off", "n":
		return false
	default:
		return true
	}
}

// Guard prints the refusal and returns a reported CLIError when the
// installer was not launched by install.sh or setup.sh.
func Guard(getenv func(string) string, out *console.Printer) error {
	if GuardPassed(getenv) {
		return nil
	}
	out.Failure("Warning: This script should not be run directly.")
	out.Plain("Please run install.sh or setup.sh instead.")
	out.Plain("If you know what you are doing and have been instructed to run this script directly, set the environment variable '%s=yes' and try again.", GuardEnv)
	return model.ReportedCLIError(model.ExitGeneralError, "not invoked from install.sh or setup.sh", nil)
}

func connectDocker(ctx context.Context) (docker.ContainerAPI, func() error, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return cli.API(), cli.Close, nil
}
