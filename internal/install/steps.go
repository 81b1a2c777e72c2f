package install

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/compose"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/configcheck"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/dbinit"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/docker"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/requirements"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/venv"
)

const venvPrompt = "Do you want to continue without a virtual environment? Type 'yes' to proceed: "

func (in *Installer) checkGuard(context.Context) error {
	return Guard(in.getenv, in.out)
}

func (in *Installer) checkVenv(context.Context) error {
	in.env = venv.Detect(in.getenv)
	if in.env.Isolated {
		in.out.Success("Virtual environment detected: %s", in.env.Root)
		return nil
	}

	in.out.Failure("Warning: Not running in a virtual environment - careful")
	if in.opts.AssumeYes {
		return nil
	}

	ok, err := in.prompt.Confirm(venvPrompt, "yes")
	if err != nil || !ok {
		in.out.Plain("Exiting the installation.")
		return model.ReportedCLIError(model.ExitGeneralError, "installation declined", err)
	}
	return nil
}

// detectVenv is the read-only variant used by the check command.
func (in *Installer) detectVenv(context.Context) error {
	in.env = venv.Detect(in.getenv)
	if in.env.Isolated {
		in.out.Success("Virtual environment detected: %s", in.env.Root)
		return nil
	}
	in.out.Failure("Warning: Not running in a virtual environment - careful")
	return nil
}

func (in *Installer) checkRequirements(context.Context) error {
	_, err := in.requirementStatuses(true)
	return err
}

// requirementStatuses finds the first manifest and, when a venv is
// known, compares it with the installed distributions. With print set the
// findings go to the console.
func (in *Installer) requirementStatuses(print bool) ([]requirements.Status, error) {
	path, ok := requirements.Discover(in.cfg.Root, in.cfg.RequirementPaths)
	if !ok {
		if print {
			in.out.Hint("No requirements file found (looked for %s)", strings.Join(in.cfg.RequirementPaths, ", "))
		}
		return nil, nil
	}
	if print {
		in.out.Success("Requirements file found: %s", path)
	}

	sitePackages := in.env.SitePackages()
	if sitePackages == "" {
		in.logger.Debug().Msg("no site-packages known, skipping installed version check")
		return nil, nil
	}

	reqs, err := requirements.ReadManifest(path)
	if err != nil {
		if print {
			in.out.Failure("Could not read %s: %v", path, err)
		}
		return nil, err
	}

	statuses := requirements.Check(reqs, in.registry(sitePackages), in.logger)
	if print {
		for _, st := range statuses {
			in.printRequirement(st)
		}
	}
	return statuses, nil
}

func (in *Installer) printRequirement(st requirements.Status) {
	switch st.State {
	case requirements.StateSatisfied:
		in.out.Success("%s: %s", st.Requirement.Name, st.Installed)
	case requirements.StateOutOfRange:
		in.out.Failure("%s: %s (wanted %s)", st.Requirement.Name, st.Installed, versionRange(st.Requirement))
	case requirements.StateUnknown:
		in.out.Hint("%s: %s (cannot compare with %s)", st.Requirement.Name, st.Installed, versionRange(st.Requirement))
	default:
		in.out.Failure("%s: not installed", st.Requirement.Name)
	}
}

func versionRange(r requirements.Requirement) string {
	var parts []string
	if r.Exact != "" {
		parts = append(parts, "=="+r.Exact)
	}
	if r.Min != "" {
		parts = append(parts, ">="+r.Min)
	}
	if r.Max != "" {
		parts = append(parts, "<"+r.Max)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}

func (in *Installer) checkConfigs(context.Context) error {
	in.out.Section("Testing for expected config files...")
	for _, probe := range in.configProbes() {
		if probe.Found {
			in.out.Success("%s", probe)
		} else {
			in.out.Failure("%s", probe)
		}
	}
	return nil
}

func (in *Installer) configProbes() []configcheck.Probe {
	return configcheck.CheckAll(in.cfg.Root, in.cfg.ConfigPaths, in.env.SitePackages())
}

func (in *Installer) generateKeys(context.Context) error {
	in.out.Header("Generating JWT keypair...")
	dir := in.cfg.ResolvedRuntimeDir()
	pair, err := in.keys.Generate(dir)
	if err != nil {
		in.out.Failure("Failed to generate JWT keypair: %v", err)
		return model.ReportedCLIError(model.ExitGeneralError, "JWT keypair generation failed", err)
	}
	in.out.Success("JWT keypair written to %s (kid %s, %s)", dir, pair.KeyID, pair.Fingerprint)
	return nil
}

func (in *Installer) scriptName() string {
	return filepath.Base(in.sup.Script())
}

func (in *Installer) bringUp(ctx context.Context) error {
	in.out.Header("Composing docker containers... ")
	output, err := in.sup.Up(ctx)
	in.out.Output(output)
	if err != nil {
		in.out.Plain("Failed to run %s: %v", in.scriptName(), err)
	}
	return err
}

func (in *Installer) stabilize(ctx context.Context) error {
	in.out.Header("Waiting for containers to start...")
	services, err := in.readinessServices()
	if err != nil {
		in.out.Failure("Cannot read compose files: %v", err)
		if serr := in.sleep(ctx); serr != nil {
			return serr
		}
		return err
	}
	if len(services) == 0 {
		return in.sleep(ctx)
	}

	api, release, err := in.docker(ctx)
	if err != nil {
		in.out.Failure("Cannot poll container readiness: %v", err)
		in.out.Hint("Waiting %s instead", in.cfg.Containers.StabilizeDelay)
		if serr := in.sleep(ctx); serr != nil {
			return serr
		}
		return err
	}
	defer func() { _ = release() }()

	err = docker.WaitReady(ctx, api, services, in.cfg.Containers.Readiness, in.clock,
		func(attempt int, states []docker.ServiceState) {
			for _, s := range states {
				in.logger.Debug().Int("attempt", attempt).Str("service", s.Name).Bool("ready", s.Ready).Msg(s.String())
			}
		})
	switch {
	case err == nil:
		in.out.Success("All %d container(s) ready", len(services))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		in.out.Failure("Containers not ready: %v", err)
	}
	return err
}

// readinessServices returns the configured services, or the services of
// the configured compose files.
func (in *Installer) readinessServices() ([]string, error) {
	if len(in.cfg.Containers.Services) > 0 || len(in.cfg.Containers.ComposeFiles) == 0 {
		return in.cfg.Containers.Services, nil
	}
	project, err := compose.Load(in.cfg.ResolvedComposeFiles())
	if err != nil {
		return nil, err
	}
	return project.MatchNames(), nil
}

func (in *Installer) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-in.clock.After(in.cfg.Containers.StabilizeDelay):
		return nil
	}
}

func (in *Installer) ensureUp(ctx context.Context) error {
	in.out.Header("Ensuring containers are up")
	err := in.sup.UpWithRetry(ctx, in.cfg.Containers.Retry, func(attempt int, output []byte, err error) {
		in.out.Output(output)
		if err != nil {
			in.out.Plain("Failed to run %s: %v", in.scriptName(), err)
		}
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ctx.Err()) {
		return err
	}
	in.out.Failure("Second pass container failure: FATAL. Contact %s", in.cfg.SupportContact)
	return model.ReportedCLIError(model.ExitGeneralError, "containers failed to come up", err)
}

func (in *Installer) initDatabase(ctx context.Context) error {
	return in.runDatabase(ctx, dbinit.Options{Reset: false, SkipConfirmation: true})
}

func (in *Installer) runDatabase(ctx context.Context, opts dbinit.Options) error {
	in.out.Header("Initializing Database...")
	statuses, err := in.database(ctx, opts)
	for _, st := range statuses {
		in.out.Success("Database %s ready (schemas: %s)", st.Name, strings.Join(st.Schemas, ", "))
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		in.out.Failure("Database initialization failed: %v", err)
		return model.ReportedCLIError(model.ExitGeneralError, "database initialization failed", err)
	}
	return nil
}

// stepError formats a step result error for the summary table.
func stepError(err error) string {
	if err == nil {
		return ""
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) && cliErr.Err != nil {
		return fmt.Sprintf("%s: %v", cliErr.Message, cliErr.Err)
	}
	return err.Error()
}
