package install

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/compose"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/configcheck"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/port"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/requirements"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/sequencer"
)

// CheckReport is the read-only preflight result of the check command.
type CheckReport struct {
	VirtualEnv   string              `json:"virtualEnv"`
	Isolated     bool                `json:"isolated"`
	SitePackages string              `json:"sitePackages"`
	Manifest     string              `json:"manifest"`
	Requirements []RequirementJSON   `json:"requirements"`
	ConfigFiles  []configcheck.Probe `json:"configFiles"`
	Ports        []port.Status       `json:"ports,omitempty"`
	Steps        []model.StepResult  `json:"steps,omitempty"`

	raw []requirements.Status
}

// RequirementJSON is one requirement line of a CheckReport.
type RequirementJSON struct {
	Name      string `json:"name"`
	Exact     string `json:"exact,omitempty"`
	Min       string `json:"min,omitempty"`
	Max       string `json:"max,omitempty"`
	Installed string `json:"installed,omitempty"`
	State     string `json:"state"`
}

// CheckSteps returns the discovery steps (virtual environment,
// requirements, config files) without the prompt and without side effects.
func (in *Installer) CheckSteps() []sequencer.Step {
	return []sequencer.Step{
		{Name: "Virtual environment", Run: in.detectVenv},
		{Name: "Requirements", Run: in.checkRequirements},
		{Name: "Config files", Run: in.checkConfigs},
		{Name: "Published ports", Run: in.checkPorts},
	}
}

// checkPorts reports which host ports of the configured compose files are
// already bound.
func (in *Installer) checkPorts(context.Context) error {
	if len(in.cfg.Containers.ComposeFiles) == 0 {
		return nil
	}
	project, err := compose.Load(in.cfg.ResolvedComposeFiles())
	if err != nil {
		in.out.Failure("Cannot read compose files: %v", err)
		return err
	}
	in.ports = port.NewScanner().CheckProject(project)
	for _, st := range in.ports {
		if st.InUse {
			in.out.Failure("%s", st)
		} else {
			in.out.Success("%s", st)
		}
	}
	return nil
}

// Check runs the discovery steps, printing as the install would, and
// returns what was found.
func (in *Installer) Check(ctx context.Context) (*CheckReport, error) {
	results, err := sequencer.New(in.logger, in.CheckSteps()...).Run(ctx)
	if err != nil {
		return nil, err
	}

	report := &CheckReport{
		VirtualEnv:   in.env.Root,
		Isolated:     in.env.Isolated,
		SitePackages: in.env.SitePackages(),
		ConfigFiles:  in.configProbes(),
		Ports:        in.ports,
		Steps:        results,
	}
	if path, ok := requirements.Discover(in.cfg.Root, in.cfg.RequirementPaths); ok {
		report.Manifest = path
	}
	statuses, _ := in.requirementStatuses(false)
	report.raw = statuses
	report.Requirements = make([]RequirementJSON, 0, len(statuses))
	for _, st := range statuses {
		report.Requirements = append(report.Requirements, RequirementJSON{
			Name:      st.Requirement.Name,
			Exact:     st.Requirement.Exact,
			Min:       st.Requirement.Min,
			Max:       st.Requirement.Max,
			Installed: st.Installed,
			State:     string(st.State),
		})
	}
	return report, nil
}

// Missing counts config files and requirements that were not satisfied.
// Requirements whose version could not be compared are not counted.
func (r *CheckReport) Missing() int {
	n := 0
	for _, p := range r.ConfigFiles {
		if !p.Found {
			n++
		}
	}
	for _, st := range r.raw {
		if st.State == requirements.StateMissing || st.State == requirements.StateOutOfRange {
			n++
		}
	}
	return n
}

// Conflicts counts published ports that are already in use.
func (r *CheckReport) Conflicts() int {
	n := 0
	for _, st := range r.Ports {
		if st.InUse {
			n++
		}
	}
	return n
}

// PrintSummary writes the per-step outcome table shown at the end of a
// run.
//
// The table format is:
//
//	STEP                  OUTCOME   DURATION  ERROR
//	JWT keypair           ok        120ms
//	Container bring-up    warned    2.1s      exit status 1
func PrintSummary(w io.Writer, results []model.StepResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(w, "%-22s %-9s %-9s %s\n", "STEP", "OUTCOME", "DURATION", "ERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%-22s %-9s %-9s %s\n",
			r.Name,
			r.Outcome.String(),
			formatDuration(r),
			stepError(r.Err),
		)
	}
}

func formatDuration(r model.StepResult) string {
	if r.Outcome == model.OutcomeSkipped {
		return "-"
	}
	if r.Duration < time.Second {
		return r.Duration.Round(time.Millisecond).String()
	}
	return r.Duration.Round(100 * time.Millisecond).String()
}
