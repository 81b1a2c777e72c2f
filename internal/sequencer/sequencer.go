// Package sequencer runs a fixed, ordered list of gated install steps.
//
// A step is either fatal or soft. A fatal step that fails stops the
// sequence and its error is returned as a *model.CLIError; the steps after
// it are recorded as skipped. A soft step that fails is recorded as warned
// and the sequence continues. Steps print their own user-facing messages;
// the sequencer only records outcomes and logs them.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/model"
)

// Step is one unit of the install sequence.
type Step struct {
	// Name identifies the step in logs and the summary table.
	Name string

	// Fatal makes a failure of this step abort the sequence.
	Fatal bool

	// Run performs the step.
	Run func(ctx context.Context) error
}

// Sequencer executes steps in order.
type Sequencer struct {
	steps  []Step
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Sequencer over steps.
func New(logger zerolog.Logger, steps ...Step) *Sequencer {
	return &Sequencer{steps: steps, logger: logger, now: time.Now}
}

// Steps returns the configured steps in execution order.
func (s *Sequencer) Steps() []Step {
	return s.steps
}

// Run executes every step and returns one result per step, in order.
//
// The returned error is nil unless a fatal step failed or ctx was
// cancelled. It is always a *model.CLIError: errors that already are one
// keep their exit code, cancellation maps to model.ExitInterrupted and
// anything else to model.ExitGeneralError.
func (s *Sequencer) Run(ctx context.Context) ([]model.StepResult, error) {
	results := make([]model.StepResult, 0, len(s.steps))
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			results = append(results, skipped(s.steps[i:])...)
			return results, interrupted(err)
		}

		start := s.now()
		err := step.Run(ctx)
		result := model.StepResult{
			Name:     step.Name,
			Fatal:    step.Fatal,
			Outcome:  model.OutcomeOK,
			Err:      err,
			Duration: s.now().Sub(start),
		}

		if err == nil {
			s.logger.Debug().Str("step", step.Name).Dur("took", result.Duration).Msg("step completed")
			results = append(results, result)
			continue
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			result.Outcome = model.OutcomeFailed
			results = append(results, result)
			results = append(results, skipped(s.steps[i+1:])...)
			return results, interrupted(err)
		}

		if !step.Fatal {
			result.Outcome = model.OutcomeWarned
			s.logger.Debug().Err(err).Str("step", step.Name).Msg("soft step failed, continuing")
			results = append(results, result)
			continue
		}

		result.Outcome = model.OutcomeFailed
		s.logger.Debug().Err(err).Str("step", step.Name).Msg("fatal step failed, aborting")
		results = append(results, result)
		results = append(results, skipped(s.steps[i+1:])...)
		return results, asCLIError(step.Name, err)
	}
	return results, nil
}

func skipped(steps []Step) []model.StepResult {
	out := make([]model.StepResult, 0, len(steps))
	for _, step := range steps {
		out = append(out, model.StepResult{Name: step.Name, Fatal: step.Fatal, Outcome: model.OutcomeSkipped})
	}
	return out
}

func interrupted(err error) *model.CLIError {
	return model.WrapCLIError(model.ExitInterrupted, "installation interrupted", err)
}

func asCLIError(name string, err error) *model.CLIError {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("%s failed", name), err)
}
