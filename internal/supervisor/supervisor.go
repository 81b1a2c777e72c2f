// Package supervisor drives the external container supervision script.
//
// containers-up.sh owns the compose logic and is idempotent: running it
// again converges on the same set of containers. The installer runs it
// once, waits, and runs it again under a bounded retry policy; this package
// provides both calls.
package supervisor

import (
	"context"
	"fmt"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
)

// Supervisor runs the configured containers script.
type Supervisor struct {
	runner CommandRunner
	script string
	dir    string
	env    []string
	clock  clock.Clock
	logger zerolog.Logger
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock used between retry attempts.
func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) { s.clock = clk }
}

// New builds a Supervisor for cfg. The parser mode, when set, is passed to
// the script's environment instead of being set on this process.
func New(cfg *config.Config, runner CommandRunner, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		runner: runner,
		script: cfg.Containers.Script,
		dir:    cfg.Root,
		clock:  clock.WallClock,
		logger: logger,
	}
	if cfg.ParserMode != "" {
		s.env = append(s.env, config.ParserModeEnv+"="+cfg.ParserMode)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Script returns the configured script path, for messages.
func (s *Supervisor) Script() string {
	return s.script
}

// Up runs the script once and returns its merged output.
func (s *Supervisor) Up(ctx context.Context) ([]byte, error) {
	s.logger.Debug().Str("script", s.script).Str("dir", s.dir).Msg("running container supervisor")
	output, err := s.runner.Run(ctx, Command{
		Path: s.script,
		Dir:  s.dir,
		Env:  s.env,
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("container supervisor failed")
	}
	return output, err
}

// UpWithRetry runs the script until it succeeds or policy is exhausted.
// onAttempt, if non-nil, receives every attempt's output and error so the
// caller can print them as they happen. The returned error is the last
// attempt's error; cancelling ctx stops the retry loop.
func (s *Supervisor) UpWithRetry(ctx context.Context, policy config.RetryPolicy, onAttempt func(attempt int, output []byte, err error)) error {
	attempt := 0
	args := policy.CallArgs(func() error {
		attempt++
		output, err := s.Up(ctx)
		if onAttempt != nil {
			onAttempt(attempt, output, err)
		}
		return err
	}, s.clock, ctx.Done())
	args.NotifyFunc = func(err error, n int) {
		s.logger.Debug().Err(err).Int("attempt", n).Msg("container bring-up attempt failed")
	}

	err := retry.Call(args)
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	if last := retry.LastError(err); last != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", s.script, attempt, last)
	}
	return err
}
