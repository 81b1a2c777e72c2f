package model

import (
	"fmt"
	"time"
)

// StepOutcome records how a single install step finished.
type StepOutcome string

const (
	// OutcomeOK means the step completed without problems.
	OutcomeOK StepOutcome = "ok"

	// OutcomeWarned means a soft step failed; the sequence kept going.
	OutcomeWarned StepOutcome = "warned"

	// OutcomeFailed means a fatal step failed and the sequence stopped.
	OutcomeFailed StepOutcome = "failed"

	// OutcomeSkipped means the step never ran because an earlier fatal
	// step aborted the sequence.
	OutcomeSkipped StepOutcome = "skipped"
)

// String returns the string representation of StepOutcome.
func (o StepOutcome) String() string {
	return string(o)
}

// IsValid checks whether the StepOutcome value is one of the predefined states.
func (o StepOutcome) IsValid() bool {
	switch o {
	case OutcomeOK, OutcomeWarned, OutcomeFailed, OutcomeSkipped:
		return true
	default:
		return false
	}
}

// StepResult is the record the sequencer keeps for each step it visits.
// The CLI prints these as a summary table once the run ends.
type StepResult struct {
	// Name is the human-readable step name (e.g., "Key generation").
	Name string `json:"name"`

	// Fatal reports whether a failure of this step aborts the run.
	Fatal bool `json:"fatal"`

	// Outcome is how the step finished.
	Outcome StepOutcome `json:"outcome"`

	// Err is the failure, if any. Nil for OK and skipped steps.
	Err error `json:"-"`

	// Duration is the wall time spent inside the step.
	Duration time.Duration `json:"duration"`
}

// ExitCode defines the process exit codes of the installer.
// install.sh and setup.sh only distinguish zero from non-zero, so every
// failure path maps to ExitGeneralError except an interrupted run.
type ExitCode int

const (
	// ExitSuccess indicates the install completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError covers the invocation guard, a declined prompt,
	// a fatal container bring-up failure, key generation and database
	// initialization failures.
	ExitGeneralError ExitCode = 1

	// ExitInterrupted indicates the run was cancelled by SIGINT/SIGTERM.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error

	// Reported is set when the message was already printed to the console
	// by the step that failed, so Execute should not print it again.
	Reported bool
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ReportedCLIError creates a CLIError whose message has already been
// shown to the user.
func ReportedCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err, Reported: true}
}
