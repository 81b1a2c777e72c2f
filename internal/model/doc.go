// Package model defines the shared value types for the kamiwaza-install CLI.
//
// Nothing here is persisted. Step results and errors live for a single
// process run and are consumed by the sequencer and the CLI layer.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
