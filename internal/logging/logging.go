// Package logging configures the diagnostic logger used across the installer.
//
// User-facing progress goes to stdout through internal/console. Everything
// here is diagnostic: zerolog writes to stderr through a ConsoleWriter, quiet
// by default and verbose with --verbose or KAMIWAZA_LOG_LEVEL.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	// EnvLogLevel overrides the diagnostic log level (trace, debug, info,
	// warn, error, off).
	EnvLogLevel = "KAMIWAZA_LOG_LEVEL"

	// EnvLogNoColor disables colours in both the logger and the console
	// printer when set to a true value.
	EnvLogNoColor = "KAMIWAZA_LOG_NOCOLOR"

	// EnvNoColor is the cross-tool convention (https://no-color.org).
	EnvNoColor = "NO_COLOR"
)

// Options control how New builds the logger.
type Options struct {
	// Verbose lowers the level to debug unless EnvLogLevel says otherwise.
	Verbose bool

	// NoColor disables ANSI colours in the console writer.
	NoColor bool
}

// New returns a zerolog logger that writes human-readable lines to w.
func New(w io.Writer, opts Options) zerolog.Logger {
	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    opts.NoColor || NoColor() || !isTerminal(w),
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// isTerminal reports whether w is a terminal. Writers that are not files
// (buffers in tests, pipes wrapped by callers) count as terminals so the
// caller's NoColor choice decides.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NoColor reports whether the environment asks for colourless output.
func NoColor() bool {
	if v, ok := os.LookupEnv(EnvNoColor); ok && v != "" {
		return true
	}
	v, ok := parseBool(os.Getenv(EnvLogNoColor))
	return ok && v
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.WarnLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.WarnLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
