// Package config holds the installer configuration.
//
// Every value has a default that reproduces the historical behaviour of the
// install script: the same manifest and config paths, ./containers-up.sh, a
// 15 second stabilization wait and exactly one extra bring-up attempt. An
// optional install.yaml (or install.json/.jsonc) next to the installer, a
// .env file and KAMIWAZA_* environment variables can override them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// DefaultParserMode is handed to child processes as
// PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION so the Python protobuf runtime
// uses its pure-Python parser instead of the native extension.
const DefaultParserMode = "python"

// ParserModeEnv is the variable that carries ParserMode to child processes.
const ParserModeEnv = "PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION"

// DefaultSupportContact is printed when the install cannot recover.
const DefaultSupportContact = "support@kamiwaza.ai"

// DefaultRequirementPaths are probed in order for a requirements manifest.
var DefaultRequirementPaths = []string{
	"../requirements.txt",
	"./requirements.txt",
	"./pyproject.toml",
}

// DefaultConfigPaths are the service config modules the install expects.
// Each is checked at the literal path and under the venv's site-packages.
var DefaultConfigPaths = []string{
	"kamiwaza/cluster/config.py",
	"kamiwaza/serving/config.py",
	"kamiwaza/node/config.py",
	"kamiwaza/services/catalog/config.py",
	"kamiwaza/services/vectordb/config.py",
	"kamiwaza/services/models/config.py",
	"kamiwaza/services/retrieval/config.py",
	"kamiwaza/services/prompts/config.py",
}

// Config is the full installer configuration.
type Config struct {
	// Root is the install directory. Relative paths (manifests, config
	// files, the containers script, the runtime dir) resolve against it.
	Root string `yaml:"root"`

	// RuntimeDir receives the generated JWT keypair. Relative values
	// resolve against Root. Empty means a runtime directory next to the
	// installer binary.
	RuntimeDir string `yaml:"runtime_dir"`

	// ParserMode is exported to child processes as ParserModeEnv.
	// Empty disables the export.
	ParserMode string `yaml:"parser_mode"`

	// SupportContact is shown in the fatal container failure message.
	SupportContact string `yaml:"support_contact"`

	// RequirementPaths are the manifest candidates, first match wins.
	RequirementPaths []string `yaml:"requirement_paths"`

	// ConfigPaths are the expected service config files.
	ConfigPaths []string `yaml:"config_paths"`

	Containers ContainersConfig `yaml:"containers"`
	Database   DatabaseConfig   `yaml:"database"`
}

// ContainersConfig controls container bring-up and stabilization.
type ContainersConfig struct {
	// Script is the container supervisor, run without arguments.
	Script string `yaml:"script"`

	// StabilizeDelay is the fixed pause used when Services is empty.
	StabilizeDelay time.Duration `yaml:"stabilize_delay"`

	// Services are container names (or name fragments) to poll for
	// readiness instead of sleeping for StabilizeDelay.
	Services []string `yaml:"services"`

	// ComposeFiles are the Compose files containers-up.sh uses. When set
	// and Services is empty, every service they define is polled. The
	// check command also scans their published ports.
	ComposeFiles []string `yaml:"compose_files"`

	// Readiness bounds the readiness polling.
	Readiness RetryPolicy `yaml:"readiness"`

	// Retry bounds the bring-up retry that follows stabilization.
	// The default is a single attempt.
	Retry RetryPolicy `yaml:"retry"`
}

// DatabaseConfig controls the non-destructive database initialization.
type DatabaseConfig struct {
	// DSN is a lib/pq connection string. CockroachDB and Postgres both work.
	DSN string `yaml:"dsn"`

	// Databases lists what must exist after initialization.
	Databases []DatabaseSpec `yaml:"databases"`

	// Connect bounds how long the initializer waits for the server.
	Connect RetryPolicy `yaml:"connect"`
}

// DatabaseSpec names one database and the schemas it must contain.
type DatabaseSpec struct {
	Name    string   `yaml:"name"`
	Schemas []string `yaml:"schemas"`
}

// RetryPolicy is a bounded retry with optional exponential backoff.
type RetryPolicy struct {
	// Attempts is the total number of calls, at least 1.
	Attempts int `yaml:"attempts"`

	// Delay is the wait before the second call.
	Delay time.Duration `yaml:"delay"`

	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay between calls. Values <= 1 keep the
	// delay constant.
	Multiplier float64 `yaml:"multiplier"`
}

// CallArgs turns the policy into juju/retry arguments for fn.
// stop aborts the retry loop early, usually ctx.Done().
func (p RetryPolicy) CallArgs(fn func() error, clk clock.Clock, stop <-chan struct{}) retry.CallArgs {
	args := retry.CallArgs{
		Func:     fn,
		Attempts: p.Attempts,
		Delay:    p.Delay,
		MaxDelay: p.MaxDelay,
		Clock:    clk,
		Stop:     stop,
	}
	if p.Multiplier > 1 {
		maxDelay := p.MaxDelay
		if maxDelay <= 0 {
			maxDelay = time.Hour
		}
		args.BackoffFunc = retry.ExpBackoff(p.Delay, maxDelay, p.Multiplier, false)
	}
	return args
}

func (p RetryPolicy) validate(field string) error {
	if p.Attempts < 1 {
		return fmt.Errorf("%s.attempts must be at least 1, got %d", field, p.Attempts)
	}
	if p.Delay <= 0 {
		return fmt.Errorf("%s.delay must be positive, got %s", field, p.Delay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("%s.max_delay must not be negative, got %s", field, p.MaxDelay)
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("%s.multiplier must not be negative, got %v", field, p.Multiplier)
	}
	return nil
}

// Default returns the configuration that matches the historical installer.
func Default() *Config {
	return &Config{
		Root:             ".",
		ParserMode:       DefaultParserMode,
		SupportContact:   DefaultSupportContact,
		RequirementPaths: append([]string(nil), DefaultRequirementPaths...),
		ConfigPaths:      append([]string(nil), DefaultConfigPaths...),
		Containers: ContainersConfig{
			Script:         "./containers-up.sh",
			StabilizeDelay: 15 * time.Second,
			Readiness: RetryPolicy{
				Attempts:   10,
				Delay:      time.Second,
				MaxDelay:   15 * time.Second,
				Multiplier: 2,
			},
			Retry: RetryPolicy{
				Attempts: 1,
				Delay:    5 * time.Second,
			},
		},
		Database: DatabaseConfig{
			DSN: "postgresql://root@localhost:26257/defaultdb?sslmode=disable",
			Databases: []DatabaseSpec{
				{Name: "kamiwaza", Schemas: []string{"public"}},
			},
			Connect: RetryPolicy{
				Attempts:   5,
				Delay:      time.Second,
				MaxDelay:   10 * time.Second,
				Multiplier: 2,
			},
		},
	}
}

// executable locates the running binary. Tests replace it.
var executable = os.Executable

// ResolvedRuntimeDir returns RuntimeDir resolved against Root.
//
// When RuntimeDir is unset the keys go into a runtime directory next to
// the installer binary, not under the working directory, so launching
// the installer from elsewhere still writes them beside it. Symlinks are
// followed to the real binary. If the binary cannot be located, the
// directory falls back to <Root>/runtime.
func (c *Config) ResolvedRuntimeDir() string {
	if c.RuntimeDir != "" {
		return c.Resolve(c.RuntimeDir)
	}
	exe, err := executable()
	if err != nil {
		return filepath.Join(c.Root, "runtime")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "runtime")
}

// ResolvedComposeFiles returns ComposeFiles resolved against Root.
func (c *Config) ResolvedComposeFiles() []string {
	paths := make([]string, 0, len(c.Containers.ComposeFiles))
	for _, p := range c.Containers.ComposeFiles {
		paths = append(paths, c.Resolve(p))
	}
	return paths
}

// Resolve joins a relative path onto Root. Absolute paths are returned
// unchanged.
func (c *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, path)
}

// identifierPattern limits database and schema names to plain SQL
// identifiers so they can be quoted safely.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate checks the configuration for values the installer cannot use.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if c.Containers.Script == "" {
		return fmt.Errorf("containers.script must not be empty")
	}
	if c.Containers.StabilizeDelay < 0 {
		return fmt.Errorf("containers.stabilize_delay must not be negative, got %s", c.Containers.StabilizeDelay)
	}
	if err := c.Containers.Readiness.validate("containers.readiness"); err != nil {
		return err
	}
	if err := c.Containers.Retry.validate("containers.retry"); err != nil {
		return err
	}
	if err := c.Database.Connect.validate("database.connect"); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	for _, db := range c.Database.Databases {
		if !identifierPattern.MatchString(db.Name) {
			return fmt.Errorf("database name %q is not a valid identifier", db.Name)
		}
		for _, schema := range db.Schemas {
			if !identifierPattern.MatchString(schema) {
				return fmt.Errorf("schema name %q in database %q is not a valid identifier", schema, db.Name)
			}
		}
	}
	return nil
}
