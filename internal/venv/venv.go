// Package venv detects the Python virtual environment the installer runs in.
//
// A Python process knows it is isolated because sys.prefix differs from
// sys.base_prefix. That difference comes from the pyvenv.cfg file at the
// environment root, so a Go process can make the same decision by looking
// at VIRTUAL_ENV and checking for pyvenv.cfg there.
package venv

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvVar is the variable activate scripts export with the environment root.
const EnvVar = "VIRTUAL_ENV"

// ConfigFile is the marker file at the root of every venv.
const ConfigFile = "pyvenv.cfg"

// Env describes the detected virtual environment.
type Env struct {
	// Root is the VIRTUAL_ENV value. Empty when the variable is unset.
	Root string

	// Isolated is true when Root holds a pyvenv.cfg, i.e. the interpreter
	// there runs with a prefix different from its base prefix.
	Isolated bool

	// PythonVersion is the "X.Y" version of the venv interpreter. Empty
	// when it could not be determined.
	PythonVersion string
}

// Detect inspects the environment using getenv (os.Getenv in production).
// It never fails; an unreadable venv is reported as not isolated.
func Detect(getenv func(string) string) Env {
	root := strings.TrimSpace(getenv(EnvVar))
	if root == "" {
		return Env{}
	}

	env := Env{Root: root}
	values, err := readConfig(filepath.Join(root, ConfigFile))
	if err == nil {
		env.Isolated = true
		env.PythonVersion = majorMinor(values["version_info"])
		if env.PythonVersion == "" {
			env.PythonVersion = majorMinor(values["version"])
		}
	}
	if env.PythonVersion == "" {
		env.PythonVersion = guessVersion(root)
	}
	return env
}

// SitePackages returns <Root>/lib/pythonX.Y/site-packages, or "" when no
// venv root is known or the interpreter version could not be determined.
func (e Env) SitePackages() string {
	if e.Root == "" || e.PythonVersion == "" {
		return ""
	}
	return filepath.Join(e.Root, "lib", "python"+e.PythonVersion, "site-packages")
}

// readConfig parses the "key = value" lines of pyvenv.cfg.
func readConfig(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// majorMinor reduces "3.11.4" or "3.11.4.final.0" to "3.11".
func majorMinor(version string) string {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// guessVersion falls back to the lib/pythonX.Y directory that exists under
// root. With several candidates the lexically last one wins.
func guessVersion(root string) string {
	matches, err := filepath.Glob(filepath.Join(root, "lib", "python*", "site-packages"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	dir := filepath.Base(filepath.Dir(matches[len(matches)-1]))
	return strings.TrimPrefix(dir, "python")
}
