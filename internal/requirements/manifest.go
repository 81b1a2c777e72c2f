package requirements

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Discover returns the first candidate manifest that exists as a regular
// file. Relative candidates resolve against root.
func Discover(root string, candidates []string) (string, bool) {
	for _, c := range candidates {
		path := c
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// ReadManifest parses a requirements.txt or, for *.toml files, the
// [project].dependencies array of a pyproject.toml.
func ReadManifest(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parsePyproject(path, data)
	}
	return parseRequirementsTxt(data), nil
}

// parseRequirementsTxt keeps one Requirement per specifier line. Comments,
// blank lines, pip options ("-r", "-e", "--index-url") and direct URL
// references are skipped.
func parseRequirementsTxt(data []byte) []Requirement {
	var reqs []Requirement
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if strings.Contains(line, "://") || strings.Contains(line, " @ ") {
			continue
		}
		reqs = append(reqs, Parse(line))
	}
	return reqs
}

type pyproject struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

func parsePyproject(path string, data []byte) ([]Requirement, error) {
	var doc pyproject
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	reqs := make([]Requirement, 0, len(doc.Project.Dependencies))
	for _, dep := range doc.Project.Dependencies {
		reqs = append(reqs, Parse(dep))
	}
	return reqs, nil
}

// State classifies one requirement against the installed distributions.
type State string

const (
	StateSatisfied  State = "satisfied"
	StateMissing    State = "missing"
	StateOutOfRange State = "out-of-range"

	// StateUnknown means the installed version or a bound is not a valid
	// PEP 440 version, so the range could not be decided.
	StateUnknown State = "unknown"
)

// Status pairs a requirement with what is installed.
type Status struct {
	Requirement Requirement
	Installed   string
	State       State
}

// Check looks up every requirement in reg.
func Check(reqs []Requirement, reg Registry, logger zerolog.Logger) []Status {
	statuses := make([]Status, 0, len(reqs))
	for _, req := range reqs {
		st := Status{Requirement: req, State: StateMissing}
		if v, ok := InstalledVersion(reg, req.Name, logger); ok {
			st.Installed = v
			ok, err := Satisfies(v, req)
			switch {
			case err != nil:
				logger.Warn().Err(err).Str("package", req.Name).Msg("cannot compare installed version")
				st.State = StateUnknown
			case ok:
				st.State = StateSatisfied
			default:
				st.State = StateOutOfRange
			}
		}
		statuses = append(statuses, st)
	}
	return statuses
}
