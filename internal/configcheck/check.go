// Package configcheck probes for the service config modules an install
// expects to find.
//
// Each path is checked first where it is written (relative to the install
// root) and then, when a virtual environment is known, under that
// environment's site-packages directory, where an installed wheel would
// have put it. A miss is reported, never treated as an error.
package configcheck

import (
	"os"
	"path/filepath"
)

// Probe is the result of checking one config path.
type Probe struct {
	// Path is the relative path as configured, e.g. "kamiwaza/node/config.py".
	Path string `json:"path"`

	// Found is true when the file exists in either location.
	Found bool `json:"found"`

	// InVenv is true when the file was found only under site-packages.
	InVenv bool `json:"inVenv"`
}

// String renders the probe the way the installer reports it:
// "<path>: Yes", "<path> (in venv): Yes" or "<path>: No".
func (p Probe) String() string {
	switch {
	case p.Found && p.InVenv:
		return p.Path + " (in venv): Yes"
	case p.Found:
		return p.Path + ": Yes"
	default:
		return p.Path + ": No"
	}
}

// Check probes a single path. sitePackages may be empty, in which case only
// the literal location is checked.
func Check(root, path, sitePackages string) Probe {
	probe := Probe{Path: path}

	if isFile(filepath.Join(root, path)) {
		probe.Found = true
		return probe
	}
	if sitePackages != "" && isFile(filepath.Join(sitePackages, path)) {
		probe.Found = true
		probe.InVenv = true
	}
	return probe
}

// CheckAll probes every path in order.
func CheckAll(root string, paths []string, sitePackages string) []Probe {
	probes := make([]Probe, 0, len(paths))
	for _, p := range paths {
		probes = append(probes, Check(root, p, sitePackages))
	}
	return probes
}

// isFile reports whether path exists and is a regular file.
func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
