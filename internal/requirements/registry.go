package requirements

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotInstalled is returned by a Registry when no distribution matches.
var ErrNotInstalled = errors.New("requirements: distribution not installed")

// Registry answers "which version of this distribution is installed?".
type Registry interface {
	Version(name string) (string, error)
}

// SitePackages is a Registry backed by the *.dist-info directories of a
// site-packages directory, the same metadata importlib.metadata reads.
type SitePackages struct {
	dir string

	once     sync.Once
	versions map[string]string
	err      error
}

// NewSitePackages returns a registry over dir. The directory is scanned
// lazily on the first lookup.
func NewSitePackages(dir string) *SitePackages {
	return &SitePackages{dir: dir}
}

// Version returns the installed version of name, which must already be
// free of extras. Names are compared after PEP 503 normalization.
func (s *SitePackages) Version(name string) (string, error) {
	s.once.Do(s.scan)
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.versions[NormalizeName(name)]
	if !ok {
		return "", ErrNotInstalled
	}
	return v, nil
}

// scan indexes every dist-info directory. METADATA is authoritative; the
// directory name "<name>-<version>.dist-info" is the fallback when the
// file is missing or incomplete.
func (s *SitePackages) scan() {
	s.versions = make(map[string]string)

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.dist-info"))
	if err != nil {
		s.err = fmt.Errorf("failed to scan %s: %w", s.dir, err)
		return
	}
	for _, dir := range matches {
		name, version := readMetadata(filepath.Join(dir, "METADATA"))
		if name == "" || version == "" {
			base := strings.TrimSuffix(filepath.Base(dir), ".dist-info")
			if n, v, ok := strings.Cut(base, "-"); ok {
				if name == "" {
					name = n
				}
				if version == "" {
					version = v
				}
			}
		}
		if name == "" || version == "" {
			continue
		}
		s.versions[NormalizeName(name)] = version
	}
}

// readMetadata extracts the Name and Version headers from a METADATA file.
// Headers end at the first blank line.
func readMetadata(path string) (name, version string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			name = strings.TrimSpace(value)
		case "version":
			version = strings.TrimSpace(value)
		}
	}
	return name, version
}

// InstalledVersion looks name up in reg after stripping extras, so
// "pkg[extra1,extra2]" and "pkg" give the same answer. A missing
// distribution returns ok=false; any other lookup error is logged and also
// reported as absent.
func InstalledVersion(reg Registry, name string, logger zerolog.Logger) (string, bool) {
	base := BaseName(name)
	version, err := reg.Version(base)
	if err != nil {
		if !errors.Is(err, ErrNotInstalled) {
			logger.Error().Err(err).Str("package", base).Msg("error looking up installed version")
		}
		return "", false
	}
	return version, true
}
