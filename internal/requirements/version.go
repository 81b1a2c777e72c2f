package requirements

import (
	"errors"
	"fmt"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// ErrInvalidVersion is returned when a version or bound is not a valid
// PEP 440 version, so no ordering can be decided.
var ErrInvalidVersion = errors.New("requirements: invalid version")

func parseVersion(s string) (pep440.Version, error) {
	v, err := pep440.Parse(strings.TrimSpace(s))
	if err != nil {
		return pep440.Version{}, fmt.Errorf("%w %q: %v", ErrInvalidVersion, s, err)
	}
	return v, nil
}

// CompareVersions orders two versions by PEP 440 rules and returns -1, 0
// or +1. Release segments are zero padded ("2" == "2.0"), and the usual
// suffixes sort the way pip sorts them:
//
//	1.0.dev1 < 1.0a1 < 1.0rc1 < 1.0 < 1.0+cu118 < 1.0.post1
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// InRange reports whether version satisfies min <= version < max. Empty
// bounds are open. An unparsable version or bound returns an error
// wrapping ErrInvalidVersion.
func InRange(version, min, max string) (bool, error) {
	if min != "" {
		c, err := CompareVersions(version, min)
		if err != nil {
			return false, err
		}
		if c < 0 {
			return false, nil
		}
	}
	if max != "" {
		c, err := CompareVersions(version, max)
		if err != nil {
			return false, err
		}
		if c >= 0 {
			return false, nil
		}
	}
	return true, nil
}

// Satisfies reports whether installed meets every bound of req.
//
// An exact pin is matched with PEP 440 "==" semantics: "1.26.*" accepts
// any 1.26 release, and a pin without a local label ignores the
// installed local label, so "==2.1.0" accepts "2.1.0+cu118".
func Satisfies(installed string, req Requirement) (bool, error) {
	if req.Exact != "" {
		candidate := installed
		if !strings.Contains(req.Exact, "+") {
			candidate, _, _ = strings.Cut(installed, "+")
		}
		v, err := parseVersion(candidate)
		if err != nil {
			return false, err
		}
		pin, err := pep440.NewSpecifiers("==" + req.Exact)
		if err != nil {
			return false, fmt.Errorf("%w %q: %v", ErrInvalidVersion, req.Exact, err)
		}
		if !pin.Check(v) {
			return false, nil
		}
	}
	return InRange(installed, req.Min, req.Max)
}
