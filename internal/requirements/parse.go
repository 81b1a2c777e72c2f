package requirements

import (
	"regexp"
	"strings"
)

// Requirement is one parsed dependency specifier.
type Requirement struct {
	// Raw is the specifier as written in the manifest.
	Raw string

	// Name is the distribution name, including any "[extras]" suffix.
	// Extras are stripped only when the name is looked up.
	Name string

	// Min is the inclusive lower bound from ">=". Empty if none.
	Min string

	// Exact is the version pinned with "==", possibly a "1.26.*" prefix
	// match. Empty if none.
	Exact string

	// Max is the exclusive upper bound from "<". Empty if none.
	Max string
}

// nameEnd matches the first character that cannot be part of a name with
// extras: a comparison operator, an environment marker or whitespace.
var nameEnd = regexp.MustCompile(`[<>=!~;\s]`)

// Parse splits a specifier such as "ray[default]>=2.0,<3.0" into its name
// and bounds. It is total: any input yields a Requirement, and parsing the
// same string twice yields the same value.
//
// Clauses are separated by commas. A clause with ">=" sets Min, "==" sets
// Exact and a strict "<" sets Max. Other operators ("<=", "!=", "~=", ">")
// carry no bound the installer reports on and are ignored.
func Parse(spec string) Requirement {
	req := Requirement{Raw: spec}

	// Environment markers ("; python_version < '3.11'") are not bounds.
	body, _, _ := strings.Cut(spec, ";")
	body = strings.TrimSpace(body)

	if loc := nameEnd.FindStringIndex(body); loc != nil {
		req.Name = strings.TrimSpace(body[:loc[0]])
	} else {
		req.Name = body
	}

	for _, clause := range strings.Split(body, ",") {
		switch {
		case strings.Contains(clause, ">="):
			req.Min = strings.TrimSpace(after(clause, ">="))
		case strings.Contains(clause, "=="):
			req.Exact = strings.TrimSpace(after(clause, "=="))
		case strings.Contains(clause, "<") && !strings.Contains(clause, "<="):
			req.Max = strings.TrimSpace(after(clause, "<"))
		}
	}
	return req
}

// after returns the text following the first occurrence of sep.
func after(s, sep string) string {
	_, rest, _ := strings.Cut(s, sep)
	return rest
}

// extrasSplit separates a name from its bracketed extras.
var extrasSplit = regexp.MustCompile(`[\[\]]`)

// BaseName strips any "[extras]" suffix: "ray[default,serve]" -> "ray".
func BaseName(name string) string {
	return strings.TrimSpace(extrasSplit.Split(name, 2)[0])
}

// separatorRun matches the characters PEP 503 treats as equivalent.
var separatorRun = regexp.MustCompile(`[-_.]+`)

// NormalizeName applies PEP 503 normalization so "Foo_Bar" and "foo-bar"
// compare equal.
func NormalizeName(name string) string {
	return strings.ToLower(separatorRun.ReplaceAllString(strings.TrimSpace(name), "-"))
}
