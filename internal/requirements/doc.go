// Package requirements reads Python dependency manifests and reports how
// the active virtual environment satisfies them.
//
// The installer never installs anything itself. It only locates the
// manifest (requirements.txt or pyproject.toml), parses each requirement
// into a name plus optional version bounds, and looks the name up in the
// venv's site-packages to show what is already there.
package requirements
