package venv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getenvFrom(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestDetect_NoVirtualEnv(t *testing.T) {
	env := Detect(getenvFrom(nil))

	assert.Equal(t, Env{}, env)
	assert.Empty(t, env.SitePackages())
}

func TestDetect_PyvenvCfg(t *testing.T) {
	root := t.TempDir()
	cfg := "home = /usr/bin\ninclude-system-site-packages = false\nversion = 3.11.4\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte(cfg), 0o644))

	env := Detect(getenvFrom(map[string]string{EnvVar: root}))

	assert.True(t, env.Isolated)
	assert.Equal(t, root, env.Root)
	assert.Equal(t, "3.11", env.PythonVersion)
	assert.Equal(t, filepath.Join(root, "lib", "python3.11", "site-packages"), env.SitePackages())
}

func TestDetect_VersionInfoPreferred(t *testing.T) {
	root := t.TempDir()
	cfg := "version_info = 3.12.1.final.0\nversion = 3.10.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte(cfg), 0o644))

	env := Detect(getenvFrom(map[string]string{EnvVar: root}))
	assert.Equal(t, "3.12", env.PythonVersion)
}

func TestDetect_NoCfgFallsBackToLibDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib", "python3.9", "site-packages"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib", "python3.10", "site-packages"), 0o755))

	env := Detect(getenvFrom(map[string]string{EnvVar: root}))

	assert.False(t, env.Isolated, "no pyvenv.cfg means not isolated")
	// Lexical sort puts python3.9 last.
	assert.Equal(t, "3.9", env.PythonVersion)
	assert.NotEmpty(t, env.SitePackages())
}

func TestDetect_UnknownVersion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte("home = /usr/bin\n"), 0o644))

	env := Detect(getenvFrom(map[string]string{EnvVar: root}))
	assert.True(t, env.Isolated)
	assert.Empty(t, env.PythonVersion)
	assert.Empty(t, env.SitePackages())
}

func TestMajorMinor(t *testing.T) {
	tests := map[string]string{
		"3.11.4":         "3.11",
		"3.12.1.final.0": "3.12",
		"3.8":            "3.8",
		"3":              "",
		"":               "",
		" 3.10.2 ":       "3.10",
	}
	for in, want := range tests {
		assert.Equal(t, want, majorMinor(in), in)
	}
}
