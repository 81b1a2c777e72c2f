package configcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
	"github.com/kamiwaza-ai/kamiwaza-install/internal/venv"
)

// touch creates an empty file, including parent directories.
func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestCheck_LiteralPath(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "kamiwaza/cluster/config.py"))

	probe := Check(root, "kamiwaza/cluster/config.py", "")
	assert.Equal(t, Probe{Path: "kamiwaza/cluster/config.py", Found: true}, probe)
	assert.Equal(t, "kamiwaza/cluster/config.py: Yes", probe.String())
}

func TestCheck_InVenv(t *testing.T) {
	root := t.TempDir()
	venvRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(venvRoot, venv.ConfigFile), []byte("version = 3.11.7\n"), 0o644))
	env := venv.Detect(func(k string) string {
		if k == venv.EnvVar {
			return venvRoot
		}
		return ""
	})
	touch(t, filepath.Join(venvRoot, "lib", "python3.11", "site-packages", "kamiwaza/node/config.py"))

	probe := Check(root, "kamiwaza/node/config.py", env.SitePackages())
	assert.True(t, probe.Found)
	assert.True(t, probe.InVenv)
	assert.Equal(t, "kamiwaza/node/config.py (in venv): Yes", probe.String())
}

func TestCheck_LiteralWinsOverVenv(t *testing.T) {
	root := t.TempDir()
	site := t.TempDir()
	touch(t, filepath.Join(root, "kamiwaza/node/config.py"))
	touch(t, filepath.Join(site, "kamiwaza/node/config.py"))

	probe := Check(root, "kamiwaza/node/config.py", site)
	assert.True(t, probe.Found)
	assert.False(t, probe.InVenv)
}

func TestCheck_Missing(t *testing.T) {
	tests := []struct {
		name string
		site string
	}{
		{"no venv", ""},
		{"venv without file", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := Check(t.TempDir(), "kamiwaza/serving/config.py", tt.site)
			assert.False(t, probe.Found)
			assert.Equal(t, "kamiwaza/serving/config.py: No", probe.String())
		})
	}
}

func TestCheck_DirectoryIsNotAFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kamiwaza/node/config.py"), 0o755))

	assert.False(t, Check(root, "kamiwaza/node/config.py", "").Found)
}

func TestCheckAll_DefaultPaths(t *testing.T) {
	root := t.TempDir()
	site := t.TempDir()
	touch(t, filepath.Join(root, config.DefaultConfigPaths[0]))
	touch(t, filepath.Join(site, config.DefaultConfigPaths[2]))

	probes := CheckAll(root, config.DefaultConfigPaths, site)
	require.Len(t, probes, len(config.DefaultConfigPaths))

	for i, p := range probes {
		assert.Equal(t, config.DefaultConfigPaths[i], p.Path)
		switch i {
		case 0:
			assert.Equal(t, p.Path+": Yes", p.String())
		case 2:
			assert.Equal(t, p.Path+" (in venv): Yes", p.String())
		default:
			assert.Equal(t, p.Path+": No", p.String())
		}
	}
}
