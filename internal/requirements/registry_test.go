package requirements

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDistInfo creates <dir>/<dirName>/METADATA with the given body.
func writeDistInfo(t *testing.T, dir, dirName, metadata string) {
	t.Helper()
	distInfo := filepath.Join(dir, dirName)
	require.NoError(t, os.MkdirAll(distInfo, 0o755))
	if metadata != "" {
		require.NoError(t, os.WriteFile(filepath.Join(distInfo, "METADATA"), []byte(metadata), 0o644))
	}
}

func TestSitePackages_Version(t *testing.T) {
	dir := t.TempDir()
	writeDistInfo(t, dir, "ray-2.9.0.dist-info",
		"Metadata-Version: 2.1\nName: ray\nVersion: 2.9.0\n\nName: not-a-header\n")
	writeDistInfo(t, dir, "typing_extensions-4.9.0.dist-info",
		"Metadata-Version: 2.1\nName: typing_extensions\nVersion: 4.9.0\n")
	writeDistInfo(t, dir, "six-1.16.0.dist-info", "")

	reg := NewSitePackages(dir)

	v, err := reg.Version("ray")
	require.NoError(t, err)
	assert.Equal(t, "2.9.0", v)

	v, err = reg.Version("Typing-Extensions")
	require.NoError(t, err)
	assert.Equal(t, "4.9.0", v, "names are PEP 503 normalized")

	v, err = reg.Version("six")
	require.NoError(t, err)
	assert.Equal(t, "1.16.0", v, "directory name is the fallback")

	_, err = reg.Version("numpy")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestSitePackages_MissingDir(t *testing.T) {
	reg := NewSitePackages(filepath.Join(t.TempDir(), "absent"))
	_, err := reg.Version("ray")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

// recordingRegistry remembers which names it was asked for.
type recordingRegistry struct {
	versions map[string]string
	err      error
	asked    []string
}

func (r *recordingRegistry) Version(name string) (string, error) {
	r.asked = append(r.asked, name)
	if r.err != nil {
		return "", r.err
	}
	v, ok := r.versions[name]
	if !ok {
		return "", ErrNotInstalled
	}
	return v, nil
}

func TestInstalledVersion_StripsExtras(t *testing.T) {
	reg := &recordingRegistry{versions: map[string]string{"pkg": "1.2.3"}}

	withExtras, ok1 := InstalledVersion(reg, "pkg[extra1,extra2]", zerolog.Nop())
	plain, ok2 := InstalledVersion(reg, "pkg", zerolog.Nop())

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, plain, withExtras)
	assert.Equal(t, []string{"pkg", "pkg"}, reg.asked)
}

func TestInstalledVersion_Absent(t *testing.T) {
	reg := &recordingRegistry{}
	v, ok := InstalledVersion(reg, "ghost", zerolog.Nop())
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestInstalledVersion_LookupErrorIsAbsent(t *testing.T) {
	reg := &recordingRegistry{err: errors.New("permission denied")}
	v, ok := InstalledVersion(reg, "ray", zerolog.Nop())
	assert.False(t, ok)
	assert.Empty(t, v)
}
