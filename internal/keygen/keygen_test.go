package keygen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBits keeps key generation fast; 1024 is the smallest size crypto/rsa
// accepts.
const testBits = 1024

func TestGenerate_WritesVerifiedPair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runtime")
	g := &Generator{Bits: testBits}

	pair, err := g.Generate(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, PrivateKeyFile), pair.PrivatePath)
	assert.Equal(t, filepath.Join(dir, PublicKeyFile), pair.PublicPath)
	assert.True(t, strings.HasPrefix(pair.Fingerprint, "SHA256:"))
	assert.Len(t, pair.KeyID, 36)

	info, err := os.Stat(pair.PrivatePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())

	kid, err := os.ReadFile(filepath.Join(dir, KeyIDFile))
	require.NoError(t, err)
	assert.Equal(t, pair.KeyID+"\n", string(kid))

	privPEM, err := os.ReadFile(pair.PrivatePath)
	require.NoError(t, err)
	_, err = jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	assert.NoError(t, err)

	assert.NoError(t, Verify(dir))
}

func TestGenerate_OverwritesExistingPair(t *testing.T) {
	dir := t.TempDir()
	g := &Generator{Bits: testBits}

	first, err := g.Generate(dir)
	require.NoError(t, err)
	second, err := g.Generate(dir)
	require.NoError(t, err)

	assert.NotEqual(t, first.KeyID, second.KeyID)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.NoError(t, Verify(dir))

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestVerify_MismatchedPair(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	g := &Generator{Bits: testBits}
	_, err := g.Generate(a)
	require.NoError(t, err)
	_, err = g.Generate(b)
	require.NoError(t, err)

	pubB, err := os.ReadFile(filepath.Join(b, PublicKeyFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(a, PublicKeyFile), pubB, 0o644))

	err = Verify(a)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerify_MissingFiles(t *testing.T) {
	assert.ErrorIs(t, Verify(t.TempDir()), ErrVerification)
}

func TestGenerate_UnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "runtime")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := (&Generator{Bits: testBits}).Generate(blocker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create runtime directory")
}
