// Package keygen generates the RSA keypair the platform signs JWTs with.
//
// The keypair lands in the runtime directory as PEM files plus a key id.
// Generation always replaces an existing pair, and every file is written
// to a temporary name and renamed into place, so an interrupted run never
// leaves a private key without its matching public key.
package keygen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// File names inside the runtime directory.
const (
	PrivateKeyFile = "private_key.pem"
	PublicKeyFile  = "public_key.pem"
	KeyIDFile      = "key_id"
)

// DefaultBits is the RSA modulus size used for new keys.
const DefaultBits = 2048

// ErrVerification is returned when the written keypair cannot sign and
// verify a probe token.
var ErrVerification = errors.New("keygen: keypair verification failed")

// KeyPair describes a generated keypair on disk.
type KeyPair struct {
	PrivatePath string
	PublicPath  string

	// KeyID is the value to place in the "kid" header of signed tokens.
	KeyID string

	// Fingerprint is the SHA256 fingerprint of the public key in the
	// format ssh-keygen -l prints.
	Fingerprint string
}

// Generator creates keypairs. The zero value is ready to use.
type Generator struct {
	// Bits is the RSA key size. Zero means DefaultBits.
	Bits int

	// Rand is the entropy source. Nil means crypto/rand.Reader.
	Rand io.Reader
}

// Generate writes a fresh keypair into dir, creating it with mode 0700 if
// needed, and verifies the result by round-tripping an RS256 token.
func (g *Generator) Generate(dir string) (*KeyPair, error) {
	bits := g.Bits
	if bits == 0 {
		bits = DefaultBits
	}
	random := g.Rand
	if random == nil {
		random = rand.Reader
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory %s: %w", dir, err)
	}

	key, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	sshKey, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint public key: %w", err)
	}

	pair := &KeyPair{
		PrivatePath: filepath.Join(dir, PrivateKeyFile),
		PublicPath:  filepath.Join(dir, PublicKeyFile),
		KeyID:       uuid.NewString(),
		Fingerprint: ssh.FingerprintSHA256(sshKey),
	}

	// Private key last: a pair left half-replaced fails Verify.
	if err := writeAtomic(pair.PublicPath, pubPEM, 0o644); err != nil {
		return nil, err
	}
	if err := writeAtomic(filepath.Join(dir, KeyIDFile), []byte(pair.KeyID+"\n"), 0o644); err != nil {
		return nil, err
	}
	if err := writeAtomic(pair.PrivatePath, privPEM, 0o600); err != nil {
		return nil, err
	}

	if err := Verify(dir); err != nil {
		return nil, err
	}
	return pair, nil
}

// Verify loads the keypair in dir, signs a short-lived RS256 token with the
// private key and checks it against the public key.
func Verify(dir string) error {
	privPEM, err := os.ReadFile(filepath.Join(dir, PrivateKeyFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	pubPEM, err := os.ReadFile(filepath.Join(dir, PublicKeyFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	kid, err := os.ReadFile(filepath.Join(dir, KeyIDFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "kamiwaza-install",
		Subject:   "keypair-verification",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = strings.TrimSpace(string(kid))

	signed, err := token.SignedString(priv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	_, err = jwt.Parse(signed, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return nil
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
