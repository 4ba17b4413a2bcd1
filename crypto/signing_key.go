// Package crypto manages the server's Ed25519 token signing key.
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	privatePEMType = "ED25519 PRIVATE KEY"
	publicPEMType  = "ED25519 PUBLIC KEY"
)

// SigningKey is the keypair that signs session tokens.
type SigningKey struct {
	Private     ed25519.PrivateKey
	Public      ed25519.PublicKey
	Fingerprint string
	// Generated reports whether the key was created by this call.
	Generated bool
}

// LoadOrCreateSigningKey loads the keypair from disk, generating it on first
// run. A missing or stale public key file is rewritten from the private key.
func LoadOrCreateSigningKey(privatePath, publicPath string) (*SigningKey, error) {
	privateKey, err := loadPrivateKey(privatePath)
	if err == nil {
		publicKey := privateKey.Public().(ed25519.PublicKey)

		stored, pubErr := loadPublicKey(publicPath)
		if pubErr != nil || !bytes.Equal(stored, publicKey) {
			if err := writePEM(publicPath, publicPEMType, publicKey, 0o644); err != nil {
				return nil, err
			}
		}
		return newSigningKey(privateKey, publicKey, false), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := writePEM(privatePath, privatePEMType, privateKey, 0o600); err != nil {
		return nil, err
	}
	if err := writePEM(publicPath, publicPEMType, publicKey, 0o644); err != nil {
		return nil, err
	}

	return newSigningKey(privateKey, publicKey, true), nil
}

func newSigningKey(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, generated bool) *SigningKey {
	return &SigningKey{
		Private:     privateKey,
		Public:      publicKey,
		Fingerprint: KeyFingerprint(publicKey),
		Generated:   generated,
	}
}

// LoadPublicKey reads a public key PEM file, for verifying tokens issued by
// another instance.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	return loadPublicKey(path)
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := readPEM(path, privatePEMType, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

func loadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := readPEM(path, publicPEMType, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

func readPEM(path, blockType string, size int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", strings.ToLower(blockType), err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode %s: no PEM block", path)
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("decode %s: unexpected type %q", path, block.Type)
	}
	if len(block.Bytes) != size {
		return nil, fmt.Errorf("decode %s: invalid key size %d", path, len(block.Bytes))
	}
	return block.Bytes, nil
}

func writePEM(path, blockType string, key []byte, perm os.FileMode) error {
	block := &pem.Block{Type: blockType, Bytes: key}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), perm); err != nil {
		return fmt.Errorf("write %s: %w", strings.ToLower(blockType), err)
	}
	return nil
}

// KeyFingerprint returns the truncated SHA-256 hex fingerprint of a public key.
func KeyFingerprint(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:16])
}

// FormatFingerprint groups fingerprint text in chunks of 4 uppercase chars.
func FormatFingerprint(fingerprint string) string {
	clean := strings.ToUpper(strings.ReplaceAll(fingerprint, " ", ""))

	var b strings.Builder
	for i := 0; i < len(clean); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(clean[i:min(i+4, len(clean))])
	}
	return b.String()
}
