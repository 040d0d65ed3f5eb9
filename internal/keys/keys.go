// Package keys manages the agent's on-disk RSA identity.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const (
	PrivateKeyFile = "identity.pem"
	PublicKeyFile  = "identity.pub"

	rsaBits = 2048
)

// Pair describes the on-disk locations of an identity key pair.
type Pair struct {
	PrivatePath string
	PublicPath  string
}

// PairIn returns the canonical key pair paths under dir.
func PairIn(dir string) Pair {
	return Pair{
		PrivatePath: filepath.Join(dir, PrivateKeyFile),
		PublicPath:  filepath.Join(dir, PublicKeyFile),
	}
}

// Ensure generates an RSA key pair under dir if none exists yet and returns
// the pair paths plus whether generation happened. An existing private key
// is never regenerated or overwritten, so rerunning the installer leaves
// the agent identity intact.
func Ensure(dir string) (Pair, bool, error) {
	pair := PairIn(dir)

	if _, err := os.Stat(pair.PrivatePath); err == nil {
		return pair, false, nil
	} else if !os.IsNotExist(err) {
		return pair, false, fmt.Errorf("stat private key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pair, false, fmt.Errorf("create key dir: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return pair, false, fmt.Errorf("generate rsa key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return pair, false, fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	// Write the private key first through a temp file so a crash cannot
	// leave a half-written identity behind.
	tmp := pair.PrivatePath + ".tmp"
	if err := os.WriteFile(tmp, privPEM, 0o600); err != nil {
		return pair, false, fmt.Errorf("write private key: %w", err)
	}
	if err := os.Rename(tmp, pair.PrivatePath); err != nil {
		return pair, false, fmt.Errorf("install private key: %w", err)
	}
	if err := os.WriteFile(pair.PublicPath, pubPEM, 0o644); err != nil {
		return pair, false, fmt.Errorf("write public key: %w", err)
	}

	return pair, true, nil
}

// Chown fixes ownership of both key files to the given numeric identity.
// Failure to chown (for example when not running as root) is reported so
// the caller can degrade to a warning.
func (p Pair) Chown(uid, gid int) error {
	if err := os.Chown(p.PrivatePath, uid, gid); err != nil {
		return fmt.Errorf("chown private key: %w", err)
	}
	if err := os.Chown(p.PublicPath, uid, gid); err != nil {
		return fmt.Errorf("chown public key: %w", err)
	}
	return nil
}

// Load reads and parses the private key, verifying the pair is usable.
func (p Pair) Load() (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(p.PrivatePath)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("%s: not a PEM-encoded RSA private key", p.PrivatePath)
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
