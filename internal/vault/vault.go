// Package vault provides symmetric encryption of provider secrets at rest.
//
// Secrets (API keys, OAuth client secrets) are encrypted with AES-256-GCM and
// stored as base64(nonce ∥ ciphertext ∥ tag). The 32-byte key is derived from
// a configured passphrase via SHA-256, so the passphrase itself never touches
// disk.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/brokermcp/broker/internal/brokererr"
)

// nonceSize is the AES-256-GCM nonce length in bytes.
const nonceSize = 12

// Vault encrypts and decrypts secrets with a passphrase-derived key.
//
// Vault is safe for concurrent use — it holds no mutable state beyond the
// derived key.
type Vault struct {
	key [32]byte
}

// New derives a [Vault] from passphrase via SHA-256. An empty passphrase is
// accepted (it derives a fixed, well-known key) but should only be used in
// tests or local development.
func New(passphrase string) *Vault {
	return &Vault{key: sha256.Sum256([]byte(passphrase))}
}

// Encrypt returns base64(nonce ∥ ciphertext ∥ tag) for plaintext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.gcm()
	if err != nil {
		return "", fmt.Errorf("vault: encrypt: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: encrypt: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	combined := append(nonce, sealed...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt reverses [Vault.Encrypt]. It fails with a [brokererr.Error] of kind
// [brokererr.KindInternal] if the ciphertext is malformed or the key does not
// match (authentication failure from the GCM tag).
func (v *Vault) Decrypt(encoded string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", brokererr.New(brokererr.KindInternal, "vault: decrypt: invalid base64", err)
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}

	if len(combined) < nonceSize+gcm.Overhead() {
		return "", brokererr.New(brokererr.KindInternal, "vault: decrypt: ciphertext too short", nil)
	}

	nonce, ciphertext := combined[:nonceSize], combined[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", brokererr.New(brokererr.KindInternal, "vault: decrypt: authentication failed", err)
	}
	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("init aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

// DecryptOrEmpty decrypts encoded and treats an empty decrypted value or a
// decrypt failure as absent, per the config resolution rule that "an empty
// decrypted value is treated as absent." Use only where the caller has
// already decided a missing secret is not itself an error.
func (v *Vault) DecryptOrEmpty(encoded string) string {
	if encoded == "" {
		return ""
	}
	plaintext, err := v.Decrypt(encoded)
	if err != nil {
		return ""
	}
	return plaintext
}
