package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar holds the passphrase state files are encrypted with.
	EncryptionKeyEnvVar = "WEBSTACK_STATE_ENCRYPTION_KEY"

	encryptedHeader = "# WEBSTACK_ENCRYPTED_STATE v1\n"
)

// Cipher seals state with AES-256-GCM. The key is the SHA-256 digest of the
// passphrase.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a cipher from a passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty encryption passphrase")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

// CipherFromEnv returns the cipher configured through EncryptionKeyEnvVar, or
// nil when the variable is unset. With required set, an unset variable is an
// error.
func CipherFromEnv(required bool) (*Cipher, error) {
	passphrase := os.Getenv(EncryptionKeyEnvVar)
	if passphrase == "" {
		if required {
			return nil, fmt.Errorf("state encryption is enabled but %s is not set", EncryptionKeyEnvVar)
		}
		return nil, nil
	}
	return NewCipher(passphrase)
}

// Encrypt seals content. A nil cipher returns content unchanged.
func (c *Cipher) Encrypt(content []byte) ([]byte, error) {
	if c == nil {
		return content, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, content, nil)
	return []byte(encryptedHeader + base64.StdEncoding.EncodeToString(sealed) + "\n"), nil
}

// Decrypt opens content sealed by Encrypt. Plain content passes through.
func (c *Cipher) Decrypt(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}
	if c == nil {
		return nil, fmt.Errorf("state is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	encoded := strings.TrimSpace(strings.TrimPrefix(string(content), encryptedHeader))
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted state: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plain, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state (wrong key?): %w", err)
	}
	return plain, nil
}

// IsEncrypted checks if state content is encrypted.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}
