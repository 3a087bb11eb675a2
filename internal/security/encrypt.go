package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
)

var ErrUndecryptable = errors.New("message body cannot be decrypted")

// BodyCipher encrypts message bodies at rest with AES-256-GCM. Bodies written
// by older deployments as Fernet tokens are still readable when their key is
// configured.
type BodyCipher struct {
	aead   cipher.AEAD
	legacy []*fernet.Key
}

// NewBodyCipher derives the AES key from secret with SHA-256. secret and each
// legacy key are also tried as Fernet keys.
func NewBodyCipher(secret string, legacyKeys []string) (*BodyCipher, error) {
	if secret == "" {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	c := &BodyCipher{aead: aead}
	for _, raw := range append([]string{secret}, legacyKeys...) {
		if k, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			c.legacy = append(c.legacy, k)
		}
	}
	return c, nil
}

// Seal returns base64(nonce || ciphertext).
func (c *BodyCipher) Seal(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(c.aead.Seal(nonce, nonce, []byte(plain), nil)), nil
}

// Open reverses Seal, falling back to the Fernet keys.
func (c *BodyCipher) Open(sealed string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(sealed); err == nil && len(raw) >= c.aead.NonceSize() {
		n := c.aead.NonceSize()
		if plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	if len(c.legacy) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(sealed), 0, c.legacy); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrUndecryptable
}
