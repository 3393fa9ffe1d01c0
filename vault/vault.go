// Package vault provides symmetric authenticated encryption for exchange
// credentials and other tenant secrets. It never returns a valid-looking
// plaintext for malformed input, and never panics on bad ciphertext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// cipherVersion is prepended to every ciphertext this package produces so
// that a future key-rotation or algorithm change can distinguish formats.
// A ciphertext is self-describing: version byte + nonce + sealed box.
const cipherVersion byte = 1

// ErrInvalidKeySize is returned by New when the key is not 32 bytes
// (AES-256).
var ErrInvalidKeySize = errors.New("vault: key must be 32 bytes for AES-256-GCM")

// KeyVault encrypts and decrypts small secrets (API keys, API secrets)
// with AES-256-GCM. One instance is a process-wide singleton bound to a
// single master key loaded from configuration.
type KeyVault struct {
	gcm cipher.AEAD
}

// New constructs a KeyVault from a 32-byte AES-256 key.
func New(key []byte) (*KeyVault, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}
	return &KeyVault{gcm: gcm}, nil
}

// Encrypt seals plaintext into a self-describing, base64-encoded
// ciphertext: version byte, then nonce, then the AEAD-sealed box (which
// itself carries the authentication tag).
func (v *KeyVault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, cipherVersion)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a ciphertext produced by Encrypt. On any malformed input —
// wrong version, truncated nonce, or a failed authentication tag — it logs
// a single warning and returns an empty string. It never panics and never
// returns a partially-decoded plaintext.
func (v *KeyVault) Decrypt(ciphertext string) string {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		log.Warn().Err(err).Msg("vault: ciphertext is not valid base64")
		return ""
	}

	nonceSize := v.gcm.NonceSize()
	if len(raw) < 1+nonceSize {
		log.Warn().Msg("vault: ciphertext too short")
		return ""
	}

	version := raw[0]
	if version != cipherVersion {
		log.Warn().Uint8("version", version).Msg("vault: unknown ciphertext version")
		return ""
	}

	nonce := raw[1 : 1+nonceSize]
	sealed := raw[1+nonceSize:]

	plaintext, err := v.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		log.Warn().Err(err).Msg("vault: authentication failed, discarding ciphertext")
		return ""
	}

	return string(plaintext)
}

// Mask returns a display-safe representation of a secret: the first four
// and last four characters with everything between replaced by asterisks.
// Secrets shorter than 10 characters are fully masked.
func (v *KeyVault) Mask(plaintext string) string {
	if len(plaintext) < 10 {
		return "**********"
	}
	return plaintext[:4] + "******" + plaintext[len(plaintext)-4:]
}
