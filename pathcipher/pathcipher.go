// Package pathcipher provides per-session authenticated encryption for the
// URLs and search queries embedded in served markup. Tokens are URL-safe and
// bound to exactly one session key: decrypting with any other key fails with
// ErrAuthentication rather than returning garbage plaintext.
package pathcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of a session master key.
const KeySize = 32

const nonceSize = 12

// ErrAuthentication is returned when a token fails to decrypt: it was
// tampered with, truncated, or produced under a different session key.
var ErrAuthentication = errors.New("pathcipher: token authentication failed")

// hkdf info string; binds derived keys to this purpose so the same master
// secret could never be reused verbatim elsewhere.
var keyInfo = []byte("veil path token v1")

// NewKey generates a fresh random session master key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("pathcipher: key generation failed: %w", err)
	}
	return key, nil
}

// Cipher encrypts and decrypts path tokens under one session key. The zero
// value is unusable; construct with New. A Cipher is safe for concurrent use
// as long as the key bytes it was built from are not mutated.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AEAD key from the session master key via HKDF-SHA256 and
// returns a ready Cipher.
func New(sessionKey []byte) (*Cipher, error) {
	if len(sessionKey) != KeySize {
		return nil, fmt.Errorf("pathcipher: session key must be %d bytes, got %d", KeySize, len(sessionKey))
	}
	derived := make([]byte, KeySize)
	kr := hkdf.New(sha256.New, sessionKey, nil, keyInfo)
	if _, err := io.ReadFull(kr, derived); err != nil {
		return nil, fmt.Errorf("pathcipher: key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("pathcipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pathcipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a URL-safe token: base64url(nonce || ct || tag).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("pathcipher: nonce generation failed: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt under the same session key.
// Any failure mode maps to ErrAuthentication.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrAuthentication
	}
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrAuthentication
	}
	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// IsToken reports whether s plausibly looks like an encrypted token rather
// than a literal URL. Callers use it to decide whether a client-supplied
// value needs decryption first.
func IsToken(s string) bool {
	if len(s) < (nonceSize+16)*4/3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
