// Package fieldcrypt provides field-level encryption for PII columns.
//
// Values are stored as hex(iv) + ":" + hex(ciphertext), AES-256-CBC with
// PKCS#7 padding and a fresh random IV per call. Decryption is tolerant:
// legacy rows may hold plaintext or ciphertext from another key epoch, so
// any value that does not decrypt cleanly is passed through unchanged.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

const separator = ":"

// Development fallback key. A codec built in production mode never uses it.
var insecureDevKey = []byte("prontuario-dev-only-0123456789ab")

var errMalformed = errors.New("fieldcrypt: malformed encrypted value")

// Codec encrypts and decrypts individual field values under a fixed key.
type Codec struct {
	key []byte
}

// New builds a codec from a hex-encoded 256-bit key. In production mode a
// missing or invalid key is a hard error; otherwise the codec falls back
// to an insecure development key and logs a warning.
func New(hexKey string, production bool) (*Codec, error) {
	key, err := decodeKey(hexKey)
	if err != nil {
		if production {
			return nil, fmt.Errorf("fieldcrypt: %w", err)
		}
		slog.Warn("INSECURE: field encryption running with built-in development key; set a real key before storing patient data", "reason", err.Error())
		key = insecureDevKey
	}
	return &Codec{key: key}, nil
}

func decodeKey(hexKey string) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, errors.New("encryption key is not configured")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt encrypts plaintext and returns the serialized encrypted value.
// A fresh IV is generated on every call, so encrypting the same plaintext
// twice yields different outputs.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: generate iv: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return hex.EncodeToString(iv) + separator + hex.EncodeToString(ciphertext), nil
}

// Decrypt returns the plaintext for a well-formed encrypted value and the
// input unchanged otherwise. It never fails.
func (c *Codec) Decrypt(value string) string {
	plaintext, err := c.decode(value)
	if err != nil {
		return value
	}
	return plaintext
}

// TryDecrypt is Decrypt with the passthrough branch made explicit:
// decrypted reports whether value was actually a ciphertext under the
// codec's key.
func (c *Codec) TryDecrypt(value string) (plaintext string, decrypted bool) {
	plaintext, err := c.decode(value)
	if err != nil {
		return value, false
	}
	return plaintext, true
}

func (c *Codec) decode(value string) (string, error) {
	ivHex, ctHex, found := strings.Cut(value, separator)
	if !found {
		return "", errMalformed
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", errMalformed
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errMalformed
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errMalformed
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errMalformed
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errMalformed
		}
	}
	return data[:len(data)-n], nil
}
