package common

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecryptFailed = errors.New("could not decrypt secret")

func CalculateHash(key string, inputs ...interface{}) string {
	if len(inputs) == 0 {
		return ""
	}
	h := hmac.New(sha256.New, []byte(key))
	for _, val := range inputs {
		switch v := val.(type) {
		case []byte:
			h.Write(v)
		default:
			h.Write([]byte(fmt.Sprintf("%v", v)))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EqualHash compares two hex digests in constant time.
func EqualHash(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

func GenerateSecret(n int) (string, error) {
	// each 3 bytes → 4 Base64 chars
	rawSize := (n*3 + 3) / 4
	raw := make([]byte, rawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return secret[:n], nil
}

// SecretBox seals small secrets at rest with a key derived from the master key.
type SecretBox struct {
	key [32]byte
}

func NewSecretBox(masterKey string) *SecretBox {
	return &SecretBox{key: sha256.Sum256([]byte("secretbox:" + masterKey))}
}

// Seal returns base64(nonce || ciphertext).
func (b *SecretBox) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (b *SecretBox) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrDecryptFailed
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
