package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Параметры PBKDF2 для хеширования паролей
const (
	// PBKDF2Iterations - количество итераций HMAC-SHA256
	PBKDF2Iterations = 100_000
	// PBKDF2KeyLen - длина производного ключа в байтах
	PBKDF2KeyLen = 32
	// DigestSeparator разделяет соль и хеш в digest
	DigestSeparator = "$"
)

// PasswordHasher provides one-way salted password digests.
type PasswordHasher interface {
	// Hash returns hex(salt) + "$" + hex(key) for a fresh random salt.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest.
	// A malformed digest never matches.
	Verify(password, digest string) bool
}

// PBKDF2Hasher implements PasswordHasher with PBKDF2-HMAC-SHA256.
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher creates a hasher with the default iteration count.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{iterations: PBKDF2Iterations}
}

// Hash хеширует пароль с новой случайной солью
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.iterations, PBKDF2KeyLen, sha256.New)

	return hex.EncodeToString(salt) + DigestSeparator + hex.EncodeToString(key), nil
}

// Verify проверяет пароль против сохраненного digest
// Любая ошибка разбора digest означает несовпадение
func (h *PBKDF2Hasher) Verify(password, digest string) bool {
	salt, stored, ok := parseDigest(digest)
	if !ok {
		return false
	}

	computed := pbkdf2.Key([]byte(password), salt, h.iterations, len(stored), sha256.New)

	return subtle.ConstantTimeCompare(computed, stored) == 1
}

// parseDigest разбирает digest формата hex(salt)$hex(key)
func parseDigest(digest string) (salt, key []byte, ok bool) {
	parts := strings.Split(digest, DigestSeparator)
	if len(parts) != 2 {
		return nil, nil, false
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) < SaltSize {
		return nil, nil, false
	}

	key, err = hex.DecodeString(parts[1])
	if err != nil || len(key) != PBKDF2KeyLen {
		return nil, nil, false
	}

	return salt, key, true
}
