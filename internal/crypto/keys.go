package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// SaltSize - размер соли пароля в байтах
	SaltSize = 16
	// SecretSize - размер генерируемого секрета подписи токенов в байтах
	SecretSize = 32
)

// GenerateSalt генерирует криптографически случайную соль
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateSecret returns a random signing secret encoded as base64 (std, padded).
// The encoded string is what gets stored in token.secret / token.secret_file.
func GenerateSecret() (string, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}
