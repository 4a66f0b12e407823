package validation

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// UsernamePattern определяет допустимый формат username
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 3-32 символа
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 32

	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 5
	// MaxPasswordLen ограничивает стоимость KDF для очень длинных паролей
	MaxPasswordLen = 256

	// MaxEmailLen максимальная длина email (RFC 5321)
	MaxEmailLen = 254
)

// ValidateUsername проверяет, что username соответствует требованиям
// Формат: только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 3-32 символа
func ValidateUsername(username string) error {
	return validation.Validate(username,
		validation.Required.Error("username cannot be empty"),
		validation.Length(MinUsernameLen, MaxUsernameLen),
		validation.Match(UsernamePattern).
			Error("username can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)"),
	)
}

// ValidateEmail проверяет синтаксис email адреса
func ValidateEmail(email string) error {
	return validation.Validate(email,
		validation.Required.Error("email cannot be empty"),
		validation.Length(3, MaxEmailLen),
		is.Email,
	)
}

// ValidatePassword проверяет минимальные требования к паролю
// Минимум 5 символов
func ValidatePassword(password string) error {
	return validation.Validate(password,
		validation.Required.Error("password cannot be empty"),
		validation.Length(MinPasswordLen, MaxPasswordLen),
	)
}
