package models

import "time"

// Account представляет учетную запись пользователя сервиса скоринга
type Account struct {
	CreatedAt      time.Time `json:"created_at"`      // время регистрации
	UpdatedAt      time.Time `json:"updated_at"`      // время последнего изменения
	ID             string    `json:"id"`              // UUID аккаунта
	Username       string    `json:"username"`        // уникальный username, не меняется
	Email          string    `json:"email"`           // уникальный email для сброса пароля
	PasswordDigest string    `json:"password_digest"` // hex(salt)$hex(pbkdf2)
	IsActive       bool      `json:"is_active"`       // неактивный аккаунт не может получить токен
}

// Clone returns a copy that does not share state with the receiver.
// In-memory account stores use it so callers never hold a reference to a stored record.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
