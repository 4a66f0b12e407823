package auth

import (
	"errors"
	"fmt"
)

// Business errors returned by Service. Callers test them with errors.Is.
var (
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidField        = errors.New("invalid field")
	ErrUsernameTaken       = errors.New("username already registered")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrAccountNotFound     = errors.New("account not found")
	ErrEmailDeliveryFailed = errors.New("failed to deliver reset email")
	ErrStoreUnavailable    = errors.New("account store unavailable")
	ErrResetTokenConsumed  = errors.New("reset token already used")
)

// FieldError связывает ошибку валидации с именем поля запроса
type FieldError struct {
	// Err is ErrMissingField or ErrInvalidField
	Err error
	// Cause is the validation detail, nil for missing fields
	Cause error
	Field string
}

func (e *FieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Field, e.Err, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func missingField(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

func invalidField(field string, cause error) error {
	return &FieldError{Field: field, Err: ErrInvalidField, Cause: cause}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
