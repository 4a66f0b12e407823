package storage

import "errors"

// Common storage errors
var (
	// ErrAccountNotFound indicates that account was not found in storage
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountConflict indicates that an account with the same username or email already exists
	ErrAccountConflict = errors.New("account already exists")

	// ErrTokenConsumed indicates that reset token was already used
	ErrTokenConsumed = errors.New("reset token already consumed")
)
