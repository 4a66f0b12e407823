package token

import "errors"

var (
	// ErrMalformed is returned when the token cannot be parsed or lacks required claims.
	ErrMalformed = errors.New("token is malformed")
	// ErrBadSignature is returned when the signature does not verify under the current secret
	// or the token is signed with an algorithm other than HS256.
	ErrBadSignature = errors.New("token signature is invalid")
	// ErrExpired is returned when the token expiry is not in the future.
	ErrExpired = errors.New("token is expired")
	// ErrPurposeMismatch is returned when a token minted for one purpose is presented for another.
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	// ErrWeakSecret is returned when the signing secret is shorter than MinSecretLength.
	ErrWeakSecret = errors.New("signing secret is too short")
)
