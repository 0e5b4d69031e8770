package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. It is the only
	// verification error ever surfaced to callers; whether the email was
	// unknown or the password wrong stays internal.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionInvalid indicates an unknown, expired or invalidated session token.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrDuplicateEmail occurs when a user with the same email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
)
