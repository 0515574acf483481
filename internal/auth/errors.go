package auth

import "errors"

var (
	ErrUnauthorized     = errors.New("auth: unauthorized")
	ErrForbidden        = errors.New("auth: forbidden")
	ErrNotFound         = errors.New("auth: not found")
	ErrConflict         = errors.New("auth: conflict")
	ErrInvalidOperation = errors.New("auth: invalid operation")
	ErrInvalidInput     = errors.New("auth: invalid input")
)

// ErrInvalidToken covers both tampered and expired tokens; callers must not
// be able to distinguish the two.
var ErrInvalidToken = errors.New("auth: invalid or expired token")
