package session

import "errors"

// Failure kinds surfaced by the session layer and the stores beneath it.
// Handlers map these onto HTTP statuses; everything else is an internal error.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("already exists")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)
