package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateID  = errors.New("id already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// Failure classes. Storage backends wrap every error they return in exactly
// one of these, alongside the underlying cause.
var (
	ErrConnection = errors.New("connection error")
	ErrRead       = errors.New("read error")
	ErrWrite      = errors.New("write error")
)
