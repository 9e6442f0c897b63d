package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound = errors.New("domain: not found")
	// ErrInvalidInput marks caller mistakes. Handlers map it to 400.
	ErrInvalidInput = errors.New("domain: invalid input")
)
