package rag

import "errors"

var (
	// ErrValidation means a required request field is missing.
	ErrValidation = errors.New("missing required fields")

	// ErrNotConfigured means the component needed by an operation was not wired.
	ErrNotConfigured = errors.New("service not configured")
)
