package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrIndexNotFound     = errors.New("index not found")
	ErrWrite             = errors.New("index write failed")
)
