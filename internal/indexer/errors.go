package indexer

import "errors"

var (
	// ErrValidation reports a request missing subject, topic or resources.
	ErrValidation = errors.New("missing required fields")

	// ErrNoContent reports that no resource produced an indexable chunk.
	ErrNoContent = errors.New("no content could be processed from the provided resources")
)
