package storage

import (
	"fmt"

	"github.com/bull/study-rag-server/internal/slug"
)

// IndexPath returns the object key for a subject/topic index. It is a pure
// function of the display names, so re-indexing a topic overwrites the same key.
func IndexPath(subjectName, topicName string) (string, error) {
	subject := slug.Make(subjectName)
	topic := slug.Make(topicName)
	if subject == "" || topic == "" {
		return "", fmt.Errorf("cannot derive index path from %q / %q", subjectName, topicName)
	}
	return fmt.Sprintf("indices/%s/%s.json", subject, topic), nil
}
