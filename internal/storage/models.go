package storage

// Chunk is one window of a study resource with its embedding and provenance.
// The JSON field names are the persisted index format.
type Chunk struct {
	ID         string    `json:"id"`                  // "chunk-<ord>"
	Text       string    `json:"text"`                // Trimmed, never empty
	Embedding  []float32 `json:"embedding"`           // Same length for every chunk in an index
	SourceName string    `json:"sourceName"`          // Resource file name the text came from
	SourceURL  string    `json:"sourceUrl,omitempty"` // Link to the resource, when it has one
	Ord        int       `json:"ord"`                 // Global emission order within the topic, from 0
}

// Index is the ordered chunk set of one subject/topic pair.
type Index struct {
	Path   string
	Chunks []Chunk
}

// Dimension returns the embedding length of the index, or 0 when it is empty.
func (idx *Index) Dimension() int {
	if idx == nil || len(idx.Chunks) == 0 {
		return 0
	}
	return len(idx.Chunks[0].Embedding)
}

// ScoredChunk pairs a chunk with its similarity score from a ranking step.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// CollectionName is the Qdrant collection that mirrors persisted indices.
const CollectionName = "study_chunks"

// VectorName is the named vector used for chunk embeddings in Qdrant.
const VectorName = "content"
