package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStorage mirrors persisted indices into a Qdrant collection so they can
// be ranked server-side. Every point carries the index path it belongs to.
type QdrantStorage struct {
	client  *qdrant.Client
	host    string
	port    int
	timeout time.Duration
}

// DefaultQdrantTimeout bounds a single Qdrant call.
const DefaultQdrantTimeout = 10 * time.Second

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
// timeout bounds every later call; zero means DefaultQdrantTimeout.
func NewQdrantStorage(host string, port int, timeout time.Duration) (*QdrantStorage, error) {
	if timeout <= 0 {
		timeout = DefaultQdrantTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:  client,
		host:    host,
		port:    port,
		timeout: timeout,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newRetryBackOff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the chunk collection with cosine distance and a
// keyword index on "index_path" if it does not exist yet. An existing
// collection must hold vectors of the same dimension.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}

	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, CollectionName)
		if err != nil {
			return fmt.Errorf("failed to get collection info: %w", err)
		}
		return checkVectorSize(info, dimension)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Without this index every filtered query scans the whole collection.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      "index_path",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field index_path: %w", err)
	}

	return nil
}

// checkVectorSize fails when the collection's named vector was created for a
// different embedding dimension, e.g. after switching embedding backends.
func checkVectorSize(info *qdrant.CollectionInfo, dimension int) error {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[VectorName]
	if params == nil {
		return fmt.Errorf("%w: collection %s has no %q vector", ErrDimensionMismatch, CollectionName, VectorName)
	}
	if size := params.GetSize(); size != uint64(dimension) {
		return fmt.Errorf("%w: collection %s stores %d dimensions, index has %d",
			ErrDimensionMismatch, CollectionName, size, dimension)
	}
	return nil
}

// ReplaceIndex deletes every point of path and upserts chunks in its place,
// matching the overwrite semantics of the blob store.
func (s *QdrantStorage) ReplaceIndex(ctx context.Context, path string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dimension := len(chunks[0].Embedding)
	for i, chunk := range chunks {
		if len(chunk.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), dimension)
		}
	}

	if err := s.clearIndex(ctx, path, dimension); err != nil {
		return err
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, chunk := range chunks[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(pointID(path, chunk.ID)),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					VectorName: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"index_path":  path,
					"chunk_id":    chunk.ID,
					"text":        chunk.Text,
					"source_name": chunk.SourceName,
					"source_url":  chunk.SourceURL,
					"ord":         chunk.Ord,
				}),
			})
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// clearIndex makes sure the collection exists and removes the points of path.
func (s *QdrantStorage) clearIndex(ctx context.Context, path string, dimension int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.EnsureCollection(ctx, dimension); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("index_path", path)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", path, err)
	}
	return nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
// Each attempt gets its own timeout.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		_, err := s.client.Upsert(attemptCtx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(newRetryBackOff(), ctx))
}

// SearchChunks returns the limit chunks of path closest to embedding,
// ordered by score descending.
func (s *QdrantStorage) SearchChunks(ctx context.Context, path string, embedding []float32, limit int) ([]ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vectorName := VectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("index_path", path)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, ScoredChunk{
			Chunk: Chunk{
				ID:         payload["chunk_id"].GetStringValue(),
				Text:       payload["text"].GetStringValue(),
				SourceName: payload["source_name"].GetStringValue(),
				SourceURL:  payload["source_url"].GetStringValue(),
				Ord:        int(payload["ord"].GetIntegerValue()),
			},
			Score: float64(result.Score),
		})
	}

	return scored, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID derives a stable point UUID so re-mirroring a topic reuses IDs.
func pointID(path, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(path+"#"+chunkID)).String()
}
