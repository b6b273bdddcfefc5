package httpapi

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Qdrant    string `json:"qdrant,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The blob store and Qdrant storage implement this via their Health() methods.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// The index store is required; Qdrant is optional and only degrades status.
func NewHealthHandler(store, qdrant HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Store:     "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		if store == nil || store.Health(ctx) != nil {
			response.Status = "unhealthy"
			response.Store = "disconnected"
			status = http.StatusServiceUnavailable
		}

		if qdrant != nil {
			if err := qdrant.Health(ctx); err != nil {
				response.Qdrant = "disconnected"
				if status == http.StatusOK {
					response.Status = "degraded" // search falls back to in-process ranking
				}
			} else {
				response.Qdrant = "connected"
			}
		}

		writeJSON(w, status, response)
	}
}
