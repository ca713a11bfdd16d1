// Package catalog talks to the course/museum catalog service. The catalog is
// an external collaborator: sessions only hold references by id, and the
// checks here are best-effort.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver answers whether catalog references exist.
type Resolver interface {
	CourseExists(ctx context.Context, id uuid.UUID) (bool, error)
	MuseumExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// HTTPResolver resolves references against the catalog service's REST API.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPResolver creates a resolver for the catalog service at baseURL.
func NewHTTPResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (r *HTTPResolver) CourseExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "courses", id)
}

func (r *HTTPResolver) MuseumExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "museums", id)
}

func (r *HTTPResolver) exists(ctx context.Context, kind string, id uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/%s/%s", r.baseURL, kind, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("catalog lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("catalog lookup status: %d", resp.StatusCode)
	}
}

// NoopResolver treats every reference as existing. Used when no catalog
// service is configured, and in tests.
type NoopResolver struct{}

func (NoopResolver) CourseExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (NoopResolver) MuseumExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
