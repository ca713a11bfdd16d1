package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/heritagehub/backend/internal/models"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status   models.SessionStatus
	Category string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// DefaultPageSize bounds List when the caller does not pass a limit.
const DefaultPageSize = 50

// Store is the session record store. It exclusively owns the persisted
// Session aggregate: every mutation goes through Update or Delete, which give
// the callback exclusive access to a single session's record. Operations on
// different session ids never block each other.
type Store interface {
	// Create persists a new session and fills in server-side fields (id,
	// created/updated timestamps).
	Create(ctx context.Context, s *models.Session) error

	// Get returns a copy of the session or models.ErrSessionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)

	// List returns sessions matching the filter, newest schedule first.
	List(ctx context.Context, f Filter) ([]models.Session, error)

	// Update loads the session under exclusive access, applies mutate and
	// persists the result as a single conditional write. When mutate returns
	// an error nothing is written and the error is returned unchanged, so a
	// failed operation leaves no partial state visible to other callers.
	Update(ctx context.Context, id uuid.UUID, mutate func(s *models.Session) error) (*models.Session, error)

	// Delete removes the session after guard approves it, under the same
	// exclusive access as Update.
	Delete(ctx context.Context, id uuid.UUID, guard func(s *models.Session) error) error
}
