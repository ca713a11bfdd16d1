// Package sessions implements the live session lifecycle: capacity-gated
// registration, the scheduled/live/completed/cancelled state machine,
// attendance tracking and feedback aggregation. All mutations of a session
// record go through the store's per-session conditional-write contract.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heritagehub/backend/internal/catalog"
	"github.com/heritagehub/backend/internal/models"
	"github.com/heritagehub/backend/pkg/queue"
)

// Roles recognized by instructor-driven operations. Role values come from the
// external identity service via JWT claims; the service only compares them.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
)

// ErrForbidden is returned when the actor may not perform an operation.
var ErrForbidden = errors.New("operation not allowed for this user")

// Actor identifies the caller of an operation, as authenticated by the
// external identity provider.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Notifier enqueues session event fan-out jobs for the background worker.
type Notifier interface {
	EnqueueSessionEvent(ctx context.Context, payload queue.SessionEventPayload) error
}

// Broadcaster pushes a lifecycle event to clients connected to a session's
// realtime room.
type Broadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

// Realtime event names pushed to connected clients on lifecycle transitions.
const (
	EventSessionLive      = "session_live"
	EventSessionCompleted = "session_completed"
	EventSessionCancelled = "session_cancelled"
	EventFeedbackRequest  = "feedback_requested"
)

// Service exposes every session operation independent of transport. Handlers
// and the realtime hub are thin adapters over it.
type Service struct {
	store       Store
	catalog     catalog.Resolver
	notifier    Notifier
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates the session service. notifier and broadcaster may be nil
// (fan-out and realtime push are then skipped).
func NewService(store Store, resolver catalog.Resolver, notifier Notifier, broadcaster Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = catalog.NoopResolver{}
	}
	return &Service{
		store:       store,
		catalog:     resolver,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateInput carries the fields for a new session.
type CreateInput struct {
	Title           string
	Description     string
	Category        string
	ScheduledAt     time.Time
	DurationMinutes int
	MaxParticipants int
	RelatedCourse   *uuid.UUID
	RelatedMuseum   *uuid.UUID
}

// Create validates the input and persists a new scheduled session owned by
// the acting instructor. Catalog references are checked best-effort: an
// unreachable catalog never blocks creation.
func (svc *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*models.Session, error) {
	if actor.Role != RoleInstructor && actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	s, err := models.NewSession(in.Title, in.Description, in.Category, actor.ID,
		in.ScheduledAt, in.DurationMinutes, in.MaxParticipants, svc.now())
	if err != nil {
		return nil, err
	}
	s.RelatedCourse = in.RelatedCourse
	s.RelatedMuseum = in.RelatedMuseum
	svc.checkReference(ctx, "course", in.RelatedCourse, svc.catalog.CourseExists)
	svc.checkReference(ctx, "museum", in.RelatedMuseum, svc.catalog.MuseumExists)

	if err := svc.store.Create(ctx, s); err != nil {
		return nil, err
	}
	svc.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("instructor_id", actor.ID.String()),
		zap.Time("scheduled_at", s.ScheduledAt))
	return s, nil
}

func (svc *Service) checkReference(ctx context.Context, kind string, id *uuid.UUID, exists func(context.Context, uuid.UUID) (bool, error)) {
	if id == nil {
		return
	}
	ok, err := exists(ctx, *id)
	if err != nil {
		svc.logger.Warn("catalog lookup failed", zap.String("kind", kind), zap.String("id", id.String()), zap.Error(err))
		return
	}
	if !ok {
		svc.logger.Warn("unknown catalog reference", zap.String("kind", kind), zap.String("id", id.String()))
	}
}

// Get returns one session.
func (svc *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return svc.store.Get(ctx, id)
}

// List returns sessions matching the filter.
func (svc *Service) List(ctx context.Context, f Filter) ([]models.Session, error) {
	return svc.store.List(ctx, f)
}

// Register adds the user as a participant. The capacity check and the append
// happen under the store's per-session exclusive access, so two concurrent
// calls can never both take the last seat.
func (svc *Service) Register(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	return svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		return s.Register(userID, svc.now())
	})
}

// Unregister removes the user's participant entry; idempotent.
func (svc *Service) Unregister(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	return svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		s.Unregister(userID)
		return nil
	})
}

// Start moves the session to live and notifies its registrants.
func (svc *Service) Start(ctx context.Context, actor Actor, sessionID uuid.UUID, meetingLink string) (*models.Session, error) {
	s, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		if err := svc.authorize(actor, s); err != nil {
			return err
		}
		return s.Start(meetingLink, svc.now())
	})
	if err != nil {
		return nil, err
	}
	svc.fanOut(ctx, s, EventSessionLive, s.RegisteredUserIDs())
	svc.broadcast(s.ID, EventSessionLive, map[string]string{"meeting_link": s.MeetingLink})
	svc.logger.Info("session started", zap.String("session_id", s.ID.String()))
	return s, nil
}

// End moves the session to completed, finalizing attendance, and asks every
// attendee for feedback.
func (svc *Service) End(ctx context.Context, actor Actor, sessionID uuid.UUID, recordingURL string) (*models.Session, error) {
	s, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		if err := svc.authorize(actor, s); err != nil {
			return err
		}
		return s.End(recordingURL, svc.now())
	})
	if err != nil {
		return nil, err
	}
	var attendees []uuid.UUID
	for _, p := range s.Participants {
		if p.Status == models.ParticipantAttended {
			attendees = append(attendees, p.UserID)
		}
	}
	svc.fanOut(ctx, s, EventFeedbackRequest, attendees)
	svc.broadcast(s.ID, EventSessionCompleted, map[string]string{"recording_url": s.RecordingURL})
	svc.logger.Info("session ended",
		zap.String("session_id", s.ID.String()),
		zap.Int("attendees", len(attendees)))
	return s, nil
}

// Cancel moves a scheduled session to cancelled and notifies its registrants.
func (svc *Service) Cancel(ctx context.Context, actor Actor, sessionID uuid.UUID) (*models.Session, error) {
	s, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		if err := svc.authorize(actor, s); err != nil {
			return err
		}
		return s.Cancel(svc.now())
	})
	if err != nil {
		return nil, err
	}
	svc.fanOut(ctx, s, EventSessionCancelled, s.RegisteredUserIDs())
	svc.broadcast(s.ID, EventSessionCancelled, nil)
	svc.logger.Info("session cancelled", zap.String("session_id", s.ID.String()))
	return s, nil
}

// Delete removes a session subject to the deletion guard: never while live,
// never for a completed session that still has participants.
func (svc *Service) Delete(ctx context.Context, actor Actor, sessionID uuid.UUID) error {
	return svc.store.Delete(ctx, sessionID, func(s *models.Session) error {
		if err := svc.authorize(actor, s); err != nil {
			return err
		}
		return s.EnsureDeletable()
	})
}

// MarkJoined records a participant's live join (driven by the realtime hub).
func (svc *Service) MarkJoined(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		return s.MarkJoined(userID, svc.now())
	})
	return err
}

// MarkLeft closes a participant's attendance window (driven by the hub).
func (svc *Service) MarkLeft(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		return s.MarkLeft(userID, svc.now())
	})
	return err
}

// SubmitFeedback upserts the attendee's rating and returns the recomputed
// average. Last writer wins for the same (session, user) pair.
func (svc *Service) SubmitFeedback(ctx context.Context, sessionID, userID uuid.UUID, rating int, comment string) (float64, error) {
	s, err := svc.store.Update(ctx, sessionID, func(s *models.Session) error {
		return s.SubmitFeedback(userID, rating, comment, svc.now())
	})
	if err != nil {
		return 0, err
	}
	return s.AverageRating, nil
}

// authorize allows the session's instructor and admins to drive the
// lifecycle. The role travels with the actor rather than being re-queried
// from identity state.
func (svc *Service) authorize(actor Actor, s *models.Session) error {
	if actor.Role == RoleAdmin || actor.ID == s.InstructorID {
		return nil
	}
	return ErrForbidden
}

func (svc *Service) fanOut(ctx context.Context, s *models.Session, event string, recipients []uuid.UUID) {
	if svc.notifier == nil || len(recipients) == 0 {
		return
	}
	err := svc.notifier.EnqueueSessionEvent(ctx, queue.SessionEventPayload{
		SessionID:  s.ID,
		Event:      event,
		Title:      s.Title,
		Recipients: recipients,
	})
	if err != nil {
		svc.logger.Error("enqueue session event failed",
			zap.String("session_id", s.ID.String()),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (svc *Service) broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	if svc.broadcaster == nil {
		return
	}
	svc.broadcaster.BroadcastToSessionAndPublish(sessionID, event, payload)
}
