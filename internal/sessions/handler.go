package sessions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heritagehub/backend/internal/middleware"
	"github.com/heritagehub/backend/internal/models"
	"github.com/heritagehub/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Title           string  `json:"title" binding:"required"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	ScheduledAt     string  `json:"scheduled_at" binding:"required"`
	DurationMinutes int     `json:"duration_minutes" binding:"required"`
	MaxParticipants int     `json:"max_participants" binding:"required"`
	RelatedCourse   *string `json:"related_course"`
	RelatedMuseum   *string `json:"related_museum"`
}

// StartRequest is the body for POST /sessions/:id/start.
type StartRequest struct {
	MeetingLink string `json:"meeting_link"`
}

// EndRequest is the body for POST /sessions/:id/end.
type EndRequest struct {
	RecordingURL string `json:"recording_url"`
}

// FeedbackRequest is the body for POST /sessions/:id/feedback.
type FeedbackRequest struct {
	// No required tag: rating 0 must reach the model's range check, not die
	// at binding.
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
		Role: c.GetString(middleware.ContextUserRole),
	}
}

// writeError maps domain errors onto the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrNotRegistered):
		response.NotFound(c, err.Error())
	case errors.Is(err, models.ErrInvalidSchedule),
		errors.Is(err, models.ErrInvalidDuration),
		errors.Is(err, models.ErrInvalidCapacity),
		errors.Is(err, models.ErrInvalidRating):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrSessionFull),
		errors.Is(err, models.ErrAlreadyRegistered),
		errors.Is(err, models.ErrRegistrationClosed),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrSessionLive),
		errors.Is(err, models.ErrHasAttendees),
		errors.Is(err, models.ErrSessionNotCompleted),
		errors.Is(err, models.ErrNotAnAttendee):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	default:
		h.logger.Error("session operation failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// Create handles POST /sessions (instructor or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_at")
		return
	}
	relatedCourse, ok := parseOptionalID(req.RelatedCourse)
	if !ok {
		response.BadRequest(c, "invalid related_course")
		return
	}
	relatedMuseum, ok := parseOptionalID(req.RelatedMuseum)
	if !ok {
		response.BadRequest(c, "invalid related_museum")
		return
	}

	s, err := h.svc.Create(c.Request.Context(), actorFrom(c), CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: req.MaxParticipants,
		RelatedCourse:   relatedCourse,
		RelatedMuseum:   relatedMuseum,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, s)
}

func parseOptionalID(s *string) (*uuid.UUID, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// List handles GET /sessions with status/category/time filters and pagination.
func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Status:   models.SessionStatus(c.Query("status")),
		Category: c.Query("category"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "invalid from")
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "invalid to")
			return
		}
		f.To = &t
	}
	var pagination struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&pagination); err != nil {
		response.BadRequest(c, "invalid pagination")
		return
	}
	f.Limit = pagination.Limit
	f.Offset = pagination.Offset

	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

// Register handles POST /sessions/:id/register.
func (h *Handler) Register(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.svc.Register(c.Request.Context(), id, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Unregister handles DELETE /sessions/:id/register.
func (h *Handler) Unregister(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.svc.Unregister(c.Request.Context(), id, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request")
		return
	}
	s, err := h.svc.Start(c.Request.Context(), actorFrom(c), id, req.MeetingLink)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req EndRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request")
		return
	}
	s, err := h.svc.End(c.Request.Context(), actorFrom(c), id, req.RecordingURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Cancel handles POST /sessions/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.svc.Cancel(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Delete handles DELETE /sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// SubmitFeedback handles POST /sessions/:id/feedback.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	avg, err := h.svc.SubmitFeedback(c.Request.Context(), id, userID, req.Rating, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": id, "average_rating": avg})
}

// Attendance handles GET /sessions/:id/attendance (instructor or admin):
// the participant roster with registration/join/leave timestamps.
func (h *Handler) Attendance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{
		"session_id":   s.ID,
		"status":       s.Status,
		"participants": s.Participants,
	})
}

// AudienceCounter reports how many clients are currently connected to a
// session's realtime room.
type AudienceCounter interface {
	AudienceCount(sessionID uuid.UUID) int
}

// Audience returns a handler for GET /sessions/:id/audience backed by the
// realtime hub.
func (h *Handler) Audience(counter AudienceCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid session id")
			return
		}
		response.OK(c, gin.H{"session_id": id, "count": counter.AudienceCount(id)})
	}
}
