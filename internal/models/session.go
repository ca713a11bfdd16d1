package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// legalTransitions is the full edge set of the lifecycle state machine.
// completed and cancelled are terminal.
var legalTransitions = map[SessionStatus][]SessionStatus{
	StatusScheduled: {StatusLive, StatusCancelled},
	StatusLive:      {StatusCompleted},
}

// CanTransitionTo reports whether s -> next is a legal lifecycle edge.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s SessionStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// ParticipantStatus is the attendance state of a registered participant.
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantAttended   ParticipantStatus = "attended"
	ParticipantAbsent     ParticipantStatus = "absent"
)

// Participant is one user's registration record for a session.
// JoinedAt/LeftAt bound the live attendance window; RegisteredAt is the
// registration instant.
type Participant struct {
	UserID       uuid.UUID         `json:"user_id"`
	RegisteredAt time.Time         `json:"registered_at"`
	JoinedAt     *time.Time        `json:"joined_at,omitempty"`
	LeftAt       *time.Time        `json:"left_at,omitempty"`
	Status       ParticipantStatus `json:"status"`
}

// Feedback is a post-session rating and comment from one attendee.
type Feedback struct {
	UserID      uuid.UUID `json:"user_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Session is the aggregate root for a scheduled, capacity-bounded live event.
// Participants and feedback are owned by value and mutated only through the
// aggregate's methods, so the capacity and uniqueness invariants are enforced
// in one place. Callers obtain exclusive access via the store's Update
// contract before invoking any mutating method.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	InstructorID    uuid.UUID     `json:"instructor_id"`
	RelatedCourse   *uuid.UUID    `json:"related_course,omitempty"`
	RelatedMuseum   *uuid.UUID    `json:"related_museum,omitempty"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes"`
	MaxParticipants int           `json:"max_participants"`
	Status          SessionStatus `json:"status"`
	MeetingLink     string        `json:"meeting_link,omitempty"`
	RecordingURL    string        `json:"recording_url,omitempty"`
	Participants    []Participant `json:"participants"`
	Feedback        []Feedback    `json:"feedback"`
	AverageRating   float64       `json:"average_rating"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 300
	MinCapacity        = 1
	MaxCapacity        = 1000
	MinRating          = 1
	MaxRating          = 5
)

// NewSession validates the creation inputs and returns a session in the
// scheduled state. scheduledAt must be strictly after now.
func NewSession(title, description, category string, instructorID uuid.UUID, scheduledAt time.Time, durationMinutes, maxParticipants int, now time.Time) (*Session, error) {
	if !scheduledAt.After(now) {
		return nil, ErrInvalidSchedule
	}
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return nil, ErrInvalidDuration
	}
	if maxParticipants < MinCapacity || maxParticipants > MaxCapacity {
		return nil, ErrInvalidCapacity
	}
	return &Session{
		Title:           title,
		Description:     description,
		Category:        category,
		InstructorID:    instructorID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		MaxParticipants: maxParticipants,
		Status:          StatusScheduled,
	}, nil
}

// Register appends a participant under the capacity ceiling. Registration is
// open while the session is scheduled or live (walk-ins allowed).
func (s *Session) Register(userID uuid.UUID, now time.Time) error {
	if s.Status != StatusScheduled && s.Status != StatusLive {
		return ErrRegistrationClosed
	}
	if s.findParticipant(userID) != nil {
		return ErrAlreadyRegistered
	}
	if len(s.Participants) >= s.MaxParticipants {
		return ErrSessionFull
	}
	s.Participants = append(s.Participants, Participant{
		UserID:       userID,
		RegisteredAt: now,
		Status:       ParticipantRegistered,
	})
	return nil
}

// Unregister removes the user's participant entry. It is an idempotent no-op
// when the user is not registered, and never touches terminal sessions so
// attendance and feedback of a completed session stay immutable.
func (s *Session) Unregister(userID uuid.UUID) bool {
	if s.Status != StatusScheduled && s.Status != StatusLive {
		return false
	}
	for i, p := range s.Participants {
		if p.UserID == userID {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Start moves scheduled -> live, optionally recording the meeting link.
func (s *Session) Start(meetingLink string, now time.Time) error {
	if !s.Status.CanTransitionTo(StatusLive) {
		return ErrInvalidTransition
	}
	s.Status = StatusLive
	if meetingLink != "" {
		s.MeetingLink = meetingLink
	}
	s.UpdatedAt = now
	return nil
}

// End moves live -> completed, optionally recording the recording URL, and
// finalizes attendance for every participant.
func (s *Session) End(recordingURL string, now time.Time) error {
	if !s.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	s.Status = StatusCompleted
	if recordingURL != "" {
		s.RecordingURL = recordingURL
	}
	s.finalizeAttendance(now)
	s.UpdatedAt = now
	return nil
}

// Cancel moves scheduled -> cancelled.
func (s *Session) Cancel(now time.Time) error {
	if !s.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	s.Status = StatusCancelled
	s.UpdatedAt = now
	return nil
}

// finalizeAttendance reconciles participant states when a session ends:
// anyone who joined becomes attended (with the attendance window closed),
// anyone who registered but never joined becomes absent.
func (s *Session) finalizeAttendance(now time.Time) {
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.JoinedAt != nil {
			p.Status = ParticipantAttended
			if p.LeftAt == nil {
				t := now
				p.LeftAt = &t
			}
		} else {
			p.Status = ParticipantAbsent
		}
	}
}

// MarkJoined records the participant's live join instant. Idempotent: a
// second join while the session is live keeps the original timestamp. A
// rejoin after leaving clears LeftAt so the participant reads as present.
// No-op when the session is not live.
func (s *Session) MarkJoined(userID uuid.UUID, now time.Time) error {
	if s.Status != StatusLive {
		return nil
	}
	p := s.findParticipant(userID)
	if p == nil {
		return ErrNotRegistered
	}
	if p.JoinedAt == nil {
		t := now
		p.JoinedAt = &t
	}
	p.LeftAt = nil
	return nil
}

// MarkLeft closes the participant's attendance window while the session is
// live. No-op when the session is not live or the participant never joined.
func (s *Session) MarkLeft(userID uuid.UUID, now time.Time) error {
	if s.Status != StatusLive {
		return nil
	}
	p := s.findParticipant(userID)
	if p == nil {
		return ErrNotRegistered
	}
	if p.JoinedAt != nil && p.LeftAt == nil {
		t := now
		p.LeftAt = &t
	}
	return nil
}

// SubmitFeedback upserts the attendee's rating (one entry per user) and
// recomputes the running average. Only attendees of a completed session may
// submit.
func (s *Session) SubmitFeedback(userID uuid.UUID, rating int, comment string, now time.Time) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	if s.Status != StatusCompleted {
		return ErrSessionNotCompleted
	}
	p := s.findParticipant(userID)
	if p == nil || p.Status != ParticipantAttended {
		return ErrNotAnAttendee
	}
	entry := Feedback{UserID: userID, Rating: rating, Comment: comment, SubmittedAt: now}
	replaced := false
	for i := range s.Feedback {
		if s.Feedback[i].UserID == userID {
			s.Feedback[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.Feedback = append(s.Feedback, entry)
	}
	s.recomputeAverageRating()
	return nil
}

// recomputeAverageRating keeps AverageRating equal to the mean of all
// ratings, rounded to one decimal place. Zero when there is no feedback.
func (s *Session) recomputeAverageRating() {
	if len(s.Feedback) == 0 {
		s.AverageRating = 0
		return
	}
	sum := 0
	for _, f := range s.Feedback {
		sum += f.Rating
	}
	mean := float64(sum) / float64(len(s.Feedback))
	s.AverageRating = math.Round(mean*10) / 10
}

// EnsureDeletable enforces the deletion guard: a live session is never
// deletable, and a completed session keeps its attendance record as long as
// it has participants.
func (s *Session) EnsureDeletable() error {
	if s.Status == StatusLive {
		return ErrSessionLive
	}
	if s.Status == StatusCompleted && len(s.Participants) > 0 {
		return ErrHasAttendees
	}
	return nil
}

// Attendee reports whether the user attended the session.
func (s *Session) Attendee(userID uuid.UUID) bool {
	p := s.findParticipant(userID)
	return p != nil && p.Status == ParticipantAttended
}

// RegisteredUserIDs returns the user ids of all current participants, in
// registration order.
func (s *Session) RegisteredUserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func (s *Session) findParticipant(userID uuid.UUID) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so no caller holds a
// reference into shared state.
func (s *Session) Clone() *Session {
	cp := *s
	if s.RelatedCourse != nil {
		v := *s.RelatedCourse
		cp.RelatedCourse = &v
	}
	if s.RelatedMuseum != nil {
		v := *s.RelatedMuseum
		cp.RelatedMuseum = &v
	}
	cp.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		cp.Participants[i] = p
		if p.JoinedAt != nil {
			t := *p.JoinedAt
			cp.Participants[i].JoinedAt = &t
		}
		if p.LeftAt != nil {
			t := *p.LeftAt
			cp.Participants[i].LeftAt = &t
		}
	}
	cp.Feedback = make([]Feedback, len(s.Feedback))
	copy(cp.Feedback, s.Feedback)
	return &cp
}
