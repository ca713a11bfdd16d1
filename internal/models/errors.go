package models

import "errors"

// Domain errors returned by Session aggregate operations. Handlers map these
// onto HTTP status codes; none of them is fatal to the system.
var (
	// Validation errors (rejected before any mutation).
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")
	ErrInvalidDuration = errors.New("duration must be between 15 and 300 minutes")
	ErrInvalidCapacity = errors.New("max participants must be between 1 and 1000")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")

	// State-conflict errors (recoverable by the caller).
	ErrSessionFull         = errors.New("session is full")
	ErrAlreadyRegistered   = errors.New("user is already registered for this session")
	ErrRegistrationClosed  = errors.New("registration is closed for this session")
	ErrInvalidTransition   = errors.New("illegal session status transition")
	ErrSessionLive         = errors.New("session is live and cannot be deleted")
	ErrHasAttendees        = errors.New("completed session with participants cannot be deleted")
	ErrSessionNotCompleted = errors.New("session is not completed")
	ErrNotAnAttendee       = errors.New("user did not attend this session")

	// Not-found errors.
	ErrSessionNotFound = errors.New("session not found")
	ErrNotRegistered   = errors.New("user is not registered for this session")
)
