package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app inbox entry produced by the notification worker
// when a session lifecycle event fans out to its participants.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	SessionID uuid.UUID  `json:"session_id"`
	Event     string     `json:"event"` // session_live, session_cancelled, feedback_requested
	Title     string     `json:"title"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
