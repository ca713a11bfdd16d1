package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, capacity int) *Session {
	t.Helper()
	s, err := NewSession("Islamic Calligraphy Basics", "intro workshop", "calligraphy",
		uuid.New(), now.Add(24*time.Hour), 60, capacity, now)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.ID = uuid.New()
	return s
}

func TestNewSessionValidation(t *testing.T) {
	instructor := uuid.New()
	cases := []struct {
		name        string
		scheduledAt time.Time
		duration    int
		capacity    int
		wantErr     error
	}{
		{"valid", now.Add(time.Hour), 60, 10, nil},
		{"past schedule", now.Add(-time.Minute), 60, 10, ErrInvalidSchedule},
		{"schedule equals now", now, 60, 10, ErrInvalidSchedule},
		{"duration too short", now.Add(time.Hour), 14, 10, ErrInvalidDuration},
		{"duration too long", now.Add(time.Hour), 301, 10, ErrInvalidDuration},
		{"duration at min", now.Add(time.Hour), 15, 10, nil},
		{"duration at max", now.Add(time.Hour), 300, 10, nil},
		{"capacity zero", now.Add(time.Hour), 60, 0, ErrInvalidCapacity},
		{"capacity too large", now.Add(time.Hour), 60, 1001, ErrInvalidCapacity},
		{"capacity at max", now.Add(time.Hour), 60, 1000, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSession("t", "d", "c", instructor, tc.scheduledAt, tc.duration, tc.capacity, now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && s.Status != StatusScheduled {
				t.Fatalf("new session status = %s, want scheduled", s.Status)
			}
		})
	}
}

func TestTransitionLegality(t *testing.T) {
	cases := []struct {
		from SessionStatus
		to   SessionStatus
		ok   bool
	}{
		{StatusScheduled, StatusLive, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusLive, StatusCompleted, true},
		{StatusLive, StatusCancelled, false},
		{StatusLive, StatusScheduled, false},
		{StatusCompleted, StatusLive, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusLive, false},
		{StatusCancelled, StatusScheduled, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	if StatusScheduled.Terminal() || StatusLive.Terminal() {
		t.Error("scheduled/live must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("completed/cancelled must be terminal")
	}
}

func TestLifecycleMethods(t *testing.T) {
	s := newTestSession(t, 5)

	if err := s.End("", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("end from scheduled: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.Start("https://meet.example/abc", now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != StatusLive || s.MeetingLink != "https://meet.example/abc" {
		t.Fatalf("after start: status=%s link=%q", s.Status, s.MeetingLink)
	}
	if err := s.Start("", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double start: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel from live: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.End("https://cdn.example/rec.mp4", now); err != nil {
		t.Fatalf("end: %v", err)
	}
	if s.Status != StatusCompleted || s.RecordingURL != "https://cdn.example/rec.mp4" {
		t.Fatalf("after end: status=%s url=%q", s.Status, s.RecordingURL)
	}
	if err := s.Start("", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start from completed: err = %v, want ErrInvalidTransition", err)
	}

	s2 := newTestSession(t, 5)
	if err := s2.Cancel(now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s2.Status != StatusCancelled {
		t.Fatalf("after cancel: status = %s", s2.Status)
	}
	if err := s2.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double cancel: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRegisterCapacityAndUniqueness(t *testing.T) {
	s := newTestSession(t, 2)
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()

	if err := s.Register(u1, now); err != nil {
		t.Fatalf("register u1: %v", err)
	}
	if err := s.Register(u1, now); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("duplicate register: err = %v, want ErrAlreadyRegistered", err)
	}
	if len(s.Participants) != 1 {
		t.Fatalf("participants = %d after duplicate, want 1", len(s.Participants))
	}
	if err := s.Register(u2, now); err != nil {
		t.Fatalf("register u2: %v", err)
	}
	if err := s.Register(u3, now); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("register over capacity: err = %v, want ErrSessionFull", err)
	}
	if len(s.Participants) != 2 {
		t.Fatalf("participants = %d, want capacity 2", len(s.Participants))
	}
	if s.Participants[0].Status != ParticipantRegistered {
		t.Fatalf("participant status = %s, want registered", s.Participants[0].Status)
	}
}

func TestRegistrationWindow(t *testing.T) {
	s := newTestSession(t, 5)
	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}
	// Walk-in registration while live is allowed.
	if err := s.Register(uuid.New(), now); err != nil {
		t.Fatalf("register while live: %v", err)
	}
	if err := s.End("", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(uuid.New(), now); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("register after end: err = %v, want ErrRegistrationClosed", err)
	}

	s2 := newTestSession(t, 5)
	if err := s2.Cancel(now); err != nil {
		t.Fatal(err)
	}
	if err := s2.Register(uuid.New(), now); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("register after cancel: err = %v, want ErrRegistrationClosed", err)
	}
}

func TestUnregister(t *testing.T) {
	s := newTestSession(t, 2)
	u := uuid.New()
	if err := s.Register(u, now); err != nil {
		t.Fatal(err)
	}
	if !s.Unregister(u) {
		t.Fatal("unregister existing participant should report removal")
	}
	if s.Unregister(u) {
		t.Fatal("second unregister must be a no-op")
	}
	if len(s.Participants) != 0 {
		t.Fatalf("participants = %d, want 0", len(s.Participants))
	}
	// Freed seat is reusable.
	if err := s.Register(u, now); err != nil {
		t.Fatalf("re-register after unregister: %v", err)
	}

	// Terminal sessions keep their participant record.
	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}
	if err := s.End("", now); err != nil {
		t.Fatal(err)
	}
	if s.Unregister(u) {
		t.Fatal("unregister on completed session must be a no-op")
	}
	if len(s.Participants) != 1 {
		t.Fatalf("completed session lost its participant record")
	}
}

func TestAttendanceFinalization(t *testing.T) {
	s := newTestSession(t, 5)
	joiner, leaver, noShow := uuid.New(), uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{joiner, leaver, noShow} {
		if err := s.Register(u, now); err != nil {
			t.Fatal(err)
		}
	}

	// Attendance tracking is inert before start.
	if err := s.MarkJoined(joiner, now); err != nil {
		t.Fatalf("markJoined before live: %v", err)
	}
	if s.Participants[0].JoinedAt != nil {
		t.Fatal("markJoined must be a no-op before the session is live")
	}

	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}
	joinAt := now.Add(time.Minute)
	if err := s.MarkJoined(joiner, joinAt); err != nil {
		t.Fatal(err)
	}
	// Idempotent: second join keeps the first timestamp.
	if err := s.MarkJoined(joiner, joinAt.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if got := s.Participants[0].JoinedAt; got == nil || !got.Equal(joinAt) {
		t.Fatalf("joinedAt = %v, want %v", got, joinAt)
	}

	if err := s.MarkJoined(leaver, joinAt); err != nil {
		t.Fatal(err)
	}
	leftAt := joinAt.Add(10 * time.Minute)
	if err := s.MarkLeft(leaver, leftAt); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkJoined(uuid.New(), joinAt); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("markJoined unknown user: err = %v, want ErrNotRegistered", err)
	}

	endAt := now.Add(time.Hour)
	if err := s.End("", endAt); err != nil {
		t.Fatal(err)
	}

	byUser := map[uuid.UUID]Participant{}
	for _, p := range s.Participants {
		byUser[p.UserID] = p
	}
	if p := byUser[joiner]; p.Status != ParticipantAttended || p.LeftAt == nil || !p.LeftAt.Equal(endAt) {
		t.Fatalf("joiner finalized as %+v", p)
	}
	if p := byUser[leaver]; p.Status != ParticipantAttended || p.LeftAt == nil || !p.LeftAt.Equal(leftAt) {
		t.Fatalf("leaver finalized as %+v", p)
	}
	// Policy: a registrant who never joined is marked absent at end.
	if p := byUser[noShow]; p.Status != ParticipantAbsent {
		t.Fatalf("no-show finalized as %s, want absent", p.Status)
	}
}

func TestRejoinAfterLeavingClearsLeftAt(t *testing.T) {
	s := newTestSession(t, 5)
	user := uuid.New()
	if err := s.Register(user, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}

	joinAt := now.Add(time.Minute)
	if err := s.MarkJoined(user, joinAt); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkLeft(user, joinAt.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJoined(user, joinAt.Add(20*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if got := s.Participants[0].LeftAt; got != nil {
		t.Fatalf("leftAt after rejoin = %v, want nil", got)
	}
	// The original join instant survives the rejoin.
	if got := s.Participants[0].JoinedAt; got == nil || !got.Equal(joinAt) {
		t.Fatalf("joinedAt = %v, want %v", got, joinAt)
	}

	endAt := now.Add(time.Hour)
	if err := s.End("", endAt); err != nil {
		t.Fatal(err)
	}
	p := s.Participants[0]
	if p.Status != ParticipantAttended || p.LeftAt == nil || !p.LeftAt.Equal(endAt) {
		t.Fatalf("rejoiner finalized as %+v, want attended until %v", p, endAt)
	}
}

func TestFeedbackGatingAndAverage(t *testing.T) {
	s := newTestSession(t, 5)
	u1, u2, u3, noShow := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{u1, u2, u3, noShow} {
		if err := s.Register(u, now); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SubmitFeedback(u1, 5, "", now); !errors.Is(err, ErrSessionNotCompleted) {
		t.Fatalf("feedback before completion: err = %v, want ErrSessionNotCompleted", err)
	}

	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}
	for _, u := range []uuid.UUID{u1, u2, u3} {
		if err := s.MarkJoined(u, now); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.End("", now); err != nil {
		t.Fatal(err)
	}

	if err := s.SubmitFeedback(noShow, 4, "", now); !errors.Is(err, ErrNotAnAttendee) {
		t.Fatalf("feedback from absent user: err = %v, want ErrNotAnAttendee", err)
	}
	if err := s.SubmitFeedback(uuid.New(), 4, "", now); !errors.Is(err, ErrNotAnAttendee) {
		t.Fatalf("feedback from stranger: err = %v, want ErrNotAnAttendee", err)
	}
	for _, bad := range []int{0, 6, -1} {
		if err := s.SubmitFeedback(u1, bad, "", now); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("rating %d: err = %v, want ErrInvalidRating", bad, err)
		}
	}

	for i, c := range []struct {
		user   uuid.UUID
		rating int
		want   float64
	}{
		{u1, 5, 5.0},
		{u2, 3, 4.0},
		{u3, 4, 4.0},
	} {
		if err := s.SubmitFeedback(c.user, c.rating, "", now); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
		if s.AverageRating != c.want {
			t.Fatalf("after %d ratings: average = %v, want %v", i+1, s.AverageRating, c.want)
		}
	}

	// Resubmission replaces the entry and refreshes the average: mean(1,3,4) = 2.7.
	if err := s.SubmitFeedback(u1, 1, "changed my mind", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(s.Feedback) != 3 {
		t.Fatalf("feedback entries = %d, want 3 after upsert", len(s.Feedback))
	}
	if s.AverageRating != 2.7 {
		t.Fatalf("average = %v, want 2.7", s.AverageRating)
	}
}

func TestDeletionGuard(t *testing.T) {
	s := newTestSession(t, 3)
	if err := s.EnsureDeletable(); err != nil {
		t.Fatalf("scheduled empty session must be deletable: %v", err)
	}

	u := uuid.New()
	if err := s.Register(u, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("", now); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureDeletable(); !errors.Is(err, ErrSessionLive) {
		t.Fatalf("live session delete: err = %v, want ErrSessionLive", err)
	}
	if err := s.End("", now); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureDeletable(); !errors.Is(err, ErrHasAttendees) {
		t.Fatalf("completed session with participants: err = %v, want ErrHasAttendees", err)
	}

	s2 := newTestSession(t, 3)
	if err := s2.Start("", now); err != nil {
		t.Fatal(err)
	}
	if err := s2.End("", now); err != nil {
		t.Fatal(err)
	}
	if err := s2.EnsureDeletable(); err != nil {
		t.Fatalf("completed empty session must be deletable: %v", err)
	}

	s3 := newTestSession(t, 3)
	if err := s3.Register(u, now); err != nil {
		t.Fatal(err)
	}
	if err := s3.Cancel(now); err != nil {
		t.Fatal(err)
	}
	if err := s3.EnsureDeletable(); err != nil {
		t.Fatalf("cancelled session must be deletable: %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	s := newTestSession(t, 3)
	u := uuid.New()
	if err := s.Register(u, now); err != nil {
		t.Fatal(err)
	}
	cp := s.Clone()
	cp.Participants[0].UserID = uuid.New()
	if s.Participants[0].UserID != u {
		t.Fatal("mutating a clone leaked into the original")
	}
	if err := cp.Register(uuid.New(), now); err != nil {
		t.Fatal(err)
	}
	if len(s.Participants) != 1 {
		t.Fatal("appending to a clone grew the original")
	}
}
