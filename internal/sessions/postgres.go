package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heritagehub/backend/internal/models"
)

const sessionColumns = `id, title, description, category, instructor_id, related_course, related_museum,
	scheduled_at, duration_minutes, max_participants, status, meeting_link, recording_url,
	participants, feedback, average_rating, created_at, updated_at`

// PostgresStore persists sessions in a single row each, with participants and
// feedback embedded as JSONB. Update/Delete take a per-row lock
// (SELECT ... FOR UPDATE) inside one transaction, which serializes concurrent
// writers on the same session id while leaving other sessions untouched.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Create(ctx context.Context, s *models.Session) error {
	participants, feedback, err := marshalEmbedded(s)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (id, title, description, category, instructor_id, related_course, related_museum,
			scheduled_at, duration_minutes, max_participants, status, meeting_link, recording_url, participants, feedback, average_rating)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`
	return p.pool.QueryRow(ctx, q,
		s.Title, s.Description, s.Category, s.InstructorID, s.RelatedCourse, s.RelatedMuseum,
		s.ScheduledAt, s.DurationMinutes, s.MaxParticipants, s.Status, s.MeetingLink, s.RecordingURL,
		participants, feedback, s.AverageRating,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]models.Session, error) {
	var (
		conds []string
		args  []interface{}
	)
	addCond := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.Status != "" {
		addCond("status = $%d", f.Status)
	}
	if f.Category != "" {
		addCond("category = $%d", f.Category)
	}
	if f.From != nil {
		addCond("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		addCond("scheduled_at <= $%d", *f.To)
	}

	q := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, id uuid.UUID, mutate func(s *models.Session) error) (*models.Session, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(s); err != nil {
		return nil, err
	}

	participants, feedback, err := marshalEmbedded(s)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE sessions
		SET status = $2, meeting_link = $3, recording_url = $4, participants = $5, feedback = $6,
			average_rating = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	if err := tx.QueryRow(ctx, q, s.ID, s.Status, s.MeetingLink, s.RecordingURL,
		participants, feedback, s.AverageRating).Scan(&s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id uuid.UUID, guard func(s *models.Session) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSession(row)
	if err != nil {
		return err
	}
	if err := guard(s); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit(ctx)
}

func marshalEmbedded(s *models.Session) (participants, feedback []byte, err error) {
	if s.Participants == nil {
		s.Participants = []models.Participant{}
	}
	if s.Feedback == nil {
		s.Feedback = []models.Feedback{}
	}
	participants, err = json.Marshal(s.Participants)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal participants: %w", err)
	}
	feedback, err = json.Marshal(s.Feedback)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal feedback: %w", err)
	}
	return participants, feedback, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s            models.Session
		participants []byte
		feedback     []byte
	)
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Category, &s.InstructorID, &s.RelatedCourse, &s.RelatedMuseum,
		&s.ScheduledAt, &s.DurationMinutes, &s.MaxParticipants, &s.Status, &s.MeetingLink, &s.RecordingURL,
		&participants, &feedback, &s.AverageRating, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	if err := json.Unmarshal(feedback, &s.Feedback); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	return &s, nil
}
