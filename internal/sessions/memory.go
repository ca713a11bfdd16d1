package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heritagehub/backend/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local runs without a
// database. A mutex per session record serializes Update/Delete for that
// session only, so sessions never contend with each other.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
}

type memoryEntry struct {
	mu sync.Mutex
	s  *models.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*memoryEntry)}
}

func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = &memoryEntry{s: s.Clone()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]models.Session, error) {
	m.mu.RLock()
	all := make([]models.Session, 0, len(m.entries))
	for _, e := range m.entries {
		e.mu.Lock()
		s := e.s.Clone()
		e.mu.Unlock()
		if matchesFilter(s, f) {
			all = append(all, *s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.After(all[j].ScheduledAt) })

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := f.Offset
	if offset >= len(all) {
		return []models.Session{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func matchesFilter(s *models.Session, f Filter) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	if f.From != nil && s.ScheduledAt.Before(*f.From) {
		return false
	}
	if f.To != nil && s.ScheduledAt.After(*f.To) {
		return false
	}
	return true
}

func (m *MemoryStore) Update(_ context.Context, id uuid.UUID, mutate func(s *models.Session) error) (*models.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, models.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.s.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	e.s = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID, guard func(s *models.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := guard(e.s.Clone()); err != nil {
		return err
	}
	delete(m.entries, id)
	return nil
}
