package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heritagehub/backend/internal/models"
)

func seedSession(t *testing.T, store *MemoryStore, capacity int) *models.Session {
	t.Helper()
	s, err := models.NewSession("t", "d", "c", uuid.New(),
		time.Now().Add(time.Hour), 60, capacity, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryStoreUpdateIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	s := seedSession(t, store, 1000)
	ctx := context.Background()

	const writers = 100
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, s.ID, func(s *models.Session) error {
				return s.Register(uuid.New(), time.Now())
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Participants) != writers {
		t.Fatalf("participants = %d, want %d (lost update)", len(got.Participants), writers)
	}
}

func TestMemoryStoreFailedMutateLeavesNoTrace(t *testing.T) {
	store := NewMemoryStore()
	s := seedSession(t, store, 5)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := store.Update(ctx, s.ID, func(s *models.Session) error {
		// Mutate, then fail: nothing must be persisted.
		if err := s.Register(uuid.New(), time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, _ := store.Get(ctx, s.ID)
	if len(got.Participants) != 0 {
		t.Fatal("failed mutate left partial state behind")
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	s := seedSession(t, store, 5)
	ctx := context.Background()

	a, _ := store.Get(ctx, s.ID)
	if err := a.Register(uuid.New(), time.Now()); err != nil {
		t.Fatal(err)
	}
	b, _ := store.Get(ctx, s.ID)
	if len(b.Participants) != 0 {
		t.Fatal("mutating a Get result leaked into the store")
	}
}

func TestMemoryStoreDeleteGuard(t *testing.T) {
	store := NewMemoryStore()
	s := seedSession(t, store, 5)
	ctx := context.Background()

	deny := errors.New("denied")
	if err := store.Delete(ctx, s.ID, func(*models.Session) error { return deny }); !errors.Is(err, deny) {
		t.Fatalf("err = %v, want denied", err)
	}
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Fatal("guarded delete removed the session")
	}

	if err := store.Delete(ctx, s.ID, func(*models.Session) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, s.ID, func(*models.Session) error { return nil }); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("double delete: err = %v, want ErrSessionNotFound", err)
	}
}
