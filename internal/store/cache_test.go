package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lastminute/internal/domain"
)

type countingRepo struct {
	Repository
	mu       sync.Mutex
	sessions map[string]*domain.Session
	gets     int
}

func (r *countingRepo) CreateSession(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(s, time.Now())
	r.sessions[s.ID] = s
	return nil
}

func (r *countingRepo) GetSession(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *countingRepo) Close() error { return nil }

func TestCachedServesRepeatReads(t *testing.T) {
	repo := &countingRepo{sessions: map[string]*domain.Session{}}
	var hits, misses int
	c, err := NewCached(repo, 16, func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})
	if err != nil {
		t.Fatalf("NewCached failed: %v", err)
	}
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	repo.sessions["s1"] = &domain.Session{ID: "s1", ExpiresAt: time.Now().Add(time.Hour)}
	for i := 0; i < 3; i++ {
		if _, err := c.GetSession(ctx, "s1"); err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
	}
	if repo.gets != 1 {
		t.Errorf("Expected 1 backend read, got %d", repo.gets)
	}
	if hits != 2 || misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d and %d", hits, misses)
	}

	if _, err := c.GetSession(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestCachedDropsExpiredEntries(t *testing.T) {
	repo := &countingRepo{sessions: map[string]*domain.Session{}}
	c, err := NewCached(repo, 16, nil)
	if err != nil {
		t.Fatalf("NewCached failed: %v", err)
	}
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.CreateSession(ctx, &domain.Session{ID: "s1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := c.GetSession(ctx, "s1"); err != nil || repo.gets != 0 {
		t.Fatalf("Expected cached read after create, err=%v gets=%d", err, repo.gets)
	}

	now = now.Add(domain.SessionTTL + time.Minute)
	delete(repo.sessions, "s1")
	if _, err := c.GetSession(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Expected expired cached session to be not found, got %v", err)
	}
}
