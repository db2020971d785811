package store

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/ashureev/lastminute/internal/domain"
)

// Cached is a read-through session cache in front of a Repository. Entries
// never outlive the session they hold.
type Cached struct {
	Repository
	sessions otter.CacheWithVariableTTL[string, *domain.Session]
	onLookup func(hit bool)
	now      func() time.Time
}

// NewCached wraps repo with a cache of up to capacity sessions. onLookup,
// when non-nil, is called for every GetSession.
func NewCached(repo Repository, capacity int, onLookup func(hit bool)) (*Cached, error) {
	sessions, err := otter.MustBuilder[string, *domain.Session](capacity).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build session cache: %w", err)
	}
	if onLookup == nil {
		onLookup = func(bool) {}
	}
	return &Cached{Repository: repo, sessions: sessions, onLookup: onLookup, now: time.Now}, nil
}

// CreateSession stores the session and caches it.
func (c *Cached) CreateSession(ctx context.Context, s *domain.Session) error {
	if err := c.Repository.CreateSession(ctx, s); err != nil {
		return err
	}
	c.put(s)
	return nil
}

// GetSession serves live sessions from the cache when possible. Cached
// sessions are shared between callers and must be treated as read-only.
func (c *Cached) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	if s, ok := c.sessions.Get(id); ok {
		if !s.Expired(c.now()) {
			c.onLookup(true)
			return s, nil
		}
		c.sessions.Delete(id)
	}
	c.onLookup(false)

	s, err := c.Repository.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(s)
	return s, nil
}

func (c *Cached) put(s *domain.Session) {
	if ttl := s.ExpiresAt.Sub(c.now()); ttl > 0 {
		c.sessions.Set(s.ID, s, ttl)
	}
}

// Close releases the cache and the wrapped repository.
func (c *Cached) Close() error {
	c.sessions.Close()
	return c.Repository.Close()
}
