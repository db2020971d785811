// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/lastminute/internal/domain"
)

// ErrAlreadyExpired is returned by backends that cannot store a session
// whose expiry has already passed.
var ErrAlreadyExpired = errors.New("session already expired")

// Repository persists processed sessions and per-identity recent lists.
type Repository interface {
	// CreateSession stores s. CreatedAt and ExpiresAt are filled in when zero.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession returns domain.ErrSessionNotFound for missing or expired ids.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// DeleteExpiredSessions removes sessions expired at now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// RecentSessions returns the owner's recent list, newest first.
	RecentSessions(ctx context.Context, ownerID string) ([]domain.RecentSession, error)

	// AddRecentSession records entry at the front of the owner's list.
	AddRecentSession(ctx context.Context, ownerID string, entry domain.RecentSession) ([]domain.RecentSession, error)

	// Ping verifies connectivity and returns an error if the backend is unreachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// stamp fills in the timestamps of a new session.
func stamp(s *domain.Session, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now.UTC()
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(domain.SessionTTL)
	}
}
