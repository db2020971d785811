package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "modernc.org/sqlite"

	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

	CREATE TABLE IF NOT EXISTS recent_sessions (
		owner_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	stamp(sess, s.now())
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, payload, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			sess.ID, string(payload), sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a live session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE id = ? AND expires_at > ?`,
		id, s.now().UnixMilli(),
	)
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		slog.Warn("Dropping corrupt session payload", "session_id", id, "error", err)
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

// DeleteExpiredSessions removes sessions expired at now.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := withBusyRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// RecentSessions returns the owner's recent list.
func (s *SQLiteStore) RecentSessions(ctx context.Context, ownerID string) ([]domain.RecentSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM recent_sessions WHERE owner_id = ?`, ownerID)
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.RecentSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan recent sessions: %w", err)
	}
	return domain.ParseRecentSessions([]byte(payload)), nil
}

// AddRecentSession records entry at the front of the owner's list.
func (s *SQLiteStore) AddRecentSession(ctx context.Context, ownerID string, entry domain.RecentSession) ([]domain.RecentSession, error) {
	var list []domain.RecentSession
	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var payload string
		err = tx.QueryRowContext(ctx, `SELECT payload FROM recent_sessions WHERE owner_id = ?`, ownerID).Scan(&payload)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read recent sessions: %w", err)
		}
		list = domain.AddRecentSession(domain.ParseRecentSessions([]byte(payload)), entry)

		raw, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshal recent sessions: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recent_sessions (owner_id, payload, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			ownerID, string(raw), s.now().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert recent sessions: %w", err)
		}
		return tx.Commit()
	})
	return list, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withBusyRetry retries op with exponential backoff while SQLite reports
// lock contention. Other errors are returned immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 400 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !shared.IsSQLiteConflictError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			slog.Debug("SQLite busy, retrying", "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(4))
	return err
}
