package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ashureev/lastminute/internal/domain"
)

const redisKeyPrefix = "lastminute:"

// RedisStore implements Repository on Redis. Session expiry uses native key TTLs.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisConfig configures NewRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 10 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func sessionKey(id string) string   { return redisKeyPrefix + "session:" + id }
func recentKey(owner string) string { return redisKeyPrefix + "recent:" + owner }

// CreateSession stores the session with a TTL matching its expiry.
func (r *RedisStore) CreateSession(ctx context.Context, s *domain.Session) error {
	now := r.now()
	stamp(s, now)
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("store session %s: %w", s.ID, ErrAlreadyExpired)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, sessionKey(s.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	return nil
}

// GetSession retrieves a live session.
func (r *RedisStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, domain.ErrSessionNotFound
	}
	if s.Expired(r.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

// DeleteExpiredSessions is a no-op: Redis expires keys itself.
func (r *RedisStore) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// RecentSessions returns the owner's recent list.
func (r *RedisStore) RecentSessions(ctx context.Context, ownerID string) ([]domain.RecentSession, error) {
	raw, err := r.client.Get(ctx, recentKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.RecentSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recent sessions: %w", err)
	}
	return domain.ParseRecentSessions(raw), nil
}

// AddRecentSession updates the owner's list under WATCH, retrying on conflict.
func (r *RedisStore) AddRecentSession(ctx context.Context, ownerID string, entry domain.RecentSession) ([]domain.RecentSession, error) {
	key := recentKey(ownerID)
	return backoff.Retry(ctx, func() ([]domain.RecentSession, error) {
		var list []domain.RecentSession
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			list = domain.AddRecentSession(domain.ParseRecentSessions(raw), entry)
			payload, err := json.Marshal(list)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("update recent sessions: %w", err))
		}
		return list, nil
	}, backoff.WithMaxTries(5))
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
