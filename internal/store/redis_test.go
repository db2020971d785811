package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/lastminute/internal/domain"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisSessionRoundTrip(t *testing.T) {
	s, mr := newTestRedis(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, testSession("s1")))
	assert.Equal(t, domain.SessionTTL, mr.TTL(sessionKey("s1")))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Algorithms mission", got.Title())

	err = s.CreateSession(ctx, testSession("s1"))
	assert.Error(t, err, "Expected duplicate id to be rejected")

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisExpiredSessionIsNotFound(t *testing.T) {
	s, mr := newTestRedis(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, testSession("s1")))
	require.NoError(t, s.CreateSession(ctx, testSession("s2")))

	// The server dropped the key.
	mr.FastForward(domain.SessionTTL)
	_, err := s.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.False(t, mr.Exists(sessionKey("s1")))

	// The key is still present but the record says it has expired.
	require.NoError(t, s.CreateSession(ctx, testSession("s3")))
	now = now.Add(domain.SessionTTL + time.Minute)
	_, err = s.GetSession(ctx, "s3")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRejectsAlreadyExpiredSession(t *testing.T) {
	s, mr := newTestRedis(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	sess := testSession("old")
	sess.CreatedAt = now.Add(-3 * time.Hour)
	sess.ExpiresAt = now.Add(-time.Hour)

	err := s.CreateSession(context.Background(), sess)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
	assert.False(t, mr.Exists(sessionKey("old")))
}

func TestRedisRecentSessions(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	list, err := s.RecentSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "a"} {
		_, err := s.AddRecentSession(ctx, "user-1", domain.RecentSession{ID: id, Title: id, UpdatedAt: at})
		require.NoError(t, err)
	}

	list, err = s.RecentSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	mr.Set(recentKey("user-2"), `[{"id":"ok","title":"Fine"}, 42, {"id":""}]`)
	list, err = s.RecentSessions(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].ID)
}

// concurrentWriter rewrites a watched key once, right after the first GET,
// so the surrounding transaction aborts.
type concurrentWriter struct {
	once  sync.Once
	write func()
	gets  atomic.Int32
}

func (h *concurrentWriter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *concurrentWriter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "get" {
			h.gets.Add(1)
			h.once.Do(h.write)
		}
		return err
	}
}

func (h *concurrentWriter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisAddRecentSessionRetriesOnConflict(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	other, err := json.Marshal([]domain.RecentSession{{ID: "other", Title: "Other tab", UpdatedAt: at}})
	require.NoError(t, err)
	hook := &concurrentWriter{write: func() {
		mr.Set(recentKey("user-1"), string(other))
	}}
	s.client.AddHook(hook)

	list, err := s.AddRecentSession(ctx, "user-1", domain.RecentSession{ID: "mine", Title: "Mine", UpdatedAt: at})
	require.NoError(t, err)

	assert.Equal(t, int32(2), hook.gets.Load(), "Expected one retry after the conflicting write")
	require.Len(t, list, 2)
	assert.Equal(t, "mine", list[0].ID)
	assert.Equal(t, "other", list[1].ID)

	stored, err := s.RecentSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "mine", stored[0].ID)
	assert.Equal(t, "other", stored[1].ID)
}

func TestRedisAddRecentSessionStopsOnPermanentError(t *testing.T) {
	s, mr := newTestRedis(t)
	// A list type under the key makes GET fail with WRONGTYPE.
	_, err := mr.Lpush(recentKey("user-1"), "x")
	require.NoError(t, err)

	_, err = s.AddRecentSession(context.Background(), "user-1", domain.RecentSession{ID: "a"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, redis.TxFailedErr))
}
