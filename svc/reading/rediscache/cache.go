// Package rediscache is the Redis implementation of reading.Cache.
//
// Each user's active session is stored msgpack-encoded under
// "active-session:{user_id}". Closing a session also writes a short-lived
// "closed-session:{session_id}" marker; SetActive is a Lua script that
// refuses to write a session carrying that marker, so a slow request cannot
// put an ended session back into the cache.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dmitrymomot/readtrack/svc/reading"
)

const (
	activeKeyPrefix = "active-session:"
	closedKeyPrefix = "closed-session:"

	DefaultTTL = time.Hour
)

// ErrNilClient is returned by New when no client is given.
var ErrNilClient = errors.New("rediscache: client cannot be nil")

// setUnlessClosed writes KEYS[1] unless the closed marker KEYS[2] exists.
var setUnlessClosed = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Cache implements reading.Cache.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New creates a cache. A non-positive ttl falls back to DefaultTTL.
func New(client redis.Cmdable, ttl time.Duration) (*Cache, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func ActiveKey(userID uuid.UUID) string {
	return activeKeyPrefix + userID.String()
}

func ClosedKey(sessionID uuid.UUID) string {
	return closedKeyPrefix + sessionID.String()
}

func (c *Cache) GetActive(ctx context.Context, userID uuid.UUID) (*reading.Session, error) {
	data, err := c.client.Get(ctx, ActiveKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(reading.ErrCacheUnavailable, err)
	}

	var s reading.Session
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(reading.ErrCacheUnavailable, err)
	}
	if !s.IsActive {
		return nil, nil
	}
	s.StartedAt = s.StartedAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (c *Cache) SetActive(ctx context.Context, s *reading.Session) error {
	if s == nil || !s.IsActive {
		return nil
	}

	data, err := msgpack.Marshal(s)
	if err != nil {
		return errors.Join(reading.ErrCacheUnavailable, err)
	}

	keys := []string{ActiveKey(s.UserID), ClosedKey(s.ID)}
	if err := setUnlessClosed.Run(ctx, c.client, keys, data, c.ttl.Milliseconds()).Err(); err != nil {
		return errors.Join(reading.ErrCacheUnavailable, err)
	}
	return nil
}

// MarkClosed drops the user's entry and remembers sessionID as ended for one
// TTL, which outlives any entry SetActive could still write for it.
func (c *Cache) MarkClosed(ctx context.Context, userID, sessionID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ClosedKey(sessionID), 1, c.ttl)
		pipe.Del(ctx, ActiveKey(userID))
		return nil
	})
	if err != nil {
		return errors.Join(reading.ErrCacheUnavailable, err)
	}
	return nil
}
