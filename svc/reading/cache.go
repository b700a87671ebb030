package reading

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// Cache holds a copy of each user's active session.
//
// Errors should wrap ErrCacheUnavailable; the Manager treats any cache error
// as a miss and falls back to the Store.
type Cache interface {
	// GetActive returns nil, nil on a miss.
	GetActive(ctx context.Context, userID uuid.UUID) (*Session, error)

	// SetActive stores s unless s has been marked closed.
	SetActive(ctx context.Context, s *Session) error

	// MarkClosed evicts the user's entry and remembers that sessionID ended,
	// so a racing SetActive for it is ignored.
	MarkClosed(ctx context.Context, userID, sessionID uuid.UUID) error
}

// NoOpCache disables caching.
type NoOpCache struct{}

func (NoOpCache) GetActive(context.Context, uuid.UUID) (*Session, error) { return nil, nil }
func (NoOpCache) SetActive(context.Context, *Session) error              { return nil }
func (NoOpCache) MarkClosed(context.Context, uuid.UUID, uuid.UUID) error { return nil }

// Evictions remembers closed sessions whose MarkClosed failed. While a
// session is tracked, a cached copy of it is treated as a miss; Retry
// replays the eviction once the cache is reachable again.
type Evictions struct {
	mu      sync.Mutex
	pending map[uuid.UUID]uuid.UUID // session id -> user id
}

func NewEvictions() *Evictions {
	return &Evictions{pending: make(map[uuid.UUID]uuid.UUID)}
}

func (e *Evictions) Add(userID, sessionID uuid.UUID) {
	e.mu.Lock()
	e.pending[sessionID] = userID
	e.mu.Unlock()
	metrics.CacheEvictions.WithLabelValues("deferred").Inc()
}

// Has reports whether sessionID still waits for eviction.
func (e *Evictions) Has(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[sessionID]
	return ok
}

func (e *Evictions) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Retry calls MarkClosed for every tracked session and forgets the ones that
// succeed. It returns how many were evicted and the joined failures.
func (e *Evictions) Retry(ctx context.Context, c Cache) (int, error) {
	e.mu.Lock()
	batch := make(map[uuid.UUID]uuid.UUID, len(e.pending))
	maps.Copy(batch, e.pending)
	e.mu.Unlock()

	var (
		evicted int
		errs    []error
	)
	for sessionID, userID := range batch {
		if err := c.MarkClosed(ctx, userID, sessionID); err != nil {
			errs = append(errs, err)
			continue
		}
		e.mu.Lock()
		delete(e.pending, sessionID)
		e.mu.Unlock()
		evicted++
	}
	if evicted > 0 {
		metrics.CacheEvictions.WithLabelValues("retried").Add(float64(evicted))
	}
	return evicted, errors.Join(errs...)
}
