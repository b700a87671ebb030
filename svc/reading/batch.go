package reading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// BatchUpdate applies buffered position pings in a single transaction.
// Either every update is applied or none is; the first offending update is
// reported as a *BatchError. When the same session appears more than once
// the last entry wins.
//
// userID scopes the batch to one owner. uuid.Nil marks a trusted internal
// batch (sync import, replay) that may span users; ownership is then not
// checked.
func (m *Manager) BatchUpdate(ctx context.Context, userID uuid.UUID, updates []PositionUpdate) (*BulkResult, error) {
	if len(updates) == 0 {
		return nil, m.fail(ctx, "batch", ErrEmptyBatch)
	}
	if len(updates) > m.maxBatchSize {
		return nil, m.fail(ctx, "batch", ErrBatchTooLarge)
	}

	latest := make(map[uuid.UUID]int, len(updates))
	for i, u := range updates {
		if !validPosition(u.Position) {
			return nil, m.fail(ctx, "batch", batchErr(i, u.SessionID, ErrInvalidPosition))
		}
		latest[u.SessionID] = i
	}

	// Locks are taken in id order so concurrent batches cannot deadlock.
	ids := make([]uuid.UUID, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	// Validation walks the batch in submission order.
	order := slices.Clone(ids)
	slices.SortFunc(order, func(a, b uuid.UUID) int { return latest[a] - latest[b] })

	now := m.clock()
	var touched []*Session

	err := m.store.InTx(ctx, func(tx Tx) error {
		touched = touched[:0]

		locked, err := tx.LockSessions(ctx, ids)
		if err != nil {
			return err
		}

		writes := make([]PositionWrite, 0, len(order))
		for _, id := range order {
			i := latest[id]
			pos := updates[i].Position

			s, ok := locked[id]
			switch {
			case !ok || (userID != uuid.Nil && s.UserID != userID):
				return batchErr(i, id, ErrSessionNotFound)
			case !s.IsActive:
				return batchErr(i, id, ErrSessionEnded)
			case pos < s.StartPosition:
				return batchErr(i, id, ErrInvalidProgressRange)
			}

			s.Touch(now, pos)
			touched = append(touched, s)
			writes = append(writes, PositionWrite{SessionID: id, UserID: s.UserID, Position: pos, At: now})
		}

		n, err := tx.ApplyPositions(ctx, writes)
		if err != nil {
			return err
		}
		if n != len(writes) {
			return errors.Join(ErrStorage, fmt.Errorf("batch applied %d of %d positions", n, len(writes)))
		}
		return nil
	})
	if err != nil {
		return nil, m.fail(ctx, "batch", err)
	}

	m.discardPending(ids...)
	for _, s := range touched {
		m.cacheSet(ctx, s)
	}
	metrics.SessionTransitions.WithLabelValues("batch").Add(float64(len(touched)))
	m.logger.DebugContext(ctx, "applied batch update",
		logger.UserID(userID),
		logger.Count(len(touched)))

	return &BulkResult{Applied: len(touched), Sessions: touched}, nil
}

func batchErr(index int, id uuid.UUID, err error) *BatchError {
	return &BatchError{Index: index, SessionID: id.String(), Err: err}
}
