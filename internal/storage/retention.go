package storage

import (
	"context"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
)

// DeleteSpansOlderThan removes spans started before cutoff and reports how
// many rows were deleted. Used by internal/retention to enforce the
// configured span retention window.
func (s *Store) DeleteSpansOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM spans WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewStorageError("delete_spans_older_than", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteResolvedAlertEventsOlderThan removes alert_events rows that resolved
// before cutoff, leaving active (unresolved) events untouched regardless of
// age.
func (s *Store) DeleteResolvedAlertEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_events WHERE resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewStorageError("delete_resolved_events_older_than", err)
	}
	return tag.RowsAffected(), nil
}
