package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeCorrupt deletes intervals persisted without a start time. Such rows
// can only result from a partial write; they are never reported.
// Idempotent.
func (s *Store) PurgeCorrupt(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM intervals WHERE start_time IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("purge corrupt intervals: %w", err)
	}
	return res.RowsAffected()
}

// CloseAllOpen force-closes every still-open interval at the given end
// time, computing each duration from the interval's own start. Used at
// session end and during crash recovery. Idempotent.
func (s *Store) CloseAllOpen(ctx context.Context, end time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE intervals
         SET end_time = ?,
             duration_seconds = strftime('%s', ?) - strftime('%s', start_time)
         WHERE start_time IS NOT NULL AND end_time IS NULL`,
		FormatTime(end),
		FormatTime(end),
	)
	if err != nil {
		return 0, fmt.Errorf("close open intervals: %w", err)
	}
	return res.RowsAffected()
}
