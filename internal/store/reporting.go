package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionDays returns the distinct calendar days (UTC) on which a session
// started at or after the cutoff.
func (s *Store) SessionDays(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT DATE(start_time) FROM sessions WHERE start_time >= ? ORDER BY 1`,
		FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query session days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session day: %w", err)
		}
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("parse session day %q: %w", raw, err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// TotalSessionSeconds sums the length of every completed session that
// started at or after the cutoff.
func (s *Store) TotalSessionSeconds(ctx context.Context, cutoff time.Time) (int64, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(strftime('%s', end_time) - strftime('%s', start_time)), 0)
         FROM sessions
         WHERE start_time >= ? AND end_time IS NOT NULL`,
		FormatTime(cutoff),
	)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum session seconds: %w", err)
	}
	return total, nil
}

// IntervalAggregates returns, per identity, the count and summed duration
// of intervals that started at or after the cutoff.
func (s *Store) IntervalAggregates(ctx context.Context, cutoff time.Time) ([]IntervalAggregate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT i.id, i.contact_address, i.display_name, i.title,
                COUNT(p.id), COALESCE(SUM(p.duration_seconds), 0)
         FROM identities i
         JOIN intervals p ON p.identity_id = i.id
         WHERE p.start_time IS NOT NULL AND p.start_time >= ?
         GROUP BY i.id
         ORDER BY i.contact_address`,
		FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query interval aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []IntervalAggregate
	for rows.Next() {
		var (
			agg   IntervalAggregate
			title sql.NullString
		)
		if err := rows.Scan(&agg.Identity.ID, &agg.Identity.ContactAddress, &agg.Identity.DisplayName, &title, &agg.Count, &agg.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan interval aggregate: %w", err)
		}
		agg.Identity.Title = title.String
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}
