package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// availabilitySlackSeconds absorbs polling jitter when deciding whether an
// identity was unavailable for an entire window.
const availabilitySlackSeconds = 5

const intervalColumns = "id, session_id, identity_id, start_time, end_time, duration_seconds"

// GetOpenInterval returns the identity's open interval, or nil when the
// identity is currently considered available. The per-identity invariant
// guarantees at most one open interval exists.
func (s *Store) GetOpenInterval(ctx context.Context, identityID string) (*Interval, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+intervalColumns+` FROM intervals
         WHERE identity_id = ? AND end_time IS NULL
         ORDER BY id DESC LIMIT 1`,
		identityID,
	)
	interval, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open interval: %w", err)
	}
	return interval, nil
}

// OpenInterval records the start of an unavailability span. Callers must
// check GetOpenInterval first; opening while another interval is open for
// the same identity violates the store's central invariant.
func (s *Store) OpenInterval(ctx context.Context, sessionID int64, identityID string, start time.Time) (*Interval, error) {
	if identityID == "" {
		return nil, errors.New("identity id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO intervals (session_id, identity_id, start_time, end_time, duration_seconds)
         VALUES (?, ?, ?, NULL, 0)`,
		sessionID,
		identityID,
		FormatTime(start),
	)
	if err != nil {
		return nil, fmt.Errorf("open interval: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.intervalByID(ctx, id)
}

// CloseInterval closes the identity's open interval, setting its end time
// and duration. The update is scoped by "end_time IS NULL"; with the
// one-open-interval invariant that addresses exactly the right row without
// needing its ID. Returns the number of intervals closed (0 or 1).
func (s *Store) CloseInterval(ctx context.Context, identityID string, end time.Time, durationSeconds int64) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE intervals SET end_time = ?, duration_seconds = ?
         WHERE identity_id = ? AND end_time IS NULL`,
		FormatTime(end),
		durationSeconds,
		identityID,
	)
	if err != nil {
		return 0, fmt.Errorf("close interval: %w", err)
	}
	return res.RowsAffected()
}

// IntervalsBySession returns a session's intervals ordered by start time.
func (s *Store) IntervalsBySession(ctx context.Context, sessionID int64) ([]Interval, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+intervalColumns+` FROM intervals
         WHERE session_id = ? AND start_time IS NOT NULL
         ORDER BY start_time, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session intervals: %w", err)
	}
	defer rows.Close()

	var intervals []Interval
	for rows.Next() {
		interval, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, *interval)
	}
	return intervals, rows.Err()
}

// UnavailabilityTotals sums interval durations per identity over a window,
// restricted to identities that had at least some availability: anyone
// whose total reaches the window length (minus a small slack) is excluded.
// Results are ordered most-unavailable first.
func (s *Store) UnavailabilityTotals(ctx context.Context, addresses []string, windowStart, windowEnd time.Time) ([]UnavailabilityTotal, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	windowSeconds := windowEnd.UTC().Truncate(time.Second).Unix() - windowStart.UTC().Truncate(time.Second).Unix()
	if windowSeconds < 0 {
		return nil, fmt.Errorf("window end %s precedes start %s", FormatTime(windowEnd), FormatTime(windowStart))
	}

	args := make([]any, 0, len(addresses)+3)
	args = append(args, FormatTime(windowStart), FormatTime(windowEnd))
	for _, address := range addresses {
		args = append(args, strings.ToLower(strings.TrimSpace(address)))
	}
	args = append(args, windowSeconds-availabilitySlackSeconds)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT i.id, i.contact_address, i.display_name, i.title,
                COALESCE(SUM(p.duration_seconds), 0) AS total_seconds
         FROM identities i
         LEFT JOIN intervals p
             ON p.identity_id = i.id
            AND p.start_time IS NOT NULL
            AND p.start_time BETWEEN ? AND ?
         WHERE i.contact_address IN (`+makePlaceholders(len(addresses))+`)
         GROUP BY i.id
         HAVING total_seconds < ?
         ORDER BY total_seconds DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query unavailability totals: %w", err)
	}
	defer rows.Close()

	var totals []UnavailabilityTotal
	for rows.Next() {
		var (
			identity Identity
			title    sql.NullString
			total    int64
		)
		if err := rows.Scan(&identity.ID, &identity.ContactAddress, &identity.DisplayName, &title, &total); err != nil {
			return nil, fmt.Errorf("scan unavailability total: %w", err)
		}
		identity.Title = title.String
		totals = append(totals, UnavailabilityTotal{Identity: identity, TotalSeconds: total})
	}
	return totals, rows.Err()
}

func (s *Store) intervalByID(ctx context.Context, id int64) (*Interval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intervalColumns+` FROM intervals WHERE id = ?`, id)
	interval, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interval: %w", err)
	}
	return interval, nil
}

func scanInterval(scanner interface{ Scan(dest ...any) error }) (*Interval, error) {
	var (
		id        int64
		sessionID int64
		identity  string
		startRaw  sql.NullString
		endRaw    sql.NullString
		duration  int64
	)
	if err := scanner.Scan(&id, &sessionID, &identity, &startRaw, &endRaw, &duration); err != nil {
		return nil, err
	}

	interval := &Interval{
		ID:              id,
		SessionID:       sessionID,
		IdentityID:      identity,
		DurationSeconds: duration,
	}
	if startRaw.Valid {
		start, err := ParseTime(startRaw.String)
		if err != nil {
			return nil, fmt.Errorf("interval %d start: %w", id, err)
		}
		interval.StartTime = start
	}
	if endRaw.Valid {
		end, err := ParseTime(endRaw.String)
		if err != nil {
			return nil, fmt.Errorf("interval %d end: %w", id, err)
		}
		interval.EndTime = &end
	}
	return interval, nil
}
