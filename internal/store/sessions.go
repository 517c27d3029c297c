package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StartSession creates a new tracking session starting at the given time.
func (s *Store) StartSession(ctx context.Context, start time.Time) (*Session, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (start_time, end_time) VALUES (?, NULL)`,
		FormatTime(start),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.SessionByID(ctx, id)
}

// SessionByID fetches a session, returning nil when unknown.
func (s *Store) SessionByID(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, start_time, end_time FROM sessions WHERE id = ?`,
		id,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// CloseSession stamps a session's end time. A session end, once set, is
// never revised: closing an already-closed session is a no-op.
func (s *Store) CloseSession(ctx context.Context, id int64, end time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET end_time = ? WHERE id = ? AND end_time IS NULL`,
		FormatTime(end),
		id,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// CloseOpenSessions stamps every still-open session with the given end
// time and returns the number stamped. Used during crash recovery; the
// end time is an approximation of the true crash time.
func (s *Store) CloseOpenSessions(ctx context.Context, end time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET end_time = ? WHERE end_time IS NULL`,
		FormatTime(end),
	)
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	return res.RowsAffected()
}

// SessionsSince returns sessions that started at or after the cutoff,
// oldest first.
func (s *Store) SessionsSince(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, start_time, end_time FROM sessions WHERE start_time >= ? ORDER BY start_time`,
		FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id       int64
		startRaw string
		endRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &startRaw, &endRaw); err != nil {
		return nil, err
	}

	start, err := ParseTime(startRaw)
	if err != nil {
		return nil, fmt.Errorf("session %d start: %w", id, err)
	}
	session := &Session{ID: id, StartTime: start}
	if endRaw.Valid {
		end, err := ParseTime(endRaw.String)
		if err != nil {
			return nil, fmt.Errorf("session %d end: %w", id, err)
		}
		session.EndTime = &end
	}
	return session, nil
}
