package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertIdentity creates an identity or refreshes its mutable fields.
// ID and contact address are immutable join keys; only display name and
// title are updated in place.
func (s *Store) UpsertIdentity(ctx context.Context, identity Identity) error {
	if identity.ID == "" {
		return errors.New("identity id is required")
	}
	address := strings.ToLower(strings.TrimSpace(identity.ContactAddress))
	if address == "" {
		return errors.New("identity contact address is required")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO identities (id, contact_address, display_name, title)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             display_name = excluded.display_name,
             title = excluded.title`,
		identity.ID,
		address,
		identity.DisplayName,
		nullableString(identity.Title),
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// IdentityByID fetches one identity, returning nil when unknown.
func (s *Store) IdentityByID(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, contact_address, display_name, title FROM identities WHERE id = ?`,
		id,
	)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// IdentitiesByAddresses returns the locally known identities for a set of
// contact addresses. Unknown addresses are simply absent from the result.
func (s *Store) IdentitiesByAddresses(ctx context.Context, addresses []string) ([]Identity, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	args := make([]any, len(addresses))
	for i, address := range addresses {
		args[i] = strings.ToLower(strings.TrimSpace(address))
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, contact_address, display_name, title FROM identities
         WHERE contact_address IN (`+makePlaceholders(len(addresses))+`)
         ORDER BY contact_address`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query identities by address: %w", err)
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

// AllIdentities returns every identity ever tracked, ordered by address.
func (s *Store) AllIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, contact_address, display_name, title FROM identities ORDER BY contact_address`,
	)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

func scanIdentity(scanner interface{ Scan(dest ...any) error }) (*Identity, error) {
	var (
		id      string
		address string
		name    string
		title   sql.NullString
	)
	if err := scanner.Scan(&id, &address, &name, &title); err != nil {
		return nil, err
	}
	return &Identity{
		ID:             id,
		ContactAddress: address,
		DisplayName:    name,
		Title:          title.String,
	}, nil
}
