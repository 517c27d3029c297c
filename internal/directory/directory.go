package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vigil/internal/config"
	"vigil/internal/services/msgraph"
	"vigil/internal/store"
)

// Member is a tracked identity joined with its configured severity level.
type Member struct {
	store.Identity
	Severity int
}

// Lookup resolves contact addresses against the remote directory.
type Lookup interface {
	ResolveUsers(ctx context.Context, addresses []string) ([]msgraph.User, error)
}

// Directory resolves and caches tracked identities. Addresses already
// known locally skip remote resolution; newly resolved identities are
// upserted so display name and title stay fresh.
type Directory struct {
	store  *store.Store
	lookup Lookup
	logger *slog.Logger
}

// New constructs a directory over the given store and remote lookup.
func New(st *store.Store, lookup Lookup, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: st, lookup: lookup, logger: logger}
}

// Resolve maps roster entries to tracked members. Addresses the remote
// source does not recognize are dropped with a warning; they are not
// trackable this run, which is not a fatal condition.
func (d *Directory) Resolve(ctx context.Context, roster []config.RosterEntry) ([]Member, error) {
	if len(roster) == 0 {
		return nil, nil
	}

	addresses := make([]string, 0, len(roster))
	severities := make(map[string]int, len(roster))
	for _, entry := range roster {
		address := strings.ToLower(strings.TrimSpace(entry.Address))
		if address == "" {
			continue
		}
		addresses = append(addresses, address)
		severities[address] = entry.Severity
	}

	known, err := d.store.IdentitiesByAddresses(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("load cached identities: %w", err)
	}
	byAddress := make(map[string]store.Identity, len(known))
	for _, identity := range known {
		byAddress[identity.ContactAddress] = identity
	}

	var missing []string
	for _, address := range addresses {
		if _, ok := byAddress[address]; !ok {
			missing = append(missing, address)
		}
	}

	if len(missing) > 0 {
		users, err := d.lookup.ResolveUsers(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve roster: %w", err)
		}
		for _, user := range users {
			identity := store.Identity{
				ID:             user.ID,
				ContactAddress: user.Mail,
				DisplayName:    user.DisplayName,
				Title:          user.JobTitle,
			}
			if err := d.store.UpsertIdentity(ctx, identity); err != nil {
				return nil, err
			}
			byAddress[identity.ContactAddress] = identity
		}
	}

	members := make([]Member, 0, len(addresses))
	for _, address := range addresses {
		identity, ok := byAddress[address]
		if !ok {
			d.logger.Warn("address not recognized by directory, excluded from tracking",
				slog.String("address", address))
			continue
		}
		members = append(members, Member{Identity: identity, Severity: severities[address]})
	}
	return members, nil
}

// MembersByID indexes members by their stable identity ID.
func MembersByID(members []Member) map[string]Member {
	byID := make(map[string]Member, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}
	return byID
}
