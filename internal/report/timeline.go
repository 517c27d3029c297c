package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"vigil/internal/store"
)

// TimelineEntry is one unavailability span within a session, clamped to
// the session window.
type TimelineEntry struct {
	Identity        store.Identity
	Start           time.Time
	End             time.Time
	DurationSeconds int64
}

// SessionTimeline is one session's entries.
type SessionTimeline struct {
	Session store.Session
	Entries []TimelineEntry
}

// Timelines assembles per-session timelines for every session started in
// the last windowDays. Entries are ordered by collated display name, then
// by start time within an identity.
func Timelines(ctx context.Context, st *store.Store, now time.Time, windowDays int) ([]SessionTimeline, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("timeline window must be positive, got %d days", windowDays)
	}
	cutoff := now.AddDate(0, 0, -windowDays)

	if _, err := st.PurgeCorrupt(ctx); err != nil {
		return nil, err
	}

	sessions, err := st.SessionsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	identities, err := st.AllIdentities(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Identity, len(identities))
	for _, identity := range identities {
		byID[identity.ID] = identity
	}

	collator := collate.New(language.English, collate.IgnoreCase)
	timelines := make([]SessionTimeline, 0, len(sessions))
	for _, session := range sessions {
		intervals, err := st.IntervalsBySession(ctx, session.ID)
		if err != nil {
			return nil, err
		}

		entries := make([]TimelineEntry, 0, len(intervals))
		for _, interval := range intervals {
			entry, ok := clampToSession(session, interval, byID, now)
			if !ok {
				continue
			}
			entries = append(entries, entry)
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if c := collator.CompareString(entries[i].Identity.DisplayName, entries[j].Identity.DisplayName); c != 0 {
				return c < 0
			}
			return entries[i].Start.Before(entries[j].Start)
		})
		timelines = append(timelines, SessionTimeline{Session: session, Entries: entries})
	}
	return timelines, nil
}

// clampToSession bounds an interval to its session's window. Intervals
// whose identity is no longer known, or that fall entirely outside the
// window, are dropped.
func clampToSession(session store.Session, interval store.Interval, byID map[string]store.Identity, now time.Time) (TimelineEntry, bool) {
	identity, ok := byID[interval.IdentityID]
	if !ok {
		return TimelineEntry{}, false
	}

	sessionEnd := now
	if session.EndTime != nil {
		sessionEnd = *session.EndTime
	}

	start := interval.StartTime
	if start.Before(session.StartTime) {
		start = session.StartTime
	}
	end := sessionEnd
	if interval.EndTime != nil && interval.EndTime.Before(sessionEnd) {
		end = *interval.EndTime
	}
	if !end.After(start) {
		return TimelineEntry{}, false
	}

	return TimelineEntry{
		Identity:        identity,
		Start:           start,
		End:             end,
		DurationSeconds: end.UTC().Truncate(time.Second).Unix() - start.UTC().Truncate(time.Second).Unix(),
	}, true
}
