package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vigil/internal/directory"
	"vigil/internal/logging"
	"vigil/internal/store"
)

// unavailableLabels are the availability labels treated as unavailable.
// Matching is exact; transitional labels such as "BeRightBack" or
// "DoNotDisturb" count as available.
var unavailableLabels = map[string]struct{}{
	"Away":    {},
	"Offline": {},
}

// Unavailable reports whether an availability label counts as unavailable.
func Unavailable(label string) bool {
	_, ok := unavailableLabels[label]
	return ok
}

// EventSink receives availability transitions as they are recorded. The
// reconciler calls it after an interval closes; implementations must not
// block the polling loop.
type EventSink interface {
	IdentityAvailable(ctx context.Context, member directory.Member, start, end time.Time, durationSeconds int64)
}

// Reconciler folds availability snapshots into the interval store. Each
// identity is a two-state machine: either it has an open unavailability
// interval or it does not, and the stored open interval is the state.
type Reconciler struct {
	store  *store.Store
	sink   EventSink
	logger *slog.Logger
}

// NewReconciler builds a reconciler over the store. sink may be nil.
func NewReconciler(st *store.Store, sink EventSink, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, sink: sink, logger: logger}
}

// Apply reconciles one snapshot of availability labels against the store.
// samples maps identity ID to availability label. initial marks the first
// snapshot of a session: intervals opened from it are anchored to the
// session start, since the unavailability began at or before tracking did.
//
// Identities present in samples but missing from members indicate a
// directory inconsistency; each is logged and skipped so the rest of the
// snapshot still lands.
func (r *Reconciler) Apply(ctx context.Context, session *store.Session, members map[string]directory.Member, samples map[string]string, at time.Time, initial bool) error {
	for identityID, label := range samples {
		member, ok := members[identityID]
		if !ok {
			r.logger.Error("availability sample for identity outside the roster",
				slog.String("identity_id", identityID),
				slog.String("availability", label))
			continue
		}
		if err := r.applyOne(ctx, session, member, label, at, initial); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyOne(ctx context.Context, session *store.Session, member directory.Member, label string, at time.Time, initial bool) error {
	open, err := r.store.GetOpenInterval(ctx, member.ID)
	if err != nil {
		return err
	}

	switch {
	case Unavailable(label) && open == nil:
		start := at
		if initial {
			start = session.StartTime
		}
		if _, err := r.store.OpenInterval(ctx, session.ID, member.ID, start); err != nil {
			return fmt.Errorf("open interval for %s: %w", member.ContactAddress, err)
		}
		if !initial {
			r.logger.Log(ctx, logging.LevelForSeverity(member.Severity), "went unavailable",
				slog.String("name", member.DisplayName),
				slog.String("availability", label))
		}

	case !Unavailable(label) && open != nil:
		end := at
		duration := end.UTC().Truncate(time.Second).Unix() - open.StartTime.UTC().Truncate(time.Second).Unix()
		if duration < 0 {
			duration = 0
		}
		closed, err := r.store.CloseInterval(ctx, member.ID, end, duration)
		if err != nil {
			return fmt.Errorf("close interval for %s: %w", member.ContactAddress, err)
		}
		if closed == 0 {
			return nil
		}
		r.logAvailable(ctx, member, open.StartTime, end, duration)
		if r.sink != nil {
			r.sink.IdentityAvailable(ctx, member, open.StartTime, end, duration)
		}
	}
	return nil
}

// logAvailable records the end of an unavailability span. Spans shorter
// than the clock's display resolution would render as "from 3:04pm to
// 3:04pm", so those are left to the structured fields only.
func (r *Reconciler) logAvailable(ctx context.Context, member directory.Member, start, end time.Time, durationSeconds int64) {
	from := ClockLabel(start)
	to := ClockLabel(end)
	if from == to {
		return
	}
	r.logger.Log(ctx, logging.LevelForSeverity(member.Severity),
		fmt.Sprintf("%s was unavailable from %s to %s", member.DisplayName, from, to),
		slog.String("name", member.DisplayName),
		slog.Int64("duration_seconds", durationSeconds))
}

// ClockLabel renders a time of day at minute precision, e.g. "3:04pm".
func ClockLabel(t time.Time) string {
	return strings.ToLower(t.Local().Format("3:04PM"))
}
