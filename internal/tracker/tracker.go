package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vigil/internal/config"
	"vigil/internal/directory"
	"vigil/internal/notifications"
	"vigil/internal/presence"
	"vigil/internal/store"
)

// State identifies where a tracking run is in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateWaitingForStart State = "waiting_for_start"
	StateTracking        State = "tracking"
	StateClosing         State = "closing"
	StateClosed          State = "closed"
)

// Resolver maps the configured roster onto tracked members.
type Resolver interface {
	Resolve(ctx context.Context, roster []config.RosterEntry) ([]directory.Member, error)
}

// Sampler fetches one availability snapshot for a set of identity IDs.
// A partial result alongside an error is valid; the returned samples are
// still applied.
type Sampler interface {
	FetchAvailability(ctx context.Context, ids []string) (map[string]string, error)
}

// Tracker drives one scheduled tracking session from waiting through
// cleanup. It is the single writer to the store for the session's
// duration; polling, reconciliation, and persistence run sequentially.
type Tracker struct {
	cfg      *config.Config
	store    *store.Store
	resolver Resolver
	sampler  Sampler
	notifier notifications.Service
	gateway  *notifications.Gateway
	logger   *slog.Logger
	clock    Clock

	state State
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// New assembles a tracker over the given collaborators.
func New(cfg *config.Config, st *store.Store, resolver Resolver, sampler Sampler, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		sampler:  sampler,
		notifier: notifier,
		gateway:  notifications.NewGateway(notifier, logger),
		logger:   logger,
		clock:    SystemClock(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the tracker's current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Run executes one tracking session: recover any prior crash, wait for
// the scheduled start, poll until the scheduled end, then clean up.
// Cleanup runs no matter how tracking ended; it is the only durability
// guarantee bounding the damage of an interrupted run.
func (t *Tracker) Run(ctx context.Context) error {
	lock := flock.New(t.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another tracking run holds %s", t.cfg.LockPath())
	}
	defer func() {
		_ = lock.Unlock()
	}()

	logger := t.logger.With(slog.String("run_id", uuid.NewString()))

	now := t.clock.Now()
	t.recover(ctx, logger, now)

	windowStart, windowEnd := sessionWindow(now, t.cfg)
	if !now.Before(windowEnd) {
		logger.Info("scheduled window already passed",
			slog.String("window_end", windowEnd.Format(time.Kitchen)))
		t.state = StateClosed
		return nil
	}

	if now.Before(windowStart) {
		t.state = StateWaitingForStart
		logger.Info("waiting for scheduled start",
			slog.String("window_start", windowStart.Format(time.Kitchen)))
		if err := WaitUntil(ctx, t.clock, windowStart); err != nil {
			t.closing(ctx, logger, nil, nil, err)
			return err
		}
	}

	members, err := t.resolver.Resolve(ctx, t.cfg.Roster())
	if err != nil {
		t.closing(ctx, logger, nil, nil, err)
		return fmt.Errorf("resolve roster: %w", err)
	}
	if len(members) == 0 {
		err := fmt.Errorf("no trackable identities in roster")
		t.closing(ctx, logger, nil, nil, err)
		return err
	}

	t.state = StateTracking
	session, err := t.store.StartSession(ctx, t.clock.Now())
	if err != nil {
		t.closing(ctx, logger, nil, nil, err)
		return fmt.Errorf("start session: %w", err)
	}
	logger.Info("session started",
		slog.Int64("session_id", session.ID),
		slog.Int("tracked", len(members)))
	if err := t.notifier.NotifySessionStarted(ctx, session.StartTime); err != nil {
		logger.Warn("session start notification failed", slog.Any("error", err))
	}

	runErr := t.poll(ctx, logger, session, members, windowEnd)
	t.closing(ctx, logger, session, members, runErr)
	return runErr
}

// recover closes whatever a crashed prior run left behind: open sessions
// are stamped with the recovery time, corrupt intervals purged, and open
// intervals force-closed. Every step is idempotent.
func (t *Tracker) recover(ctx context.Context, logger *slog.Logger, now time.Time) {
	orphaned, err := t.store.CloseOpenSessions(ctx, now)
	if err != nil {
		logger.Warn("crash recovery: close open sessions", slog.Any("error", err))
	}
	if orphaned > 0 {
		logger.Info("recovered orphaned sessions from a previous run",
			slog.Int64("sessions", orphaned))
	}
	if _, err := t.store.PurgeCorrupt(ctx); err != nil {
		logger.Warn("crash recovery: purge corrupt intervals", slog.Any("error", err))
	}
	if closed, err := t.store.CloseAllOpen(ctx, now); err != nil {
		logger.Warn("crash recovery: close open intervals", slog.Any("error", err))
	} else if closed > 0 {
		logger.Info("force-closed stale intervals from a previous run",
			slog.Int64("intervals", closed))
	}
}

// poll runs the sampling loop until the scheduled end. A fetch failure
// skips the affected identities for that cycle; only a reconciliation
// failure or cancellation aborts the loop.
func (t *Tracker) poll(ctx context.Context, logger *slog.Logger, session *store.Session, members []directory.Member, windowEnd time.Time) error {
	byID := directory.MembersByID(members)
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}

	reconciler := presence.NewReconciler(t.store, t.gateway, logger)
	interval := time.Duration(t.cfg.Presence.PollSeconds) * time.Second
	initial := true

	for t.clock.Now().Before(windowEnd) {
		samples, err := t.sampler.FetchAvailability(ctx, ids)
		if err != nil {
			logger.Warn("availability fetch incomplete",
				slog.Int("sampled", len(samples)),
				slog.Any("error", err))
		}
		sampledAt := t.clock.Now()
		if len(samples) > 0 {
			if err := reconciler.Apply(ctx, session, byID, samples, sampledAt, initial); err != nil {
				return fmt.Errorf("reconcile samples: %w", err)
			}
			initial = false
		}

		step := interval
		if remaining := windowEnd.Sub(t.clock.Now()); remaining < step {
			step = remaining
		}
		if err := t.clock.Sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// closing is the unconditional cleanup pass: stamp the session end, purge
// corrupt intervals, and force-close whatever is still open. Safe to
// re-run; a crash mid-cleanup is repaired by the next run's recovery.
func (t *Tracker) closing(ctx context.Context, logger *slog.Logger, session *store.Session, members []directory.Member, runErr error) {
	t.state = StateClosing
	defer func() {
		t.state = StateClosed
	}()

	// Cleanup must proceed even when the run was cancelled.
	cleanupCtx := context.WithoutCancel(ctx)
	end := t.clock.Now()

	if runErr != nil {
		logger.Error("tracking ended abnormally", slog.Any("error", runErr))
		if err := t.notifier.NotifySessionEndedAbnormally(cleanupCtx, runErr.Error()); err != nil {
			logger.Warn("abnormal end notification failed", slog.Any("error", err))
		}
	}

	if session != nil {
		if err := t.store.CloseSession(cleanupCtx, session.ID, end); err != nil {
			logger.Error("stamp session end", slog.Any("error", err))
		}
	}
	if _, err := t.store.PurgeCorrupt(cleanupCtx); err != nil {
		logger.Error("purge corrupt intervals", slog.Any("error", err))
	}
	if closed, err := t.store.CloseAllOpen(cleanupCtx, end); err != nil {
		logger.Error("force-close open intervals", slog.Any("error", err))
	} else if closed > 0 {
		logger.Info("force-closed intervals still open at session end",
			slog.Int64("intervals", closed))
	}

	t.gateway.Wait()

	if session != nil {
		t.summarize(cleanupCtx, logger, session, members, end)
		logger.Info("session closed", slog.Int64("session_id", session.ID))
	}
}

// summarize logs per-identity unavailability totals for the finished
// session and pushes a summary for high-severity identities. Best-effort;
// failures never change the run's outcome.
func (t *Tracker) summarize(ctx context.Context, logger *slog.Logger, session *store.Session, members []directory.Member, end time.Time) {
	addresses := make([]string, 0, len(members))
	severities := make(map[string]int, len(members))
	for _, member := range members {
		addresses = append(addresses, member.ContactAddress)
		severities[member.ContactAddress] = member.Severity
	}
	if len(addresses) == 0 {
		return
	}

	totals, err := t.store.UnavailabilityTotals(ctx, addresses, session.StartTime, end)
	if err != nil {
		logger.Error("aggregate session totals", slog.Any("error", err))
		return
	}

	var pushLines []string
	for _, total := range totals {
		logger.Info("session unavailability total",
			slog.String("name", total.Identity.DisplayName),
			slog.Int64("seconds", total.TotalSeconds))
		if notifications.PushStats(severities[total.Identity.ContactAddress]) && total.TotalSeconds > 0 {
			pushLines = append(pushLines, fmt.Sprintf("%s: %s unavailable",
				total.Identity.DisplayName, formatDuration(total.TotalSeconds)))
		}
	}
	if len(pushLines) == 0 {
		return
	}
	if err := t.notifier.NotifySessionStats(ctx, pushLines); err != nil {
		logger.Warn("session stats notification failed", slog.Any("error", err))
	}
}

// sessionWindow returns today's scheduled tracking window in now's
// location.
func sessionWindow(now time.Time, cfg *config.Config) (time.Time, time.Time) {
	year, month, day := now.Date()
	start := time.Date(year, month, day, cfg.Presence.StartHour, 0, 0, 0, now.Location())
	end := time.Date(year, month, day, cfg.Presence.EndHour, 0, 0, 0, now.Location())
	return start, end
}

// formatDuration renders whole seconds as a compact "1h 5m" style label.
func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 || (hours == 0 && secs > 0) {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}
