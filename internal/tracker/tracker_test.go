package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/config"
	"vigil/internal/directory"
	"vigil/internal/store"
	"vigil/internal/testsupport"
)

type stubResolver struct {
	members []directory.Member
	err     error
}

func (s *stubResolver) Resolve(context.Context, []config.RosterEntry) ([]directory.Member, error) {
	return s.members, s.err
}

type scriptedSampler struct {
	mu     sync.Mutex
	calls  int
	script func(call int) (map[string]string, error)
}

func (s *scriptedSampler) FetchAvailability(context.Context, []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples, err := s.script(s.calls)
	s.calls++
	return samples, err
}

type stubNotifier struct {
	mu       sync.Mutex
	started  int
	abnormal []string
	stats    [][]string
	away     int
	tests    int
}

func (s *stubNotifier) NotifySessionStarted(context.Context, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return nil
}

func (s *stubNotifier) NotifySessionEndedAbnormally(_ context.Context, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abnormal = append(s.abnormal, detail)
	return nil
}

func (s *stubNotifier) NotifyIdentityAway(context.Context, string, time.Time, time.Time, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.away++
	return nil
}

func (s *stubNotifier) NotifySessionStats(_ context.Context, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, lines)
	return nil
}

func (s *stubNotifier) TestNotification(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests++
	return nil
}

func testMembers(st *store.Store, t *testing.T) []directory.Member {
	t.Helper()
	alice := testsupport.SeedIdentity(t, st, "id-alice", "alice@example.com", "Alice")
	bob := testsupport.SeedIdentity(t, st, "id-bob", "bob@example.com", "Bob")
	return []directory.Member{
		{Identity: alice, Severity: 3},
		{Identity: bob, Severity: 0},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunTracksFullWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	cfg.Presence.PollSeconds = 60
	st := testsupport.MustOpenStore(t, cfg)
	members := testMembers(st, t)

	// Alice is away for the first two polls and back at the third; Bob
	// goes away half an hour in and never returns.
	sampler := &scriptedSampler{script: func(call int) (map[string]string, error) {
		samples := map[string]string{"id-alice": "Available", "id-bob": "Available"}
		if call < 2 {
			samples["id-alice"] = "Away"
		}
		if call >= 30 {
			samples["id-bob"] = "Offline"
		}
		return samples, nil
	}}

	sessionStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(sessionStart)
	notifier := &stubNotifier{}
	tr := New(cfg, st, &stubResolver{members: members}, sampler, notifier, discardLogger(), WithClock(clock))

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tr.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", tr.State())
	}

	ctx := context.Background()
	session, err := st.SessionByID(ctx, 1)
	if err != nil || session == nil {
		t.Fatalf("load session: %v %v", session, err)
	}
	if !session.StartTime.Equal(sessionStart) {
		t.Fatalf("unexpected session start: %s", session.StartTime)
	}
	windowEnd := sessionStart.Add(time.Hour)
	if session.EndTime == nil || !session.EndTime.Equal(windowEnd) {
		t.Fatalf("expected session closed at %s, got %v", windowEnd, session.EndTime)
	}

	intervals, err := st.IntervalsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load intervals: %v", err)
	}
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(intervals))
	}

	// Alice's interval is anchored to the session start by the initial
	// sample and closed at the third poll.
	aliceInterval := intervals[0]
	if aliceInterval.IdentityID != "id-alice" {
		t.Fatalf("unexpected interval order: %+v", intervals)
	}
	if !aliceInterval.StartTime.Equal(sessionStart) {
		t.Fatalf("expected alice interval anchored to session start, got %s", aliceInterval.StartTime)
	}
	if aliceInterval.DurationSeconds != 120 {
		t.Fatalf("expected alice duration 120, got %d", aliceInterval.DurationSeconds)
	}

	// Bob's interval was still open at session end and force-closed.
	bobInterval := intervals[1]
	if bobInterval.IdentityID != "id-bob" {
		t.Fatalf("unexpected interval order: %+v", intervals)
	}
	if bobInterval.EndTime == nil || !bobInterval.EndTime.Equal(windowEnd) {
		t.Fatalf("expected bob interval force-closed at window end, got %+v", bobInterval)
	}
	if bobInterval.DurationSeconds != 1800 {
		t.Fatalf("expected bob duration 1800, got %d", bobInterval.DurationSeconds)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.started != 1 {
		t.Fatalf("expected one session-start notification, got %d", notifier.started)
	}
	if len(notifier.abnormal) != 0 {
		t.Fatalf("unexpected abnormal-end notifications: %v", notifier.abnormal)
	}
	// Alice has severity 3 and some unavailability, so a stats push fires.
	if len(notifier.stats) != 1 || len(notifier.stats[0]) != 1 {
		t.Fatalf("unexpected stats pushes: %v", notifier.stats)
	}
}

func TestRunWaitsForScheduledStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	cfg.Presence.PollSeconds = 300
	st := testsupport.MustOpenStore(t, cfg)
	members := testMembers(st, t)

	sampler := &scriptedSampler{script: func(int) (map[string]string, error) {
		return map[string]string{"id-alice": "Available", "id-bob": "Available"}, nil
	}}

	clock := newFakeClock(time.Date(2026, 3, 2, 8, 59, 30, 0, time.UTC))
	tr := New(cfg, st, &stubResolver{members: members}, sampler, &stubNotifier{}, discardLogger(), WithClock(clock))

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	session, err := st.SessionByID(context.Background(), 1)
	if err != nil || session == nil {
		t.Fatalf("load session: %v %v", session, err)
	}
	wantStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !session.StartTime.Equal(wantStart) {
		t.Fatalf("expected session to start at the scheduled hour, got %s", session.StartTime)
	}
}

func TestRunSkipsWhenWindowPassed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	st := testsupport.MustOpenStore(t, cfg)

	clock := newFakeClock(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC))
	tr := New(cfg, st, &stubResolver{}, &scriptedSampler{script: func(int) (map[string]string, error) { return nil, nil }}, &stubNotifier{}, discardLogger(), WithClock(clock))

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tr.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", tr.State())
	}
	session, err := st.SessionByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no session outside the window, got %+v", session)
	}
}

func TestRunCancellationStillCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	cfg.Presence.PollSeconds = 60
	st := testsupport.MustOpenStore(t, cfg)
	members := testMembers(st, t)

	ctx, cancel := context.WithCancel(context.Background())
	sampler := &scriptedSampler{script: func(call int) (map[string]string, error) {
		if call == 2 {
			cancel()
		}
		return map[string]string{"id-alice": "Away", "id-bob": "Available"}, nil
	}}

	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	notifier := &stubNotifier{}
	tr := New(cfg, st, &stubResolver{members: members}, sampler, notifier, discardLogger(), WithClock(clock))

	if err := tr.Run(ctx); err == nil {
		t.Fatal("expected cancellation to surface as an error")
	}
	if tr.State() != StateClosed {
		t.Fatalf("expected closed state after cleanup, got %s", tr.State())
	}

	background := context.Background()
	session, err := st.SessionByID(background, 1)
	if err != nil || session == nil {
		t.Fatalf("load session: %v %v", session, err)
	}
	if session.EndTime == nil {
		t.Fatal("expected the session end stamped during cleanup")
	}
	if open, _ := st.GetOpenInterval(background, "id-alice"); open != nil {
		t.Fatalf("expected alice's interval force-closed, got %+v", open)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.abnormal) != 1 {
		t.Fatalf("expected one abnormal-end notification, got %v", notifier.abnormal)
	}
}

func TestRunFailedPollCycleMutatesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	cfg.Presence.PollSeconds = 60
	st := testsupport.MustOpenStore(t, cfg)
	members := testMembers(st, t)

	// The first poll fails outright. Alice is away on the first batch
	// that lands and back two cycles later.
	sampler := &scriptedSampler{script: func(call int) (map[string]string, error) {
		switch {
		case call == 0:
			return nil, errors.New("presence source unreachable")
		case call == 1:
			return map[string]string{"id-alice": "Away", "id-bob": "Available"}, nil
		default:
			return map[string]string{"id-alice": "Available", "id-bob": "Available"}, nil
		}
	}}

	sessionStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(sessionStart)
	tr := New(cfg, st, &stubResolver{members: members}, sampler, &stubNotifier{}, discardLogger(), WithClock(clock))

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ctx := context.Background()
	intervals, err := st.IntervalsBySession(ctx, 1)
	if err != nil {
		t.Fatalf("load intervals: %v", err)
	}
	// The failed cycle produced no interval of its own.
	if len(intervals) != 1 {
		t.Fatalf("expected exactly one interval, got %d", len(intervals))
	}

	// The batch at 9:01 was the first to land, so it is the initial
	// sample and alice's interval anchors to the session start.
	interval := intervals[0]
	if interval.IdentityID != "id-alice" {
		t.Fatalf("unexpected interval identity: %+v", interval)
	}
	if !interval.StartTime.Equal(sessionStart) {
		t.Fatalf("expected interval anchored to session start, got %s", interval.StartTime)
	}
	if interval.DurationSeconds != 120 {
		t.Fatalf("expected duration 120 (session start to the 9:02 close), got %d", interval.DurationSeconds)
	}
}

func TestRunRecoversCrashedPriorRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedIdentity(t, st, "id-alice", "alice@example.com", "Alice")

	// A prior run crashed mid-session: its session and alice's interval
	// were both left open.
	ctx := context.Background()
	crashedStart := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	crashed := testsupport.StartSession(t, st, crashedStart)
	if _, err := st.OpenInterval(ctx, crashed.ID, "id-alice", crashedStart.Add(10*time.Minute)); err != nil {
		t.Fatalf("OpenInterval failed: %v", err)
	}

	recoveredAt := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	clock := newFakeClock(recoveredAt)
	tr := New(cfg, st, &stubResolver{}, &scriptedSampler{script: func(int) (map[string]string, error) { return nil, nil }}, &stubNotifier{}, discardLogger(), WithClock(clock))
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The orphaned session got its end stamped with the recovery time.
	session, err := st.SessionByID(ctx, crashed.ID)
	if err != nil || session == nil {
		t.Fatalf("load session: %v %v", session, err)
	}
	if session.EndTime == nil || !session.EndTime.Equal(recoveredAt) {
		t.Fatalf("expected orphaned session stamped at %s, got %v", recoveredAt, session.EndTime)
	}

	// The stale interval was force-closed with its duration computed
	// from its own start.
	if open, _ := st.GetOpenInterval(ctx, "id-alice"); open != nil {
		t.Fatalf("expected stale interval closed, got %+v", open)
	}
	intervals, err := st.IntervalsBySession(ctx, crashed.ID)
	if err != nil {
		t.Fatalf("load intervals: %v", err)
	}
	if len(intervals) != 1 || intervals[0].DurationSeconds != 28200 {
		t.Fatalf("expected one interval of 28200s (8:10 to 16:00), got %#v", intervals)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSchedule(9, 10))
	st := testsupport.MustOpenStore(t, cfg)

	holder := flock.New(cfg.LockPath())
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("acquire lock for test: %v %v", locked, err)
	}
	defer holder.Unlock()

	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tr := New(cfg, st, &stubResolver{}, &scriptedSampler{script: func(int) (map[string]string, error) { return nil, nil }}, &stubNotifier{}, discardLogger(), WithClock(clock))
	if err := tr.Run(context.Background()); err == nil {
		t.Fatal("expected second instance to be refused")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{
		0:    "0s",
		45:   "45s",
		60:   "1m",
		3900: "1h 5m",
		3600: "1h",
	}
	for seconds, want := range cases {
		if got := formatDuration(seconds); got != want {
			t.Errorf("formatDuration(%d) = %q, want %q", seconds, got, want)
		}
	}
}
