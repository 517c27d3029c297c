package notifications_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vigil/internal/directory"
	"vigil/internal/notifications"
	"vigil/internal/store"
)

type recordingService struct {
	notifications.Service
	mu    sync.Mutex
	names []string
}

func (r *recordingService) NotifyIdentityAway(_ context.Context, name string, _, _ time.Time, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

func member(name string, severity int) directory.Member {
	return directory.Member{
		Identity: store.Identity{ID: "id-" + name, DisplayName: name},
		Severity: severity,
	}
}

func TestGatewayPushesOnlyAboveThresholds(t *testing.T) {
	svc := &recordingService{}
	gw := notifications.NewGateway(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Long absence, low severity: no push.
	gw.IdentityAvailable(ctx, member("Alice", 1), start, start.Add(2*time.Hour), 7200)
	// High severity, short absence: no push.
	gw.IdentityAvailable(ctx, member("Bob", 3), start, start.Add(30*time.Minute), 1800)
	// High severity, exactly one hour: still no push, the gate is strict.
	gw.IdentityAvailable(ctx, member("Carol", 3), start, start.Add(time.Hour), 3600)
	// High severity, over an hour: push.
	gw.IdentityAvailable(ctx, member("Dave", 4), start, start.Add(90*time.Minute), 5400)

	gw.Wait()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.names) != 1 || svc.names[0] != "Dave" {
		t.Fatalf("expected a push for Dave only, got %v", svc.names)
	}
}

func TestPushStats(t *testing.T) {
	if notifications.PushStats(2) {
		t.Fatal("severity 2 should not qualify for stats push")
	}
	if !notifications.PushStats(3) {
		t.Fatal("severity 3 should qualify for stats push")
	}
}
