package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/directory"
)

// Push gating thresholds. Log output always records transitions; pushes
// are reserved for high-severity identities and meaningful absences.
const (
	pushSeverityThreshold = 3
	awayPushMinDuration   = time.Hour
)

// Gateway routes availability events to the push service, applying the
// severity gate. Pushes run on their own goroutines with their own
// timeout so a slow notification endpoint never stalls the polling loop.
type Gateway struct {
	service Service
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewGateway wraps a notification service with severity gating.
func NewGateway(service Service, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{service: service, logger: logger}
}

// IdentityAvailable pushes an absence notice when the identity's severity
// and the absence length both cross the push thresholds.
func (g *Gateway) IdentityAvailable(_ context.Context, member directory.Member, start, end time.Time, durationSeconds int64) {
	if member.Severity < pushSeverityThreshold {
		return
	}
	duration := time.Duration(durationSeconds) * time.Second
	if duration <= awayPushMinDuration {
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.service.NotifyIdentityAway(ctx, member.DisplayName, start, end, duration); err != nil {
			g.logger.Warn("away notification failed",
				slog.String("name", member.DisplayName),
				slog.Any("error", err))
		}
	}()
}

// PushStats reports whether an identity's severity qualifies it for the
// end-of-session stats push.
func PushStats(severity int) bool {
	return severity >= pushSeverityThreshold
}

// Wait blocks until all in-flight pushes have finished. Called during
// session close so pending notifications are not dropped on exit.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
