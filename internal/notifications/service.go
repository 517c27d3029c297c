package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vigil/internal/config"
)

const userAgent = "Vigil/0.1.0"

// Service defines the push notification surface exposed to the tracker.
type Service interface {
	NotifySessionStarted(ctx context.Context, start time.Time) error
	NotifySessionEndedAbnormally(ctx context.Context, detail string) error
	NotifyIdentityAway(ctx context.Context, name string, start, end time.Time, duration time.Duration) error
	NotifySessionStats(ctx context.Context, lines []string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by Gotify when configured.
// When no Gotify URL is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Gotify.URL)
	if endpoint == "" || len(cfg.Gotify.AppTokens) == 0 {
		return noopService{}
	}

	timeout := time.Duration(cfg.Gotify.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &gotifyService{
		endpoint:  strings.TrimRight(endpoint, "/"),
		tokens:    append([]string(nil), cfg.Gotify.AppTokens...),
		client:    &http.Client{Timeout: timeout},
		lifecycle: cfg.Gotify.Lifecycle,
		away:      cfg.Gotify.Away,
		stats:     cfg.Gotify.Stats,
	}
}

type payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type gotifyService struct {
	endpoint  string
	tokens    []string
	client    *http.Client
	lifecycle bool
	away      bool
	stats     bool
}

func (g *gotifyService) NotifySessionStarted(ctx context.Context, start time.Time) error {
	if !g.lifecycle {
		return nil
	}
	return g.send(ctx, payload{
		Title:   "Vigil - Session Started",
		Message: fmt.Sprintf("Tracking session started at %s", start.Local().Format("3:04pm")),
	})
}

func (g *gotifyService) NotifySessionEndedAbnormally(ctx context.Context, detail string) error {
	if !g.lifecycle {
		return nil
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "unknown failure"
	}
	return g.send(ctx, payload{
		Title:   "Vigil - Session Ended Abnormally",
		Message: fmt.Sprintf("Tracking stopped early: %s", detail),
	})
}

func (g *gotifyService) NotifyIdentityAway(ctx context.Context, name string, start, end time.Time, duration time.Duration) error {
	if !g.away {
		return nil
	}
	name = strings.TrimSpace(name)
	return g.send(ctx, payload{
		Title: "Vigil - Extended Absence",
		Message: fmt.Sprintf("%s was unavailable from %s to %s (%s)",
			name,
			strings.ToLower(start.Local().Format("3:04PM")),
			strings.ToLower(end.Local().Format("3:04PM")),
			duration.Round(time.Minute)),
	})
}

func (g *gotifyService) NotifySessionStats(ctx context.Context, lines []string) error {
	if !g.stats || len(lines) == 0 {
		return nil
	}
	return g.send(ctx, payload{
		Title:   "Vigil - Session Summary",
		Message: strings.Join(lines, "\n"),
	})
}

func (g *gotifyService) TestNotification(ctx context.Context) error {
	return g.send(ctx, payload{
		Title:   "Vigil - Test",
		Message: "Notification system test",
	})
}

// send fans the message out to every configured application token and
// joins per-token failures so one bad token does not hide the rest.
func (g *gotifyService) send(ctx context.Context, data payload) error {
	if g == nil || g.client == nil {
		return nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode gotify payload: %w", err)
	}

	var errs []error
	for _, token := range g.tokens {
		if err := g.sendOne(ctx, token, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *gotifyService) sendOne(ctx context.Context, token string, body []byte) error {
	endpoint := fmt.Sprintf("%s/message?token=%s", g.endpoint, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gotify request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send gotify notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gotify returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionStarted(context.Context, time.Time) error { return nil }
func (noopService) NotifySessionEndedAbnormally(context.Context, string) error {
	return nil
}
func (noopService) NotifyIdentityAway(context.Context, string, time.Time, time.Time, time.Duration) error {
	return nil
}
func (noopService) NotifySessionStats(context.Context, []string) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
