package testsupport

import (
	"path/filepath"
	"testing"

	"vigil/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ReportDir = filepath.Join(base, "reports")
	cfg.Presence.AccessToken = "test-token"
	cfg.Presence.TrackedAddresses = []string{"alice@example.com", "bob@example.com"}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRoster overrides the tracked addresses on the test config.
func WithRoster(addresses ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Presence.TrackedAddresses = addresses
	}
}

// WithSchedule overrides the tracked hours on the test config.
func WithSchedule(startHour, endHour int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Presence.StartHour = startHour
		cfg.Presence.EndHour = endHour
	}
}
