package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[presence]
access_token = "token"
tracked_addresses = ["alice@example.com"]
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Presence.PollSeconds != 60 {
		t.Fatalf("expected default poll seconds 60, got %d", cfg.Presence.PollSeconds)
	}
	if cfg.Presence.StartHour != 9 || cfg.Presence.EndHour != 15 {
		t.Fatalf("unexpected default schedule: %d-%d", cfg.Presence.StartHour, cfg.Presence.EndHour)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvertedSchedule(t *testing.T) {
	path := writeConfig(t, `
[presence]
tracked_addresses = ["alice@example.com"]
start_hour = 15
end_hour = 9
`)

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for inverted schedule")
	}
	if !config.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "end_hour") {
		t.Fatalf("expected end_hour in error, got %v", err)
	}
}

func TestLoadRequiresRoster(t *testing.T) {
	path := writeConfig(t, `
[presence]
access_token = "token"
`)

	_, _, _, err := config.Load(path)
	if !config.IsValidation(err) {
		t.Fatalf("expected validation error for empty roster, got %v", err)
	}
}

func TestRosterSeverityMarkers(t *testing.T) {
	cfg := config.Default()
	cfg.Presence.TrackedAddresses = []string{
		"+++Alice@Example.com",
		"bob@example.com",
		"+carol@example.com",
		"bob@example.com",
	}

	roster := cfg.Roster()
	if len(roster) != 3 {
		t.Fatalf("expected 3 roster entries, got %d", len(roster))
	}
	if roster[0].Address != "alice@example.com" || roster[0].Severity != 3 {
		t.Fatalf("unexpected first entry: %+v", roster[0])
	}
	if roster[1].Address != "bob@example.com" || roster[1].Severity != 0 {
		t.Fatalf("unexpected second entry: %+v", roster[1])
	}
	if cfg.SeverityFor("CAROL@example.com") != 1 {
		t.Fatalf("expected severity 1 for carol, got %d", cfg.SeverityFor("carol@example.com"))
	}
}

func TestRosterKeepsHighestSeverityForDuplicates(t *testing.T) {
	cfg := config.Default()
	cfg.Presence.TrackedAddresses = []string{"alice@example.com", "++alice@example.com"}

	roster := cfg.Roster()
	if len(roster) != 1 {
		t.Fatalf("expected 1 roster entry, got %d", len(roster))
	}
	if roster[0].Severity != 2 {
		t.Fatalf("expected severity 2, got %d", roster[0].Severity)
	}
}

func TestGotifyTokensRequiredWithURL(t *testing.T) {
	path := writeConfig(t, `
[presence]
tracked_addresses = ["alice@example.com"]

[gotify]
url = "https://push.example.com"
`)

	_, _, _, err := config.Load(path)
	if !config.IsValidation(err) {
		t.Fatalf("expected validation error for missing tokens, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[presence]") {
		t.Fatal("expected sample to contain a presence section")
	}
}
