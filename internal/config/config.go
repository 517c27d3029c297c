package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	ReportDir string `toml:"report_dir"`
}

// Presence contains configuration for the remote presence source and the
// tracking schedule.
type Presence struct {
	BaseURL          string   `toml:"base_url"`
	AccessToken      string   `toml:"access_token"`
	PollSeconds      int      `toml:"poll_seconds"`
	StartHour        int      `toml:"start_hour"`
	EndHour          int      `toml:"end_hour"`
	RequestTimeout   int      `toml:"request_timeout"`
	TrackedAddresses []string `toml:"tracked_addresses"`
}

// Gotify contains configuration for Gotify push notifications.
type Gotify struct {
	URL            string   `toml:"url"`
	AppTokens      []string `toml:"app_tokens"`
	RequestTimeout int      `toml:"request_timeout"`
	Lifecycle      bool     `toml:"lifecycle"`
	Away           bool     `toml:"away"`
	Stats          bool     `toml:"stats"`
}

// Report contains configuration for report and timeline output.
type Report struct {
	WindowDays int `toml:"window_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Vigil.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and report directories
//   - Presence: remote presence source, polling cadence, schedule, roster
//   - Gotify: push notification endpoint and per-event toggles
//   - Report: aggregation window for reports and timelines
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Presence Presence `toml:"presence"`
	Gotify   Gotify   `toml:"gotify"`
	Report   Report   `toml:"report"`
	Logging  Logging  `toml:"logging"`
}

// RosterEntry is one tracked identity as declared in configuration. The
// severity level is the count of leading '+' markers on the address.
type RosterEntry struct {
	Address  string
	Severity int
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vigil/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vigil.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for a tracking run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.ReportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Roster returns the tracked identities with severity markers stripped and
// counted. Duplicate addresses keep the highest declared severity.
func (c *Config) Roster() []RosterEntry {
	seen := make(map[string]int, len(c.Presence.TrackedAddresses))
	order := make([]string, 0, len(c.Presence.TrackedAddresses))
	for _, raw := range c.Presence.TrackedAddresses {
		severity := 0
		address := strings.TrimSpace(raw)
		for strings.HasPrefix(address, "+") {
			severity++
			address = address[1:]
		}
		address = strings.ToLower(strings.TrimSpace(address))
		if address == "" {
			continue
		}
		if existing, ok := seen[address]; ok {
			if severity > existing {
				seen[address] = severity
			}
			continue
		}
		seen[address] = severity
		order = append(order, address)
	}

	roster := make([]RosterEntry, 0, len(order))
	for _, address := range order {
		roster = append(roster, RosterEntry{Address: address, Severity: seen[address]})
	}
	return roster
}

// SeverityFor returns the configured severity level for a contact address.
func (c *Config) SeverityFor(address string) int {
	address = strings.ToLower(strings.TrimSpace(address))
	for _, entry := range c.Roster() {
		if entry.Address == address {
			return entry.Severity
		}
	}
	return 0
}

// DatabasePath returns the location of the tracker database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "vigil.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vigil.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
