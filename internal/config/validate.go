package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError aggregates configuration problems into a single error.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "configuration invalid"
	}
	return "configuration invalid: " + strings.Join(e.Problems, "; ")
}

// Validate checks semantic constraints that normalization cannot repair.
func (c *Config) Validate() error {
	var problems []string

	if c.Presence.PollSeconds <= 0 {
		problems = append(problems, "presence.poll_seconds must be positive")
	}
	if c.Presence.StartHour < 0 || c.Presence.StartHour > 23 {
		problems = append(problems, "presence.start_hour must be between 0 and 23")
	}
	if c.Presence.EndHour < 0 || c.Presence.EndHour > 23 {
		problems = append(problems, "presence.end_hour must be between 0 and 23")
	}
	if c.Presence.StartHour >= 0 && c.Presence.EndHour <= c.Presence.StartHour {
		problems = append(problems, "presence.end_hour must be after presence.start_hour")
	}
	if c.Presence.BaseURL == "" {
		problems = append(problems, "presence.base_url is required")
	}
	if len(c.Roster()) == 0 {
		problems = append(problems, "presence.tracked_addresses must list at least one address")
	}
	for _, entry := range c.Roster() {
		if !strings.Contains(entry.Address, "@") {
			problems = append(problems, fmt.Sprintf("presence.tracked_addresses entry %q is not a contact address", entry.Address))
		}
	}
	if c.Gotify.URL != "" && len(c.Gotify.AppTokens) == 0 {
		problems = append(problems, "gotify.app_tokens must be set when gotify.url is configured")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidation reports whether an error is a configuration validation error.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
