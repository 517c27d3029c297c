package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.ReportDir, err = expandPath(c.Paths.ReportDir); err != nil {
		return err
	}

	c.Presence.BaseURL = strings.TrimRight(strings.TrimSpace(c.Presence.BaseURL), "/")
	c.Presence.AccessToken = strings.TrimSpace(c.Presence.AccessToken)
	c.Gotify.URL = strings.TrimRight(strings.TrimSpace(c.Gotify.URL), "/")

	tokens := c.Gotify.AppTokens[:0]
	for _, token := range c.Gotify.AppTokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	c.Gotify.AppTokens = tokens

	if c.Presence.RequestTimeout <= 0 {
		c.Presence.RequestTimeout = defaultRequestTimeout
	}
	if c.Gotify.RequestTimeout <= 0 {
		c.Gotify.RequestTimeout = defaultRequestTimeout
	}
	if c.Report.WindowDays <= 0 {
		c.Report.WindowDays = defaultReportDays
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
