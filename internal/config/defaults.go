package config

const (
	defaultStateDir        = "~/.local/share/vigil"
	defaultLogDir          = "~/.local/share/vigil/logs"
	defaultReportDir       = "~/.local/share/vigil/reports"
	defaultPresenceBaseURL = "https://graph.microsoft.com/v1.0"
	defaultPollSeconds     = 60
	defaultStartHour       = 9
	defaultEndHour         = 15
	defaultRequestTimeout  = 10
	defaultReportDays      = 30
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			ReportDir: defaultReportDir,
		},
		Presence: Presence{
			BaseURL:        defaultPresenceBaseURL,
			PollSeconds:    defaultPollSeconds,
			StartHour:      defaultStartHour,
			EndHour:        defaultEndHour,
			RequestTimeout: defaultRequestTimeout,
		},
		Gotify: Gotify{
			RequestTimeout: defaultRequestTimeout,
			Lifecycle:      true,
			Away:           true,
			Stats:          true,
		},
		Report: Report{
			WindowDays: defaultReportDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
