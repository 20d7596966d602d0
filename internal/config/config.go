package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment
// variables. It is constructed once at startup and passed by reference;
// nothing mutates it after Load.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"` // ops server, schedule mode only

	// Linear (source feed)
	LinearAPIKey       string `envconfig:"LINEAR_API_KEY" required:"true"`
	LinearAPIURL       string `envconfig:"LINEAR_API_URL" default:"https://api.linear.app/graphql"`
	LinearIssueLimit   int    `envconfig:"LINEAR_ISSUE_LIMIT" default:"200"`
	LinearProjectLimit int    `envconfig:"LINEAR_PROJECT_LIMIT" default:"100"`

	// Google Calendar (event store)
	// Credentials: path takes precedence over inline JSON, matching the
	// GOOGLE_APPLICATION_CREDENTIALS convention.
	CalendarID            string `envconfig:"GCAL_CALENDAR_ID" default:"primary"`
	GoogleCredentialsPath string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	GoogleCredentialsJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	Timezone              string `envconfig:"TIMEZONE" default:"UTC"` // display zone for timed events

	// Engine
	SearchWindowDays int    `envconfig:"SEARCH_WINDOW_DAYS" default:"365"` // half-width of the correlation window
	Workers          int    `envconfig:"SYNC_WORKERS" default:"1"`
	Schedule         string `envconfig:"SYNC_SCHEDULE"` // cron expression; empty = run once and exit
}

// ScheduleEnabled returns true if the agent should run as a long-lived
// scheduler instead of a one-shot sync.
func (c *Config) ScheduleEnabled() bool {
	return c.Schedule != ""
}

// GoogleCredentialsConfigured returns true if either credential source is set.
func (c *Config) GoogleCredentialsConfigured() bool {
	return c.GoogleCredentialsPath != "" || c.GoogleCredentialsJSON != ""
}

// Validate checks invariants that envconfig tags cannot express. A required
// tag does not reject a variable set to the empty string, so the key is
// re-checked here.
func (c *Config) Validate() error {
	if c.LinearAPIKey == "" {
		return fmt.Errorf("LINEAR_API_KEY must not be empty")
	}
	if !c.GoogleCredentialsConfigured() {
		return fmt.Errorf("missing Google credentials: set GOOGLE_APPLICATION_CREDENTIALS (path) or GOOGLE_SERVICE_ACCOUNT_JSON (content)")
	}
	if c.SearchWindowDays <= 0 {
		return fmt.Errorf("SEARCH_WINDOW_DAYS must be positive, got %d", c.SearchWindowDays)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SYNC_WORKERS must be positive, got %d", c.Workers)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
