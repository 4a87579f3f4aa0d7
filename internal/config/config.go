// Package config provides application configuration loaded from environment
// variables with defaults and validation. Settings are grouped by concern:
// the HTTP server, logging, storage, the external calendar, scheduling rules,
// caches, background jobs, web protection and observability.
//
// Every variable is optional. A malformed value (an unparsable number,
// duration or boolean) is an error rather than a silent fallback, and Load
// reports all malformed variables at once.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServerConfig holds the HTTP listener and routing settings.
type ServerConfig struct {
	Port              string        // PORT
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	MaxHeaderBytes    int           // MAX_HEADER_BYTES
	MaxBodyBytes      int64         // MAX_BODY_BYTES
	GinMode           string        // GIN_MODE: debug|release|test
	BasePath          string        // API_BASE_PATH
	Swagger           bool          // SWAGGER_ENABLED
}

// Addr is the listen address for net/http.
func (s ServerConfig) Addr() string { return ":" + s.Port }

func (s ServerConfig) validate() error {
	if s.Port == "" {
		return errors.New("PORT must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"READ_TIMEOUT":        s.ReadTimeout,
		"READ_HEADER_TIMEOUT": s.ReadHeaderTimeout,
		"WRITE_TIMEOUT":       s.WriteTimeout,
		"IDLE_TIMEOUT":        s.IdleTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if s.MaxHeaderBytes <= 0 || s.MaxBodyBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES and MAX_BODY_BYTES must be > 0")
	}
	return nil
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level  string // LOG_LEVEL: debug|info|warn|error|fatal|panic
	Pretty bool   // LOG_PRETTY, console output for development
}

func (l LogConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	}
	return fmt.Errorf("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", l.Level)
}

// CalendarConfig selects and tunes the external calendar. When
// GoogleCalendarID is set the Google client is used; otherwise ICSFeedURL
// (read-only) if set; otherwise no external calendar is configured.
type CalendarConfig struct {
	GoogleCalendarID  string  // GOOGLE_CALENDAR_ID
	GoogleAccessToken string  // GOOGLE_ACCESS_TOKEN
	GoogleAPIBase     string  // GOOGLE_API_BASE
	GoogleMeetAPIBase string  // GOOGLE_MEET_API_BASE
	GoogleRPS         float64 // GOOGLE_RPS
	ICSFeedURL        string  // ICS_FEED_URL

	FreshTTL    time.Duration // CAL_FRESH_TTL
	StaleTTL    time.Duration // CAL_STALE_TTL
	WaitTimeout time.Duration // CAL_WAIT_TIMEOUT
	SoftTTL     time.Duration // CAL_SOFT_TTL
}

// Mode reports which external calendar the configuration selects:
// "google", "ics" or "none".
func (c CalendarConfig) Mode() string {
	switch {
	case c.GoogleCalendarID != "":
		return "google"
	case c.ICSFeedURL != "":
		return "ics"
	default:
		return "none"
	}
}

func (c CalendarConfig) validate() error {
	if c.FreshTTL <= 0 || c.WaitTimeout <= 0 || c.SoftTTL <= 0 {
		return errors.New("CAL_FRESH_TTL, CAL_WAIT_TIMEOUT and CAL_SOFT_TTL must be > 0")
	}
	if c.StaleTTL < c.FreshTTL {
		return errors.New("CAL_STALE_TTL must be >= CAL_FRESH_TTL")
	}
	if c.GoogleRPS <= 0 {
		return errors.New("GOOGLE_RPS must be > 0")
	}
	if c.GoogleCalendarID != "" && c.GoogleAccessToken == "" {
		return errors.New("GOOGLE_ACCESS_TOKEN is required with GOOGLE_CALENDAR_ID")
	}
	return nil
}

// SchedulingConfig holds the booking rules.
type SchedulingConfig struct {
	MinGap          time.Duration  // MIN_GAP; negative disables the gap
	MaxSeriesLength int            // MAX_SERIES_LENGTH
	Timezone        string         // TIMEZONE (IANA name)
	Location        *time.Location // resolved from Timezone
}

func (s *SchedulingConfig) resolve() error {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	s.Location = loc
	if s.MaxSeriesLength < 1 {
		return errors.New("MAX_SERIES_LENGTH must be >= 1")
	}
	return nil
}

// MergeConfig tunes the merged calendar view.
type MergeConfig struct {
	CacheTTL     time.Duration // MERGE_CACHE_TTL
	PastDays     int           // MERGE_PAST_DAYS
	FutureDays   int           // MERGE_FUTURE_DAYS
	NameCacheTTL time.Duration // NAME_CACHE_TTL
}

// Lookback is the past part of the merged window.
func (m MergeConfig) Lookback() time.Duration { return time.Duration(m.PastDays) * 24 * time.Hour }

// Lookahead is the future part of the merged window.
func (m MergeConfig) Lookahead() time.Duration { return time.Duration(m.FutureDays) * 24 * time.Hour }

func (m MergeConfig) validate() error {
	if m.CacheTTL <= 0 || m.NameCacheTTL <= 0 {
		return errors.New("MERGE_CACHE_TTL and NAME_CACHE_TTL must be > 0")
	}
	if m.PastDays < 0 || m.FutureDays < 1 {
		return errors.New("MERGE_PAST_DAYS must be >= 0 and MERGE_FUTURE_DAYS >= 1")
	}
	return nil
}

// PrefsConfig tunes the background room preference sync.
type PrefsConfig struct {
	MaxRetries      int           // PREFS_MAX_RETRIES
	BackoffBase     time.Duration // PREFS_BACKOFF_BASE
	AuthCooldown    time.Duration // PREFS_AUTH_COOLDOWN
	FailureCooldown time.Duration // PREFS_FAILURE_COOLDOWN
}

func (p PrefsConfig) validate() error {
	if p.MaxRetries < 1 {
		return errors.New("PREFS_MAX_RETRIES must be >= 1")
	}
	if p.BackoffBase <= 0 || p.AuthCooldown <= 0 || p.FailureCooldown <= 0 {
		return errors.New("PREFS_BACKOFF_BASE, PREFS_AUTH_COOLDOWN and PREFS_FAILURE_COOLDOWN must be > 0")
	}
	return nil
}

// IdentityConfig controls how the viewer is derived from request headers.
type IdentityConfig struct {
	DefaultUserID    string // DEFAULT_USER_ID, used when X-User-ID is absent
	TrustAdminHeader bool   // TRUST_ADMIN_HEADER, honour X-User-Admin for unknown users
}

// JobsConfig holds cron specs for periodic jobs. The value "off" disables a
// job and leaves its spec empty.
type JobsConfig struct {
	CalendarWarm     string // CALENDAR_WARM_CRON
	IdempotencyPurge string // IDEMPOTENCY_PURGE_CRON
}

// RateLimitConfig sizes the per-viewer token bucket.
type RateLimitConfig struct {
	RPS   float64 // RATE_RPS, zero blocks everything but exempt paths
	Burst int     // RATE_BURST
}

func (r RateLimitConfig) validate() error {
	if r.RPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if r.Burst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	return nil
}

// CORSConfig defines Cross-Origin Resource Sharing settings. No origins
// means any origin is allowed without credentials.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS
}

// SecurityConfig defines HSTS settings.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

func (o OTELConfig) validate() error {
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// Config holds all configuration values for the application.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	DBPath string // DB_PATH, SQLite file

	Calendar   CalendarConfig
	Scheduling SchedulingConfig
	Merge      MergeConfig
	Prefs      PrefsConfig
	Jobs       JobsConfig
	Identity   IdentityConfig

	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Security       SecurityConfig
	IdempotencyTTL time.Duration // IDEMPOTENCY_TTL, replay window of an Idempotency-Key

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if it is invalid.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	e := newEnv()
	cfg := Config{
		Server: ServerConfig{
			Port:              e.str("PORT", "8080"),
			ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       e.duration("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
			MaxBodyBytes:      int64(e.integer("MAX_BODY_BYTES", 1<<20)),
			GinMode:           e.lower("GIN_MODE", "release"),
			BasePath:          basePath(e.str("API_BASE_PATH", "/api/v1")),
			Swagger:           e.boolean("SWAGGER_ENABLED", false),
		},
		Log: LogConfig{
			Level:  e.lower("LOG_LEVEL", "info"),
			Pretty: e.boolean("LOG_PRETTY", false),
		},
		DBPath: e.str("DB_PATH", "app.db"),

		Calendar: CalendarConfig{
			GoogleCalendarID:  e.str("GOOGLE_CALENDAR_ID", ""),
			GoogleAccessToken: e.str("GOOGLE_ACCESS_TOKEN", ""),
			GoogleAPIBase:     e.str("GOOGLE_API_BASE", ""),
			GoogleMeetAPIBase: e.str("GOOGLE_MEET_API_BASE", ""),
			GoogleRPS:         e.float("GOOGLE_RPS", 5.0),
			ICSFeedURL:        e.str("ICS_FEED_URL", ""),
			FreshTTL:          e.duration("CAL_FRESH_TTL", 5*time.Minute),
			StaleTTL:          e.duration("CAL_STALE_TTL", 15*time.Minute),
			WaitTimeout:       e.duration("CAL_WAIT_TIMEOUT", 5*time.Second),
			SoftTTL:           e.duration("CAL_SOFT_TTL", 30*time.Second),
		},
		Scheduling: SchedulingConfig{
			MinGap:          e.duration("MIN_GAP", 2*time.Minute),
			MaxSeriesLength: e.integer("MAX_SERIES_LENGTH", 366),
			Timezone:        e.str("TIMEZONE", "UTC"),
		},
		Merge: MergeConfig{
			CacheTTL:     e.duration("MERGE_CACHE_TTL", 90*time.Second),
			PastDays:     e.integer("MERGE_PAST_DAYS", 60),
			FutureDays:   e.integer("MERGE_FUTURE_DAYS", 180),
			NameCacheTTL: e.duration("NAME_CACHE_TTL", 5*time.Minute),
		},
		Prefs: PrefsConfig{
			MaxRetries:      e.integer("PREFS_MAX_RETRIES", 3),
			BackoffBase:     e.duration("PREFS_BACKOFF_BASE", 500*time.Millisecond),
			AuthCooldown:    e.duration("PREFS_AUTH_COOLDOWN", 30*time.Minute),
			FailureCooldown: e.duration("PREFS_FAILURE_COOLDOWN", 5*time.Minute),
		},
		Jobs: JobsConfig{
			CalendarWarm:     e.cron("CALENDAR_WARM_CRON", "*/4 * * * *"),
			IdempotencyPurge: e.cron("IDEMPOTENCY_PURGE_CRON", "@hourly"),
		},
		Identity: IdentityConfig{
			DefaultUserID:    e.str("DEFAULT_USER_ID", "demo-user"),
			TrustAdminHeader: e.boolean("TRUST_ADMIN_HEADER", true),
		},

		RateLimit: RateLimitConfig{
			RPS:   e.float("RATE_RPS", 5.0),
			Burst: e.integer("RATE_BURST", 10),
		},
		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		IdempotencyTTL: e.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-meeting-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if err := e.err(); err != nil {
		return cfg, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		c.Server.GinMode = "release"
	}
}

func (c *Config) validate() error {
	if err := c.Log.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if err := c.Scheduling.resolve(); err != nil {
		return err
	}
	checks := []interface{ validate() error }{c.Calendar, c.Merge, c.Prefs, c.RateLimit, c.OTEL}
	for _, s := range checks {
		if err := s.validate(); err != nil {
			return err
		}
	}
	if c.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	return nil
}
