package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func setenv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	s := cfg.Server
	if s.Addr() != ":8080" || s.BasePath != "/api/v1" || s.GinMode != "release" || s.MaxBodyBytes != 1<<20 || s.Swagger {
		t.Fatalf("server defaults unexpected: %+v", s)
	}
	if cfg.Log.Level != "info" || cfg.Log.Pretty {
		t.Fatalf("log defaults unexpected: %+v", cfg.Log)
	}
	if cfg.DBPath != "app.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.Calendar.Mode() != "none" {
		t.Fatalf("expected no external calendar, got %q", cfg.Calendar.Mode())
	}
	if cfg.Scheduling.MinGap != 2*time.Minute || cfg.Scheduling.Location != time.UTC || cfg.Scheduling.MaxSeriesLength != 366 {
		t.Fatalf("scheduling defaults unexpected: %+v", cfg.Scheduling)
	}
	if cfg.Merge.Lookback() != 60*24*time.Hour || cfg.Merge.Lookahead() != 180*24*time.Hour {
		t.Fatalf("merge window unexpected: %+v", cfg.Merge)
	}
	if cfg.Jobs.CalendarWarm != "*/4 * * * *" || cfg.Jobs.IdempotencyPurge != "@hourly" {
		t.Fatalf("jobs defaults unexpected: %+v", cfg.Jobs)
	}
	if cfg.Identity.DefaultUserID != "demo-user" || !cfg.Identity.TrustAdminHeader {
		t.Fatalf("identity defaults unexpected: %+v", cfg.Identity)
	}
	if cfg.RateLimit != (RateLimitConfig{RPS: 5, Burst: 10}) {
		t.Fatalf("rate limit defaults unexpected: %+v", cfg.RateLimit)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.Security.HSTSMaxAge != 180*24*time.Hour || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("web defaults unexpected: %+v %+v %v", cfg.CORS, cfg.Security, cfg.IdempotencyTTL)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "go-meeting-backend" {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "3s",
		"MAX_BODY_BYTES":              "4096",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v2/",
		"DB_PATH":                     "db.sqlite",
		"GOOGLE_CALENDAR_ID":          " team@example.com ",
		"GOOGLE_ACCESS_TOKEN":         "tok",
		"CAL_FRESH_TTL":               "2m",
		"CAL_STALE_TTL":               "10m",
		"MIN_GAP":                     "-1s",
		"MAX_SERIES_LENGTH":           "50",
		"TIMEZONE":                    "Europe/Athens",
		"MERGE_FUTURE_DAYS":           "30",
		"PREFS_MAX_RETRIES":           "5",
		"CALENDAR_WARM_CRON":          "  ",
		"IDEMPOTENCY_PURGE_CRON":      "OFF",
		"DEFAULT_USER_ID":             " guest ",
		"TRUST_ADMIN_HEADER":          "false",
		"RATE_RPS":                    "0.5",
		"RATE_BURST":                  "3",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	s := cfg.Server
	if s.Port != "8088" || s.ReadTimeout != 2*time.Second || s.WriteTimeout != 3*time.Second || s.MaxBodyBytes != 4096 {
		t.Fatalf("server unexpected: %+v", s)
	}
	if s.GinMode != "release" || s.BasePath != "/api/v2" || !s.Swagger {
		t.Fatalf("server normalization unexpected: %+v", s)
	}
	if cfg.Log != (LogConfig{Level: "warn", Pretty: true}) {
		t.Fatalf("log unexpected: %+v", cfg.Log)
	}
	cal := cfg.Calendar
	if cal.Mode() != "google" || cal.GoogleCalendarID != "team@example.com" || cal.FreshTTL != 2*time.Minute || cal.StaleTTL != 10*time.Minute {
		t.Fatalf("calendar unexpected: %+v", cal)
	}
	if cfg.Scheduling.MinGap != -time.Second || cfg.Scheduling.MaxSeriesLength != 50 || cfg.Scheduling.Location.String() != "Europe/Athens" {
		t.Fatalf("scheduling unexpected: %+v", cfg.Scheduling)
	}
	if cfg.Merge.FutureDays != 30 || cfg.Prefs.MaxRetries != 5 {
		t.Fatalf("merge/prefs unexpected: %+v %+v", cfg.Merge, cfg.Prefs)
	}
	// Blank keeps the default spec; "off" disables.
	if cfg.Jobs.CalendarWarm != "*/4 * * * *" || cfg.Jobs.IdempotencyPurge != "" {
		t.Fatalf("jobs unexpected: %+v", cfg.Jobs)
	}
	if cfg.Identity.DefaultUserID != "guest" || cfg.Identity.TrustAdminHeader {
		t.Fatalf("identity unexpected: %+v", cfg.Identity)
	}
	if cfg.RateLimit != (RateLimitConfig{RPS: 0.5, Burst: 3}) {
		t.Fatalf("rate limit unexpected: %+v", cfg.RateLimit)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour || cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("security unexpected: %+v %v", cfg.Security, cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_MalformedValuesReportedTogether(t *testing.T) {
	setenv(t, map[string]string{
		"RATE_RPS":     "x",
		"RATE_BURST":   "nope",
		"READ_TIMEOUT": "soon",
		"OTEL_ENABLED": "maybe",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"RATE_RPS", "RATE_BURST", "READ_TIMEOUT", "OTEL_ENABLED"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"timeout", map[string]string{"IDLE_TIMEOUT": "0s"}, "IDLE_TIMEOUT must be a positive duration"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"body bytes", map[string]string{"MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES"},
		{"timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
		{"series length", map[string]string{"MAX_SERIES_LENGTH": "0"}, "MAX_SERIES_LENGTH"},
		{"fresh ttl", map[string]string{"CAL_FRESH_TTL": "0s"}, "CAL_FRESH_TTL"},
		{"stale before fresh", map[string]string{"CAL_FRESH_TTL": "10m", "CAL_STALE_TTL": "5m"}, "CAL_STALE_TTL"},
		{"google rps", map[string]string{"GOOGLE_RPS": "0"}, "GOOGLE_RPS"},
		{"google without token", map[string]string{"GOOGLE_CALENDAR_ID": "primary"}, "GOOGLE_ACCESS_TOKEN"},
		{"merge ttl", map[string]string{"NAME_CACHE_TTL": "0s"}, "NAME_CACHE_TTL"},
		{"merge window", map[string]string{"MERGE_FUTURE_DAYS": "0"}, "MERGE_FUTURE_DAYS"},
		{"prefs retries", map[string]string{"PREFS_MAX_RETRIES": "0"}, "PREFS_MAX_RETRIES"},
		{"prefs backoff", map[string]string{"PREFS_BACKOFF_BASE": "0s"}, "PREFS_BACKOFF_BASE"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setenv(t, tc.env)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	if cfg := MustLoad(); cfg.Server.Port == "" {
		t.Fatal("MustLoad returned an empty config")
	}

	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestEnv_Readers(t *testing.T) {
	vars := map[string]string{
		"S": "  value ", "BLANK": "   ", "N": "42", "F": "1.5", "B": "No", "D": "90s",
		"L": "a,, b ,", "CRON": "Off", "BAD": "??",
	}
	e := &env{lookup: func(k string) (string, bool) { v, ok := vars[k]; return v, ok }}

	if e.str("S", "d") != "value" || e.str("BLANK", "d") != "d" || e.str("MISSING", "d") != "d" {
		t.Fatal("str")
	}
	if e.integer("N", 0) != 42 || e.float("F", 0) != 1.5 || e.boolean("B", true) || e.duration("D", 0) != 90*time.Second {
		t.Fatal("typed readers")
	}
	if got := e.list("L"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("list = %#v", got)
	}
	if e.list("MISSING") != nil {
		t.Fatal("missing list should be nil")
	}
	if e.cron("CRON", "@hourly") != "" || e.cron("MISSING", "@hourly") != "@hourly" {
		t.Fatal("cron")
	}
	if e.err() != nil {
		t.Fatalf("unexpected error: %v", e.err())
	}

	if e.integer("BAD", 7) != 7 || e.boolean("BAD", true) != true {
		t.Fatal("malformed values keep the default")
	}
	if err := e.err(); err == nil || strings.Count(err.Error(), "BAD") != 2 {
		t.Fatalf("err = %v", err)
	}
}

func TestBasePath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"  ":        "/",
		"/":         "/",
		"api/v1":    "/api/v1",
		"/api/v1/":  "/api/v1",
		" /api/v1 ": "/api/v1",
	}
	for in, want := range cases {
		if got := basePath(in); got != want {
			t.Errorf("basePath(%q) = %q, want %q", in, got, want)
		}
	}
}
