// Command server runs the meeting scheduling API.
//
// @title        Meeting Scheduling API
// @version      1.0
// @description  Meeting scheduling, conflict resolution and calendar sync.
// @BasePath     /api/v1
package main

//go:generate swag init -g cmd/server/main.go -o docs -d ../..

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-meeting-backend/docs"
	"github.com/tbourn/go-meeting-backend/internal/calendar"
	"github.com/tbourn/go-meeting-backend/internal/calsync"
	"github.com/tbourn/go-meeting-backend/internal/config"
	httpapi "github.com/tbourn/go-meeting-backend/internal/http"
	"github.com/tbourn/go-meeting-backend/internal/jobs"
	"github.com/tbourn/go-meeting-backend/internal/merge"
	"github.com/tbourn/go-meeting-backend/internal/observability"
	"github.com/tbourn/go-meeting-backend/internal/prefsync"
	"github.com/tbourn/go-meeting-backend/internal/repo"
	"github.com/tbourn/go-meeting-backend/internal/services"
	"github.com/tbourn/go-meeting-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// backends are the external calendar collaborators selected by configuration.
type backends struct {
	source calendar.EventSource
	writer calendar.EventWriter
	rooms  calendar.RoomConfigurator
}

func selectCalendar(cfg config.Config) backends {
	cc := cfg.Calendar
	loc := cfg.Scheduling.Location

	switch cc.Mode() {
	case "google":
		opts := []calendar.Option{calendar.WithLocation(loc)}
		if cc.GoogleAPIBase != "" {
			opts = append(opts, calendar.WithBaseURL(cc.GoogleAPIBase))
		}
		if cc.GoogleMeetAPIBase != "" {
			opts = append(opts, calendar.WithMeetBaseURL(cc.GoogleMeetAPIBase))
		}
		if cc.GoogleRPS > 0 {
			opts = append(opts, calendar.WithRateLimit(cc.GoogleRPS, max(1, int(cc.GoogleRPS))))
		}
		g := calendar.NewGoogle(cc.GoogleCalendarID, calendar.StaticToken(cc.GoogleAccessToken), opts...)
		return backends{source: g, writer: g, rooms: g}
	case "ics":
		feed := calendar.NewICSFeed(cc.ICSFeedURL, &http.Client{Timeout: 15 * time.Second}, loc)
		return backends{source: feed, writer: calendar.Disabled{}, rooms: calendar.Disabled{}}
	default:
		return backends{source: calendar.Empty{}, writer: calendar.Disabled{}, rooms: calendar.Disabled{}}
	}
}

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.ConfigureLogger(nil, cfg.Log.Level, cfg.OTEL.ServiceName, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, observability.DeploymentAttributes(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	var dbOpts []repo.Option
	if cfg.OTEL.Enabled {
		dbOpts = append(dbOpts, repo.WithTracing())
	}
	if cfg.Server.GinMode == gin.ReleaseMode {
		dbOpts = append(dbOpts, repo.WithSilentLogger())
	}
	db, err := repo.OpenSQLite(cfg.DBPath, dbOpts...)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	lookback, lookahead := cfg.Merge.Lookback(), cfg.Merge.Lookahead()

	cal := selectCalendar(cfg)
	external := calsync.New(cal.source, calsync.Config{
		FreshTTL:    cfg.Calendar.FreshTTL,
		StaleTTL:    cfg.Calendar.StaleTTL,
		WaitTimeout: cfg.Calendar.WaitTimeout,
		SoftTTL:     cfg.Calendar.SoftTTL,
		Lookback:    lookback,
		Lookahead:   lookahead,
	}, calsync.WithLogger(log.With().Str("component", "calsync").Logger()))

	store := repo.NewStore(db)
	names := merge.NewNameCache(store, cfg.Merge.NameCacheTTL, nil, log.With().Str("component", "names").Logger())
	merged := merge.New(store, names, merge.Config{
		CacheTTL:  cfg.Merge.CacheTTL,
		Lookback:  lookback,
		Lookahead: lookahead,
	}, nil)

	prefs := prefsync.New(cal.rooms, prefsync.Config{
		MaxRetries:      cfg.Prefs.MaxRetries,
		BackoffBase:     cfg.Prefs.BackoffBase,
		AuthCooldown:    cfg.Prefs.AuthCooldown,
		FailureCooldown: cfg.Prefs.FailureCooldown,
	}, nil)

	svc := &services.MeetingService{
		DB:              db,
		Writer:          cal.writer,
		External:        external,
		Merged:          merged,
		Prefs:           prefs,
		MinGap:          cfg.Scheduling.MinGap,
		MaxSeriesLength: cfg.Scheduling.MaxSeriesLength,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		Location:        cfg.Scheduling.Location,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	runner, err := jobs.New(jobs.Config{
		CalendarWarm:     cfg.Jobs.CalendarWarm,
		IdempotencyPurge: cfg.Jobs.IdempotencyPurge,
		Location:         cfg.Scheduling.Location,
	}, external, db)
	if err != nil {
		log.Fatal().Err(err).Msg("job schedule invalid")
	}
	runner.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("calendar", cfg.Calendar.Mode()).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("jobs shutdown")
	}
	prefs.Close()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
