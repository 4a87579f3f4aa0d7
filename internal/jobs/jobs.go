// Package jobs runs the periodic maintenance work of the service on a cron
// schedule: warming the external calendar cache ahead of its fresh-TTL
// expiry and purging expired idempotency records.
//
// Runs of the same job never overlap; a run still in progress when the next
// tick fires makes that tick a no-op. Panics inside a job are recovered and
// logged. Each run is bounded by Config.Timeout.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/domain"
	"github.com/tbourn/go-meeting-backend/internal/repo"
)

// Job names, used as metric labels and log fields.
const (
	JobCalendarWarm     = "calendar_warm"
	JobIdempotencyPurge = "idempotency_purge"
)

var runs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_runs_total",
		Help: "Periodic job runs by job and result (ok, error).",
	},
	[]string{"job", "result"},
)

func init() {
	prometheus.MustRegister(runs)
}

// CalendarRefresher forces a refetch of the external calendar.
type CalendarRefresher interface {
	Refresh(ctx context.Context) ([]domain.ExternalEvent, error)
}

// Config holds the cron specs; an empty spec disables that job.
type Config struct {
	CalendarWarm     string
	IdempotencyPurge string
	// Timeout bounds a single run; zero means one minute.
	Timeout time.Duration
	// Location interprets the specs; nil means UTC.
	Location *time.Location
}

// Runner owns the cron scheduler.
type Runner struct {
	cron     *cron.Cron
	db       *gorm.DB
	calendar CalendarRefresher
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// New registers the enabled jobs. The calendar warm job is skipped when cal
// is nil, the purge job when db is nil. A malformed spec is an error.
func New(cfg Config, cal CalendarRefresher, db *gorm.DB) (*Runner, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	lg := log.With().Str("component", "jobs").Logger()
	cl := cronLogger{log: lg}

	r := &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		db:       db,
		calendar: cal,
		timeout:  timeout,
		now:      time.Now,
		log:      lg,
	}

	if cfg.CalendarWarm != "" && cal != nil {
		if err := r.add(JobCalendarWarm, cfg.CalendarWarm, r.WarmCalendar); err != nil {
			return nil, err
		}
	}
	if cfg.IdempotencyPurge != "" && db != nil {
		purge := func(ctx context.Context) error {
			_, err := r.PurgeIdempotency(ctx)
			return err
		}
		if err := r.add(JobIdempotencyPurge, cfg.IdempotencyPurge, purge); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) add(name, spec string, fn func(context.Context) error) error {
	_, err := r.cron.AddFunc(spec, func() { r.run(name, fn) })
	if err != nil {
		return fmt.Errorf("jobs: %s schedule %q: %w", name, spec, err)
	}
	r.log.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

func (r *Runner) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		runs.WithLabelValues(name, "error").Inc()
		r.log.Warn().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	runs.WithLabelValues(name, "ok").Inc()
	r.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job done")
}

// Jobs returns the number of scheduled jobs.
func (r *Runner) Jobs() int { return len(r.cron.Entries()) }

// Start runs the scheduler in its own goroutine.
func (r *Runner) Start() { r.cron.Start() }

// Stop stops scheduling and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WarmCalendar refetches the external calendar so readers keep hitting a
// fresh cache.
func (r *Runner) WarmCalendar(ctx context.Context) error {
	events, err := r.calendar.Refresh(ctx)
	if err != nil {
		return err
	}
	r.log.Debug().Int("events", len(events)).Msg("calendar cache warmed")
	return nil
}

// PurgeIdempotency deletes idempotency records past their replay window.
func (r *Runner) PurgeIdempotency(ctx context.Context) (int64, error) {
	n, err := repo.PurgeExpiredIdempotency(ctx, r.db, r.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info().Int64("deleted", n).Msg("expired idempotency records purged")
	}
	return n, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
