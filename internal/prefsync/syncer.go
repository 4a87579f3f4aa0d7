// Package prefsync pushes per-meeting room preferences to the conferencing
// service in the background.
//
// A sync is skipped when the meeting has no conferencing link or while a
// process-wide cooldown is active. Otherwise it retries with exponential
// backoff. An authorization failure stops retrying at once and starts the
// long cooldown; exhausting every attempt starts the short one. At most
// one job per meeting runs at a time: a request arriving while that job
// runs is folded into a single follow-up carrying the latest preferences.
package prefsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meeting-backend/internal/calendar"
	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// Outcome is the result class of one sync.
type Outcome string

const (
	// OutcomeSynced means the preferences were applied.
	OutcomeSynced Outcome = "synced"
	// OutcomeNoLink means there was nothing to sync.
	OutcomeNoLink Outcome = "no_link"
	// OutcomeCoolingDown means syncing is temporarily disabled.
	OutcomeCoolingDown Outcome = "cooling_down"
	// OutcomeUnauthorized means the service rejected our credentials.
	OutcomeUnauthorized Outcome = "unauthorized"
	// OutcomeFailed means every attempt failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeNotConfigured means no conferencing service is configured.
	OutcomeNotConfigured Outcome = "not_configured"
)

// Soft reports whether the outcome is a skip rather than a failure.
func (o Outcome) Soft() bool {
	return o == OutcomeNoLink || o == OutcomeCoolingDown || o == OutcomeNotConfigured
}

var attempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prefsync_attempts_total",
		Help: "Room preference sync results by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(attempts)
}

// Config tunes retries and cooldowns. Zero fields take defaults.
type Config struct {
	MaxRetries      int
	BackoffBase     time.Duration
	AuthCooldown    time.Duration
	FailureCooldown time.Duration
	// JobTimeout bounds one background job, retries included.
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.AuthCooldown <= 0 {
		c.AuthCooldown = 30 * time.Minute
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = 5 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	return c
}

type job struct {
	link string
	cfg  domain.Configuration
}

// Syncer runs preference syncs. Construct with New and stop with Close.
type Syncer struct {
	rooms calendar.RoomConfigurator
	cfg   Config
	now   func() time.Time
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	disabledUntil time.Time
	// running holds meeting ids with an active job; a non-nil value is the
	// follow-up to run once the active job ends.
	running map[uint]*job
}

// New builds a Syncer. now may be nil.
func New(rooms calendar.RoomConfigurator, cfg Config, now func() time.Time) *Syncer {
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		rooms:   rooms,
		cfg:     cfg.withDefaults(),
		now:     now,
		log:     log.With().Str("component", "prefsync").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		running: map[uint]*job{},
	}
}

// DisabledUntil returns the end of the current cooldown (zero if none).
func (s *Syncer) DisabledUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabledUntil
}

// Enqueue schedules a background sync of m and returns immediately. It
// reports false when m has no conferencing link.
func (s *Syncer) Enqueue(m domain.Meeting) bool {
	if !m.HasConferencing() {
		attempts.WithLabelValues(string(OutcomeNoLink)).Inc()
		return false
	}
	j := &job{link: *m.ConferencingLink, cfg: m.Configuration}

	s.mu.Lock()
	if _, busy := s.running[m.ID]; busy {
		s.running[m.ID] = j
		s.mu.Unlock()
		return true
	}
	s.running[m.ID] = nil
	s.wg.Add(1)
	s.mu.Unlock()

	go s.worker(m.ID, j)
	return true
}

func (s *Syncer) worker(id uint, j *job) {
	defer s.wg.Done()
	for j != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
		outcome, err := s.apply(ctx, j.link, j.cfg)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Uint("meeting_id", id).Str("outcome", string(outcome)).Msg("room preference sync failed")
		}

		s.mu.Lock()
		j = s.running[id]
		if j == nil {
			delete(s.running, id)
		} else {
			s.running[id] = nil
		}
		s.mu.Unlock()
	}
}

// Wait blocks until every queued job has finished.
func (s *Syncer) Wait() { s.wg.Wait() }

// Close cancels running jobs and waits for them to return.
func (s *Syncer) Close() {
	s.cancel()
	s.wg.Wait()
}

// Sync runs one synchronous sync of m. Background callers use Enqueue.
func (s *Syncer) Sync(ctx context.Context, m domain.Meeting) (Outcome, error) {
	if !m.HasConferencing() {
		attempts.WithLabelValues(string(OutcomeNoLink)).Inc()
		return OutcomeNoLink, nil
	}
	return s.apply(ctx, *m.ConferencingLink, m.Configuration)
}

func (s *Syncer) apply(ctx context.Context, link string, cfg domain.Configuration) (Outcome, error) {
	s.mu.Lock()
	until := s.disabledUntil
	s.mu.Unlock()
	if s.now().Before(until) {
		attempts.WithLabelValues(string(OutcomeCoolingDown)).Inc()
		return OutcomeCoolingDown, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.BackoffBase
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = s.cfg.BackoffBase << uint(s.cfg.MaxRetries)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.rooms.ApplyRoomPreferences(ctx, link, cfg)
		if errors.Is(err, calendar.ErrUnauthorized) || errors.Is(err, calendar.ErrNotConfigured) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
	)

	switch {
	case err == nil:
		attempts.WithLabelValues(string(OutcomeSynced)).Inc()
		return OutcomeSynced, nil
	case errors.Is(err, calendar.ErrNotConfigured):
		attempts.WithLabelValues(string(OutcomeNotConfigured)).Inc()
		return OutcomeNotConfigured, nil
	case errors.Is(err, calendar.ErrUnauthorized):
		s.coolDown(s.cfg.AuthCooldown, err)
		attempts.WithLabelValues(string(OutcomeUnauthorized)).Inc()
		return OutcomeUnauthorized, err
	default:
		s.coolDown(s.cfg.FailureCooldown, err)
		attempts.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed, err
	}
}

func (s *Syncer) coolDown(d time.Duration, cause error) {
	until := s.now().Add(d)
	s.mu.Lock()
	if until.After(s.disabledUntil) {
		s.disabledUntil = until
	}
	s.mu.Unlock()
	s.log.Warn().Err(cause).Time("until", until).Msg("room preference sync disabled")
}
