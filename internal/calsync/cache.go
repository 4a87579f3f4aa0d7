// Package calsync shields the external calendar from request storms.
//
// Cache keeps two copies of the last successful fetch: a fresh tier served
// without any network call, and a longer-lived stale tier used only when
// the upstream is failing or slow. At most one upstream fetch is in flight
// per process. The first caller to miss becomes the leader and installs an
// in-flight call; everyone else waits on that call's done channel for at
// most WaitTimeout, then falls back through fresh, stale, and finally the
// leader's error or ErrFetchTimeout. A follower giving up never cancels
// the leader, which still populates the cache for later callers.
package calsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meeting-backend/internal/calendar"
	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ErrFetchTimeout is returned when a follower times out waiting for the
// in-flight fetch and no stale data exists.
var ErrFetchTimeout = errors.New("calsync: timed out waiting for calendar fetch")

// Config tunes the cache. Zero fields take the defaults from DefaultConfig.
type Config struct {
	FreshTTL     time.Duration
	StaleTTL     time.Duration
	WaitTimeout  time.Duration
	SoftTTL      time.Duration
	FetchTimeout time.Duration
	// Lookback and Lookahead bound the upstream window around now.
	Lookback  time.Duration
	Lookahead time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FreshTTL:     5 * time.Minute,
		StaleTTL:     15 * time.Minute,
		WaitTimeout:  5 * time.Second,
		SoftTTL:      30 * time.Second,
		FetchTimeout: 30 * time.Second,
		Lookback:     60 * 24 * time.Hour,
		Lookahead:    180 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FreshTTL <= 0 {
		c.FreshTTL = d.FreshTTL
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = d.StaleTTL
	}
	if c.StaleTTL < c.FreshTTL {
		c.StaleTTL = c.FreshTTL
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.SoftTTL <= 0 {
		c.SoftTTL = d.SoftTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.Lookahead <= 0 {
		c.Lookahead = d.Lookahead
	}
	return c
}

type entry struct {
	events  []domain.ExternalEvent
	expires time.Time
	set     bool
}

func (e entry) valid(now time.Time) bool { return e.set && now.Before(e.expires) }

// call is the single-slot in-flight future shared by leader and followers.
type call struct {
	done   chan struct{}
	events []domain.ExternalEvent
	err    error
}

// Cache is the process-wide calendar cache. Construct once with New and
// share the pointer. Returned slices are shared and must not be modified.
type Cache struct {
	src calendar.EventSource
	cfg Config
	now func() time.Time
	log zerolog.Logger

	mu       sync.Mutex
	fresh    entry
	stale    entry
	inflight *call
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source used for TTL bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New builds a cache in front of src.
func New(src calendar.EventSource, cfg Config, opts ...Option) *Cache {
	c := &Cache{
		src: src,
		cfg: cfg.withDefaults(),
		now: time.Now,
		log: log.With().Str("component", "calsync").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config { return c.cfg }

// Fetch returns the external events, from cache when fresh.
func (c *Cache) Fetch(ctx context.Context) ([]domain.ExternalEvent, error) {
	c.mu.Lock()
	if c.fresh.valid(c.now()) {
		events := c.fresh.events
		c.mu.Unlock()
		cacheRequests.WithLabelValues(resultFresh).Inc()
		return events, nil
	}
	return c.joinOrLeadLocked(ctx)
}

// Refresh fetches from upstream even when the fresh tier is valid. It joins
// an in-flight fetch instead of starting a second one.
func (c *Cache) Refresh(ctx context.Context) ([]domain.ExternalEvent, error) {
	c.mu.Lock()
	return c.joinOrLeadLocked(ctx)
}

// Invalidate soft-expires the fresh tier: its remaining lifetime is cut to
// SoftTTL (never extended) and the stale tier is left alone.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fresh.set {
		return
	}
	if soft := c.now().Add(c.cfg.SoftTTL); c.fresh.expires.After(soft) {
		c.fresh.expires = soft
	}
}

// joinOrLeadLocked must be called with mu held; it releases it.
func (c *Cache) joinOrLeadLocked(ctx context.Context) ([]domain.ExternalEvent, error) {
	if cl := c.inflight; cl != nil {
		c.mu.Unlock()
		return c.follow(ctx, cl)
	}
	cl := &call{done: make(chan struct{})}
	c.inflight = cl
	c.mu.Unlock()
	return c.lead(ctx, cl)
}

func (c *Cache) lead(ctx context.Context, cl *call) ([]domain.ExternalEvent, error) {
	// The fetch outlives the caller's cancellation: followers depend on it.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	now := c.now()
	started := time.Now()
	events, err := c.src.ListEvents(fctx, now.Add(-c.cfg.Lookback), now.Add(c.cfg.Lookahead))
	upstreamLatency.Observe(time.Since(started).Seconds())

	c.mu.Lock()
	if err == nil {
		if events == nil {
			events = []domain.ExternalEvent{}
		}
		at := c.now()
		c.fresh = entry{events: events, expires: at.Add(c.cfg.FreshTTL), set: true}
		c.stale = entry{events: events, expires: at.Add(c.cfg.StaleTTL), set: true}
	}
	cl.events, cl.err = events, err
	c.inflight = nil
	close(cl.done)
	stale, hasStale := c.stale.events, c.stale.valid(c.now())
	c.mu.Unlock()

	if err == nil {
		upstreamFetches.WithLabelValues("success").Inc()
		cacheRequests.WithLabelValues(resultFetched).Inc()
		return events, nil
	}

	upstreamFetches.WithLabelValues("failure").Inc()
	if hasStale {
		c.log.Warn().Err(err).Msg("calendar fetch failed; serving stale events")
		cacheRequests.WithLabelValues(resultStale).Inc()
		return stale, nil
	}
	c.log.Warn().Err(err).Msg("calendar fetch failed; no stale events")
	cacheRequests.WithLabelValues(resultError).Inc()
	return nil, err
}

func (c *Cache) follow(ctx context.Context, cl *call) ([]domain.ExternalEvent, error) {
	timer := time.NewTimer(c.cfg.WaitTimeout)
	defer timer.Stop()

	finished := false
	select {
	case <-cl.done:
		finished = true
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	now := c.now()
	fresh, hasFresh := c.fresh.events, c.fresh.valid(now)
	stale, hasStale := c.stale.events, c.stale.valid(now)
	c.mu.Unlock()

	switch {
	case hasFresh:
		cacheRequests.WithLabelValues(resultCoalesced).Inc()
		return fresh, nil
	case hasStale:
		if finished {
			c.log.Warn().Err(cl.err).Msg("coalesced calendar fetch failed; serving stale events")
		} else {
			c.log.Warn().Dur("waited", c.cfg.WaitTimeout).Msg("calendar fetch still in flight; serving stale events")
		}
		cacheRequests.WithLabelValues(resultStale).Inc()
		return stale, nil
	case finished && cl.err != nil:
		cacheRequests.WithLabelValues(resultError).Inc()
		return nil, cl.err
	case finished:
		// Fresh TTL elapsed between completion and our re-check.
		cacheRequests.WithLabelValues(resultCoalesced).Inc()
		return cl.events, nil
	case ctx.Err() != nil:
		cacheRequests.WithLabelValues(resultError).Inc()
		return nil, ctx.Err()
	default:
		cacheRequests.WithLabelValues(resultTimeout).Inc()
		return nil, ErrFetchTimeout
	}
}
