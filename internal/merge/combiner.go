// Package merge builds the calendar a viewer sees: local meetings plus the
// external events that have no local counterpart, each annotated with what
// the viewer may do with it.
//
// Combine is also where automatic status transitions happen. Every read
// recomputes each meeting's status against now and persists the changes in
// one best-effort batch; a failed batch is logged and the response still
// shows the computed statuses.
//
// Results are cached per (viewer, admin flag) for a short TTL. A global
// version counter invalidates every cached entry at once: an entry is only
// served when its version equals the current one.
package merge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meeting-backend/internal/domain"
	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
)

// MeetingStore is the persistence the combiner reads and writes.
type MeetingStore interface {
	ListMeetingsInWindow(ctx context.Context, from, to time.Time) ([]domain.Meeting, error)
	BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) error
}

// Config tunes the combiner. Zero fields take defaults.
type Config struct {
	CacheTTL  time.Duration
	Lookback  time.Duration
	Lookahead time.Duration
	// MaxEntries bounds the per-viewer cache before expired or outdated
	// entries are swept.
	MaxEntries int
}

var mergeCache = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "merge_cache_total",
		Help: "Merged calendar reads by cache result (hit, miss).",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(mergeCache)
}

type viewerKey struct {
	id    string
	admin bool
}

type cached struct {
	events  []domain.MergedEvent
	version uint64
	expires time.Time
}

// Combiner merges local meetings with external events.
type Combiner struct {
	store MeetingStore
	names *NameCache
	cfg   Config
	now   func() time.Time
	log   zerolog.Logger

	mu      sync.Mutex
	version uint64
	cache   map[viewerKey]cached
}

// New builds a Combiner. now may be nil.
func New(store MeetingStore, names *NameCache, cfg Config, now func() time.Time) *Combiner {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 90 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 60 * 24 * time.Hour
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 180 * 24 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &Combiner{
		store: store,
		names: names,
		cfg:   cfg,
		now:   now,
		log:   log.With().Str("component", "merge").Logger(),
		cache: map[viewerKey]cached{},
	}
}

// Invalidate drops every cached merge result by bumping the version.
func (c *Combiner) Invalidate() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

// Version returns the current invalidation version.
func (c *Combiner) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Combine returns the merged, capability-annotated events for viewer. The
// returned slice may be shared with other callers and must not be modified.
func (c *Combiner) Combine(ctx context.Context, external []domain.ExternalEvent, viewer lifecycle.Viewer) ([]domain.MergedEvent, error) {
	key := viewerKey{id: viewer.ID, admin: viewer.IsAdmin}
	now := c.now()

	c.mu.Lock()
	version := c.version
	if hit, ok := c.cache[key]; ok && hit.version == version && now.Before(hit.expires) {
		c.mu.Unlock()
		mergeCache.WithLabelValues("hit").Inc()
		return hit.events, nil
	}
	c.mu.Unlock()
	mergeCache.WithLabelValues("miss").Inc()

	meetings, err := c.store.ListMeetingsInWindow(ctx, now.Add(-c.cfg.Lookback), now.Add(c.cfg.Lookahead))
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}

	events := c.build(ctx, meetings, external, viewer, now)

	c.mu.Lock()
	if len(c.cache) >= c.cfg.MaxEntries {
		for k, v := range c.cache {
			if v.version != c.version || !now.Before(v.expires) {
				delete(c.cache, k)
			}
		}
	}
	c.cache[key] = cached{events: events, version: version, expires: now.Add(c.cfg.CacheTTL)}
	c.mu.Unlock()

	return events, nil
}

func (c *Combiner) build(ctx context.Context, meetings []domain.Meeting, external []domain.ExternalEvent, viewer lifecycle.Viewer, now time.Time) []domain.MergedEvent {
	var updates []domain.StatusUpdate
	for i := range meetings {
		if lifecycle.Apply(&meetings[i], now) {
			updates = append(updates, domain.StatusUpdate{ID: meetings[i].ID, Status: meetings[i].Status})
		}
	}
	if len(updates) > 0 {
		if err := c.store.BulkUpdateStatus(ctx, updates); err != nil {
			c.log.Warn().Err(err).Int("meetings", len(updates)).Msg("persisting automatic status transitions failed")
		}
	}

	var emails []string
	for _, m := range meetings {
		emails = append(emails, m.AttendeeEmails...)
	}
	for _, e := range external {
		emails = append(emails, e.AttendeeEmails...)
	}
	var names map[string]string
	if c.names != nil {
		names = c.names.Resolve(ctx, emails)
	}

	out := make([]domain.MergedEvent, 0, len(meetings)+len(external))
	seen := make(map[string]bool, len(meetings))
	linked := make(map[string]bool, len(meetings))

	for _, m := range meetings {
		out = append(out, fromMeeting(m, viewer, names))
		seen[Key(m.Title, m.StartAt, m.EndAt)] = true
		if m.Linked() {
			linked[*m.ExternalEventID] = true
		}
	}
	for _, e := range external {
		if seen[Key(e.Title, e.Start, e.End)] || (e.ExternalID != "" && linked[e.ExternalID]) {
			continue
		}
		out = append(out, fromExternal(e, now, names))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Key is the de-duplication key shared by meetings and external events.
func Key(title string, start, end time.Time) string {
	return title + "|" + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)
}

// DisplayStatus classifies an external event relative to now.
func DisplayStatus(start, end, now time.Time) string {
	switch {
	case now.Before(start):
		return domain.DisplayUpcoming
	case now.Before(end):
		return domain.DisplayInProgress
	default:
		return domain.DisplayPast
	}
}

func fromMeeting(m domain.Meeting, viewer lifecycle.Viewer, names map[string]string) domain.MergedEvent {
	id := m.ID
	ev := domain.MergedEvent{
		ID:           fmt.Sprintf("meeting-%d", m.ID),
		Source:       domain.SourceLocal,
		MeetingID:    &id,
		Title:        m.Title,
		Description:  m.Description,
		Location:     m.Location,
		Start:        m.StartAt,
		End:          m.EndAt,
		Status:       string(m.Status),
		CreatorID:    m.CreatorID,
		Attendees:    attendees(m.AttendeeEmails, names),
		Capabilities: lifecycle.CapabilitiesFor(m, viewer),
	}
	if m.Linked() {
		ev.ExternalID = *m.ExternalEventID
	}
	if m.HasConferencing() {
		ev.ConferencingLink = *m.ConferencingLink
	}
	if m.Recurrence.GroupID != nil {
		ev.RecurrenceGroupID = *m.Recurrence.GroupID
	}
	if viewer.CanManage(m) {
		cfg := m.Configuration
		ev.Configuration = &cfg
	}
	return ev
}

func fromExternal(e domain.ExternalEvent, now time.Time, names map[string]string) domain.MergedEvent {
	return domain.MergedEvent{
		ID:               "external-" + e.ExternalID,
		Source:           domain.SourceExternal,
		ExternalID:       e.ExternalID,
		Title:            e.Title,
		Description:      e.Description,
		Start:            e.Start,
		End:              e.End,
		Status:           DisplayStatus(e.Start, e.End, now),
		ConferencingLink: e.ConferencingLink,
		Attendees:        attendees(e.AttendeeEmails, names),
	}
}

func attendees(emails []string, names map[string]string) []domain.Attendee {
	out := make([]domain.Attendee, 0, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		out = append(out, domain.Attendee{Email: e, Name: Name(names, e)})
	}
	return out
}
