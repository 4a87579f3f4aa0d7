// Package services – MeetingService
//
// This file implements MeetingService, the application-level component that
// owns scheduling. It validates input, expands recurring series, runs the
// conflict resolver against local meetings and the external calendar, and
// commits the result locally before mirroring it to the external calendar.
//
// Mutations follow a two-step saga: the local write is committed first and
// is never rolled back because of the external calendar. Failed external
// writes are logged and returned as warnings on an otherwise successful
// result. After every mutation the calendar and merge caches are invalidated
// and, where relevant, a room preference sync is queued.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include the viewer and meeting identifiers where applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/calendar"
	"github.com/tbourn/go-meeting-backend/internal/conflict"
	"github.com/tbourn/go-meeting-backend/internal/domain"
	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
	"github.com/tbourn/go-meeting-backend/internal/merge"
	"github.com/tbourn/go-meeting-backend/internal/recurrence"
	"github.com/tbourn/go-meeting-backend/internal/repo"
	"github.com/tbourn/go-meeting-backend/internal/utils"
)

// IdempotencyScope scopes idempotency keys of meeting creation.
const IdempotencyScope = "meetings"

const (
	defaultTitleMaxLen    = 255
	defaultMaxSeries      = 366
	defaultIdempotencyTTL = 24 * time.Hour
	// maxSuggestRounds bounds how far a conflict suggestion is chased.
	maxSuggestRounds = 64

	tracerName              = "services/MeetingService"
	warnExternalUnavailable = "external calendar unavailable; conflicts were checked against local meetings only"
)

// ExternalEvents is the coalescing, cached view of the external calendar.
type ExternalEvents interface {
	Fetch(ctx context.Context) ([]domain.ExternalEvent, error)
	Invalidate()
}

// MergedView combines local meetings and external events for a viewer.
type MergedView interface {
	Combine(ctx context.Context, external []domain.ExternalEvent, viewer lifecycle.Viewer) ([]domain.MergedEvent, error)
	Invalidate()
}

// PreferenceSyncer pushes room preferences in the background.
type PreferenceSyncer interface {
	Enqueue(m domain.Meeting) bool
}

// MeetingService coordinates scheduling, status changes and the merged
// calendar. DB is required. Zero-valued tuning fields take defaults and a
// nil Writer, External, Merged or Prefs disables what it provides; without
// Merged the calendar operations return ErrNoCalendarView.
type MeetingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Writer mirrors local mutations to the external calendar.
	Writer calendar.EventWriter
	// External supplies external events for conflicts and the calendar view.
	External ExternalEvents
	// Merged builds the viewer-specific calendar.
	Merged MergedView
	// Prefs queues room preference syncs.
	Prefs PreferenceSyncer

	// MinGap is the buffer kept around every meeting; zero means
	// conflict.DefaultMinGap and a negative value disables the buffer.
	MinGap          time.Duration
	MaxSeriesLength int
	TitleMaxLen     int
	IdempotencyTTL  time.Duration
	// Location anchors recurring series so wall-clock times survive DST.
	Location *time.Location
	Now      func() time.Time
}

// ScheduleInput describes a meeting or a recurring series to create.
type ScheduleInput struct {
	Title          string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	ParticipantIDs []string
	AttendeeEmails []string
	Recurrence     domain.RecurrenceKind
	// RecurrenceEnd is the last date (inclusive) of a recurring series.
	RecurrenceEnd *time.Time
	Weekdays      domain.WeekdayMask
	// Conferencing requests a conferencing room for each meeting.
	Conferencing  bool
	Configuration *domain.Configuration
	// IdempotencyKey makes retries return the originally created meetings.
	IdempotencyKey string
}

// UpdateInput carries the fields to change; nil fields are left untouched.
type UpdateInput struct {
	Title          *string
	Description    *string
	Location       *string
	Start          *time.Time
	End            *time.Time
	ParticipantIDs *[]string
	AttendeeEmails *[]string
	Minutes        *string
}

func (in UpdateInput) editsDetails() bool {
	return in.Title != nil || in.Description != nil || in.Location != nil ||
		in.Start != nil || in.End != nil || in.ParticipantIDs != nil || in.AttendeeEmails != nil
}

// Result is the outcome of a mutation.
type Result struct {
	Meetings []domain.Meeting
	// Warnings are non-fatal failures of best-effort external mirroring.
	Warnings []string
	// Replayed is true when an idempotent retry returned a stored result.
	Replayed bool
}

// CalendarView is the merged calendar a viewer sees.
type CalendarView struct {
	Events   []domain.MergedEvent
	Warnings []string
}

// Schedule validates in, expands the series, rejects any occurrence that
// conflicts with existing meetings or external events, and commits the
// whole series atomically. A conflict is returned as *ConflictError with
// the next acceptable start; nothing is booked in that case.
func (s *MeetingService) Schedule(ctx context.Context, viewer lifecycle.Viewer, in ScheduleInput) (*Result, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "Schedule",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.String("recurrence.kind", string(in.Recurrence)),
		),
	)
	defer span.End()

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		res, err := s.replay(ctx, viewer.ID, key)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	title, err := s.cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, invalid("start", "start and end are required")
	}
	if !in.End.After(in.Start) {
		return nil, invalid("end", "must be after start")
	}
	emails, err := cleanEmails(in.AttendeeEmails)
	if err != nil {
		return nil, err
	}
	kind, ok := domain.ParseRecurrenceKind(string(in.Recurrence))
	if !ok {
		return nil, invalid("recurrence", "unknown kind %q", in.Recurrence)
	}

	start := in.Start.In(s.loc())
	duration := in.End.Sub(in.Start)
	occurrences, err := s.expand(start, kind, in.RecurrenceEnd, in.Weekdays)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("recurrence.occurrences", len(occurrences)))

	now := s.now()
	last := occurrences[len(occurrences)-1]
	busy, warnings, err := s.busyIntervals(ctx, occurrences[0], last.Add(duration), nil)
	if err != nil {
		return nil, err
	}
	for _, at := range occurrences {
		if r := conflict.Resolve(at, duration, busy, now, s.minGap()); r.Adjusted() {
			return nil, s.conflictAt(ctx, at, duration, r, nil, now)
		}
	}

	cfg := domain.DefaultConfiguration()
	if in.Configuration != nil {
		cfg = in.Configuration.Normalize()
	}
	rec := domain.Recurrence{Kind: kind, Weekdays: in.Weekdays}
	if kind != domain.RecurNone {
		group := recurrence.NewGroupID()
		endDate := recurrence.Day(in.RecurrenceEnd.In(s.loc()))
		rec.GroupID, rec.EndDate = &group, &endDate
	}

	meetings := make([]*domain.Meeting, len(occurrences))
	for i, at := range occurrences {
		meetings[i] = &domain.Meeting{
			Title:          title,
			Description:    strings.TrimSpace(in.Description),
			Location:       strings.TrimSpace(in.Location),
			StartAt:        at,
			EndAt:          at.Add(duration),
			Status:         domain.StatusScheduled,
			CreatorID:      viewer.ID,
			ParticipantIDs: append([]string(nil), in.ParticipantIDs...),
			AttendeeEmails: append([]string(nil), emails...),
			Recurrence:     rec,
			Configuration:  cfg,
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateMeetings(ctx, tx, meetings); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		ids := make([]uint, len(meetings))
		for i, m := range meetings {
			ids[i] = m.ID
		}
		_, err := repo.CreateIdempotency(ctx, tx, viewer.ID, IdempotencyScope, key, ids, http.StatusCreated, s.now(), s.idempotencyTTL())
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key committed first.
		return s.replay(ctx, viewer.ID, key)
	}
	if err != nil {
		return nil, err
	}

	warnings = append(warnings, s.mirrorCreate(ctx, meetings, in.Conferencing)...)
	s.invalidate()
	s.enqueuePrefs(meetings...)

	return &Result{Meetings: values(meetings), Warnings: warnings}, nil
}

// Get returns a meeting with its status brought up to date and the
// viewer's capabilities on it.
func (s *MeetingService) Get(ctx context.Context, viewer lifecycle.Viewer, id uint) (*domain.Meeting, domain.Capabilities, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("meeting.id", int(id)),
		),
	)
	defer span.End()

	m, err := s.load(ctx, id)
	if err != nil {
		return nil, domain.Capabilities{}, err
	}
	return m, lifecycle.CapabilitiesFor(*m, viewer), nil
}

// List returns a page of the meetings the viewer created and the total.
func (s *MeetingService) List(ctx context.Context, viewer lifecycle.Viewer, page, pageSize int) ([]domain.Meeting, int64, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	pg := utils.Page{Number: page, Size: pageSize}.Normalize()
	total, err := repo.CountMeetings(ctx, s.DB, viewer.ID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Meeting{}, 0, nil
	}
	items, err := repo.ListMeetingsPage(ctx, s.DB, viewer.ID, pg.Offset(), pg.Size)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range items {
		lifecycle.Apply(&items[i], now)
	}
	return items, total, nil
}

// Update edits a meeting. Time changes are checked against every other
// meeting and external event; minutes may only be written once the meeting
// has started.
func (s *MeetingService) Update(ctx context.Context, viewer lifecycle.Viewer, id uint, in UpdateInput) (*Result, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("meeting.id", int(id)),
		),
	)
	defer span.End()

	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanManage(*m) {
		return nil, ErrForbidden
	}
	caps := lifecycle.CapabilitiesFor(*m, viewer)
	details := in.editsDetails()
	if details && !caps.CanEdit {
		return nil, fmt.Errorf("%w: meeting is %s", ErrNotEditable, m.Status)
	}
	if in.Minutes != nil && !caps.CanEditMinutes {
		return nil, fmt.Errorf("%w: minutes can be recorded once the meeting has started", ErrNotEditable)
	}

	orig := *m
	if in.Title != nil {
		if m.Title, err = s.cleanTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		m.Description = strings.TrimSpace(*in.Description)
	}
	if in.Location != nil {
		m.Location = strings.TrimSpace(*in.Location)
	}
	if in.ParticipantIDs != nil {
		m.ParticipantIDs = append([]string{}, (*in.ParticipantIDs)...)
	}
	if in.AttendeeEmails != nil {
		if m.AttendeeEmails, err = cleanEmails(*in.AttendeeEmails); err != nil {
			return nil, err
		}
	}
	if in.Minutes != nil {
		m.Minutes = *in.Minutes
	}

	var warnings []string
	if in.Start != nil || in.End != nil {
		start, end := m.StartAt, m.EndAt
		if in.Start != nil {
			start = *in.Start
		}
		if in.End != nil {
			end = *in.End
		}
		if !end.After(start) {
			return nil, invalid("end", "must be after start")
		}
		if !start.Equal(m.StartAt) || !end.Equal(m.EndAt) {
			busy, w, err := s.busyIntervals(ctx, start, end, &orig)
			if err != nil {
				return nil, err
			}
			warnings = w
			// A meeting that keeps its start may already be under way; only
			// a new start has to respect the advance-notice rule.
			notice := s.noticeFrom(start, start.Equal(orig.StartAt))
			if r := conflict.Resolve(start, end.Sub(start), busy, notice, s.minGap()); r.Adjusted() {
				return nil, s.conflictAt(ctx, start, end.Sub(start), r, &orig, notice)
			}
			m.StartAt, m.EndAt = start, end
			lifecycle.Apply(m, s.now())
		}
	}

	if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
		return nil, err
	}
	if details {
		warnings = append(warnings, s.mirrorUpdate(ctx, m)...)
	}
	s.invalidate()

	return &Result{Meetings: []domain.Meeting{*m}, Warnings: warnings}, nil
}

// ChangeStatus performs a manual status transition. Postponing requires a
// new interval that passes the conflict resolver; cancelling drops the
// conferencing link and removes the external event.
func (s *MeetingService) ChangeStatus(ctx context.Context, viewer lifecycle.Viewer, id uint, target domain.MeetingStatus, newStart, newEnd time.Time) (*Result, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "ChangeStatus",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("meeting.id", int(id)),
			attribute.String("meeting.status", string(target)),
		),
	)
	defer span.End()

	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanManage(*m) {
		return nil, ErrForbidden
	}
	now := s.now()
	if err := lifecycle.CheckManual(*m, target, now, newStart, newEnd); err != nil {
		return nil, err
	}

	var warnings []string
	if target == domain.StatusPostponed {
		busy, w, err := s.busyIntervals(ctx, newStart, newEnd, m)
		if err != nil {
			return nil, err
		}
		warnings = w
		if r := conflict.Resolve(newStart, newEnd.Sub(newStart), busy, now, s.minGap()); r.Adjusted() {
			return nil, s.conflictAt(ctx, newStart, newEnd.Sub(newStart), r, m, now)
		}
	}

	prev := m.Status
	lifecycle.ApplyManual(m, target, newStart, newEnd)
	if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
		return nil, err
	}
	log.Info().
		Str("component", "services").
		Uint("meeting_id", m.ID).
		Str("from", string(prev)).
		Str("to", string(target)).
		Msg("meeting status changed")

	warnings = append(warnings, s.mirrorStatus(ctx, m)...)
	s.invalidate()

	return &Result{Meetings: []domain.Meeting{*m}, Warnings: warnings}, nil
}

// Delete removes a meeting, or its whole recurrence group when series is
// set, then best-effort deletes the external events.
func (s *MeetingService) Delete(ctx context.Context, viewer lifecycle.Viewer, id uint, series bool) (*Result, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("meeting.id", int(id)),
			attribute.Bool("series", series),
		),
	)
	defer span.End()

	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanManage(*m) {
		return nil, ErrForbidden
	}

	targets := []domain.Meeting{*m}
	if series && m.Recurrence.GroupID != nil {
		if targets, err = repo.ListGroup(ctx, s.DB, *m.Recurrence.GroupID); err != nil {
			return nil, err
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range targets {
			if err := repo.DeleteMeeting(ctx, tx, t.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	warnings := s.mirrorDelete(ctx, targets)
	s.invalidate()

	return &Result{Meetings: targets, Warnings: warnings}, nil
}

// UpdateConfiguration replaces a meeting's room preferences and queues a
// sync to the conferencing service.
func (s *MeetingService) UpdateConfiguration(ctx context.Context, viewer lifecycle.Viewer, id uint, cfg domain.Configuration) (*Result, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "UpdateConfiguration",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Int("meeting.id", int(id)),
		),
	)
	defer span.End()

	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanManage(*m) {
		return nil, ErrForbidden
	}
	if m.Status.Terminal() {
		return nil, fmt.Errorf("%w: meeting is %s", ErrNotEditable, m.Status)
	}

	m.Configuration = cfg.Normalize()
	if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
		return nil, err
	}
	if s.Merged != nil {
		s.Merged.Invalidate()
	}

	var warnings []string
	if !m.HasConferencing() {
		warnings = append(warnings, "meeting has no conferencing link; preferences were saved locally only")
	} else {
		s.enqueuePrefs(m)
	}
	return &Result{Meetings: []domain.Meeting{*m}, Warnings: warnings}, nil
}

// Calendar returns the merged calendar for viewer. When the external
// calendar cannot be read at all the view degrades to local meetings and
// carries a warning.
func (s *MeetingService) Calendar(ctx context.Context, viewer lifecycle.Viewer) (*CalendarView, error) {
	tr := otel.Tracer(tracerName)
	ctx, span := tr.Start(ctx, "Calendar",
		trace.WithAttributes(
			attribute.String("user.id", viewer.ID),
			attribute.Bool("user.admin", viewer.IsAdmin),
		),
	)
	defer span.End()

	if s.Merged == nil {
		return nil, ErrNoCalendarView
	}

	var (
		external []domain.ExternalEvent
		warnings []string
		degraded bool
	)
	if s.External != nil {
		events, err := s.External.Fetch(ctx)
		if err != nil {
			log.Warn().Err(err).Str("component", "services").Msg("external calendar unavailable, serving local meetings only")
			warnings = append(warnings, "external calendar unavailable; showing local meetings only")
			degraded = true
		} else {
			external = events
		}
	}

	events, err := s.Merged.Combine(ctx, external, viewer)
	if err != nil {
		return nil, err
	}
	if degraded {
		// Do not let a local-only view outlive the outage.
		s.Merged.Invalidate()
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return &CalendarView{Events: events, Warnings: warnings}, nil
}

// ExportICS renders the viewer's merged calendar as an iCalendar document.
func (s *MeetingService) ExportICS(ctx context.Context, viewer lifecycle.Viewer) (string, error) {
	view, err := s.Calendar(ctx, viewer)
	if err != nil {
		return "", err
	}
	return calendar.ExportICS(view.Events, s.now()), nil
}

// RefreshCalendar softly invalidates the external calendar cache and drops
// every merged view. Only administrators may call it.
func (s *MeetingService) RefreshCalendar(ctx context.Context, viewer lifecycle.Viewer) error {
	tr := otel.Tracer(tracerName)
	_, span := tr.Start(ctx, "RefreshCalendar",
		trace.WithAttributes(attribute.String("user.id", viewer.ID)),
	)
	defer span.End()

	if !viewer.IsAdmin {
		return ErrForbidden
	}
	s.invalidate()
	return nil
}

//
// Internals
//

// load fetches a meeting and brings its status up to date, persisting an
// automatic transition best-effort.
func (s *MeetingService) load(ctx context.Context, id uint) (*domain.Meeting, error) {
	m, err := repo.GetMeeting(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMeetingNotFound
	}
	if err != nil {
		return nil, err
	}
	if lifecycle.Apply(m, s.now()) {
		update := []domain.StatusUpdate{{ID: m.ID, Status: m.Status}}
		if err := repo.BulkUpdateStatus(ctx, s.DB, update); err != nil {
			log.Warn().Err(err).Uint("meeting_id", m.ID).Msg("persisting automatic status transition failed")
		}
	}
	return m, nil
}

func (s *MeetingService) replay(ctx context.Context, userID, key string) (*Result, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScope, key, s.now().UTC())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Meeting, 0, len(rec.MeetingIDs))
	for _, id := range rec.MeetingIDs {
		m, err := repo.GetMeeting(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return &Result{Meetings: out, Replayed: true}, nil
}

// expand turns a recurrence request into the start instants of every
// occurrence, each keeping start's wall-clock time in the service location.
func (s *MeetingService) expand(start time.Time, kind domain.RecurrenceKind, until *time.Time, weekdays domain.WeekdayMask) ([]time.Time, error) {
	end := start
	if kind != domain.RecurNone {
		if until == nil || until.IsZero() {
			return nil, invalid("recurrence_end", "is required for recurring meetings")
		}
		end = until.In(s.loc())
	}
	dates, err := recurrence.Generate(start, end, kind, weekdays)
	switch {
	case errors.Is(err, recurrence.ErrInvalidRange):
		return nil, invalid("recurrence_end", "must not be before the first occurrence")
	case err != nil:
		return nil, invalid("recurrence", "%v", err)
	case len(dates) == 0:
		return nil, invalid("recurrence", "series has no occurrences")
	}
	if max := s.maxSeries(); len(dates) > max {
		return nil, invalid("recurrence_end", "series has %d occurrences, the limit is %d", len(dates), max)
	}

	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = recurrence.At(d, start)
	}
	return out, nil
}

// busyIntervals collects the intervals a proposed [from, to) must keep
// clear of: live local meetings and external events, minus self (and its
// external copy) and cancelled meetings. An unreadable external calendar
// degrades to a warning.
func (s *MeetingService) busyIntervals(ctx context.Context, from, to time.Time, self *domain.Meeting) ([]domain.Interval, []string, error) {
	pad := s.minGap()
	if pad < 0 {
		pad = 0
	}
	from, to = from.Add(-pad), to.Add(pad)

	local, err := repo.ListMeetingsInWindow(ctx, s.DB, from, to)
	if err != nil {
		return nil, nil, err
	}

	ignoreIDs := map[string]bool{}
	ignoreKeys := map[string]bool{}
	skip := func(m domain.Meeting) {
		ignoreKeys[merge.Key(m.Title, m.StartAt, m.EndAt)] = true
		if m.Linked() {
			ignoreIDs[*m.ExternalEventID] = true
		}
	}
	if self != nil {
		skip(*self)
	}

	out := make([]domain.Interval, 0, len(local))
	for _, m := range local {
		if self != nil && m.ID == self.ID {
			continue
		}
		if m.Status == domain.StatusCancelled {
			skip(m)
			continue
		}
		out = append(out, domain.Interval{Start: m.StartAt, End: m.EndAt, Label: m.Title})
	}

	var warnings []string
	if s.External != nil {
		events, err := s.External.Fetch(ctx)
		if err != nil {
			log.Warn().Err(err).Str("component", "services").Msg("conflict check without external calendar")
			warnings = append(warnings, warnExternalUnavailable)
		}
		for _, e := range events {
			if !e.Start.Before(to) || !e.End.After(from) {
				continue
			}
			if ignoreIDs[e.ExternalID] || ignoreKeys[merge.Key(e.Title, e.Start, e.End)] {
				continue
			}
			out = append(out, domain.Interval{Start: e.Start, End: e.End, Label: e.Title})
		}
	}
	return out, warnings, nil
}

// mirrorCreate creates the external copies of meetings and stores the
// returned links. A rejected event does not stop the rest of the series.
func (s *MeetingService) mirrorCreate(ctx context.Context, meetings []*domain.Meeting, conferencing bool) []string {
	if s.Writer == nil {
		return nil
	}
	var failures mirrorFailures
	for i, m := range meetings {
		res, err := s.Writer.CreateEvent(ctx, calendar.InputFromMeeting(*m, conferencing))
		if err != nil {
			if failures.add(err, len(meetings)-i) {
				break
			}
			continue
		}
		if res.ExternalID != "" {
			ext := res.ExternalID
			m.ExternalEventID = &ext
		}
		if res.ConferencingLink != "" {
			link := res.ConferencingLink
			m.ConferencingLink = &link
		}
		if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
			log.Warn().Err(err).Uint("meeting_id", m.ID).Msg("storing external event link failed")
		}
	}
	return failures.warnings("create")
}

func (s *MeetingService) mirrorDelete(ctx context.Context, targets []domain.Meeting) []string {
	if s.Writer == nil {
		return nil
	}
	var failures mirrorFailures
	for i, t := range targets {
		if !t.Linked() {
			continue
		}
		if err := s.Writer.DeleteEvent(ctx, *t.ExternalEventID); err != nil {
			if failures.add(err, countLinked(targets[i:])) {
				break
			}
		}
	}
	return failures.warnings("delete")
}

// mirrorFailures aggregates the failed writes of one mirroring pass so the
// caller gets a single warning.
type mirrorFailures struct {
	n    int
	last error
}

// add records a failed write and reports whether the pass should stop.
// Credentials and availability problems affect every remaining write, which
// are counted as failed too; anything else is specific to one event.
func (f *mirrorFailures) add(err error, remaining int) bool {
	f.last = err
	if errors.Is(err, calendar.ErrUnauthorized) || errors.Is(err, calendar.ErrTransient) || errors.Is(err, calendar.ErrNotConfigured) {
		f.n += remaining
		return true
	}
	log.Debug().Err(err).Str("component", "services").Msg("external calendar write rejected")
	f.n++
	return false
}

func (f *mirrorFailures) warnings(op string) []string {
	if f.n == 0 {
		return nil
	}
	if w := externalWarning(op, f.last, f.n); w != "" {
		return []string{w}
	}
	return nil
}

func (s *MeetingService) mirrorUpdate(ctx context.Context, m *domain.Meeting) []string {
	if s.Writer == nil || !m.Linked() {
		return nil
	}
	res, err := s.Writer.UpdateEvent(ctx, *m.ExternalEventID, calendar.InputFromMeeting(*m, false))
	if err != nil {
		if w := externalWarning("update", err, 1); w != "" {
			return []string{w}
		}
		return nil
	}
	if res.ConferencingLink != "" && (m.ConferencingLink == nil || *m.ConferencingLink != res.ConferencingLink) {
		link := res.ConferencingLink
		m.ConferencingLink = &link
		if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
			log.Warn().Err(err).Uint("meeting_id", m.ID).Msg("storing conferencing link failed")
		}
	}
	return nil
}

func (s *MeetingService) mirrorStatus(ctx context.Context, m *domain.Meeting) []string {
	if s.Writer == nil || !m.Linked() {
		return nil
	}
	if m.Status != domain.StatusCancelled {
		return s.mirrorUpdate(ctx, m)
	}
	if err := s.Writer.DeleteEvent(ctx, *m.ExternalEventID); err != nil {
		if w := externalWarning("delete", err, 1); w != "" {
			return []string{w}
		}
		return nil
	}
	m.ExternalEventID = nil
	if err := repo.SaveMeeting(ctx, s.DB, m); err != nil {
		log.Warn().Err(err).Uint("meeting_id", m.ID).Msg("clearing external event link failed")
	}
	return nil
}

func (s *MeetingService) invalidate() {
	if s.External != nil {
		s.External.Invalidate()
	}
	if s.Merged != nil {
		s.Merged.Invalidate()
	}
}

func (s *MeetingService) enqueuePrefs(meetings ...*domain.Meeting) {
	if s.Prefs == nil {
		return
	}
	for _, m := range meetings {
		if m.HasConferencing() && !m.Status.Terminal() {
			s.Prefs.Enqueue(*m)
		}
	}
}

// externalWarning logs a failed external write and returns the warning to
// attach to the response. A calendar that is simply not configured yields
// no warning.
func externalWarning(op string, err error, affected int) string {
	if errors.Is(err, calendar.ErrNotConfigured) {
		return ""
	}
	log.Warn().Err(err).Str("component", "services").Str("op", op).Int("meetings", affected).Msg("external calendar write failed")
	switch {
	case errors.Is(err, calendar.ErrUnauthorized):
		return fmt.Sprintf("external calendar rejected our credentials; %d meeting(s) were not synced (%s)", affected, op)
	case errors.Is(err, calendar.ErrTransient):
		return fmt.Sprintf("external calendar is temporarily unavailable; %d meeting(s) were not synced (%s)", affected, op)
	default:
		return fmt.Sprintf("external calendar %s failed for %d meeting(s): %v", op, affected, err)
	}
}

func countLinked(ms []domain.Meeting) int {
	n := 0
	for _, m := range ms {
		if m.Linked() {
			n++
		}
	}
	return n
}

func values(ms []*domain.Meeting) []domain.Meeting {
	out := make([]domain.Meeting, len(ms))
	for i, m := range ms {
		out[i] = *m
	}
	return out
}

func (s *MeetingService) cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "is required")
	}
	max := s.TitleMaxLen
	if max <= 0 {
		max = defaultTitleMaxLen
	}
	if utf8.RuneCountInString(title) > max {
		return "", invalid("title", "must be at most %d characters", max)
	}
	return title, nil
}

// cleanEmails trims, validates and de-duplicates (case-insensitively)
// attendee emails, keeping first-seen order.
func cleanEmails(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		at := strings.LastIndex(e, "@")
		if at <= 0 || at == len(e)-1 || strings.ContainsAny(e, " \t<>") {
			return nil, invalid("attendee_emails", "%q is not an email address", e)
		}
		if k := strings.ToLower(e); !seen[k] {
			seen[k] = true
			out = append(out, e)
		}
	}
	return out, nil
}

// noticeFrom returns the instant the advance-notice rule is measured from.
// keepStart exempts a start that is already booked.
func (s *MeetingService) noticeFrom(start time.Time, keepStart bool) time.Time {
	if !keepStart {
		return s.now()
	}
	pad := s.minGap()
	if pad < 0 {
		pad = 0
	}
	return start.Add(-pad)
}

// conflictAt builds the ConflictError for a request the resolver moved to
// r.Start. The busy set behind r only covers the requested window, so the
// suggestion is re-checked against the window it now occupies until it
// stops moving.
func (s *MeetingService) conflictAt(ctx context.Context, requested time.Time, d time.Duration, r conflict.Result, self *domain.Meeting, notice time.Time) error {
	for i := 0; i < maxSuggestRounds; i++ {
		busy, _, err := s.busyIntervals(ctx, r.Start, r.Start.Add(d), self)
		if err != nil {
			return err
		}
		next := conflict.Resolve(r.Start, d, busy, notice, s.minGap())
		if !next.Start.After(r.Start) {
			break
		}
		r.Start = next.Start
	}
	return &ConflictError{Requested: requested, SuggestedStart: r.Start, Messages: r.Messages}
}

func (s *MeetingService) minGap() time.Duration {
	if s.MinGap == 0 {
		return conflict.DefaultMinGap
	}
	return s.MinGap
}

func (s *MeetingService) maxSeries() int {
	if s.MaxSeriesLength <= 0 {
		return defaultMaxSeries
	}
	return s.MaxSeriesLength
}

func (s *MeetingService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return defaultIdempotencyTTL
	}
	return s.IdempotencyTTL
}

func (s *MeetingService) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *MeetingService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
