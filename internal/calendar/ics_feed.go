package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ICSFeed is a read-only EventSource backed by an iCalendar URL. Recurring
// masters are expanded inside the requested window; EXDATEs are honoured
// and RECURRENCE-ID overrides replace the instance they point at.
//
// The last body is kept with its ETag / Last-Modified so unchanged feeds
// cost a 304.
type ICSFeed struct {
	url      string
	client   *http.Client
	location *time.Location

	mu           sync.Mutex
	body         []byte
	etag         string
	lastModified string
}

// NewICSFeed returns a feed reader for url. A nil client gets a 15s timeout.
func NewICSFeed(url string, client *http.Client, loc *time.Location) *ICSFeed {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ICSFeed{url: url, client: client, location: loc}
}

// ListEvents implements EventSource.
func (f *ICSFeed) ListEvents(ctx context.Context, from, to time.Time) ([]domain.ExternalEvent, error) {
	body, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return ParseICS(bytes.NewReader(body), from, to, f.location)
}

func (f *ICSFeed) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: build request: %w", err)
	}

	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	f.mu.Unlock()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.body) == 0 {
			return nil, fmt.Errorf("%w: 304 without a cached body", ErrTransient)
		}
		return f.body, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read feed: %v", ErrTransient, err)
		}
		f.mu.Lock()
		f.body = body
		f.etag = resp.Header.Get("ETag")
		f.lastModified = resp.Header.Get("Last-Modified")
		f.mu.Unlock()
		return body, nil
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
}

type icsEvent struct {
	uid          string
	recurrenceAt *time.Time
	rrule        string
	exdates      []time.Time
	ext          domain.ExternalEvent
}

// ParseICS returns the event instances of an iCalendar document overlapping
// [from, to), sorted by start. Floating times are read in loc.
func ParseICS(r io.Reader, from, to time.Time, loc *time.Location) ([]domain.ExternalEvent, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse ics: %w", err)
	}

	var masters, singles []icsEvent
	overrides := map[string]icsEvent{}
	for _, ve := range cal.Events() {
		ev, ok := mapVEvent(ve, loc)
		if !ok {
			continue
		}
		switch {
		case ev.rrule != "":
			masters = append(masters, ev)
		case ev.recurrenceAt != nil:
			overrides[overrideKey(ev.uid, *ev.recurrenceAt)] = ev
		default:
			singles = append(singles, ev)
		}
	}

	out := make([]domain.ExternalEvent, 0, len(singles))
	for _, ev := range singles {
		if overlaps(ev.ext.Start, ev.ext.End, from, to) {
			out = append(out, ev.ext)
		}
	}
	for _, ev := range overrides {
		if overlaps(ev.ext.Start, ev.ext.End, from, to) {
			out = append(out, ev.ext)
		}
	}
	for _, m := range masters {
		dur := m.ext.End.Sub(m.ext.Start)
		for _, start := range expandMaster(m, from.Add(-dur), to) {
			if _, replaced := overrides[overrideKey(m.uid, start)]; replaced {
				continue
			}
			inst := m.ext
			inst.Start, inst.End = start, start.Add(dur)
			inst.AttendeeEmails = append([]string(nil), m.ext.AttendeeEmails...)
			if overlaps(inst.Start, inst.End, from, to) {
				out = append(out, inst)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func mapVEvent(ve *ics.VEvent, loc *time.Location) (icsEvent, bool) {
	if strings.EqualFold(propertyValue(ve.GetProperty(ics.ComponentPropertyStatus)), "CANCELLED") {
		return icsEvent{}, false
	}
	startProp := ve.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return icsEvent{}, false
	}
	start, err := parseICSTime(startProp.Value, startProp.ICalParameters, loc)
	if err != nil {
		return icsEvent{}, false
	}
	end := start.Add(30 * time.Minute)
	if endProp := ve.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		if e, err := parseICSTime(endProp.Value, endProp.ICalParameters, loc); err == nil && e.After(start) {
			end = e
		}
	} else if isAllDay(startProp) {
		end = start.AddDate(0, 0, 1)
	}

	uid := strings.TrimSpace(propertyValue(ve.GetProperty(ics.ComponentPropertyUniqueId)))
	ev := icsEvent{
		uid:   uid,
		rrule: strings.TrimSpace(propertyValue(ve.GetProperty(ics.ComponentPropertyRrule))),
		ext: domain.ExternalEvent{
			ExternalID:       uid,
			Title:            sanitize(propertyValue(ve.GetProperty(ics.ComponentPropertySummary))),
			Start:            start,
			End:              end,
			Description:      strings.TrimSpace(propertyValue(ve.GetProperty(ics.ComponentPropertyDescription))),
			ConferencingLink: strings.TrimSpace(propertyValue(ve.GetProperty(ics.ComponentProperty("X-GOOGLE-CONFERENCE")))),
		},
	}
	if p := ve.GetProperty(ics.ComponentPropertyRecurrenceId); p != nil {
		if at, err := parseICSTime(p.Value, p.ICalParameters, loc); err == nil {
			ev.recurrenceAt = &at
		}
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(v, p.ICalParameters, loc); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyAttendee) {
		email := strings.TrimSpace(p.Value)
		if len(email) > 7 && strings.EqualFold(email[:7], "mailto:") {
			email = email[7:]
		}
		if email != "" {
			ev.ext.AttendeeEmails = append(ev.ext.AttendeeEmails, email)
		}
	}
	return ev, true
}

func expandMaster(m icsEvent, from, to time.Time) []time.Time {
	opt, err := rrule.StrToROption(m.rrule)
	if err != nil {
		return fallbackStart(m, from, to)
	}
	opt.Dtstart = m.ext.Start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return fallbackStart(m, from, to)
	}
	set := &rrule.Set{}
	set.RRule(rule)
	for _, ex := range m.exdates {
		set.ExDate(ex)
	}
	return set.Between(from, to, true)
}

func fallbackStart(m icsEvent, from, to time.Time) []time.Time {
	if overlaps(m.ext.Start, m.ext.End, from, to) {
		return []time.Time{m.ext.Start}
	}
	return nil
}

func parseICSTime(value string, params map[string][]string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if tz, ok := params["TZID"]; ok && len(tz) > 0 && strings.TrimSpace(tz[0]) != "" {
		if l, err := time.LoadLocation(strings.TrimSpace(tz[0])); err == nil {
			loc = l
		}
	}
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102T1504", "20060102"} {
		if strings.HasSuffix(layout, "Z") {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time value %q", v)
}

func isAllDay(p *ics.IANAProperty) bool {
	for _, v := range p.ICalParameters["VALUE"] {
		if strings.EqualFold(strings.TrimSpace(v), "DATE") {
			return true
		}
	}
	return len(strings.TrimSpace(p.Value)) == 8
}

func propertyValue(p *ics.IANAProperty) string {
	if p == nil {
		return ""
	}
	return p.Value
}

func overrideKey(uid string, at time.Time) string {
	return uid + "|" + at.UTC().Format(time.RFC3339)
}

func overlaps(start, end, from, to time.Time) bool {
	return start.Before(to) && end.After(from)
}

func sanitize(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
