package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

const (
	// DefaultCalendarAPIBase is the Google Calendar v3 endpoint.
	DefaultCalendarAPIBase = "https://www.googleapis.com/calendar/v3"

	// DefaultMeetAPIBase is the Google Meet v2 endpoint.
	DefaultMeetAPIBase = "https://meet.googleapis.com/v2"

	defaultTimeout = 15 * time.Second
	maxPages       = 20
)

// TokenProvider supplies OAuth2 bearer tokens.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// AccessToken implements TokenProvider.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrUnauthorized
	}
	return string(t), nil
}

// Google is a REST client for one Google calendar and the Meet spaces
// attached to its events. It implements EventSource, EventWriter and
// RoomConfigurator. Every request waits on a shared rate limiter.
type Google struct {
	calendarID string
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string
	meetURL    string
	limiter    *rate.Limiter
	location   *time.Location
}

// Option configures a Google client.
type Option func(*Google)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Google) { g.httpClient = c }
}

// WithBaseURL overrides the Calendar API base URL.
func WithBaseURL(u string) Option {
	return func(g *Google) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithMeetBaseURL overrides the Meet API base URL.
func WithMeetBaseURL(u string) Option {
	return func(g *Google) { g.meetURL = strings.TrimRight(u, "/") }
}

// WithRateLimit caps outgoing requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Google) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLocation sets the zone used for all-day events.
func WithLocation(loc *time.Location) Option {
	return func(g *Google) {
		if loc != nil {
			g.location = loc
		}
	}
}

// NewGoogle builds a client for calendarID.
func NewGoogle(calendarID string, tokens TokenProvider, opts ...Option) *Google {
	g := &Google{
		calendarID: calendarID,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultCalendarAPIBase,
		meetURL:    DefaultMeetAPIBase,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		location:   time.UTC,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type gTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type gAttendee struct {
	Email string `json:"email"`
}

type gEntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

type gSolutionKey struct {
	Type string `json:"type"`
}

type gCreateRequest struct {
	RequestID             string       `json:"requestId"`
	ConferenceSolutionKey gSolutionKey `json:"conferenceSolutionKey"`
}

type gConferenceData struct {
	CreateRequest *gCreateRequest `json:"createRequest,omitempty"`
	EntryPoints   []gEntryPoint   `json:"entryPoints,omitempty"`
}

type gEvent struct {
	ID             string           `json:"id,omitempty"`
	Status         string           `json:"status,omitempty"`
	Summary        string           `json:"summary,omitempty"`
	Description    string           `json:"description,omitempty"`
	Location       string           `json:"location,omitempty"`
	Start          *gTime           `json:"start,omitempty"`
	End            *gTime           `json:"end,omitempty"`
	Attendees      []gAttendee      `json:"attendees,omitempty"`
	HangoutLink    string           `json:"hangoutLink,omitempty"`
	ConferenceData *gConferenceData `json:"conferenceData,omitempty"`
}

type gEventList struct {
	Items         []gEvent `json:"items"`
	NextPageToken string   `json:"nextPageToken"`
}

// ListEvents implements EventSource. Recurring events are expanded by the
// API (singleEvents=true); cancelled instances are dropped.
func (g *Google) ListEvents(ctx context.Context, from, to time.Time) ([]domain.ExternalEvent, error) {
	var (
		out   []domain.ExternalEvent
		token string
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("timeMin", from.UTC().Format(time.RFC3339))
		q.Set("timeMax", to.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("maxResults", "250")
		if token != "" {
			q.Set("pageToken", token)
		}

		var list gEventList
		if err := g.do(ctx, http.MethodGet, g.eventsURL("", q), nil, &list); err != nil {
			return nil, err
		}
		for _, ev := range list.Items {
			if ev.Status == "cancelled" {
				continue
			}
			ext, ok := g.toExternal(ev)
			if ok {
				out = append(out, ext)
			}
		}
		if list.NextPageToken == "" {
			break
		}
		token = list.NextPageToken
	}
	if out == nil {
		out = []domain.ExternalEvent{}
	}
	return out, nil
}

// CreateEvent implements EventWriter.
func (g *Google) CreateEvent(ctx context.Context, in EventInput) (EventResult, error) {
	q := url.Values{}
	q.Set("conferenceDataVersion", "1")
	q.Set("sendUpdates", "all")

	var resp gEvent
	if err := g.do(ctx, http.MethodPost, g.eventsURL("", q), g.fromInput(in), &resp); err != nil {
		return EventResult{}, err
	}
	return EventResult{ExternalID: resp.ID, ConferencingLink: conferenceLink(resp)}, nil
}

// UpdateEvent implements EventWriter.
func (g *Google) UpdateEvent(ctx context.Context, externalID string, in EventInput) (EventResult, error) {
	if externalID == "" {
		return EventResult{}, errors.New("calendar: empty external id")
	}
	q := url.Values{}
	q.Set("conferenceDataVersion", "1")
	q.Set("sendUpdates", "all")

	var resp gEvent
	if err := g.do(ctx, http.MethodPatch, g.eventsURL(externalID, q), g.fromInput(in), &resp); err != nil {
		return EventResult{}, err
	}
	id := resp.ID
	if id == "" {
		id = externalID
	}
	return EventResult{ExternalID: id, ConferencingLink: conferenceLink(resp)}, nil
}

// DeleteEvent implements EventWriter. An event that is already gone counts
// as deleted.
func (g *Google) DeleteEvent(ctx context.Context, externalID string) error {
	if externalID == "" {
		return nil
	}
	err := g.do(ctx, http.MethodDelete, g.eventsURL(externalID, nil), nil, nil)
	if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusGone) {
		return nil
	}
	return err
}

type meetSpaceConfig struct {
	AccessType             string               `json:"accessType"`
	ModerationRestrictions meetModerationLimits `json:"moderationRestrictions"`
	ArtifactConfig         meetArtifactConfig   `json:"artifactConfig"`
}

type meetModerationLimits struct {
	ChatRestriction     string `json:"chatRestriction"`
	ReactionRestriction string `json:"reactionRestriction"`
	PresentRestriction  string `json:"presentRestriction"`
}

type meetArtifactConfig struct {
	RecordingConfig     meetGeneration `json:"recordingConfig"`
	TranscriptionConfig meetGeneration `json:"transcriptionConfig"`
}

type meetGeneration struct {
	AutoRecordingGeneration     string `json:"autoRecordingGeneration,omitempty"`
	AutoTranscriptionGeneration string `json:"autoTranscriptionGeneration,omitempty"`
}

// ApplyRoomPreferences implements RoomConfigurator by patching the config of
// the Meet space behind conferencingLink. Entry muting has no Meet API
// counterpart and is kept locally only.
func (g *Google) ApplyRoomPreferences(ctx context.Context, conferencingLink string, cfg domain.Configuration) error {
	code := MeetingCode(conferencingLink)
	if code == "" {
		return fmt.Errorf("calendar: no meeting code in %q", conferencingLink)
	}
	body := struct {
		Config meetSpaceConfig `json:"config"`
	}{Config: meetSpaceConfig{
		AccessType: strings.ToUpper(cfg.AccessType),
		ModerationRestrictions: meetModerationLimits{
			ChatRestriction:     restriction(cfg.AllowChat),
			ReactionRestriction: restriction(cfg.AllowReactions),
			PresentRestriction:  restriction(cfg.AllowScreenShare),
		},
		ArtifactConfig: meetArtifactConfig{
			RecordingConfig:     meetGeneration{AutoRecordingGeneration: onOff(cfg.AutoRecord)},
			TranscriptionConfig: meetGeneration{AutoTranscriptionGeneration: onOff(cfg.AutoTranscribe)},
		},
	}}

	u := g.meetURL + "/spaces/" + url.PathEscape(code) + "?updateMask=config"
	return g.do(ctx, http.MethodPatch, u, body, nil)
}

// MeetingCode extracts the "abc-defg-hij" code from a Meet URL.
func MeetingCode(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

func restriction(allowed bool) string {
	if allowed {
		return "NO_RESTRICTION"
	}
	return "HOSTS_ONLY"
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func (g *Google) eventsURL(id string, q url.Values) string {
	u := g.baseURL + "/calendars/" + url.PathEscape(g.calendarID) + "/events"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (g *Google) fromInput(in EventInput) gEvent {
	ev := gEvent{
		Summary:     in.Subject,
		Description: in.Description,
		Location:    in.Location,
		Start:       &gTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: zoneName(in.Start)},
		End:         &gTime{DateTime: in.End.Format(time.RFC3339), TimeZone: zoneName(in.End)},
	}
	for _, e := range in.AttendeeEmails {
		if e = strings.TrimSpace(e); e != "" {
			ev.Attendees = append(ev.Attendees, gAttendee{Email: e})
		}
	}
	if in.Conferencing {
		ev.ConferenceData = &gConferenceData{CreateRequest: &gCreateRequest{
			RequestID:             uuid.NewString(),
			ConferenceSolutionKey: gSolutionKey{Type: "hangoutsMeet"},
		}}
	}
	return ev
}

func (g *Google) toExternal(ev gEvent) (domain.ExternalEvent, bool) {
	start, ok := g.parseTime(ev.Start)
	if !ok {
		return domain.ExternalEvent{}, false
	}
	end, ok := g.parseTime(ev.End)
	if !ok || !end.After(start) {
		end = start.Add(30 * time.Minute)
	}
	emails := make([]string, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return domain.ExternalEvent{
		ExternalID:       ev.ID,
		Title:            ev.Summary,
		Start:            start,
		End:              end,
		Description:      ev.Description,
		AttendeeEmails:   emails,
		ConferencingLink: conferenceLink(ev),
	}, true
}

func (g *Google) parseTime(t *gTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, err == nil
	}
	if t.Date != "" {
		v, err := time.ParseInLocation(time.DateOnly, t.Date, g.location)
		return v, err == nil
	}
	return time.Time{}, false
}

func conferenceLink(ev gEvent) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.URI != "" {
				return ep.URI
			}
		}
	}
	return ""
}

func zoneName(t time.Time) string {
	if name := t.Location().String(); name != "" && name != "Local" {
		return name
	}
	return ""
}

// do sends one JSON request. A nil out discards the response body.
func (g *Google) do(ctx context.Context, method, u string, in, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
	}
	token, err := g.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("calendar: access token: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("calendar: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("calendar: decode response: %w", err)
	}
	return nil
}
