// Package calendar contains the clients for the external calendar and
// conferencing services. The scheduling core depends only on the small
// interfaces declared here; concrete implementations talk to the Google
// Calendar v3 and Meet v2 REST APIs or to a read-only ICS feed.
//
// Failures are classified so callers can choose a policy per class:
//   - ErrTransient: network errors, 429 and 5xx. Reads fall back to cached
//     data, writes degrade to warnings.
//   - ErrUnauthorized: 401 and 403. Preference sync backs off for a long
//     cooldown instead of retrying.
//   - ErrNotConfigured: no upstream is configured; callers skip silently.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

var (
	// ErrTransient marks a failure worth retrying later.
	ErrTransient = errors.New("calendar: transient upstream failure")

	// ErrUnauthorized marks a credential or permission rejection.
	ErrUnauthorized = errors.New("calendar: unauthorized")

	// ErrNotConfigured is returned by the no-op client used when no
	// external calendar is configured.
	ErrNotConfigured = errors.New("calendar: not configured")
)

// EventSource lists events in a time window.
type EventSource interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]domain.ExternalEvent, error)
}

// EventWriter mirrors local meetings to the external calendar.
type EventWriter interface {
	CreateEvent(ctx context.Context, in EventInput) (EventResult, error)
	UpdateEvent(ctx context.Context, externalID string, in EventInput) (EventResult, error)
	DeleteEvent(ctx context.Context, externalID string) error
}

// RoomConfigurator pushes room preferences to the conferencing service.
type RoomConfigurator interface {
	ApplyRoomPreferences(ctx context.Context, conferencingLink string, cfg domain.Configuration) error
}

// EventInput is the payload of a create or update.
type EventInput struct {
	Subject        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	AttendeeEmails []string
	// Conferencing requests a conferencing room when the event has none.
	Conferencing bool
}

// EventResult is what the upstream returns after a write.
type EventResult struct {
	ExternalID       string
	ConferencingLink string
}

// InputFromMeeting builds the write payload for m.
func InputFromMeeting(m domain.Meeting, conferencing bool) EventInput {
	return EventInput{
		Subject:        m.Title,
		Description:    m.Description,
		Location:       m.Location,
		Start:          m.StartAt,
		End:            m.EndAt,
		AttendeeEmails: append([]string(nil), m.AttendeeEmails...),
		Conferencing:   conferencing,
	}
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("calendar: http %d", e.StatusCode)
	}
	return fmt.Sprintf("calendar: http %d: %s", e.StatusCode, truncate(e.Body, 220))
}

// Unwrap exposes the failure class so errors.Is matches ErrTransient or
// ErrUnauthorized for the relevant status codes.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return ErrTransient
	}
	return nil
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Disabled is the collaborator used when no external calendar is
// configured. Every call fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) ListEvents(context.Context, time.Time, time.Time) ([]domain.ExternalEvent, error) {
	return nil, ErrNotConfigured
}

func (Disabled) CreateEvent(context.Context, EventInput) (EventResult, error) {
	return EventResult{}, ErrNotConfigured
}

func (Disabled) UpdateEvent(context.Context, string, EventInput) (EventResult, error) {
	return EventResult{}, ErrNotConfigured
}

func (Disabled) DeleteEvent(context.Context, string) error { return ErrNotConfigured }

func (Disabled) ApplyRoomPreferences(context.Context, string, domain.Configuration) error {
	return ErrNotConfigured
}

// Empty is an EventSource with no events. It backs the read path when no
// source is configured so the calendar still shows local meetings.
type Empty struct{}

func (Empty) ListEvents(context.Context, time.Time, time.Time) ([]domain.ExternalEvent, error) {
	return []domain.ExternalEvent{}, nil
}

func truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
