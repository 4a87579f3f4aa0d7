// Package services defines the business logic for scheduling meetings and
// presenting the merged calendar. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
)

// Meeting-related errors.
var (
	// ErrMeetingNotFound indicates that the requested meeting does not exist
	// or has been deleted.
	ErrMeetingNotFound = errors.New("meeting not found")

	// ErrForbidden is returned when the viewer is neither the meeting's
	// creator nor an administrator, or when an operation is reserved for
	// administrators.
	ErrForbidden = errors.New("not allowed to manage this meeting")

	// ErrInvalidTransition is returned when a manual status change is not
	// legal from the meeting's current state at the current time. The
	// concrete error is a *lifecycle.TransitionError carrying the reason.
	ErrInvalidTransition = lifecycle.ErrInvalidTransition

	// ErrNotEditable is returned when a meeting's current status no longer
	// allows the requested edit (e.g. rescheduling a cancelled meeting, or
	// writing minutes before the meeting has started).
	ErrNotEditable = errors.New("meeting can no longer be edited")
)

// ErrNoCalendarView is returned by the calendar operations of a service
// built without a MergedView.
var ErrNoCalendarView = errors.New("merged calendar view is not configured")

// ValidationError reports malformed user input. It is always surfaced to
// the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports that the requested time is not available. The
// caller must re-propose; the service never books SuggestedStart on its own.
type ConflictError struct {
	// Requested is the start that was asked for (one occurrence of a series).
	Requested time.Time
	// SuggestedStart is the earliest acceptable start for that occurrence.
	SuggestedStart time.Time
	// Messages are the resolver's advisories.
	Messages []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested start %s is not available (next slot %s): %s",
		e.Requested.Format(time.RFC3339), e.SuggestedStart.Format(time.RFC3339), strings.Join(e.Messages, "; "))
}
