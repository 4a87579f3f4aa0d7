// Package lifecycle implements the meeting status state machine.
//
// Automatic transitions are evaluated against wall-clock time whenever a
// meeting is read; there is no background timer. Manual transitions are
// explicit operator actions validated by CheckManual before the caller
// commits them. COMPLETED and CANCELLED are terminal for both kinds;
// POSTPONED is terminal only for automatic transitions.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ErrInvalidTransition is the class of every rejected manual transition.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes why a manual transition was rejected.
type TransitionError struct {
	From   domain.MeetingStatus
	To     domain.MeetingStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s: %s", e.From, e.To, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Auto returns the status a meeting must have at now, and whether it differs
// from current. Only SCHEDULED and IN_PROGRESS ever move:
//
//	SCHEDULED   -> COMPLETED   when now >= end
//	SCHEDULED   -> IN_PROGRESS when start <= now < end
//	IN_PROGRESS -> COMPLETED   when now >= end
//	IN_PROGRESS -> SCHEDULED   when now < start
func Auto(current domain.MeetingStatus, start, end, now time.Time) (domain.MeetingStatus, bool) {
	switch current {
	case domain.StatusScheduled:
		if !now.Before(end) {
			return domain.StatusCompleted, true
		}
		if !now.Before(start) {
			return domain.StatusInProgress, true
		}
	case domain.StatusInProgress:
		if !now.Before(end) {
			return domain.StatusCompleted, true
		}
		if now.Before(start) {
			return domain.StatusScheduled, true
		}
	}
	return current, false
}

// Apply runs Auto on m in place and reports whether its status changed.
func Apply(m *domain.Meeting, now time.Time) bool {
	next, changed := Auto(m.Status, m.StartAt, m.EndAt, now)
	if changed {
		m.Status = next
	}
	return changed
}

// CheckManual validates a manual transition of m to target at now.
//
// For POSTPONED the caller passes the proposed interval in newStart/newEnd;
// conflict resolution against other meetings is the caller's job because it
// needs the store and the calendar. For every other target the interval
// arguments are ignored.
func CheckManual(m domain.Meeting, target domain.MeetingStatus, now, newStart, newEnd time.Time) error {
	reject := func(reason string) error {
		return &TransitionError{From: m.Status, To: target, Reason: reason}
	}
	if !target.Valid() {
		return reject("unknown status")
	}
	if m.Status.Terminal() {
		return reject("meeting is already " + string(m.Status))
	}

	switch target {
	case domain.StatusPostponed:
		if newStart.IsZero() || newEnd.IsZero() {
			return reject("a new start and end are required")
		}
		if !newEnd.After(newStart) {
			return reject("end must be after start")
		}
	case domain.StatusInProgress:
		if now.Before(m.StartAt) || now.After(m.EndAt) {
			return reject("meeting is not within its scheduled time")
		}
	case domain.StatusScheduled:
		if now.After(m.EndAt) {
			return reject("meeting has already ended")
		}
	case domain.StatusCompleted:
		if now.Before(m.StartAt) {
			return reject("meeting has not started yet")
		}
	case domain.StatusCancelled:
	}
	return nil
}

// ApplyManual mutates m to reflect an already validated manual transition.
// Cancelling drops the conferencing link; postponing moves the interval.
func ApplyManual(m *domain.Meeting, target domain.MeetingStatus, newStart, newEnd time.Time) {
	m.Status = target
	switch target {
	case domain.StatusCancelled:
		m.ConferencingLink = nil
	case domain.StatusPostponed:
		m.StartAt, m.EndAt = newStart, newEnd
	}
}

// Viewer identifies who is looking at a meeting.
type Viewer struct {
	ID      string
	IsAdmin bool
}

// CanManage reports whether v may mutate m at all.
func (v Viewer) CanManage(m domain.Meeting) bool {
	return v.IsAdmin || (v.ID != "" && v.ID == m.CreatorID)
}

// CapabilitiesFor computes the viewer-relative action flags for m. The
// status should already reflect Auto so flags match what is displayed.
func CapabilitiesFor(m domain.Meeting, v Viewer) domain.Capabilities {
	if !v.CanManage(m) {
		return domain.Capabilities{}
	}
	open := !m.Status.Terminal()
	return domain.Capabilities{
		CanEdit:         open,
		CanDelete:       true,
		CanConfigure:    open && m.HasConferencing(),
		CanUpdateStatus: open,
		CanEditMinutes:  m.Status == domain.StatusInProgress || m.Status == domain.StatusCompleted,
	}
}
