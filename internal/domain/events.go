package domain

import "time"

// ExternalEvent is a read-only event fetched from the external calendar.
// It is never owned or mutated by this service.
type ExternalEvent struct {
	ExternalID       string    `json:"external_id"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Description      string    `json:"description,omitempty"`
	AttendeeEmails   []string  `json:"attendee_emails,omitempty"`
	ConferencingLink string    `json:"conferencing_link,omitempty"`
}

// Display statuses for externally sourced events.
const (
	DisplayUpcoming   = "upcoming"
	DisplayInProgress = "in_progress"
	DisplayPast       = "past"
)

// Event sources of a MergedEvent.
const (
	SourceLocal    = "local"
	SourceExternal = "external"
)

// Attendee is an attendee email paired with its resolved display name.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Capabilities are the actions the viewing user may take on an event.
type Capabilities struct {
	CanEdit         bool `json:"can_edit"`
	CanDelete       bool `json:"can_delete"`
	CanConfigure    bool `json:"can_configure"`
	CanUpdateStatus bool `json:"can_update_status"`
	CanEditMinutes  bool `json:"can_edit_minutes"`
}

// MergedEvent is the per-request, per-viewer combination of a local Meeting
// or an unmatched ExternalEvent. It is never persisted.
type MergedEvent struct {
	ID                string         `json:"id"`
	Source            string         `json:"source"`
	MeetingID         *uint          `json:"meeting_id,omitempty"`
	ExternalID        string         `json:"external_id,omitempty"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	Location          string         `json:"location,omitempty"`
	Start             time.Time      `json:"start"`
	End               time.Time      `json:"end"`
	Status            string         `json:"status"`
	ConferencingLink  string         `json:"conferencing_link,omitempty"`
	RecurrenceGroupID string         `json:"recurrence_group_id,omitempty"`
	CreatorID         string         `json:"creator_id,omitempty"`
	Attendees         []Attendee     `json:"attendees"`
	Configuration     *Configuration `json:"configuration,omitempty"`
	Capabilities
}

// Interval is a half-open [Start, End) span used for conflict checks.
type Interval struct {
	Start time.Time
	End   time.Time
	// Label names the interval owner in messages (meeting title, event id).
	Label string
}
