// Package domain defines the persistence models for meetings, users, and
// idempotency records, plus the ephemeral calendar types exchanged between
// the scheduling core and the transport layer. The persisted types are
// mapped with GORM.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// MeetingStatus is the lifecycle state of a Meeting.
type MeetingStatus string

const (
	StatusScheduled  MeetingStatus = "scheduled"
	StatusInProgress MeetingStatus = "in_progress"
	StatusCompleted  MeetingStatus = "completed"
	StatusPostponed  MeetingStatus = "postponed"
	StatusCancelled  MeetingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusPostponed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s can no longer be left by any transition.
func (s MeetingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Meeting is the local, authoritative record of a scheduled gathering,
// optionally linked to an event in the external calendar.
//
// Fields:
//   - ID: opaque integer primary key.
//   - StartAt / EndAt: the scheduled interval; EndAt is always after StartAt.
//   - Status: lifecycle state, see MeetingStatus.
//   - ExternalEventID: set when the meeting is mirrored to the external calendar.
//   - ConferencingLink: URL of the external meeting room, if any.
//   - CreatorID / ParticipantIDs: ownership data, passed through untouched.
//   - Recurrence: series descriptor; GroupID links siblings of one series.
//   - Configuration: normalized room preferences (never partially set).
//   - Minutes: free-form notes captured during or after the meeting.
type Meeting struct {
	ID               uint           `json:"id"                gorm:"primaryKey"`
	Title            string         `json:"title"             gorm:"type:varchar(255);not null"`
	Description      string         `json:"description"       gorm:"type:text"`
	Location         string         `json:"location"          gorm:"type:varchar(255)"`
	StartAt          time.Time      `json:"start"             gorm:"not null;index:idx_meeting_window,priority:1"`
	EndAt            time.Time      `json:"end"               gorm:"not null;index:idx_meeting_window,priority:2"`
	Status           MeetingStatus  `json:"status"            gorm:"type:varchar(16);not null;default:'scheduled';index"`
	ExternalEventID  *string        `json:"external_event_id,omitempty" gorm:"type:varchar(255);index"`
	ConferencingLink *string        `json:"conferencing_link,omitempty" gorm:"type:varchar(512)"`
	CreatorID        string         `json:"creator_id"        gorm:"type:varchar(64);not null;index"`
	ParticipantIDs   []string       `json:"participant_ids"   gorm:"serializer:json;type:text"`
	AttendeeEmails   []string       `json:"attendee_emails"   gorm:"serializer:json;type:text"`
	Recurrence       Recurrence     `json:"recurrence"        gorm:"embedded;embeddedPrefix:recurrence_"`
	Configuration    Configuration  `json:"configuration"     gorm:"serializer:json;type:text"`
	Minutes          string         `json:"minutes,omitempty" gorm:"type:text"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                 gorm:"index"`
}

// TableName returns the database table name for Meeting.
func (Meeting) TableName() string { return "meetings" }

// Duration returns the length of the scheduled interval.
func (m Meeting) Duration() time.Duration { return m.EndAt.Sub(m.StartAt) }

// Linked reports whether the meeting is mirrored to the external calendar.
func (m Meeting) Linked() bool { return m.ExternalEventID != nil && *m.ExternalEventID != "" }

// HasConferencing reports whether the meeting carries a conferencing link.
func (m Meeting) HasConferencing() bool {
	return m.ConferencingLink != nil && *m.ConferencingLink != ""
}

// IsParticipant reports whether userID is listed as a participant.
func (m Meeting) IsParticipant(userID string) bool {
	for _, p := range m.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

// Normalize enforces the record-level invariants on every read and write
// boundary: configuration defaults are filled in, nil slices become empty,
// and the recurrence descriptor drops its group for non-recurring meetings.
func (m *Meeting) Normalize() {
	if m.Configuration == (Configuration{}) {
		m.Configuration = DefaultConfiguration()
	}
	m.Configuration = m.Configuration.Normalize()
	m.Recurrence = m.Recurrence.Normalize()
	if m.ParticipantIDs == nil {
		m.ParticipantIDs = []string{}
	}
	if m.AttendeeEmails == nil {
		m.AttendeeEmails = []string{}
	}
	if m.Status == "" {
		m.Status = StatusScheduled
	}
	if m.ConferencingLink != nil && *m.ConferencingLink == "" {
		m.ConferencingLink = nil
	}
	if m.ExternalEventID != nil && *m.ExternalEventID == "" {
		m.ExternalEventID = nil
	}
}

// AfterFind normalizes rows loaded by GORM.
func (m *Meeting) AfterFind(*gorm.DB) error {
	m.Normalize()
	return nil
}

// BeforeSave normalizes rows before GORM writes them.
func (m *Meeting) BeforeSave(*gorm.DB) error {
	m.Normalize()
	return nil
}

// User is a directory entry used to resolve attendee emails to display names.
type User struct {
	ID          string    `json:"id"           gorm:"type:varchar(64);primaryKey"`
	Email       string    `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	IsAdmin     bool      `json:"is_admin"     gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// StatusUpdate is one row of a batched status write.
type StatusUpdate struct {
	ID     uint
	Status MeetingStatus
}
