package domain

import (
	"strings"
	"time"
)

// RecurrenceKind selects how a series repeats.
type RecurrenceKind string

const (
	RecurNone     RecurrenceKind = "none"
	RecurDaily    RecurrenceKind = "daily"
	RecurWeekly   RecurrenceKind = "weekly"
	RecurBiweekly RecurrenceKind = "biweekly"
	RecurMonthly  RecurrenceKind = "monthly"
	RecurYearly   RecurrenceKind = "yearly"
)

// ParseRecurrenceKind maps user input to a RecurrenceKind. The empty string
// means RecurNone.
func ParseRecurrenceKind(s string) (RecurrenceKind, bool) {
	k := RecurrenceKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return RecurNone, true
	}
	switch k {
	case RecurNone, RecurDaily, RecurWeekly, RecurBiweekly, RecurMonthly, RecurYearly:
		return k, true
	}
	return "", false
}

// WeekdayMask is a set of weekdays, bit i standing for time.Weekday(i).
type WeekdayMask uint8

// MaskOf builds a mask from the given weekdays.
func MaskOf(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			m |= 1 << uint(d)
		}
	}
	return m
}

// Has reports whether d is in the mask.
func (m WeekdayMask) Has(d time.Weekday) bool { return m&(1<<uint(d)) != 0 }

// Empty reports whether no weekday is set.
func (m WeekdayMask) Empty() bool { return m&0x7f == 0 }

// Days returns the weekdays in the mask, Sunday first.
func (m WeekdayMask) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Recurrence describes the series a meeting belongs to.
type Recurrence struct {
	Kind     RecurrenceKind `json:"kind"               gorm:"type:varchar(16);not null;default:'none'"`
	EndDate  *time.Time     `json:"end_date,omitempty"`
	Weekdays WeekdayMask    `json:"weekdays,omitempty" gorm:"not null;default:0"`
	GroupID  *string        `json:"group_id,omitempty" gorm:"type:varchar(36);index"`
}

// Normalize enforces that a non-recurring descriptor carries no series data.
func (r Recurrence) Normalize() Recurrence {
	if r.Kind == "" {
		r.Kind = RecurNone
	}
	if r.Kind == RecurNone {
		return Recurrence{Kind: RecurNone}
	}
	if r.Kind != RecurWeekly {
		r.Weekdays = 0
	}
	if r.GroupID != nil && *r.GroupID == "" {
		r.GroupID = nil
	}
	return r
}
