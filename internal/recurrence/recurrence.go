// Package recurrence expands a recurring-series request into the ordered
// list of occurrence dates. Generation is pure: no I/O, no clock, and the
// same input always yields the same output.
//
// Daily, weekly, and biweekly series are expanded with rrule-go. Monthly
// and yearly series clamp to the last valid day of the target month
// (Jan 31 -> Feb 29/28, Feb 29 -> Feb 28), which RRULE semantics would
// skip instead, so those two are computed directly.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

var (
	// ErrInvalidRange is returned when a recurring series ends before it starts.
	ErrInvalidRange = errors.New("recurrence end date is before start date")

	// ErrUnknownKind is returned for a recurrence kind outside the known set.
	ErrUnknownKind = errors.New("unknown recurrence kind")
)

// Generate returns the occurrence dates of a series starting on startDate
// and ending on or before endDate (inclusive). Only the calendar date of
// each argument is used; results are midnight in startDate's location.
//
//   - RecurNone always yields [startDate]; endDate is ignored.
//   - RecurDaily steps one day.
//   - RecurWeekly yields every date whose weekday is in weekdays, or steps
//     seven days from startDate when weekdays is empty.
//   - RecurBiweekly steps fourteen days.
//   - RecurMonthly keeps startDate's day of month, clamped to month end.
//   - RecurYearly keeps startDate's month/day, clamping Feb 29 to Feb 28.
//
// For every kind other than RecurNone, endDate before startDate is a
// precondition violation reported as ErrInvalidRange.
func Generate(startDate, endDate time.Time, kind domain.RecurrenceKind, weekdays domain.WeekdayMask) ([]time.Time, error) {
	start := Day(startDate)
	if kind == "" || kind == domain.RecurNone {
		return []time.Time{start}, nil
	}

	end := Day(endDate.In(start.Location()))
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s < %s", ErrInvalidRange, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	switch kind {
	case domain.RecurDaily:
		return expandRule(rrule.ROption{Freq: rrule.DAILY, Interval: 1, Dtstart: start, Until: end})
	case domain.RecurWeekly:
		opt := rrule.ROption{Freq: rrule.WEEKLY, Interval: 1, Dtstart: start, Until: end}
		if !weekdays.Empty() {
			opt.Byweekday = toRRuleWeekdays(weekdays)
		}
		return expandRule(opt)
	case domain.RecurBiweekly:
		return expandRule(rrule.ROption{Freq: rrule.WEEKLY, Interval: 2, Dtstart: start, Until: end})
	case domain.RecurMonthly:
		return monthly(start, end), nil
	case domain.RecurYearly:
		return yearly(start, end), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// NewGroupID returns a fresh identifier shared by every meeting of one series.
func NewGroupID() string { return uuid.NewString() }

// Day truncates t to midnight of its calendar date in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At places the clock time of template on date, in template's location.
func At(date, template time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, template.Hour(), template.Minute(), template.Second(), template.Nanosecond(), template.Location())
}

func expandRule(opt rrule.ROption) ([]time.Time, error) {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	all := r.All()
	out := make([]time.Time, 0, len(all))
	for _, t := range all {
		out = append(out, Day(t.In(opt.Dtstart.Location())))
	}
	return out, nil
}

func toRRuleWeekdays(mask domain.WeekdayMask) []rrule.Weekday {
	byDay := map[time.Weekday]rrule.Weekday{
		time.Monday:    rrule.MO,
		time.Tuesday:   rrule.TU,
		time.Wednesday: rrule.WE,
		time.Thursday:  rrule.TH,
		time.Friday:    rrule.FR,
		time.Saturday:  rrule.SA,
		time.Sunday:    rrule.SU,
	}
	out := make([]rrule.Weekday, 0, 7)
	for _, d := range mask.Days() {
		out = append(out, byDay[d])
	}
	return out
}

func monthly(start, end time.Time) []time.Time {
	var out []time.Time
	for i := 0; ; i++ {
		t := clampedDate(start.Year(), start.Month()+time.Month(i), start.Day(), start.Location())
		if t.After(end) {
			return out
		}
		out = append(out, t)
	}
}

func yearly(start, end time.Time) []time.Time {
	var out []time.Time
	for i := 0; ; i++ {
		t := clampedDate(start.Year()+i, start.Month(), start.Day(), start.Location())
		if t.After(end) {
			return out
		}
		out = append(out, t)
	}
}

// clampedDate builds year/month/day, moving day back to the month's last
// day when the month is shorter. month may exceed 12.
func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}
