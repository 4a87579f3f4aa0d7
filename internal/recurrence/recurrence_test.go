package recurrence

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDates(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format(time.DateOnly))
	}
	return out
}

func TestGenerate_Kinds(t *testing.T) {
	cases := []struct {
		name     string
		start    time.Time
		end      time.Time
		kind     domain.RecurrenceKind
		weekdays domain.WeekdayMask
		want     []string
	}{
		{
			name:  "none ignores end",
			start: date(2024, 5, 1), end: date(2024, 6, 1), kind: domain.RecurNone,
			want: []string{"2024-05-01"},
		},
		{
			name:  "daily inclusive",
			start: date(2024, 2, 27), end: date(2024, 3, 1), kind: domain.RecurDaily,
			want: []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"},
		},
		{
			name:  "weekly without weekdays steps seven days",
			start: date(2024, 1, 3), end: date(2024, 1, 24), kind: domain.RecurWeekly,
			want: []string{"2024-01-03", "2024-01-10", "2024-01-17", "2024-01-24"},
		},
		{
			name:  "weekly mon wed",
			start: date(2024, 1, 1), end: date(2024, 1, 22), kind: domain.RecurWeekly,
			weekdays: domain.MaskOf(time.Monday, time.Wednesday),
			want:     []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15", "2024-01-17", "2024-01-22"},
		},
		{
			name:  "biweekly",
			start: date(2024, 1, 1), end: date(2024, 2, 12), kind: domain.RecurBiweekly,
			want: []string{"2024-01-01", "2024-01-15", "2024-01-29", "2024-02-12"},
		},
		{
			name:  "monthly clamps to month end",
			start: date(2024, 1, 31), end: date(2024, 4, 30), kind: domain.RecurMonthly,
			want: []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"},
		},
		{
			name:  "monthly non leap february",
			start: date(2023, 1, 30), end: date(2023, 3, 30), kind: domain.RecurMonthly,
			want: []string{"2023-01-30", "2023-02-28", "2023-03-30"},
		},
		{
			name:  "yearly leap day",
			start: date(2024, 2, 29), end: date(2028, 3, 1), kind: domain.RecurYearly,
			want: []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"},
		},
		{
			name:  "same start and end",
			start: date(2024, 7, 4), end: date(2024, 7, 4), kind: domain.RecurDaily,
			want: []string{"2024-07-04"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Generate(tc.start, tc.end, tc.kind, tc.weekdays)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if !reflect.DeepEqual(formatDates(got), tc.want) {
				t.Fatalf("got %v, want %v", formatDates(got), tc.want)
			}
		})
	}
}

func TestGenerate_MonthlyNeverInventsDates(t *testing.T) {
	got, err := Generate(date(2024, 1, 31), date(2024, 4, 30), domain.RecurMonthly, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, d := range got {
		if d.Month() == time.February && d.Day() > 29 {
			t.Fatalf("impossible date %v", d)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	start, end := date(2024, 1, 1), date(2024, 12, 31)
	for _, kind := range []domain.RecurrenceKind{domain.RecurDaily, domain.RecurWeekly, domain.RecurBiweekly, domain.RecurMonthly, domain.RecurYearly} {
		a, err := Generate(start, end, kind, domain.MaskOf(time.Tuesday))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		b, _ := Generate(start, end, kind, domain.MaskOf(time.Tuesday))
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: non-deterministic output", kind)
		}
	}
}

func TestGenerate_EndBeforeStart(t *testing.T) {
	for _, kind := range []domain.RecurrenceKind{domain.RecurDaily, domain.RecurWeekly, domain.RecurBiweekly, domain.RecurMonthly, domain.RecurYearly} {
		_, err := Generate(date(2024, 5, 2), date(2024, 5, 1), kind, 0)
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%s: expected ErrInvalidRange, got %v", kind, err)
		}
	}
	got, err := Generate(date(2024, 5, 2), date(2024, 5, 1), domain.RecurNone, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("none with reversed range: %v %v", got, err)
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	_, err := Generate(date(2024, 5, 1), date(2024, 6, 1), domain.RecurrenceKind("hourly"), 0)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestGenerate_UsesDateOnly(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	start := time.Date(2024, 3, 1, 14, 30, 0, 0, loc)
	end := time.Date(2024, 3, 3, 9, 0, 0, 0, loc)
	got, err := Generate(start, end, domain.RecurDaily, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 dates, got %v", formatDates(got))
	}
	if got[0].Location() != loc || got[0].Hour() != 0 {
		t.Fatalf("expected midnight in start location, got %v", got[0])
	}
}

func TestAt(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	tmpl := time.Date(2024, 1, 1, 14, 0, 0, 0, loc)
	got := At(date(2024, 2, 10), tmpl)
	want := time.Date(2024, 2, 10, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("At = %v, want %v", got, want)
	}
}

func TestNewGroupID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewGroupID()
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty group id %q", id)
		}
		seen[id] = true
	}
}
