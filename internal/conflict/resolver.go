// Package conflict finds the next start time at which a meeting of a given
// length fits between existing intervals while keeping a minimum gap on
// both sides of every interval.
//
// Overlapping existing intervals are treated independently: the scan
// restarts from the earliest interval after every advance, so a candidate
// that clears one interval but lands inside an overlapping, later-ending
// one keeps moving until it clears both.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// DefaultMinGap is the buffer enforced before and after every interval.
const DefaultMinGap = 2 * time.Minute

// MsgAdjusted is the advisory attached whenever the start had to move.
const MsgAdjusted = "time conflicts with another meeting; adjusted to next available slot"

// Result is the outcome of Resolve.
type Result struct {
	// Start is the earliest acceptable start at or after the requested one.
	Start time.Time
	// Messages are human-readable advisories explaining any adjustment.
	// A clamp yields the advance-notice advisory followed by MsgAdjusted.
	Messages []string
	// Clamped is true when the request violated the advance-notice rule.
	Clamped bool
	// Conflicted is true when an existing interval forced an advance.
	Conflicted bool
}

// Adjusted reports whether Start differs from the requested start.
func (r Result) Adjusted() bool { return r.Clamped || r.Conflicted }

// Resolve returns the earliest start >= proposed (and >= now+minGap) such
// that [start, start+duration) is at least minGap away from every interval.
// A non-positive minGap disables both the advance-notice clamp and the
// padding. Resolve never mutates intervals.
func Resolve(proposed time.Time, duration time.Duration, intervals []domain.Interval, now time.Time, minGap time.Duration) Result {
	if minGap < 0 {
		minGap = 0
	}
	res := Result{Start: proposed}

	if earliest := now.Add(minGap); res.Start.Before(earliest) {
		res.Start = earliest
		res.Clamped = true
		res.Messages = append(res.Messages,
			fmt.Sprintf("meetings require at least %s advance notice", humanize(minGap)))
	}

	sorted := make([]domain.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for {
		advanced := false
		for _, iv := range sorted {
			if overlaps(res.Start, res.Start.Add(duration), iv, minGap) {
				res.Start = iv.End.Add(minGap)
				res.Conflicted = true
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}

	// Any move away from the requested start is reported, a clamp included.
	if !res.Start.Equal(proposed) {
		res.Messages = append(res.Messages, MsgAdjusted)
	}
	return res
}

// Conflicts returns the intervals that [start, end) violates, gap included.
func Conflicts(start, end time.Time, intervals []domain.Interval, minGap time.Duration) []domain.Interval {
	var out []domain.Interval
	for _, iv := range intervals {
		if iv.End.After(iv.Start) && overlaps(start, end, iv, minGap) {
			out = append(out, iv)
		}
	}
	return out
}

// overlaps reports whether [start, end) intersects iv padded by gap on both sides.
func overlaps(start, end time.Time, iv domain.Interval, gap time.Duration) bool {
	return start.Before(iv.End.Add(gap)) && end.After(iv.Start.Add(-gap))
}

func humanize(d time.Duration) string {
	if d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}
