package domain

import "time"

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Half-open semantics: a span ending exactly when another begins does not
// overlap it, so back-to-back appointments are allowed. Callers validate
// start < end before calling.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Contains reports whether [innerStart, innerEnd) lies entirely within
// [outerStart, outerEnd).
func Contains(outerStart, outerEnd, innerStart, innerEnd time.Time) bool {
	return !innerStart.Before(outerStart) && !innerEnd.After(outerEnd)
}

// Subtract removes the excluded spans from window and returns what remains,
// in chronological order. Excluded spans may overlap each other and may
// extend past the window.
func Subtract(window Interval, excluded []Interval) []Interval {
	remaining := []Interval{window}
	for _, ex := range excluded {
		next := remaining[:0:0]
		for _, r := range remaining {
			if !Overlaps(r.Start, r.End, ex.Start, ex.End) {
				next = append(next, r)
				continue
			}
			if ex.Start.After(r.Start) {
				next = append(next, Interval{Start: r.Start, End: ex.Start})
			}
			if ex.End.Before(r.End) {
				next = append(next, Interval{Start: ex.End, End: r.End})
			}
		}
		remaining = next
	}
	return remaining
}
