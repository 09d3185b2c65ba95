package availability

import "time"

// DefaultStride is the scan granularity for candidate slot starts. It is independent of
// the requested duration, so long requests yield overlapping offers.
const DefaultStride = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the half-open overlap test shared by slot computation and the booking ledger:
// [a.Start,a.End) and [b.Start,b.End) overlap iff a.Start < b.End && b.Start < a.End.
// Touching intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapsAny reports whether candidate overlaps any of busy.
func OverlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals. Candidates are taken every
// step from windowStart. A non-zero now drops candidates starting before it.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if !now.IsZero() && t.Before(now) {
			continue
		}
		if !OverlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}
