package dispatch

import (
	"strings"
	"time"
)

// ClassifyOnTime buckets an arrival against the planned time-of-day. The
// planned instant is the arrival's calendar date at plannedETA, in the
// arrival's location. A missing or unreadable ETA counts as on time.
func ClassifyOnTime(plannedETA *string, actual time.Time) string {
	if plannedETA == nil {
		return OnTimeOnTime
	}
	clock, ok := parseClock(*plannedETA)
	if !ok {
		return OnTimeOnTime
	}
	y, m, d := actual.Date()
	planned := time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, actual.Location())

	diff := actual.Sub(planned).Minutes()
	switch {
	case diff < 0:
		return OnTimeEarly
	case diff <= 15:
		return OnTimeOnTime
	case diff <= 30:
		return OnTimeDelayed
	default:
		return OnTimeLate
	}
}

func parseClock(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// countsOnTime reports whether a classification contributes to on-time performance.
func countsOnTime(status *string) bool {
	return status != nil && (*status == OnTimeEarly || *status == OnTimeOnTime)
}
