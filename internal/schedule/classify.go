package schedule

import "time"

const (
	// DueLead is how early a dose counts as due
	DueLead = 5 * time.Minute
	// DueGrace is how long after the scheduled instant a dose stays due
	DueGrace = 30 * time.Minute
	// PushWindow is the symmetric window used by the background push job.
	// It intentionally differs from the foreground due window.
	PushWindow = 2 * time.Minute
)

// Classify maps a scheduled instant, an optional taken-at and the current
// instant to a status. Only Taken is terminal; the other states move with the
// clock and are recomputed on every read.
func Classify(scheduled time.Time, takenAt *time.Time, now time.Time) Status {
	if takenAt != nil {
		return StatusTaken
	}

	delta := now.Sub(scheduled)
	switch {
	case delta > DueGrace:
		return StatusMissed
	case delta >= -DueLead:
		return StatusDue
	default:
		return StatusUpcoming
	}
}

// InPushWindow reports whether the push job should fire for a dose at now
func InPushWindow(scheduled, now time.Time) bool {
	delta := now.Sub(scheduled)
	if delta < 0 {
		delta = -delta
	}
	return delta <= PushWindow
}

// Reclassify returns a copy of the occurrences with status evaluated at now
func Reclassify(occs []Occurrence, now time.Time) []Occurrence {
	out := make([]Occurrence, len(occs))
	for i, o := range occs {
		o.Status = Classify(o.ScheduledAt, o.TakenAt, now)
		out[i] = o
	}
	return out
}
