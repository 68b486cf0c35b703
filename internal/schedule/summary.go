package schedule

import "time"

// Group is the occurrences of one daypart, in display order
type Group struct {
	Daypart     Daypart      `json:"daypart"`
	Occurrences []Occurrence `json:"occurrences"`
}

// GroupByDaypart buckets occurrences for display. Empty dayparts are omitted.
func GroupByDaypart(occs []Occurrence) []Group {
	byPart := make(map[Daypart][]Occurrence, len(Dayparts))
	for _, o := range occs {
		byPart[o.Daypart] = append(byPart[o.Daypart], o)
	}

	out := make([]Group, 0, len(byPart))
	for _, d := range Dayparts {
		if items, ok := byPart[d]; ok {
			out = append(out, Group{Daypart: d, Occurrences: items})
		}
	}
	return out
}

// Summary is the next-dose banner plus today's counters
type Summary struct {
	Next      *Occurrence   `json:"next,omitempty"`
	Until     time.Duration `json:"until,omitempty"`
	Total     int           `json:"total"`
	Taken     int           `json:"taken"`
	Due       int           `json:"due"`
	Missed    int           `json:"missed"`
	Upcoming  int           `json:"upcoming"`
	Generated time.Time     `json:"generated_at"`
}

// Summarize reclassifies at now and picks the earliest dose that is still
// actionable (Due or Upcoming).
func Summarize(occs []Occurrence, now time.Time) Summary {
	s := Summary{Total: len(occs), Generated: now}

	for _, o := range occs {
		status := Classify(o.ScheduledAt, o.TakenAt, now)
		switch status {
		case StatusTaken:
			s.Taken++
		case StatusDue:
			s.Due++
		case StatusMissed:
			s.Missed++
		case StatusUpcoming:
			s.Upcoming++
		}

		if status != StatusDue && status != StatusUpcoming {
			continue
		}
		if s.Next == nil || o.ScheduledAt.Before(s.Next.ScheduledAt) {
			next := o
			next.Status = status
			s.Next = &next
		}
	}

	if s.Next != nil && s.Next.ScheduledAt.After(now) {
		s.Until = s.Next.ScheduledAt.Sub(now)
	}
	return s
}
