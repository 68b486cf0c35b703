package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Fixed clock times added by legacy frequency expansion
const (
	legacyAfternoonHour = 14
	legacyEveningHour   = 20
)

// Derive builds today's occurrences. Explicit schedules always win over
// legacy records carrying the same medicine name. now also fixes "today" and
// its location.
func Derive(schedules []ExplicitSchedule, legacy []LegacyMedicine, logs []IntakeRecord, now time.Time) []Occurrence {
	today := DateKey(now)
	taken := takenIndex(logs, today)

	out := make([]Occurrence, 0, len(schedules)+len(legacy))
	names := make(map[string]struct{}, len(schedules))

	for _, s := range schedules {
		names[normalizeName(s.MedicineName)] = struct{}{}
		out = append(out, fromExplicit(s, now))
	}

	for _, m := range legacy {
		if _, dup := names[normalizeName(m.MedicineName)]; dup {
			continue
		}
		out = append(out, expandLegacy(m, now)...)
	}

	for i := range out {
		if at, ok := taken[out[i].ID]; ok {
			out[i].TakenAt = at
		}
		out[i].Status = Classify(out[i].ScheduledAt, out[i].TakenAt, now)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].MedicineName < out[j].MedicineName
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// takenIndex maps occurrence id to taken-at for today's taken logs
func takenIndex(logs []IntakeRecord, today string) map[string]*time.Time {
	idx := make(map[string]*time.Time, len(logs))
	for _, l := range logs {
		if l.Date != today || !strings.EqualFold(l.Status, string(StatusTaken)) {
			continue
		}
		at := l.TakenAt
		if at == nil {
			// a taken row without a timestamp still counts as taken
			zero := time.Time{}
			at = &zero
		}
		idx[l.ScheduleID] = at
	}
	return idx
}

func fromExplicit(s ExplicitSchedule, now time.Time) Occurrence {
	slot := s.Slot
	if _, ok := ParseDaypart(string(slot)); !ok {
		slot = Morning
	}

	h, m := slot.DefaultClock()
	if s.Time != "" {
		if hh, mm, ok := ParseClock(s.Time, ""); ok {
			h, m = hh, mm
		}
	}

	return Occurrence{
		ID:           s.ID,
		MedicineID:   s.ID,
		MedicineName: s.MedicineName,
		Dosage:       s.Dosage,
		ScheduledAt:  at(now, h, m),
		Daypart:      slot,
		Instruction:  s.Instruction,
	}
}

func expandLegacy(m LegacyMedicine, now time.Time) []Occurrence {
	freq := ParseFrequency(m.Frequency)
	if freq == FrequencyUnknown {
		return nil
	}

	h, mm, ok := ParseClock(m.Time, m.Period)
	if !ok {
		d, found := daypartFromText(m.Timings)
		if !found {
			d = Morning
		}
		h, mm = d.DefaultClock()
	}

	instants := []time.Time{at(now, h, mm)}
	switch freq {
	case FrequencyTwice:
		instants = append(instants, at(now, legacyEveningHour, 0))
	case FrequencyThrice:
		instants = append(instants, at(now, legacyAfternoonHour, 0), at(now, legacyEveningHour, 0))
	}

	out := make([]Occurrence, 0, len(instants))
	for i, t := range instants {
		out = append(out, Occurrence{
			ID:           LegacyOccurrenceID(m.ID, i),
			MedicineID:   m.ID,
			MedicineName: m.MedicineName,
			Dosage:       m.Dosage,
			ScheduledAt:  t,
			Daypart:      DaypartFor(t),
			Instruction:  m.Instruction,
			Legacy:       true,
		})
	}
	return out
}

// LegacyOccurrenceID is the stable id of the n-th daily dose of a legacy record
func LegacyOccurrenceID(medicineID string, n int) string {
	return fmt.Sprintf("%s#%d", medicineID, n)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
