// Package schedule derives today's medicine occurrences from stored schedules
// and classifies them against the wall clock.
package schedule

import (
	"strings"
	"time"
)

// Daypart is the coarse bucket a dose belongs to
type Daypart string

const (
	Morning   Daypart = "morning"
	Afternoon Daypart = "afternoon"
	Evening   Daypart = "evening"
	Night     Daypart = "night"
)

// Dayparts in display order
var Dayparts = []Daypart{Morning, Afternoon, Evening, Night}

// ParseDaypart normalizes a stored time_slot value
func ParseDaypart(s string) (Daypart, bool) {
	switch Daypart(strings.ToLower(strings.TrimSpace(s))) {
	case Morning:
		return Morning, true
	case Afternoon:
		return Afternoon, true
	case Evening:
		return Evening, true
	case Night:
		return Night, true
	}
	return "", false
}

// DefaultClock returns the hour and minute a daypart resolves to when a
// schedule carries no explicit time.
func (d Daypart) DefaultClock() (hour, minute int) {
	switch d {
	case Afternoon:
		return 14, 0
	case Evening:
		return 19, 0
	case Night:
		return 21, 0
	default:
		return 8, 0
	}
}

// DaypartFor buckets a clock time
func DaypartFor(t time.Time) Daypart {
	h := t.Hour()
	switch {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	default:
		return Night
	}
}

// Status of an occurrence at a given instant
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusDue      Status = "due"
	StatusTaken    Status = "taken"
	StatusMissed   Status = "missed"
)

// Instruction is the food instruction attached to a dose
type Instruction string

const (
	BeforeFood Instruction = "before_food"
	AfterFood  Instruction = "after_food"
)

// ExplicitSchedule is a per-slot prescription entry
type ExplicitSchedule struct {
	ID           string
	PatientID    string
	MedicineName string
	Dosage       string
	Slot         Daypart
	Time         string // optional "HH:MM", overrides the slot default
	Instruction  Instruction
}

// LegacyMedicine is an inventory record carrying free-text frequency
type LegacyMedicine struct {
	ID           string
	PatientID    string
	MedicineName string
	Dosage       string
	Frequency    string
	Timings      string // free text, e.g. "morning"
	Time         string // "HH:MM"
	Period       string // "AM" | "PM"
	Instruction  Instruction
}

// IntakeRecord is the slice of an intake log the deriver needs
type IntakeRecord struct {
	ScheduleID string
	Date       string // YYYY-MM-DD
	Status     string
	TakenAt    *time.Time
}

// Occurrence is one expected dose for today. It is derived on every fetch and
// never persisted.
type Occurrence struct {
	ID           string      `json:"id"`
	MedicineID   string      `json:"medicine_id"`
	MedicineName string      `json:"medicine_name"`
	Dosage       string      `json:"dosage"`
	ScheduledAt  time.Time   `json:"scheduled_at"`
	Daypart      Daypart     `json:"daypart"`
	Status       Status      `json:"status"`
	TakenAt      *time.Time  `json:"taken_at,omitempty"`
	Instruction  Instruction `json:"instruction,omitempty"`
	Legacy       bool        `json:"legacy,omitempty"`
}

// DateKey formats the calendar day used by intake logs
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
