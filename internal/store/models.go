package store

import (
	"time"

	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Intake log statuses
const (
	IntakeTaken  = "taken"
	IntakeMissed = "missed"
)

// Device notification permission as last reported by the app
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionDefault = "default"
)

// MedicineSchedule is one explicit (slot-based) dose definition
type MedicineSchedule struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	PatientID     string    `gorm:"index;not null" json:"patient_id"`
	MedicineName  string    `gorm:"not null" json:"medicine_name"`
	Dosage        string    `json:"dosage"`
	TimeSlot      string    `gorm:"not null" json:"time_slot"` // morning, afternoon, evening, night
	ScheduledTime string    `json:"scheduled_time,omitempty"`  // optional HH:MM
	Instruction   string    `json:"instruction,omitempty"`     // before_food, after_food
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID when the caller did not
func (m *MedicineSchedule) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Explicit converts the row to its domain form
func (m MedicineSchedule) Explicit() schedule.ExplicitSchedule {
	return schedule.ExplicitSchedule{
		ID:           m.ID,
		PatientID:    m.PatientID,
		MedicineName: m.MedicineName,
		Dosage:       m.Dosage,
		Slot:         schedule.Daypart(m.TimeSlot),
		Time:         m.ScheduledTime,
		Instruction:  schedule.Instruction(m.Instruction),
	}
}

// Medicine is a legacy free-text prescription row
type Medicine struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	PatientID         string    `gorm:"index;not null" json:"patient_id"`
	MedicineName      string    `gorm:"not null" json:"medicine_name"`
	Dosage            string    `json:"dosage"`
	Frequency         string    `json:"frequency"`
	Timings           string    `json:"timings"`
	Time              string    `json:"time"`   // HH:MM
	Period            string    `json:"period"` // AM or PM
	Instruction       string    `json:"instruction,omitempty"`
	DurationDays      int       `json:"duration_days"`
	QuantityRemaining int       `json:"quantity_remaining"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID when the caller did not
func (m *Medicine) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Legacy converts the row to its domain form
func (m Medicine) Legacy() schedule.LegacyMedicine {
	return schedule.LegacyMedicine{
		ID:           m.ID,
		PatientID:    m.PatientID,
		MedicineName: m.MedicineName,
		Dosage:       m.Dosage,
		Frequency:    m.Frequency,
		Timings:      m.Timings,
		Time:         m.Time,
		Period:       m.Period,
		Instruction:  schedule.Instruction(m.Instruction),
	}
}

// IntakeLog records that a dose was taken on a given day.
// (schedule_id, log_date) is unique.
type IntakeLog struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	ScheduleID string     `gorm:"uniqueIndex:idx_intake_schedule_date;not null" json:"schedule_id"`
	PatientID  string     `gorm:"index" json:"patient_id"`
	LogDate    string     `gorm:"uniqueIndex:idx_intake_schedule_date;not null" json:"log_date"` // YYYY-MM-DD
	Status     string     `gorm:"not null" json:"status"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BeforeCreate assigns an ID when the caller did not
func (l *IntakeLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// Record converts the row to its domain form
func (l IntakeLog) Record() schedule.IntakeRecord {
	return schedule.IntakeRecord{
		ScheduleID: l.ScheduleID,
		Date:       l.LogDate,
		Status:     l.Status,
		TakenAt:    l.TakenAt,
	}
}

// PushSubscription is a registered browser push endpoint
type PushSubscription struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Endpoint  string    `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh    string    `gorm:"column:p256dh" json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns an ID when the caller did not
func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// NotificationPreference holds push opt-in and the device permission state
type NotificationPreference struct {
	PatientID  string    `gorm:"primaryKey" json:"patient_id"`
	Enabled    bool      `gorm:"index" json:"enabled"`
	Permission string    `json:"permission"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Granted reports whether the device allows system notifications
func (p NotificationPreference) Granted() bool {
	return p.Permission == PermissionGranted
}
