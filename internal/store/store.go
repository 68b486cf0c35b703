package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is the schedule store: schedules, legacy medicines, intake logs,
// push subscriptions and notification preferences.
type Store struct {
	db *gorm.DB
}

// New opens the SQLite database configured in cfg and migrates it
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "dosekeeper.db")
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Configure connection pool
	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	return open(sqliteDB)
}

// NewInMemory opens a private in-memory database. The pool is pinned to one
// connection so every query sees the same database.
func NewInMemory() (*Store, error) {
	sqliteDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqliteDB.SetMaxOpenConns(1)
	return open(sqliteDB)
}

func open(conn *sql.DB) (*Store, error) {
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Auto-migrate schemas
	if err := db.AutoMigrate(
		&MedicineSchedule{},
		&Medicine{},
		&IntakeLog{},
		&PushSubscription{},
		&NotificationPreference{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

func readErr(op string, err error) error {
	metrics.RecordStoreError(op)
	return errors.ErrStoreRead.WithCause(fmt.Errorf("%s: %w", op, err))
}

func writeErr(op string, err error) error {
	metrics.RecordStoreError(op)
	return errors.ErrStoreWrite.WithCause(fmt.Errorf("%s: %w", op, err))
}

// ==================== Schedule Methods ====================

// ReplaceSchedules swaps a patient's explicit schedules wholesale
func (s *Store) ReplaceSchedules(ctx context.Context, patientID string, rows []MedicineSchedule) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patientID).Delete(&MedicineSchedule{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].PatientID = patientID
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return writeErr("replace_schedules", err)
	}
	return nil
}

// ListSchedules returns a patient's explicit schedules
func (s *Store) ListSchedules(ctx context.Context, patientID string) ([]MedicineSchedule, error) {
	var rows []MedicineSchedule
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list_schedules", err)
	}
	return rows, nil
}

// ListSchedulesWithPreferences returns every explicit schedule whose patient
// has opted in to push notifications.
func (s *Store) ListSchedulesWithPreferences(ctx context.Context) ([]MedicineSchedule, error) {
	var rows []MedicineSchedule
	err := s.db.WithContext(ctx).
		Joins("JOIN notification_preferences np ON np.patient_id = medicine_schedules.patient_id").
		Where("np.enabled = ?", true).
		Order("medicine_schedules.patient_id ASC, medicine_schedules.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list_schedules_with_preferences", err)
	}
	return rows, nil
}

// ==================== Medicine Methods ====================

// ReplaceMedicines swaps a patient's legacy medicine rows wholesale
func (s *Store) ReplaceMedicines(ctx context.Context, patientID string, rows []Medicine) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patientID).Delete(&Medicine{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].PatientID = patientID
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return writeErr("replace_medicines", err)
	}
	return nil
}

// ListMedicines returns a patient's legacy medicine rows
func (s *Store) ListMedicines(ctx context.Context, patientID string) ([]Medicine, error) {
	var rows []Medicine
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list_medicines", err)
	}
	return rows, nil
}

// ==================== Intake Log Methods ====================

// ListIntakeLogs returns a patient's logs for one day (YYYY-MM-DD)
func (s *Store) ListIntakeLogs(ctx context.Context, patientID, date string) ([]IntakeLog, error) {
	var rows []IntakeLog
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND log_date = ?", patientID, date).
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list_intake_logs", err)
	}
	return rows, nil
}

// FindIntakeLog returns the log for (scheduleID, date), or nil when none exists
func (s *Store) FindIntakeLog(ctx context.Context, scheduleID, date string) (*IntakeLog, error) {
	var row IntakeLog
	err := s.db.WithContext(ctx).
		Where("schedule_id = ? AND log_date = ?", scheduleID, date).
		Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, readErr("find_intake_log", err)
	}
	return &row, nil
}

// CreateIntakeLog inserts a new log
func (s *Store) CreateIntakeLog(ctx context.Context, row *IntakeLog) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return writeErr("create_intake_log", err)
	}
	return nil
}

// UpdateIntakeLog rewrites status and taken_at of an existing log
func (s *Store) UpdateIntakeLog(ctx context.Context, row *IntakeLog) error {
	res := s.db.WithContext(ctx).
		Model(&IntakeLog{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":   row.Status,
			"taken_at": row.TakenAt,
		})
	if res.Error != nil {
		return writeErr("update_intake_log", res.Error)
	}
	if res.RowsAffected == 0 {
		return writeErr("update_intake_log", gorm.ErrRecordNotFound)
	}
	return nil
}

// ==================== Push Subscription Methods ====================

// SavePushSubscription registers an endpoint, replacing keys and owner when
// the endpoint is already known.
func (s *Store) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return writeErr("save_push_subscription", err)
	}
	return nil
}

// ListPushSubscriptions returns a user's registered endpoints
func (s *Store) ListPushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error) {
	var rows []PushSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, readErr("list_push_subscriptions", err)
	}
	return rows, nil
}

// DeletePushSubscription removes an endpoint. Deleting an unknown endpoint
// is not an error.
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&PushSubscription{}).Error; err != nil {
		return writeErr("delete_push_subscription", err)
	}
	return nil
}

// ==================== Preference Methods ====================

// GetPreference returns the patient's preference, or the defaults (push off,
// permission not yet asked) when none is stored.
func (s *Store) GetPreference(ctx context.Context, patientID string) (*NotificationPreference, error) {
	var row NotificationPreference
	err := s.db.WithContext(ctx).Where("patient_id = ?", patientID).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return &NotificationPreference{PatientID: patientID, Permission: PermissionDefault}, nil
	}
	if err != nil {
		return nil, readErr("get_preference", err)
	}
	return &row, nil
}

// SavePreference upserts a patient's preference
func (s *Store) SavePreference(ctx context.Context, pref *NotificationPreference) error {
	if pref.Permission == "" {
		pref.Permission = PermissionDefault
	}
	if err := s.db.WithContext(ctx).Save(pref).Error; err != nil {
		return writeErr("save_preference", err)
	}
	return nil
}

// ListPushEnabledPatients returns the ids of patients opted in to push
func (s *Store) ListPushEnabledPatients(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&NotificationPreference{}).
		Where("enabled = ?", true).
		Order("patient_id ASC").
		Pluck("patient_id", &ids).Error
	if err != nil {
		return nil, readErr("list_push_enabled_patients", err)
	}
	return ids, nil
}
