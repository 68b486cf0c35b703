// Package tracker keeps each patient's derived occurrences for today and
// runs the mark-taken workflow against the schedule store.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/gmsas95/dosekeeper/internal/store"
	"go.uber.org/zap"
)

// Store is the subset of the schedule store the tracker reads and writes
type Store interface {
	ListSchedules(ctx context.Context, patientID string) ([]store.MedicineSchedule, error)
	ListMedicines(ctx context.Context, patientID string) ([]store.Medicine, error)
	ListIntakeLogs(ctx context.Context, patientID, date string) ([]store.IntakeLog, error)
	FindIntakeLog(ctx context.Context, scheduleID, date string) (*store.IntakeLog, error)
	CreateIntakeLog(ctx context.Context, row *store.IntakeLog) error
	UpdateIntakeLog(ctx context.Context, row *store.IntakeLog) error
}

// Events receives the user-facing side effects of mark-taken
type Events interface {
	Toast(patientID, level, message string)
	Celebrate(patientID string, occ schedule.Occurrence)
}

// MarkResult describes what mark-taken wrote
type MarkResult struct {
	Occurrence schedule.Occurrence `json:"occurrence"`
	Inserted   bool                `json:"inserted"`
}

type snapshot struct {
	date        string
	occurrences []schedule.Occurrence
	loadedAt    time.Time
}

// Tracker caches the last good derivation per patient
type Tracker struct {
	store  Store
	events Events
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*snapshot
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the timezone "today" is computed in
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// New creates a tracker
func New(st Store, events Events, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:     st,
		events:    events,
		logger:    logger,
		loc:       time.Local,
		now:       time.Now,
		snapshots: make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the tracker's clock in its timezone
func (t *Tracker) Now() time.Time {
	return t.now().In(t.loc)
}

// Refresh reloads the patient's records and re-derives today's occurrences.
// On a store failure the previous snapshot is returned with the error.
func (t *Tracker) Refresh(ctx context.Context, patientID string) ([]schedule.Occurrence, error) {
	now := t.Now()
	date := schedule.DateKey(now)

	occs, err := t.load(ctx, patientID, date, now)
	if err != nil {
		t.logger.Error("Failed to load schedule",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		if !errors.IsAppError(err) {
			err = errors.ErrStoreRead.WithCause(err)
		}
		return t.Snapshot(patientID, now), err
	}

	t.mu.Lock()
	t.snapshots[patientID] = &snapshot{date: date, occurrences: occs, loadedAt: now}
	t.mu.Unlock()

	return copyOccurrences(occs), nil
}

func (t *Tracker) load(ctx context.Context, patientID, date string, now time.Time) ([]schedule.Occurrence, error) {
	rows, err := t.store.ListSchedules(ctx, patientID)
	if err != nil {
		return nil, err
	}
	meds, err := t.store.ListMedicines(ctx, patientID)
	if err != nil {
		return nil, err
	}
	logs, err := t.store.ListIntakeLogs(ctx, patientID, date)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	explicit := make([]schedule.ExplicitSchedule, 0, len(rows))
	for _, r := range rows {
		explicit = append(explicit, r.Explicit())
	}
	legacy := make([]schedule.LegacyMedicine, 0, len(meds))
	for _, m := range meds {
		legacy = append(legacy, m.Legacy())
	}
	records := make([]schedule.IntakeRecord, 0, len(logs))
	for _, l := range logs {
		records = append(records, l.Record())
	}

	occs := schedule.Derive(explicit, legacy, records, now)
	metrics.RecordDerive(time.Since(start))
	return occs, nil
}

// Snapshot returns the cached occurrences re-classified at now. It never
// touches the store.
func (t *Tracker) Snapshot(patientID string, now time.Time) []schedule.Occurrence {
	t.mu.RLock()
	snap, ok := t.snapshots[patientID]
	var occs []schedule.Occurrence
	if ok {
		occs = copyOccurrences(snap.occurrences)
	}
	t.mu.RUnlock()

	if !ok {
		return nil
	}
	return schedule.Reclassify(occs, now)
}

// Loaded reports whether a snapshot exists for the patient's current day
func (t *Tracker) Loaded(patientID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.snapshots[patientID]
	return ok && snap.date == schedule.DateKey(t.Now())
}

// Forget drops the patient's snapshot
func (t *Tracker) Forget(patientID string) {
	t.mu.Lock()
	delete(t.snapshots, patientID)
	t.mu.Unlock()
}

// Today returns the patient's occurrences grouped by daypart, loading them
// first if no current snapshot exists.
func (t *Tracker) Today(ctx context.Context, patientID string) ([]schedule.Group, error) {
	if !t.Loaded(patientID) {
		if _, err := t.Refresh(ctx, patientID); err != nil && t.Snapshot(patientID, t.Now()) == nil {
			return nil, err
		}
	}
	return schedule.GroupByDaypart(t.Snapshot(patientID, t.Now())), nil
}

// Summary returns the next-dose banner and today's counters
func (t *Tracker) Summary(patientID string, now time.Time) schedule.Summary {
	return schedule.Summarize(t.Snapshot(patientID, now), now)
}

// Find returns one occurrence from the snapshot, re-classified at now
func (t *Tracker) Find(patientID, occurrenceID string, now time.Time) (schedule.Occurrence, bool) {
	for _, o := range t.Snapshot(patientID, now) {
		if o.ID == occurrenceID {
			return o, true
		}
	}
	return schedule.Occurrence{}, false
}

// MarkTaken records the occurrence as taken today. The snapshot is flipped
// first so readers see the change immediately, then the intake log for
// (occurrence, today) is updated if it exists or inserted if not. Either way
// the snapshot is re-derived from the store afterwards.
func (t *Tracker) MarkTaken(ctx context.Context, patientID, occurrenceID string) (MarkResult, error) {
	now := t.Now()

	occ, ok := t.Find(patientID, occurrenceID, now)
	if !ok {
		if _, err := t.Refresh(ctx, patientID); err == nil {
			occ, ok = t.Find(patientID, occurrenceID, now)
		}
	}
	if !ok {
		return MarkResult{}, errors.ErrOccurrenceNotFound.WithCause(fmt.Errorf("occurrence %s", occurrenceID))
	}

	prev, flipped := t.flip(patientID, occurrenceID, now)

	inserted, err := t.writeTaken(ctx, patientID, occurrenceID, schedule.DateKey(now), now)
	if err != nil {
		t.logger.Error("Failed to mark dose as taken",
			zap.String("patient_id", patientID),
			zap.String("occurrence_id", occurrenceID),
			zap.Error(err),
		)
		if _, refreshErr := t.Refresh(ctx, patientID); refreshErr != nil {
			// the refetch fell back to the flipped snapshot; undo the flip
			t.restore(patientID, prev, flipped)
			t.logger.Warn("Refetch after failed mark-taken failed", zap.Error(refreshErr))
		}
		if t.events != nil {
			t.events.Toast(patientID, "error", fmt.Sprintf("Could not mark %s as taken. Please try again.", occ.MedicineName))
		}
		return MarkResult{}, err
	}

	if inserted {
		metrics.RecordIntakeWrite("insert")
	} else {
		metrics.RecordIntakeWrite("update")
	}

	takenAt := now
	occ.TakenAt = &takenAt
	occ.Status = schedule.StatusTaken

	t.logger.Info("Dose marked as taken",
		zap.String("patient_id", patientID),
		zap.String("occurrence_id", occurrenceID),
		zap.Bool("inserted", inserted),
	)

	if t.events != nil {
		t.events.Celebrate(patientID, occ)
	}
	if _, err := t.Refresh(ctx, patientID); err != nil {
		// the write landed; a stale snapshot is corrected on the next refetch
		t.logger.Warn("Refetch after mark-taken failed", zap.Error(err))
	}

	return MarkResult{Occurrence: occ, Inserted: inserted}, nil
}

func (t *Tracker) writeTaken(ctx context.Context, patientID, occurrenceID, date string, now time.Time) (bool, error) {
	existing, err := t.store.FindIntakeLog(ctx, occurrenceID, date)
	if err != nil {
		return false, err
	}

	takenAt := now
	if existing != nil {
		existing.Status = store.IntakeTaken
		existing.TakenAt = &takenAt
		return false, t.store.UpdateIntakeLog(ctx, existing)
	}

	row := &store.IntakeLog{
		ScheduleID: occurrenceID,
		PatientID:  patientID,
		LogDate:    date,
		Status:     store.IntakeTaken,
		TakenAt:    &takenAt,
	}
	createErr := t.store.CreateIntakeLog(ctx, row)
	if createErr == nil {
		return true, nil
	}

	// A concurrent mark may have inserted the row between find and create
	existing, err = t.store.FindIntakeLog(ctx, occurrenceID, date)
	if err != nil || existing == nil {
		return false, createErr
	}
	existing.Status = store.IntakeTaken
	existing.TakenAt = &takenAt
	return false, t.store.UpdateIntakeLog(ctx, existing)
}

// flip marks the occurrence Taken in the cached snapshot. It returns the
// snapshot it replaced and the one it installed.
func (t *Tracker) flip(patientID, occurrenceID string, now time.Time) (*snapshot, *snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, ok := t.snapshots[patientID]
	if !ok {
		return nil, nil
	}
	occs := copyOccurrences(snap.occurrences)
	for i := range occs {
		if occs[i].ID == occurrenceID {
			takenAt := now
			occs[i].TakenAt = &takenAt
			occs[i].Status = schedule.StatusTaken
		}
	}
	next := &snapshot{date: snap.date, occurrences: occs, loadedAt: snap.loadedAt}
	t.snapshots[patientID] = next
	return snap, next
}

// restore puts prev back unless the snapshot changed since flipped was
// installed
func (t *Tracker) restore(patientID string, prev, flipped *snapshot) {
	if prev == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshots[patientID] == flipped {
		t.snapshots[patientID] = prev
	}
}

func copyOccurrences(occs []schedule.Occurrence) []schedule.Occurrence {
	if occs == nil {
		return nil
	}
	out := make([]schedule.Occurrence, len(occs))
	copy(out, occs)
	return out
}
