package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"go.uber.org/zap"
)

// Tracker is the occurrence source plus single-occurrence lookup
type Tracker interface {
	Source
	Find(patientID, occurrenceID string, now time.Time) (schedule.Occurrence, bool)
	Forget(patientID string)
	Now() time.Time
}

// Manager owns one Scheduler per patient with an open app window and the
// snooze timers for all patients.
type Manager struct {
	ctx        context.Context
	tracker    Tracker
	dispatcher *Dispatcher
	summaries  SummaryPublisher
	intervals  Intervals
	logger     *zap.Logger
	snoozer    *Snoozer

	mu       sync.Mutex
	sessions map[string]*Scheduler
}

// NewManager creates a manager. Schedulers it starts run until their session
// ends or ctx is cancelled.
func NewManager(ctx context.Context, tracker Tracker, dispatcher *Dispatcher, summaries SummaryPublisher, intervals Intervals, snooze time.Duration, logger *zap.Logger) *Manager {
	m := &Manager{
		ctx:        ctx,
		tracker:    tracker,
		dispatcher: dispatcher,
		summaries:  summaries,
		intervals:  intervals,
		logger:     logger,
		sessions:   make(map[string]*Scheduler),
	}
	m.snoozer = NewSnoozer(snooze, m.fireSnooze)
	return m
}

// SessionStarted starts a scheduler with a fresh ledger for the patient
func (m *Manager) SessionStarted(patientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[patientID]; ok {
		return
	}

	s := NewScheduler(patientID, m.tracker, m.dispatcher, m.summaries, NewLedger(), m.logger).
		WithIntervals(m.intervals).
		WithClock(m.tracker.Now)
	if err := s.Start(m.ctx); err != nil {
		m.logger.Warn("Failed to start dose scheduler", zap.String("patient_id", patientID), zap.Error(err))
		return
	}
	m.sessions[patientID] = s
}

// SessionEnded stops the patient's scheduler and drops the cached snapshot
func (m *Manager) SessionEnded(patientID string) {
	m.mu.Lock()
	s, ok := m.sessions[patientID]
	delete(m.sessions, patientID)
	m.mu.Unlock()

	if ok {
		s.Stop()
		m.tracker.Forget(patientID)
	}
}

// Active reports whether the patient has a running scheduler
func (m *Manager) Active(patientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[patientID]
	return ok && s.IsRunning()
}

// Snooze re-alerts the occurrence after the snooze delay
func (m *Manager) Snooze(ctx context.Context, patientID, occurrenceID string) (time.Duration, error) {
	now := m.tracker.Now()
	if _, ok := m.tracker.Find(patientID, occurrenceID, now); !ok {
		if _, err := m.tracker.Refresh(ctx, patientID); err != nil {
			return 0, err
		}
		if _, ok := m.tracker.Find(patientID, occurrenceID, now); !ok {
			return 0, errors.ErrOccurrenceNotFound.WithCause(fmt.Errorf("occurrence %s", occurrenceID))
		}
	}

	delay := m.snoozer.Snooze(patientID, occurrenceID)
	m.logger.Info("Dose snoozed",
		zap.String("patient_id", patientID),
		zap.String("occurrence_id", occurrenceID),
		zap.Duration("delay", delay),
	)
	return delay, nil
}

// CancelSnooze drops a pending snooze, e.g. after the dose was taken
func (m *Manager) CancelSnooze(patientID, occurrenceID string) {
	m.snoozer.Cancel(patientID, occurrenceID)
}

func (m *Manager) fireSnooze(patientID, occurrenceID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in snooze", zap.Any("recover", r))
		}
	}()

	occ, ok := m.tracker.Find(patientID, occurrenceID, m.tracker.Now())
	if !ok || occ.Status == schedule.StatusTaken {
		return
	}
	m.dispatcher.Deliver(m.ctx, patientID, NewAlert(KindSnooze, occ))
}

// Stop stops every scheduler and snooze timer
func (m *Manager) Stop() {
	m.snoozer.Stop()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Scheduler)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
