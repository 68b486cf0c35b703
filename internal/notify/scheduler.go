// Package notify fires in-app dose alerts while a patient has the app open.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"go.uber.org/zap"
)

// Alert windows, measured from the scheduled instant
const (
	dueWindowStart      = 0
	reminderWindowStart = 5 * time.Minute
	alertWindow         = time.Minute
)

// Source supplies a patient's occurrences
type Source interface {
	Refresh(ctx context.Context, patientID string) ([]schedule.Occurrence, error)
	Snapshot(patientID string, now time.Time) []schedule.Occurrence
	Summary(patientID string, now time.Time) schedule.Summary
}

// SummaryPublisher receives the periodic next-dose banner
type SummaryPublisher interface {
	PublishSummary(patientID string, s schedule.Summary)
}

// Intervals is the scheduler cadence
type Intervals struct {
	Refresh time.Duration
	Check   time.Duration
	Summary time.Duration
}

// DefaultIntervals refetches every 5 minutes and checks every minute
var DefaultIntervals = Intervals{
	Refresh: 5 * time.Minute,
	Check:   time.Minute,
	Summary: time.Minute,
}

// Scheduler runs the alert checks for one patient session
type Scheduler struct {
	patientID  string
	source     Source
	dispatcher *Dispatcher
	summaries  SummaryPublisher
	ledger     *Ledger
	intervals  Intervals
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. The ledger is owned by the caller.
func NewScheduler(patientID string, source Source, dispatcher *Dispatcher, summaries SummaryPublisher, ledger *Ledger, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		patientID:  patientID,
		source:     source,
		dispatcher: dispatcher,
		summaries:  summaries,
		ledger:     ledger,
		intervals:  DefaultIntervals,
		logger:     logger.With(zap.String("patient_id", patientID)),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// WithIntervals sets the refresh, check and summary cadence
func (s *Scheduler) WithIntervals(iv Intervals) *Scheduler {
	if iv.Refresh > 0 {
		s.intervals.Refresh = iv.Refresh
	}
	if iv.Check > 0 {
		s.intervals.Check = iv.Check
	}
	if iv.Summary > 0 {
		s.intervals.Summary = iv.Summary
	}
	return s
}

// WithClock overrides the wall clock
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start loads the schedule and starts the tickers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.ErrSchedulerRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Starting dose scheduler",
		zap.Duration("refresh", s.intervals.Refresh),
		zap.Duration("check", s.intervals.Check),
	)

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop stops all tickers and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Dose scheduler stopped")
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	refresh := time.NewTicker(s.intervals.Refresh)
	defer refresh.Stop()
	check := time.NewTicker(s.intervals.Check)
	defer check.Stop()
	summary := time.NewTicker(s.intervals.Summary)
	defer summary.Stop()

	// Run immediately on start
	s.refresh(ctx)
	s.safeCheck(ctx)
	s.publishSummary()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-refresh.C:
			s.refresh(ctx)
		case <-check.C:
			s.safeCheck(ctx)
		case <-summary.C:
			s.publishSummary()
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in refresh", zap.Any("recover", r))
		}
	}()

	if _, err := s.source.Refresh(ctx, s.patientID); err != nil {
		// the source keeps serving its last good snapshot
		s.logger.Warn("Schedule refresh failed", zap.Error(err))
	}
}

func (s *Scheduler) safeCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in check", zap.Any("recover", r))
		}
	}()
	s.Check(ctx, s.now())
}

func (s *Scheduler) publishSummary() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in summary", zap.Any("recover", r))
		}
	}()
	if s.summaries != nil {
		s.summaries.PublishSummary(s.patientID, s.source.Summary(s.patientID, s.now()))
	}
}

// Check evaluates every occurrence at now and fires the due alert in the
// first minute after the scheduled instant and the reminder in the sixth,
// each at most once per ledger and schedule day. Occurrences whose live
// status is Taken are skipped. It returns the alerts it fired.
func (s *Scheduler) Check(ctx context.Context, now time.Time) []Alert {
	var fired []Alert

	// a reminder may still fire just after midnight for yesterday's dose
	s.ledger.PruneBefore(schedule.DateKey(now.AddDate(0, 0, -1)))

	for _, occ := range s.source.Snapshot(s.patientID, now) {
		if occ.Status == schedule.StatusTaken {
			continue
		}
		day := schedule.DateKey(occ.ScheduledAt)

		delta := now.Sub(occ.ScheduledAt)
		switch {
		case inWindow(delta, dueWindowStart):
			if !s.ledger.MarkNotified(occ.ID, day) {
				continue
			}
			a := NewAlert(KindDue, occ)
			s.dispatcher.Deliver(ctx, s.patientID, a)
			fired = append(fired, a)

		case inWindow(delta, reminderWindowStart):
			if !s.ledger.MarkReminder(occ.ID, day) {
				continue
			}
			a := NewAlert(KindReminder, occ)
			s.dispatcher.Deliver(ctx, s.patientID, a)
			fired = append(fired, a)
		}
	}

	return fired
}

func inWindow(delta, start time.Duration) bool {
	return delta >= start && delta < start+alertWindow
}
