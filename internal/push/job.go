package push

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/gmsas95/dosekeeper/internal/store"
	"go.uber.org/zap"
)

// Store is what the push job reads and prunes
type Store interface {
	ListSchedulesWithPreferences(ctx context.Context) ([]store.MedicineSchedule, error)
	ListPushSubscriptions(ctx context.Context, userID string) ([]store.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// RunReport summarizes one invocation of the push job
type RunReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Schedules int           `json:"schedules"`
	Patients  int           `json:"patients"`
	Due       int           `json:"due"`
	Sent      int           `json:"sent"`
	Pruned    int           `json:"pruned"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

type delivery struct {
	patientID  string
	occurrence schedule.Occurrence
	sub        store.PushSubscription
	payload    []byte
}

type outcome struct {
	delivery
	err     error
	skipped bool
}

// Job is the background push job. Each Run is stateless unless a Ledger is
// attached, so without one a dose inside the window may be pushed on every
// invocation.
type Job struct {
	store       Store
	sender      Deliverer
	ledger      Ledger
	appURL      string
	concurrency int
	logger      *zap.Logger
}

// NewJob creates a push job
func NewJob(st Store, sender Deliverer, appURL string, logger *zap.Logger) *Job {
	return &Job{
		store:       st,
		sender:      sender,
		appURL:      appURL,
		concurrency: 4,
		logger:      logger,
	}
}

// WithLedger enables dispatch deduplication
func (j *Job) WithLedger(l Ledger) *Job {
	j.ledger = l
	return j
}

// WithConcurrency bounds the number of concurrent sends
func (j *Job) WithConcurrency(n int) *Job {
	if n > 0 {
		j.concurrency = n
	}
	return j
}

// Run pushes every occurrence scheduled within the push window of now to
// every subscription of its patient. Expired subscriptions are deleted; other
// send failures are counted and the run continues.
func (j *Job) Run(ctx context.Context, now time.Time) (RunReport, error) {
	report := RunReport{StartedAt: now}
	started := time.Now()

	if err := j.sender.Ready(); err != nil {
		metrics.RecordPushJobRun("keys_missing")
		j.logger.Error("Push job cannot run without VAPID keys", zap.Error(err))
		return report, err
	}

	rows, err := j.store.ListSchedulesWithPreferences(ctx)
	if err != nil {
		metrics.RecordPushJobRun("error")
		j.logger.Error("Push job failed to load schedules", zap.Error(err))
		return report, err
	}
	report.Schedules = len(rows)

	byPatient := make(map[string][]schedule.ExplicitSchedule)
	for _, row := range rows {
		byPatient[row.PatientID] = append(byPatient[row.PatientID], row.Explicit())
	}
	report.Patients = len(byPatient)

	patients := make([]string, 0, len(byPatient))
	for id := range byPatient {
		patients = append(patients, id)
	}
	sort.Strings(patients)

	var work []delivery
	for _, patientID := range patients {
		var due []schedule.Occurrence
		for _, occ := range schedule.Derive(byPatient[patientID], nil, nil, now) {
			if schedule.InPushWindow(occ.ScheduledAt, now) {
				due = append(due, occ)
			}
		}
		if len(due) == 0 {
			continue
		}
		report.Due += len(due)

		subs, err := j.store.ListPushSubscriptions(ctx, patientID)
		if err != nil {
			j.logger.Warn("Failed to load push subscriptions", zap.String("patient_id", patientID), zap.Error(err))
			report.Failed += len(due)
			continue
		}

		for _, occ := range due {
			body, err := PayloadFor(occ, j.appURL).Encode()
			if err != nil {
				report.Failed += len(subs)
				continue
			}
			for _, sub := range subs {
				work = append(work, delivery{patientID: patientID, occurrence: occ, sub: sub, payload: body})
			}
		}
	}

	pruned := make(map[string]bool)
	for res := range j.fanOut(ctx, work) {
		switch {
		case res.skipped:
			report.Skipped++
		case res.err == nil:
			report.Sent++
			metrics.RecordPush("sent")
		case errors.Is(res.err, errors.ErrSubscriptionGone):
			metrics.RecordPush("gone")
			if pruned[res.sub.Endpoint] {
				continue
			}
			pruned[res.sub.Endpoint] = true
			if err := j.store.DeletePushSubscription(ctx, res.sub.Endpoint); err != nil {
				j.logger.Warn("Failed to prune push subscription", zap.String("endpoint", res.sub.Endpoint), zap.Error(err))
				continue
			}
			report.Pruned++
			metrics.RecordSubscriptionPruned()
			j.logger.Info("Pruned expired push subscription",
				zap.String("patient_id", res.patientID),
				zap.String("endpoint", res.sub.Endpoint),
			)
		default:
			report.Failed++
			metrics.RecordPush("failed")
			j.logger.Warn("Push delivery failed",
				zap.String("patient_id", res.patientID),
				zap.String("occurrence_id", res.occurrence.ID),
				zap.Error(res.err),
			)
		}
	}

	report.Duration = time.Since(started)
	metrics.RecordPushJobRun("ok")
	j.logger.Info("Push job finished",
		zap.Int("schedules", report.Schedules),
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("pruned", report.Pruned),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// fanOut sends deliveries with a bounded worker pool and streams outcomes
func (j *Job) fanOut(ctx context.Context, work []delivery) <-chan outcome {
	results := make(chan outcome, len(work))
	items := make(chan delivery, len(work))
	for _, d := range work {
		items <- d
	}
	close(items)

	workers := j.concurrency
	if workers > len(work) {
		workers = len(work)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range items {
				results <- j.deliver(ctx, d)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (j *Job) deliver(ctx context.Context, d delivery) outcome {
	if j.ledger == nil {
		return outcome{delivery: d, err: j.sender.Send(ctx, d.sub, d.payload)}
	}

	key := LedgerKey(d.occurrence, d.sub.Endpoint)
	claimed, err := j.ledger.Claim(key)
	if err != nil {
		// fall back to at-least-once
		j.logger.Warn("Push ledger unavailable", zap.Error(err))
	} else if !claimed {
		return outcome{delivery: d, skipped: true}
	}

	sendErr := j.sender.Send(ctx, d.sub, d.payload)
	if sendErr != nil && claimed && !errors.Is(sendErr, errors.ErrSubscriptionGone) {
		if err := j.ledger.Release(key); err != nil {
			j.logger.Warn("Failed to release push ledger key", zap.Error(err))
		}
	}
	return outcome{delivery: d, err: sendErr}
}
