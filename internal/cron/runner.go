// Package cron runs the background push job on a schedule
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/dosekeeper/internal/push"
	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one run of the background push job
type Job interface {
	Run(ctx context.Context, now time.Time) (push.RunReport, error)
}

// Config holds cron runner configuration
type Config struct {
	Spec       string         // cron expression or @every descriptor
	Timeout    time.Duration  // per-run deadline
	Location   *time.Location // wall clock the job evaluates schedules in
	RunOnStart bool
}

// Runner triggers the push job on its cron spec. A run that is still going
// when the next tick arrives causes that tick to be skipped.
type Runner struct {
	config Config
	job    Job
	logger *zap.Logger
	cron   *robfig.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	running bool
	lastRun time.Time
	last    push.RunReport
	lastErr error
}

// NewRunner creates a new cron runner. The spec is validated here.
func NewRunner(config Config, job Job, logger *zap.Logger) (*Runner, error) {
	if config.Spec == "" {
		config.Spec = "@every 1m"
	}
	if config.Timeout <= 0 {
		config.Timeout = 50 * time.Second
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	cl := cronLogger{logger.Sugar()}
	c := robfig.New(
		robfig.WithLocation(config.Location),
		robfig.WithLogger(cl),
		robfig.WithChain(robfig.Recover(cl), robfig.SkipIfStillRunning(cl)),
	)

	r := &Runner{
		config: config,
		job:    job,
		logger: logger,
		cron:   c,
	}
	if _, err := c.AddFunc(config.Spec, r.tick); err != nil {
		return nil, fmt.Errorf("invalid push schedule %q: %w", config.Spec, err)
	}
	return r, nil
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	r.cron.Start()
	r.logger.Info("Push cron started", zap.String("spec", r.config.Spec))

	if r.config.RunOnStart {
		go r.tick()
	}
	return nil
}

// Stop stops the cron runner and waits for an in-flight run
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	done := r.cron.Stop()
	r.cancel()
	<-done.Done()
	r.logger.Info("Push cron stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Last returns the most recent run report and its error
func (r *Runner) Last() (time.Time, push.RunReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.last, r.lastErr
}

// Next returns the next scheduled trigger
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Runner) tick() {
	r.mu.RLock()
	parent := r.ctx
	r.mu.RUnlock()
	if parent == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, r.config.Timeout)
	defer cancel()

	now := time.Now().In(r.config.Location)
	report, err := r.job.Run(ctx, now)
	if err != nil {
		r.logger.Error("Push job run failed", zap.Error(err))
	}

	r.mu.Lock()
	r.lastRun = now
	r.last = report
	r.lastErr = err
	r.mu.Unlock()
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
