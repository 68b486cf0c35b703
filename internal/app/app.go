package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/dosekeeper/internal/api"
	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/cron"
	"github.com/gmsas95/dosekeeper/internal/notify"
	"github.com/gmsas95/dosekeeper/internal/push"
	"github.com/gmsas95/dosekeeper/internal/realtime"
	"github.com/gmsas95/dosekeeper/internal/receiver"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/gmsas95/dosekeeper/internal/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type App struct {
	Config     *config.Config
	Store      *store.Store
	Logger     *zap.Logger
	Level      zap.AtomicLevel
	Hub        *realtime.Hub
	Tracker    *tracker.Tracker
	Manager    *notify.Manager
	Sender     *push.Sender
	PushJob    *push.Job
	Ledger     *push.BadgerLedger
	CronRunner *cron.Runner
	Server     *api.Server
	Version    string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLogger builds the process logger. The returned level can be changed at
// runtime.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, level, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

// New wires every component around the store
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Level:   level,
		Version: version,
		ctx:     ctx,
		cancel:  cancel,
	}

	app.Hub = realtime.NewHub(logger)
	app.Tracker = tracker.New(st, app.Hub, logger, tracker.WithLocation(loc))

	app.Sender = push.NewSender(cfg.Push, logger)
	if !cfg.Push.HasKeys() {
		logger.Warn("VAPID keys not configured, push delivery disabled until they are set",
			zap.String("hint", "run 'dosekeeper vapid' to generate a key pair"),
		)
	}

	app.PushJob = push.NewJob(st, app.Sender, cfg.Push.AppURL, logger).
		WithConcurrency(cfg.Push.Concurrency)
	if cfg.Push.Dedupe {
		ledger, err := push.OpenLedger(cfg.Storage.BadgerPath, 0)
		if err != nil {
			cancel()
			return nil, err
		}
		app.Ledger = ledger
		app.PushJob.WithLedger(ledger)
	}

	dispatcher := notify.NewDispatcher(
		push.NewSystemNotifier(st, app.Sender, cfg.Push.AppURL, logger),
		app.Hub,
		app.Hub,
		st,
		logger,
	)
	app.Manager = notify.NewManager(ctx, app.Tracker, dispatcher, app.Hub, notify.Intervals{
		Refresh: cfg.Schedule.RefreshInterval,
		Check:   cfg.Schedule.CheckInterval,
		Summary: cfg.Schedule.SummaryInterval,
	}, cfg.Schedule.Snooze, logger)
	app.Hub.SetListener(app.Manager)

	app.Server = api.New(cfg, api.Deps{
		Store:    st,
		Tracker:  app.Tracker,
		Hub:      app.Hub,
		Manager:  app.Manager,
		Receiver: receiver.New(app.Hub, logger),
		PushJob:  app.PushJob,
	}, version, logger)

	return app, nil
}

// Reload applies settings that can change without a restart
func (app *App) Reload(cfg *config.Config) {
	if cfg.Logging.Level != "" {
		if err := app.Level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
			app.Logger.Warn("Ignoring invalid log level", zap.String("level", cfg.Logging.Level))
		}
	}
	app.Logger.Info("Configuration reloaded",
		zap.String("log_level", app.Level.String()),
		zap.String("note", "server, storage and push settings apply after restart"),
	)
}

// RunPushOnce runs the background push job a single time
func (app *App) RunPushOnce() (push.RunReport, error) {
	ctx, cancel := context.WithTimeout(app.ctx, app.jobTimeout())
	defer cancel()
	return app.PushJob.Run(ctx, app.Tracker.Now())
}

func (app *App) jobTimeout() time.Duration {
	if app.Config.Push.JobTimeout > 0 {
		return app.Config.Push.JobTimeout
	}
	return 50 * time.Second
}

// StartCron starts the in-process push schedule when enabled
func (app *App) StartCron() error {
	if !app.Config.Push.Enabled {
		app.Logger.Info("Push cron disabled, expecting an external trigger")
		return nil
	}

	loc, _ := app.Config.Location()
	runner, err := cron.NewRunner(cron.Config{
		Spec:     app.Config.Push.Schedule,
		Timeout:  app.jobTimeout(),
		Location: loc,
	}, app.PushJob, app.Logger)
	if err != nil {
		return err
	}
	if err := runner.Start(); err != nil {
		return err
	}
	app.CronRunner = runner
	return nil
}

func (app *App) RunServer() {
	if err := app.StartCron(); err != nil {
		app.Logger.Error("Failed to start push cron", zap.Error(err))
	}

	go func() {
		if err := app.Server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")
	app.Shutdown()
}

// Shutdown stops every component and closes storage
func (app *App) Shutdown() {
	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if app.Server != nil {
		if err := app.Server.Shutdown(); err != nil {
			app.Logger.Error("Server shutdown error", zap.Error(err))
		}
	}

	if app.Manager != nil {
		app.Manager.Stop()
	}
	app.cancel()

	if app.Ledger != nil {
		if err := app.Ledger.Close(); err != nil {
			app.Logger.Warn("Failed to close push ledger", zap.Error(err))
		}
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Failed to close store", zap.Error(err))
		}
	}
}
