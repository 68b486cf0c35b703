package app

import (
	"path/filepath"
	"testing"

	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Defaults(dir)
	cfg.Security.JWTSecret = "test-secret"
	cfg.Schedule.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.NewInMemory()
	require.NoError(t, err)

	app, err := New(cfg, st, zap.NewNop(), zap.NewAtomicLevel(), "test")
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{name: "create app with version", version: "1.0.0"},
		{name: "create app with dev version", version: "dev"},
		{name: "create app with empty version", version: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, nil)
			app.Version = tt.version
			assert.NotNil(t, app.Server)
			assert.NotNil(t, app.Manager)
			assert.Nil(t, app.Ledger)
		})
	}
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := config.Defaults(t.TempDir())
	cfg.Schedule.Timezone = "Mars/Olympus"

	_, err := New(cfg, nil, zap.NewNop(), zap.NewAtomicLevel(), "test")
	assert.Error(t, err)
}

func TestNew_DedupeOpensLedger(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Push.Dedupe = true
		c.Storage.BadgerPath = filepath.Join(t.TempDir(), "badger")
	})
	assert.NotNil(t, app.Ledger)
}

func TestRunPushOnce_WithoutKeys(t *testing.T) {
	app := newTestApp(t, nil)

	_, err := app.RunPushOnce()
	assert.Equal(t, "PUSH_001", errors.GetCode(err))
}

func TestReload_ChangesLogLevel(t *testing.T) {
	app := newTestApp(t, nil)

	next := *app.Config
	next.Logging.Level = "debug"
	app.Reload(&next)
	assert.Equal(t, zapcore.DebugLevel, app.Level.Level())

	next.Logging.Level = "chatty"
	app.Reload(&next)
	assert.Equal(t, zapcore.DebugLevel, app.Level.Level())
}

func TestNewLogger(t *testing.T) {
	logger, level, err := NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	_, _, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestStartCron(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Push.Schedule = "@every 1h"
	})
	require.NoError(t, app.StartCron())
	require.NotNil(t, app.CronRunner)
	assert.True(t, app.CronRunner.IsRunning())

	disabled := newTestApp(t, func(c *config.Config) { c.Push.Enabled = false })
	require.NoError(t, disabled.StartCron())
	assert.Nil(t, disabled.CronRunner)
}
