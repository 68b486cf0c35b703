// Package api exposes the schedule, mark-taken, push and notification
// endpoints plus the app window websocket.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/notify"
	"github.com/gmsas95/dosekeeper/internal/push"
	"github.com/gmsas95/dosekeeper/internal/realtime"
	"github.com/gmsas95/dosekeeper/internal/receiver"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/gmsas95/dosekeeper/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Deps are the components the server routes requests to
type Deps struct {
	Store    *store.Store
	Tracker  *tracker.Tracker
	Hub      *realtime.Hub
	Manager  *notify.Manager
	Receiver *receiver.Receiver
	PushJob  *push.Job
}

// Server handles HTTP API and WebSocket
type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *store.Store
	tracker  *tracker.Tracker
	hub      *realtime.Hub
	manager  *notify.Manager
	receiver *receiver.Receiver
	pushJob  *push.Job
	version  string
	logger   *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, deps Deps, version string, logger *zap.Logger) *Server {
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		config:   cfg,
		store:    deps.Store,
		tracker:  deps.Tracker,
		hub:      deps.Hub,
		manager:  deps.Manager,
		receiver: deps.Receiver,
		pushJob:  deps.PushJob,
		version:  version,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
