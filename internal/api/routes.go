package api

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)
	api.Get("/push/vapid-public-key", s.handleVAPIDPublicKey)

	protected := api.Use(s.authMiddleware())

	protected.Get("/schedule/today", s.handleToday)
	protected.Get("/schedule/next", s.handleNext)

	protected.Post("/occurrences/:id/take", s.handleTake)
	protected.Post("/occurrences/:id/snooze", s.handleSnooze)

	protected.Get("/schedules", s.handleListSchedules)
	protected.Put("/schedules", s.handleReplaceSchedules)
	protected.Get("/medicines", s.handleListMedicines)
	protected.Put("/medicines", s.handleReplaceMedicines)

	protected.Post("/push/subscriptions", s.handleSubscribe)
	protected.Delete("/push/subscriptions", s.handleUnsubscribe)
	protected.Post("/push/run", s.handlePushRun)

	protected.Get("/notifications/preferences", s.handleGetPreferences)
	protected.Put("/notifications/preferences", s.handlePutPreferences)
	protected.Post("/notifications/click", s.handleNotificationClick)

	s.app.Use("/ws", s.wsUpgradeMiddleware())
	s.app.Get("/ws", websocket.New(s.handleWebSocket))

	webPaths := []string{"./web/dist", "./web", "../web/dist", "/app/web"}
	var webPath string
	for _, p := range webPaths {
		if _, err := os.Stat(p); err == nil {
			webPath = p
			break
		}
	}

	if webPath != "" {
		s.app.Static("/", webPath)
		s.app.Get("/*", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(webPath, "index.html"))
		})
	} else {
		s.app.Get("/", func(c *fiber.Ctx) error {
			c.Set("Content-Type", "text/html; charset=utf-8")
			return c.SendString(`<!DOCTYPE html>
<html>
<head><title>Dosekeeper</title></head>
<body style="font-family: sans-serif; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Dosekeeper</h1>
<p>Web UI files not found. Please ensure the web/dist directory exists.</p>
<p>You can still use the API at <code>/api</code>.</p>
</body>
</html>`)
		})
	}
}
