package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gmsas95/dosekeeper/internal/metrics"
	"github.com/gmsas95/dosekeeper/internal/receiver"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/gmsas95/dosekeeper/internal/security"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// fail writes err as JSON with a status derived from its code
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrOccurrenceNotFound), errors.Is(err, errors.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, errors.ErrBadRequest), errors.Is(err, errors.ErrMalformedPayload):
		status = fiber.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		status = fiber.StatusUnauthorized
	case errors.Is(err, errors.ErrForbidden):
		status = fiber.StatusForbidden
	}

	if status >= 500 {
		s.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
		if status < 500 && appErr.Cause != nil {
			message += ": " + appErr.Cause.Error()
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": message, "code": errors.GetCode(err)})
}

func badRequest(reason string) error {
	return errors.ErrBadRequest.WithCause(fmt.Errorf("%s", reason))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now().Unix(),
		"uptime":    metrics.Uptime().Round(time.Second).String(),
		"windows":   s.hub.ClientCount(),
		"push_keys": s.config.Push.HasKeys(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password  string `json:"password"`
		PatientID string `json:"patient_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	// Without a configured password the server runs in single-user mode
	if want := s.config.Security.AdminPassword; want != "" {
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(want)) != 1 {
			return c.Status(401).JSON(fiber.Map{"error": "invalid credentials", "code": errors.ErrUnauthorized.Code})
		}
	}

	patient := strings.TrimSpace(req.PatientID)
	if patient == "" {
		patient = "default"
	}

	tokenString, err := s.issueToken(patient)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString, "patient_id": patient})
}

func (s *Server) handleVAPIDPublicKey(c *fiber.Ctx) error {
	if !s.config.Push.HasKeys() {
		return s.fail(c, errors.ErrPushKeysMissing)
	}
	return c.JSON(fiber.Map{"public_key": s.config.Push.VAPIDPublicKey})
}

func (s *Server) handleToday(c *fiber.Ctx) error {
	pid := patientID(c)

	groups, err := s.tracker.Today(c.UserContext(), pid)
	if err != nil {
		return s.fail(c, err)
	}

	now := s.tracker.Now()
	return c.JSON(fiber.Map{
		"date":    schedule.DateKey(now),
		"groups":  groups,
		"summary": s.tracker.Summary(pid, now),
	})
}

func (s *Server) handleNext(c *fiber.Ctx) error {
	pid := patientID(c)

	if _, err := s.tracker.Today(c.UserContext(), pid); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(s.tracker.Summary(pid, s.tracker.Now()))
}

func (s *Server) handleTake(c *fiber.Ctx) error {
	pid := patientID(c)
	occID := c.Params("id")

	res, err := s.tracker.MarkTaken(c.UserContext(), pid, occID)
	if err != nil {
		return s.fail(c, err)
	}
	s.manager.CancelSnooze(pid, occID)

	return c.JSON(res)
}

func (s *Server) handleSnooze(c *fiber.Ctx) error {
	pid := patientID(c)
	occID := c.Params("id")

	delay, err := s.manager.Snooze(c.UserContext(), pid, occID)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"occurrence_id": occID,
		"snoozed_for":   delay.String(),
		"fires_at":      s.tracker.Now().Add(delay),
	})
}

func (s *Server) handleListSchedules(c *fiber.Ctx) error {
	rows, err := s.store.ListSchedules(c.UserContext(), patientID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) handleReplaceSchedules(c *fiber.Ctx) error {
	pid := patientID(c)

	var rows []store.MedicineSchedule
	if err := c.BodyParser(&rows); err != nil {
		return s.fail(c, badRequest("expected a JSON array of schedules"))
	}

	for i := range rows {
		if res := security.CheckMedicine(rows[i].MedicineName, rows[i].Dosage, rows[i].Instruction); !res.Valid {
			return s.fail(c, badRequest(fmt.Sprintf("schedule %d: %s", i, res.Error())))
		}
		rows[i].MedicineName = security.Sanitize(rows[i].MedicineName)
		rows[i].Dosage = security.Sanitize(rows[i].Dosage)
		slot, ok := schedule.ParseDaypart(rows[i].TimeSlot)
		if !ok {
			return s.fail(c, badRequest(fmt.Sprintf("schedule %d: unknown time_slot %q", i, rows[i].TimeSlot)))
		}
		if rows[i].ScheduledTime != "" {
			if _, _, ok := schedule.ParseClock(rows[i].ScheduledTime, ""); !ok {
				return s.fail(c, badRequest(fmt.Sprintf("schedule %d: scheduled_time must be HH:MM", i)))
			}
		}
		rows[i].TimeSlot = string(slot)
		rows[i].PatientID = pid
	}

	if err := s.store.ReplaceSchedules(c.UserContext(), pid, rows); err != nil {
		return s.fail(c, err)
	}
	s.refresh(c, pid)

	return c.JSON(rows)
}

func (s *Server) handleListMedicines(c *fiber.Ctx) error {
	rows, err := s.store.ListMedicines(c.UserContext(), patientID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rows)
}

func (s *Server) handleReplaceMedicines(c *fiber.Ctx) error {
	pid := patientID(c)

	var rows []store.Medicine
	if err := c.BodyParser(&rows); err != nil {
		return s.fail(c, badRequest("expected a JSON array of medicines"))
	}

	for i := range rows {
		if res := security.CheckMedicine(rows[i].MedicineName, rows[i].Dosage, rows[i].Instruction); !res.Valid {
			return s.fail(c, badRequest(fmt.Sprintf("medicine %d: %s", i, res.Error())))
		}
		rows[i].MedicineName = security.Sanitize(rows[i].MedicineName)
		rows[i].Dosage = security.Sanitize(rows[i].Dosage)
		rows[i].PatientID = pid
	}

	if err := s.store.ReplaceMedicines(c.UserContext(), pid, rows); err != nil {
		return s.fail(c, err)
	}
	s.refresh(c, pid)

	return c.JSON(rows)
}

// refresh re-derives the patient's snapshot after an edit
func (s *Server) refresh(c *fiber.Ctx, pid string) {
	if _, err := s.tracker.Refresh(c.UserContext(), pid); err != nil {
		s.logger.Warn("Refresh after edit failed", zap.String("patient_id", pid), zap.Error(err))
	}
}

// subscriptionRequest mirrors the browser's PushSubscription JSON
type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badRequest("invalid subscription"))
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return s.fail(c, badRequest("endpoint, keys.p256dh and keys.auth are required"))
	}
	if err := security.CheckEndpoint(req.Endpoint); err != nil {
		return s.fail(c, badRequest("endpoint: "+err.Error()))
	}

	sub := &store.PushSubscription{
		UserID:   patientID(c),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := s.store.SavePushSubscription(c.UserContext(), sub); err != nil {
		return s.fail(c, err)
	}

	s.logger.Info("Push subscription registered", zap.String("patient_id", sub.UserID))
	return c.Status(201).JSON(sub)
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.BodyParser(&req); err != nil || req.Endpoint == "" {
		req.Endpoint = c.Query("endpoint")
	}
	if req.Endpoint == "" {
		return s.fail(c, badRequest("endpoint is required"))
	}

	if err := s.store.DeletePushSubscription(c.UserContext(), req.Endpoint); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handlePushRun(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if s.config.Push.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Push.JobTimeout)
		defer cancel()
	}

	report, err := s.pushJob.Run(ctx, s.tracker.Now())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(report)
}

func (s *Server) handleGetPreferences(c *fiber.Ctx) error {
	pref, err := s.store.GetPreference(c.UserContext(), patientID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(pref)
}

func (s *Server) handlePutPreferences(c *fiber.Ctx) error {
	var req struct {
		Enabled    bool   `json:"enabled"`
		Permission string `json:"permission"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, badRequest("invalid preferences"))
	}

	switch req.Permission {
	case "":
		req.Permission = store.PermissionDefault
	case store.PermissionGranted, store.PermissionDenied, store.PermissionDefault:
	default:
		return s.fail(c, badRequest(fmt.Sprintf("unknown permission %q", req.Permission)))
	}

	pref := &store.NotificationPreference{
		PatientID:  patientID(c),
		Enabled:    req.Enabled,
		Permission: req.Permission,
	}
	if err := s.store.SavePreference(c.UserContext(), pref); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(pref)
}

func (s *Server) handleNotificationClick(c *fiber.Ctx) error {
	var req struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, badRequest("invalid click"))
	}

	payload, err := receiver.Decode(req.Payload)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(s.receiver.HandleClick(patientID(c), req.Action, payload))
}
