package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/notify"
	"github.com/gmsas95/dosekeeper/internal/push"
	"github.com/gmsas95/dosekeeper/internal/realtime"
	"github.com/gmsas95/dosekeeper/internal/receiver"
	"github.com/gmsas95/dosekeeper/internal/schedule"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/gmsas95/dosekeeper/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	server  *Server
	store   *store.Store
	hub     *realtime.Hub
	manager *notify.Manager
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Defaults(t.TempDir())
	cfg.Security.JWTSecret = "test-secret"
	cfg.Security.AdminPassword = "hunter2"
	cfg.Security.AllowOrigins = []string{"*"}

	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zap.NewNop()
	clock := func() time.Time { return time.Date(2026, 3, 10, 7, 58, 0, 0, time.UTC) }

	hub := realtime.NewHub(logger)
	tr := tracker.New(st, hub, logger, tracker.WithClock(clock), tracker.WithLocation(time.UTC))
	sender := push.NewSender(cfg.Push, logger)
	dispatcher := notify.NewDispatcher(push.NewSystemNotifier(st, sender, cfg.Push.AppURL, logger), hub, hub, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	manager := notify.NewManager(ctx, tr, dispatcher, hub, notify.DefaultIntervals, cfg.Schedule.Snooze, logger)
	hub.SetListener(manager)
	t.Cleanup(func() {
		manager.Stop()
		cancel()
	})

	srv := New(cfg, Deps{
		Store:    st,
		Tracker:  tr,
		Hub:      hub,
		Manager:  manager,
		Receiver: receiver.New(hub, logger),
		PushJob:  push.NewJob(st, sender, cfg.Push.AppURL, logger),
	}, "test", logger)

	token, err := srv.issueToken("p1")
	require.NoError(t, err)

	return &testEnv{server: srv, store: st, hub: hub, manager: manager, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var out map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *testEnv) seedSchedules(t *testing.T) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPut, "/api/schedules", []map[string]string{
		{"id": "s-morning", "medicine_name": "Metformin", "dosage": "500mg", "time_slot": "morning"},
		{"id": "s-night", "medicine_name": "Atorvastatin", "dosage": "20mg", "time_slot": "Night"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	resp, body := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["push_keys"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	resp, body := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_001", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"password": "hunter2", "patient_id": "p9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "p9", body["patient_id"])

	pid, err := env.server.patientFromToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "p9", pid)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	env.token = ""
	resp, _ := env.do(t, http.MethodGet, "/api/schedule/today", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.token = "not-a-jwt"
	resp, _ = env.do(t, http.MethodGet, "/api/schedule/today", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScheduleToday(t *testing.T) {
	env := newTestEnv(t)
	env.seedSchedules(t)

	resp, body := env.do(t, http.MethodGet, "/api/schedule/today", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2026-03-10", body["date"])

	groups := body["groups"].([]interface{})
	require.Len(t, groups, 2)
	morning := groups[0].(map[string]interface{})
	assert.Equal(t, "morning", morning["daypart"])
	occ := morning["occurrences"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "s-morning", occ["id"])
	assert.Equal(t, string(schedule.StatusDue), occ["status"])

	resp, body = env.do(t, http.MethodGet, "/api/schedule/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := body["next"].(map[string]interface{})
	assert.Equal(t, "s-morning", next["id"])
}

func TestReplaceSchedulesValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPut, "/api/schedules", []map[string]string{
		{"medicine_name": "Metformin", "time_slot": "brunch"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "GEN_002", body["code"])
	assert.Contains(t, body["error"], "brunch")

	resp, _ = env.do(t, http.MethodPut, "/api/schedules", []map[string]string{
		{"medicine_name": "Metformin", "time_slot": "morning", "scheduled_time": "8 o'clock"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/api/schedules", []map[string]string{
		{"medicine_name": "  ", "time_slot": "morning"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "medicine_name")

	resp, body = env.do(t, http.MethodPut, "/api/schedules", []map[string]string{
		{"medicine_name": "  Vitamin   D3 ", "time_slot": "morning"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows, err := env.store.ListSchedules(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Vitamin D3", rows[0].MedicineName)
}

func TestTakeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedSchedules(t)

	resp, body := env.do(t, http.MethodPost, "/api/occurrences/s-morning/take", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["inserted"])

	resp, body = env.do(t, http.MethodPost, "/api/occurrences/s-morning/take", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["inserted"])

	logs, err := env.store.ListIntakeLogs(context.Background(), "p1", "2026-03-10")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	resp, body = env.do(t, http.MethodPost, "/api/occurrences/nope/take", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "OCC_001", body["code"])
}

func TestSnooze(t *testing.T) {
	env := newTestEnv(t)
	env.seedSchedules(t)

	resp, body := env.do(t, http.MethodPost, "/api/occurrences/s-night/snooze", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10m0s", body["snoozed_for"])

	resp, _ = env.do(t, http.MethodPost, "/api/occurrences/missing/snooze", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPushRunWithoutKeys(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/push/run", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "PUSH_001", body["code"])

	env.token = ""
	resp, _ = env.do(t, http.MethodGet, "/api/push/vapid-public-key", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPushSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, _ := env.do(t, http.MethodPost, "/api/push/subscriptions", map[string]interface{}{
		"endpoint": "https://push.example/abc",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/push/subscriptions", map[string]interface{}{
		"endpoint": "http://push.example/abc",
		"keys":     map[string]string{"p256dh": "BPk", "auth": "c2VjcmV0"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/push/subscriptions", map[string]interface{}{
		"endpoint": "https://push.example/abc",
		"keys":     map[string]string{"p256dh": "BPk", "auth": "c2VjcmV0"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	subs, err := env.store.ListPushSubscriptions(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "BPk", subs[0].P256dh)

	resp, _ = env.do(t, http.MethodDelete, "/api/push/subscriptions", map[string]string{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	subs, err = env.store.ListPushSubscriptions(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/notifications/preferences", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.PermissionDefault, body["permission"])

	resp, _ = env.do(t, http.MethodPut, "/api/notifications/preferences", map[string]interface{}{"enabled": true, "permission": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/api/notifications/preferences", map[string]interface{}{"enabled": true, "permission": "granted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["enabled"])

	patients, err := env.store.ListPushEnabledPatients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, patients)
}

func TestNotificationClick(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/notifications/click", map[string]interface{}{
		"action":  "take",
		"payload": map[string]string{"body": "no title"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PAYLOAD_001", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/notifications/click", map[string]interface{}{
		"action":  "snooze",
		"payload": map[string]string{"title": "Time to take Metformin", "tag": "s-morning"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["relayed"])
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, receiver.MessageSnooze, msg["type"])
	assert.Equal(t, 1, env.hub.Pending("p1"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(raw), "dosekeeper_"))
}

func TestAppMessages(t *testing.T) {
	env := newTestEnv(t)
	env.seedSchedules(t)
	ctx := context.Background()

	env.server.handleAppMessage(ctx, "p1", receiver.Message{
		Type: receiver.MessageSnooze,
		Data: receiver.MessageData{OccurrenceID: "s-morning", MedicineName: "Metformin"},
	})
	env.server.handleAppMessage(ctx, "p1", receiver.Message{
		Type: receiver.MessageMarkTaken,
		Data: receiver.MessageData{OccurrenceID: "s-morning"},
	})

	logs, err := env.store.ListIntakeLogs(ctx, "p1", "2026-03-10")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.IntakeTaken, logs[0].Status)
}
