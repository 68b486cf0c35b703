package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabledStatus(t *testing.T) {
	assert.Equal(t, "enabled", enabledStatus(true))
	assert.Equal(t, "disabled", enabledStatus(false))
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"1234567890", "1234...7890"},
		{"1234567890abcdef", "1234...cdef"},
		{"short", "***"},
		{"", "***"},
		{"1234567", "***"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, maskToken(tt.token), "maskToken(%q)", tt.token)
	}
}

func TestPrintFunctions(t *testing.T) {
	var buf bytes.Buffer
	PrintExtendedHelp(&buf)
	PrintConfigHelp(&buf)
	assert.Contains(t, buf.String(), "push-run")
	assert.Contains(t, buf.String(), "init [--force]")
}

func TestHandleVAPIDCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HandleVAPIDCommand(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "VAPID_PUBLIC_KEY="))
	assert.True(t, strings.HasPrefix(lines[2], "VAPID_PRIVATE_KEY="))
	assert.Greater(t, len(lines[1]), len("VAPID_PUBLIC_KEY=")+40)
}

func TestHandleConfigCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dosekeeper.yaml")

	var buf bytes.Buffer
	require.NoError(t, HandleConfigCommand([]string{"path"}, path, dir, &buf))
	assert.Equal(t, path, strings.TrimSpace(buf.String()))

	buf.Reset()
	require.NoError(t, HandleConfigCommand([]string{"init"}, path, dir, &buf))
	_, err := os.Stat(path)
	require.NoError(t, err)

	// stdin is not a terminal under go test
	assert.Error(t, HandleConfigCommand([]string{"init"}, path, dir, &buf))
	assert.NoError(t, HandleConfigCommand([]string{"init", "--force"}, path, dir, &buf))

	buf.Reset()
	require.NoError(t, HandleConfigCommand([]string{"show"}, path, dir, &buf))
	assert.Contains(t, buf.String(), "push:")
	assert.Contains(t, buf.String(), "schedule:")

	buf.Reset()
	require.NoError(t, HandleConfigCommand(nil, path, dir, &buf))
	assert.Contains(t, buf.String(), "Usage: dosekeeper config")
}

func TestHandleDoctorCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAPID_PUBLIC_KEY", "")
	t.Setenv("VAPID_PRIVATE_KEY", "")

	var buf bytes.Buffer
	issues := HandleDoctorCommand(filepath.Join(dir, "missing.yaml"), dir, &buf)
	assert.Equal(t, 2, issues)
	assert.Contains(t, buf.String(), "dosekeeper vapid")
}

func TestHandleStatusCommand(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, HandleStatusCommand(filepath.Join(dir, "missing.yaml"), dir, &buf))
	assert.Contains(t, buf.String(), "Dosekeeper Status")
	assert.Contains(t, buf.String(), "Store: not created yet")
}

func TestHandleStatusCommand_WithStore(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "missing.yaml")

	cfg, err := config.Load(configPath, dir)
	require.NoError(t, err)
	st, err := store.New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.ReplaceSchedules(ctx, "p1", []store.MedicineSchedule{
		{MedicineName: "Metformin", TimeSlot: "morning"},
		{MedicineName: "Atorvastatin", TimeSlot: "night"},
	}))
	require.NoError(t, st.SavePreference(ctx, &store.NotificationPreference{PatientID: "p1", Enabled: true}))
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	require.NoError(t, HandleStatusCommand(configPath, dir, &buf))
	assert.Contains(t, buf.String(), "Schedules:          2")
	assert.Contains(t, buf.String(), "Push-enabled:       1 patient(s)")
}
