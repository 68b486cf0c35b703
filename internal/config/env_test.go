package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{"VAPID_PUBLIC_KEY=BPk123", "VAPID_PUBLIC_KEY", "BPk123", true},
		{`VAPID_SUBJECT="mailto:care@example.com"`, "VAPID_SUBJECT", "mailto:care@example.com", true},
		{"JWT_SECRET='s3cret # kept'", "JWT_SECRET", "s3cret # kept", true},
		{"export DOSEKEEPER_PUSH_TTL=120", "DOSEKEEPER_PUSH_TTL", "120", true},
		{"DOSEKEEPER_LOGGING_LEVEL=debug # noisy", "DOSEKEEPER_LOGGING_LEVEL", "debug", true},
		{"EMPTY=", "EMPTY", "", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"no equals sign", "", "", false},
		{"=value", "", "", false},
	}

	for _, tt := range tests {
		key, value, ok := parseEnvLine(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		assert.Equal(t, tt.key, key, "line %q", tt.line)
		assert.Equal(t, tt.value, value, "line %q", tt.line)
	}
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# push keys
DK_TEST_KEY1=value1
DK_TEST_KEY2="quoted value"
export DK_TEST_KEY3=exported
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0600))

	for _, key := range []string{"DK_TEST_KEY1", "DK_TEST_KEY2", "DK_TEST_KEY3"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "value1", os.Getenv("DK_TEST_KEY1"))
	assert.Equal(t, "quoted value", os.Getenv("DK_TEST_KEY2"))
	assert.Equal(t, "exported", os.Getenv("DK_TEST_KEY3"))
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DK_EXISTING=new_value\nDK_BLANK=filled\n"), 0600))

	t.Setenv("DK_EXISTING", "original_value")
	t.Setenv("DK_BLANK", "")

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "original_value", os.Getenv("DK_EXISTING"))
	assert.Equal(t, "", os.Getenv("DK_BLANK"), "explicitly set empty values are kept")
}

func TestLoadEnvFiles_DataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DK_FROM_DATA_DIR=yes\n"), 0600))

	t.Setenv("DK_FROM_DATA_DIR", "")
	os.Unsetenv("DK_FROM_DATA_DIR")

	require.NoError(t, LoadEnvFiles(dir))
	assert.Equal(t, "yes", os.Getenv("DK_FROM_DATA_DIR"))
	assert.Contains(t, EnvFilePaths(dir), filepath.Join(dir, ".env"))
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("DK_DEFAULT_KEY", "")
	assert.Equal(t, "fallback", GetEnvDefault("DK_DEFAULT_KEY", "fallback"))

	t.Setenv("DK_DEFAULT_KEY", "set")
	assert.Equal(t, "set", GetEnvDefault("DK_DEFAULT_KEY", "fallback"))
}

func TestResolveEnvWithAliases(t *testing.T) {
	t.Setenv("DOSEKEEPER_PUSH_SUBSCRIBER", "")
	t.Setenv("VAPID_SUBJECT", "")
	t.Setenv("VAPID_SUBSCRIBER", "")
	assert.Empty(t, ResolveEnvWithAliases("DOSEKEEPER_PUSH_SUBSCRIBER"))

	t.Setenv("VAPID_SUBSCRIBER", "mailto:second@example.com")
	assert.Equal(t, "mailto:second@example.com", ResolveEnvWithAliases("DOSEKEEPER_PUSH_SUBSCRIBER"))

	t.Setenv("VAPID_SUBJECT", "mailto:first@example.com")
	assert.Equal(t, "mailto:first@example.com", ResolveEnvWithAliases("DOSEKEEPER_PUSH_SUBSCRIBER"))

	t.Setenv("DOSEKEEPER_PUSH_SUBSCRIBER", "mailto:canonical@example.com")
	assert.Equal(t, "mailto:canonical@example.com", ResolveEnvWithAliases("DOSEKEEPER_PUSH_SUBSCRIBER"))

	assert.Empty(t, ResolveEnvWithAliases("DOSEKEEPER_UNKNOWN"))
}

func TestEnvAliases_Exist(t *testing.T) {
	required := map[string]string{
		"DOSEKEEPER_PUSH_VAPID_PUBLIC_KEY":  "VAPID_PUBLIC_KEY",
		"DOSEKEEPER_PUSH_VAPID_PRIVATE_KEY": "VAPID_PRIVATE_KEY",
		"DOSEKEEPER_PUSH_SUBSCRIBER":        "VAPID_SUBJECT",
	}

	for canonical, alias := range required {
		assert.Contains(t, envAliases[canonical], alias, "alias for %s", canonical)
	}
}
