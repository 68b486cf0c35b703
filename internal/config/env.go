package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// envAliases lists the conventional names accepted for each setting, in
// priority order after the canonical DOSEKEEPER_ key
var envAliases = map[string][]string{
	"DOSEKEEPER_PUSH_VAPID_PUBLIC_KEY":   {"VAPID_PUBLIC_KEY"},
	"DOSEKEEPER_PUSH_VAPID_PRIVATE_KEY":  {"VAPID_PRIVATE_KEY"},
	"DOSEKEEPER_PUSH_SUBSCRIBER":         {"VAPID_SUBJECT", "VAPID_SUBSCRIBER"},
	"DOSEKEEPER_SECURITY_JWT_SECRET":     {"DOSEKEEPER_JWT_SECRET", "JWT_SECRET"},
	"DOSEKEEPER_SECURITY_ADMIN_PASSWORD": {"DOSEKEEPER_ADMIN_PASSWORD"},
}

// EnvFilePaths returns the .env files LoadEnvFiles reads, nearest first
func EnvFilePaths(dataDir string) []string {
	paths := []string{"./.env"}
	if dataDir != "" {
		paths = append(paths, filepath.Join(dataDir, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dosekeeper", ".env"))
	}
	return paths
}

// LoadEnvFiles reads .env files without overriding variables already set.
// Earlier files win over later ones.
func LoadEnvFiles(dataDir string) error {
	for _, path := range EnvFilePaths(dataDir) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadEnvFile(path); err != nil {
			return err
		}
	}
	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// parseEnvLine accepts KEY=value, export KEY=value and quoted values.
// Unquoted values may carry a trailing " # comment".
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	switch {
	case len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"':
		value = value[1 : len(value)-1]
	case len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'':
		value = value[1 : len(value)-1]
	default:
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
	}

	return key, value, true
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// ResolveEnvWithAliases returns the canonical variable or its first set alias
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}
	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}
	return ""
}
