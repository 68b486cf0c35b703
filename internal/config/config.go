package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for dosekeeper
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Push     PushConfig     `mapstructure:"push" yaml:"push"`
	Security SecurityConfig `mapstructure:"security" yaml:"security"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// ScheduleConfig holds the foreground scheduler cadence
type ScheduleConfig struct {
	Timezone        string        `mapstructure:"timezone" yaml:"timezone"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	CheckInterval   time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	SummaryInterval time.Duration `mapstructure:"summary_interval" yaml:"summary_interval"`
	Snooze          time.Duration `mapstructure:"snooze" yaml:"snooze"`
}

// PushConfig holds web push and background job settings
type PushConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Schedule        string        `mapstructure:"schedule" yaml:"schedule"`
	JobTimeout      time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key" yaml:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key" yaml:"vapid_private_key"`
	Subscriber      string        `mapstructure:"subscriber" yaml:"subscriber"`
	TTL             int           `mapstructure:"ttl" yaml:"ttl"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	Dedupe          bool          `mapstructure:"dedupe" yaml:"dedupe"`
	AppURL          string        `mapstructure:"app_url" yaml:"app_url"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
}

// HasKeys reports whether both VAPID keys are present
func (p PushConfig) HasKeys() bool {
	return strings.TrimSpace(p.VAPIDPublicKey) != "" && strings.TrimSpace(p.VAPIDPrivateKey) != ""
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password" yaml:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads the configuration and calls onChange with the re-decoded
// config whenever the file changes on disk. It is a no-op without a file.
func Watch(configPath, dataDir string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			next, err := decode(v)
			if err != nil {
				return
			}
			onChange(next)
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Determine data directory
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosekeeper.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	// Config file path
	if configPath == "" {
		configPath = DefaultConfigPath(dataDir)
	}

	// If config file exists, load it
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOSEKEEPER_SERVER_PORT, DOSEKEEPER_PUSH_TTL, etc.)
	v.SetEnvPrefix("DOSEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Scheduler cadence
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.refresh_interval", 5*time.Minute)
	v.SetDefault("schedule.check_interval", time.Minute)
	v.SetDefault("schedule.summary_interval", time.Minute)
	v.SetDefault("schedule.snooze", 10*time.Minute)

	// Push defaults
	v.SetDefault("push.enabled", true)
	v.SetDefault("push.schedule", "@every 1m")
	v.SetDefault("push.job_timeout", 50*time.Second)
	v.SetDefault("push.subscriber", "mailto:admin@localhost")
	v.SetDefault("push.ttl", 300)
	v.SetDefault("push.rate_per_second", 20.0)
	v.SetDefault("push.burst", 10)
	v.SetDefault("push.concurrency", 4)
	v.SetDefault("push.dedupe", false)
	v.SetDefault("push.app_url", "http://localhost:8080")
	v.SetDefault("push.breaker_failures", 5)
	v.SetDefault("push.breaker_timeout", 30*time.Second)

	// Security defaults
	v.SetDefault("security.allow_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", true)
}

// Defaults returns the configuration produced by defaults alone
func Defaults(dataDir string) *Config {
	v := viper.New()
	setDefaults(v)
	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosekeeper.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// DefaultConfigPath is where Load looks when no path is given
func DefaultConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "dosekeeper.yaml")
}

// DefaultDataDir is the data directory used when none is given
func DefaultDataDir() string {
	return GetEnvDefault("DOSEKEEPER_STORAGE_DATA_DIR", getDefaultDataDir())
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dosekeeper")
	}

	// Fall back to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "dosekeeper")
}

// loadEnvOverrides resolves the short, widely used push variable names
func loadEnvOverrides(cfg *Config) {
	if key := ResolveEnvWithAliases("DOSEKEEPER_PUSH_VAPID_PUBLIC_KEY"); key != "" {
		cfg.Push.VAPIDPublicKey = key
	}
	if key := ResolveEnvWithAliases("DOSEKEEPER_PUSH_VAPID_PRIVATE_KEY"); key != "" {
		cfg.Push.VAPIDPrivateKey = key
	}
	if sub := ResolveEnvWithAliases("DOSEKEEPER_PUSH_SUBSCRIBER"); sub != "" {
		cfg.Push.Subscriber = sub
	}
	if secret := ResolveEnvWithAliases("DOSEKEEPER_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if pw := ResolveEnvWithAliases("DOSEKEEPER_SECURITY_ADMIN_PASSWORD"); pw != "" {
		cfg.Security.AdminPassword = pw
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	if cfg.Schedule.CheckInterval <= 0 || cfg.Schedule.RefreshInterval <= 0 || cfg.Schedule.SummaryInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	// VAPID keys are checked per push job invocation, not here
	return nil
}

// Location resolves schedule.timezone
func (c *Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Schedule.Timezone) {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Schedule.Timezone)
	}
}

func generateRandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*6364136223846793005 + 1442695040888963407
		b[i] = letters[int(uint64(seed)>>33)%len(letters)]
	}
	return string(b)
}
