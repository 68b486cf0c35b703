package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/push"
	"github.com/gmsas95/dosekeeper/internal/store"
)

var Version = "dev"

// HandleConfigCommand implements `dosekeeper config init|path|show`
func HandleConfigCommand(args []string, configPath, dataDir string, out io.Writer) error {
	if len(args) == 0 {
		PrintConfigHelp(out)
		return nil
	}

	if configPath == "" {
		configPath = config.DefaultConfigPath(resolveDataDir(dataDir))
	}

	switch args[0] {
	case "init":
		force := len(args) > 1 && (args[1] == "--force" || args[1] == "-f")
		if err := config.WriteDefault(configPath, resolveDataDir(dataDir), os.Stdin, out, force); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", configPath)
		fmt.Fprintln(out, "Run 'dosekeeper vapid' to generate push keys.")

	case "path":
		fmt.Fprintln(out, configPath)

	case "show", "view":
		cfg, err := config.Load(configPath, dataDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))

	default:
		PrintConfigHelp(out)
	}
	return nil
}

// HandleVAPIDCommand prints a fresh VAPID key pair as environment lines
func HandleVAPIDCommand(out io.Writer) error {
	pub, priv, err := push.GenerateKeys()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "# Add these to your environment or ~/.dosekeeper/.env")
	fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", priv)
	return nil
}

// HandleStatusCommand prints the effective configuration and store counts
func HandleStatusCommand(configPath, dataDir string, out io.Writer) error {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintln(out, "Dosekeeper Status")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Version: %s\n", Version)
	fmt.Fprintf(out, "Data:    %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(out, "Zone:    %s\n", zoneName(cfg))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server:")
	fmt.Fprintf(out, "  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Fprintf(out, "  URL:     http://localhost:%d\n", cfg.Server.Port)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Push:")
	fmt.Fprintf(out, "  Cron:        %s (%s)\n", enabledStatus(cfg.Push.Enabled), cfg.Push.Schedule)
	fmt.Fprintf(out, "  Public key:  %s\n", maskToken(cfg.Push.VAPIDPublicKey))
	fmt.Fprintf(out, "  Private key: %s\n", maskToken(cfg.Push.VAPIDPrivateKey))
	fmt.Fprintf(out, "  Dedupe:      %s\n", enabledStatus(cfg.Push.Dedupe))
	fmt.Fprintln(out)

	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		fmt.Fprintln(out, "Store: not created yet")
		return nil
	}

	st, err := store.New(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var schedules, subs int64
	st.DB().Model(&store.MedicineSchedule{}).Count(&schedules)
	st.DB().Model(&store.PushSubscription{}).Count(&subs)
	enabled, err := st.ListPushEnabledPatients(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Store:")
	fmt.Fprintf(out, "  Schedules:          %d\n", schedules)
	fmt.Fprintf(out, "  Push subscriptions: %d\n", subs)
	fmt.Fprintf(out, "  Push-enabled:       %d patient(s)\n", len(enabled))
	return nil
}

// HandleDoctorCommand checks the configuration and returns the issue count
func HandleDoctorCommand(configPath, dataDir string, out io.Writer) int {
	fmt.Fprintln(out, "Dosekeeper Diagnostics")
	fmt.Fprintln(out, "======================")
	fmt.Fprintln(out)

	issues := 0

	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		fmt.Fprintln(out, "[x] Config: Error loading configuration")
		fmt.Fprintf(out, "    %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "[ok] Config: Loaded successfully")

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Fprintln(out, "[x] Data Directory: Does not exist")
		issues++
	} else {
		fmt.Fprintln(out, "[ok] Data Directory: Exists")
	}

	if !cfg.Push.HasKeys() {
		fmt.Fprintln(out, "[!] VAPID keys: Not configured, background push will fail")
		fmt.Fprintln(out, "    Run: dosekeeper vapid")
		issues++
	} else {
		fmt.Fprintln(out, "[ok] VAPID keys: Configured")
	}

	if cfg.Security.AdminPassword == "" {
		fmt.Fprintln(out, "[!] Admin password: Not set, any login is accepted")
		issues++
	} else {
		fmt.Fprintln(out, "[ok] Admin password: Set")
	}

	fmt.Fprintln(out)
	if issues == 0 {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		fmt.Fprintf(out, "Found %d issue(s).\n", issues)
	}
	return issues
}

func resolveDataDir(dataDir string) string {
	if dataDir != "" {
		return dataDir
	}
	return config.DefaultDataDir()
}

func zoneName(cfg *config.Config) string {
	loc, err := cfg.Location()
	if err != nil {
		return "invalid (" + cfg.Schedule.Timezone + ")"
	}
	return loc.String()
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// PrintExtendedHelp prints the command overview
func PrintExtendedHelp(out io.Writer) {
	fmt.Fprintln(out, "Dosekeeper - medicine schedule and dose reminders")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  dosekeeper [flags] <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve          Run the HTTP server, websocket and push cron (default)")
	fmt.Fprintln(out, "  push-run       Run the background push job once and exit")
	fmt.Fprintln(out, "  vapid          Generate a VAPID key pair")
	fmt.Fprintln(out, "  config         Manage the configuration file")
	fmt.Fprintln(out, "  status         Show configuration and store counts")
	fmt.Fprintln(out, "  doctor         Check the installation")
	fmt.Fprintln(out, "  version        Print the version")
	fmt.Fprintln(out, "  help           Show this help")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  -config <path> Path to config file")
	fmt.Fprintln(out, "  -data <dir>    Path to data directory")
}

// PrintConfigHelp prints the config subcommands
func PrintConfigHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: dosekeeper config <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  init [--force]  Write a default config file")
	fmt.Fprintln(out, "  path            Print the config file location")
	fmt.Fprintln(out, "  show            Print the effective configuration (secrets hidden)")
}
