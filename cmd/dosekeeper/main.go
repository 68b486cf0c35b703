package main

import (
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gmsas95/dosekeeper/internal/app"
	"github.com/gmsas95/dosekeeper/internal/cli"
	"github.com/gmsas95/dosekeeper/internal/config"
	"github.com/gmsas95/dosekeeper/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	envDir := *dataDir
	if envDir == "" {
		envDir = config.DefaultDataDir()
	}
	if err := config.LoadEnvFiles(envDir); err != nil {
		log.Printf("Warning: failed to read .env file: %v", err)
	}

	command := "serve"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve", "server":
		application := initApp(true)
		application.RunServer()

	case "push-run":
		application := initApp(false)
		report, err := application.RunPushOnce()
		application.Shutdown()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Push job failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))

	case "vapid":
		exitOn(cli.HandleVAPIDCommand(os.Stdout))

	case "config":
		err := cli.HandleConfigCommand(args, *configPath, *dataDir, os.Stdout)
		if stderrors.Is(err, config.ErrAborted) {
			fmt.Println("Aborted.")
			return
		}
		exitOn(err)

	case "status":
		exitOn(cli.HandleStatusCommand(*configPath, *dataDir, os.Stdout))

	case "doctor":
		if cli.HandleDoctorCommand(*configPath, *dataDir, os.Stdout) > 0 {
			os.Exit(1)
		}

	case "version", "--version", "-v":
		fmt.Printf("Dosekeeper version %s\n", version)

	case "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		cli.PrintExtendedHelp(os.Stderr)
		os.Exit(2)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initApp loads configuration, opens storage and wires the application.
// With watch set, edits to the config file are applied while running.
func initApp(watch bool) *app.App {
	bootstrap, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := app.NewLogger(bootstrap.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg := bootstrap
	var application *app.App
	if watch {
		cfg, err = config.Watch(*configPath, *dataDir, func(next *config.Config) {
			if application != nil {
				application.Reload(next)
			}
		})
		if err != nil {
			logger.Fatal("Failed to watch config", zap.Error(err))
		}
	}

	logger.Info("Starting Dosekeeper",
		zap.String("version", version),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("timezone", cfg.Schedule.Timezone),
	)

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err = app.New(cfg, st, logger, level, version)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	return application
}
