// Package main is the entry point for the dispatch service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avdispatch/internal/config"
	"github.com/vyrodovalexey/avdispatch/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)

	run(flags.configPath, cfg, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVDISPATCH_CONFIG_PATH", "configs/avdispatch.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVDISPATCH_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVDISPATCH_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avdispatch version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads the service configuration, falling back to defaults
// when no config file exists at the given path.
func loadConfig(configPath string, logger observability.Logger) *config.ServiceConfig {
	logger.Info("starting avdispatch",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults",
			observability.String("path", configPath),
		)
		return config.DefaultConfig()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	return cfg
}

// run builds and serves the application until a shutdown signal. When
// the configuration file changes on disk the application is rebuilt and
// restarted with the new configuration.
func run(configPath string, cfg *config.ServiceConfig, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloadCh := make(chan *config.ServiceConfig, 1)
	if watcher := startWatcher(ctx, configPath, logger, reloadCh); watcher != nil {
		defer func() { _ = watcher.Stop() }()
	}

	for {
		app, err := newApplication(cfg, logger)
		if err != nil {
			logger.Fatal("failed to initialize application", observability.Error(err))
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Start()
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			shutdown(app, logger)
			logger.Info("avdispatch stopped")
			return

		case err := <-errCh:
			if err != nil {
				logger.Error("server failed", observability.Error(err))
			}
			shutdown(app, logger)
			logger.Info("avdispatch stopped")
			return

		case next := <-reloadCh:
			logger.Info("configuration changed, restarting")
			shutdown(app, logger)
			cfg = next
		}
	}
}

// startWatcher begins watching the configuration file when it exists.
// Reloaded configurations are handed to run through reloadCh; a pending
// reload is replaced rather than queued.
func startWatcher(
	ctx context.Context,
	configPath string,
	logger observability.Logger,
	reloadCh chan *config.ServiceConfig,
) *config.Watcher {
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.ServiceConfig) {
		select {
		case <-reloadCh:
		default:
		}
		reloadCh <- cfg
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}
	return watcher
}

func shutdown(app *application, logger observability.Logger) {
	if err := app.Shutdown(); err != nil {
		logger.Error("shutdown error", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
