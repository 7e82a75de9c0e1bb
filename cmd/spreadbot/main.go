// Command spreadbot runs the cross-venue spread alert pipeline: venue feeds
// onto an event bus, spread engines over cached quotes, and alert delivery to
// Telegram, Redis, and the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/premarket-labs/spreadbot/internal/app"
	"github.com/premarket-labs/spreadbot/internal/config"
	"github.com/premarket-labs/spreadbot/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	dryRun := flag.Bool("dry-run", false, "log Telegram messages instead of sending them")
	flag.Parse()

	// Bootstrap logger until the configured one is available.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("spreadbot starting",
		slog.String("config", *configPath),
		slog.Bool("dry_run", *dryRun),
	)

	application := app.New(cfg, logger, *dryRun)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if !errors.Is(err, context.Canceled) {
			logger.Error("runtime error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("spreadbot stopped")
}
