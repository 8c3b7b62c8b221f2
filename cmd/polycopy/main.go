package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle for every trader and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug and print every delta")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print roster, replica positions and recent orders, then exit")
	addTrader := flag.String("add-trader", "", "add a trader wallet to the stored roster")
	label := flag.String("label", "", "label for -add-trader")
	removeTrader := flag.String("remove-trader", "", "remove a trader from the stored roster")
	toggleTrader := flag.String("toggle-trader", "", "pause or resume a stored trader")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *addTrader != "":
		err = runAddTrader(ctx, cfg, store, *addTrader, *label)
	case *removeTrader != "":
		err = runRemoveTrader(ctx, cfg, store, *removeTrader)
	case *toggleTrader != "":
		err = runToggleTrader(ctx, cfg, store, *toggleTrader)
	case *report:
		err = runReport(ctx, cfg, store)
	default:
		slog.Info("polycopy starting",
			"config", *configPath,
			"mode", cfg.Mode(),
			"interval", cfg.PollInterval(),
			"once", *once,
		)
		err = run(ctx, cfg, *configPath, store, *once, *verbose)
	}
	if err != nil {
		slog.Error("polycopy exited with error", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
