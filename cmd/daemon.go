package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextlevelbuilder/attache/internal/config"
	"github.com/nextlevelbuilder/attache/internal/supervisor"
)

func runDaemon() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) && cfg.Validate() != nil {
		// First run with neither config file nor env vars: point at the wizard.
		slog.Warn("no configuration found", "path", cfgPath)
		os.Stdout.WriteString("No configuration found. Run the setup wizard first:\n\n  attache onboard\n\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	if err := supervisor.New(cfg, Version).Run(ctx); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}
