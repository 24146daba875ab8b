// Package main is the entry point for the EstateView building viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/app"
	"github.com/Faultbox/estateview/internal/config"
	"github.com/Faultbox/estateview/internal/logger"
	"github.com/Faultbox/estateview/internal/platform/sdlhost"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== EstateView ===")
	logger.Sugar.Debugf("Config: %+v", cfg.Redacted())

	h, err := sdlhost.New(sdlhost.WindowConfig{
		Title:      "EstateView",
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		logger.Error("failed to open window", zap.Error(err))
		os.Exit(1)
	}

	a, err := app.New(cfg, h)
	if err != nil {
		h.Close()
		logger.Error("failed to create viewer", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := a.Run(ctx)
	stop()

	if err := a.Close(); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("viewer error", zap.Error(runErr))
		os.Exit(1)
	}

	logger.Info("viewer closed normally")
}
