// x402gate - HTTP 402 payment-gated tool endpoints
package main

import (
	"context"
	"os"

	"github.com/x402gate/gate/internal/config"
	"github.com/x402gate/gate/internal/logging"
	"github.com/x402gate/gate/internal/server"
)

// Build info - set by ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")
	logger.Info("starting x402gate", "version", Version, "commit", Commit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidatePayerConfig(); err != nil {
		logger.Warn("payer config incomplete, demo call-weather route disabled", "error", err)
	}

	logger.Info("configuration loaded", "env", cfg.Env, "mode", cfg.PaymentMode)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
