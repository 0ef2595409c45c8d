package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/transcode-dispatch/config"
	"github.com/target/transcode-dispatch/internal/bootstrap"
	"github.com/target/transcode-dispatch/internal/devseed"
)

func main() {
	overlay, err := bootstrap.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1) //nolint:forbidigo // Invalid flags should exit with non-zero status before startup.
	}
	if overlay.ShowHelp {
		fmt.Print(bootstrap.Usage())
		return
	}

	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger, overlay); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, overlay bootstrap.FlagOverlay) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	overlay.Apply(&cfg)

	cfgPtr := &cfg

	// Log startup info
	logStartupInfo(ctx, logger, cfgPtr)

	// Validate configuration
	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}

	// Initialize the state store
	store, err := bootstrap.BuildStore(ctx, bootstrap.StoreSetup{
		Config: cfg.Store,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close store failed", "error", cerr)
		}
	}()

	// Initialize and run services
	services := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: cfgPtr,
		Store:  store,
		Logger: logger,
	})

	if cfg.IsDev {
		if seedErr := devseed.Run(ctx, devseed.NewServices(services.Dispatcher), logger); seedErr != nil {
			logger.WarnContext(ctx, "dev seed failed", "error", seedErr)
		}
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfgPtr,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	enabledServices := bootstrap.GetEnabledServices(cfg)
	logger.InfoContext(ctx, "starting dispatch service",
		"store_backend", cfg.Store.Backend(),
		"auth_enabled", cfg.Auth.Enabled(),
		"enabled_services", enabledServices)
}
