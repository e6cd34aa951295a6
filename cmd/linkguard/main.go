package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/adapters/httpapi"
	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
	"github.com/devscan/linkguard/internal/di"
	"github.com/devscan/linkguard/internal/whitelist"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	server *httpapi.Server,
	index *whitelist.Index,
	cache core.VerdictCache,
) error {
	defer logger.Sync()

	// Load the ranked whitelist in the background; the index answers with
	// whatever is loaded so far.
	go func() {
		wlCfg := cfg.GetWhitelist()
		if err := index.LoadRanked(context.Background(), wlCfg.RankedPath); err != nil {
			logger.Warn("Ranked whitelist load failed, continuing with manual list only",
				zap.Error(err))
		}
	}()

	// Start the HTTP server
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// Stop the cache sweep if needed
	if stopper, ok := cache.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
