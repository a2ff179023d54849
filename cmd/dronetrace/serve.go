package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dronetrace/dronetrace/internal/api"
	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/config"
	"github.com/dronetrace/dronetrace/internal/download"
	"github.com/dronetrace/dronetrace/internal/metrics"
	"github.com/dronetrace/dronetrace/internal/ui"
	"github.com/dronetrace/dronetrace/internal/watcher"
)

func serve(cfg config.Config) error {
	startTime := time.Now()

	logger := newLogger(cfg)
	logger.Info("starting dronetrace", "version", config.Version, "data_dir", cfg.DataDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, repo, err := openCatalog(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	deviceID, err := ensureDeviceID(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := ensureAuthToken(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  DroneTrace %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Printf("  Device ID:  %s...\n", deviceID[:16])
	fmt.Println()

	opts, err := serviceOptions(cfg, "")
	if err != nil {
		return err
	}
	publisher, err := newPublisher(ctx, cfg, cfg.OutputDir(), logger)
	if err != nil {
		return err
	}

	catalogSvc := catalog.NewService(repo, opts, logger)
	catalogSvc.SetPublisher(publisher)

	runner := catalog.NewRunner(catalogSvc, repo, logger)
	go runner.Start(ctx)

	poller := watcher.NewPoller(opts.Discover, cfg.WatchInterval(), logger)
	poller.OnChange(func(src *catalog.Source, events []watcher.Event) {
		if _, err := catalogSvc.ConvertSource(ctx, src.ID); err != nil {
			logger.Warn("failed to queue conversion for changed folder", "source_id", src.ID, "error", err)
		}
	})
	go poller.Watch(ctx, catalogSvc)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		CatalogService: catalogSvc,
		Repository:     repo,
		Runner:         runner,
		Exports:        publisher,
		Download:       download.NewServer(logger),
		Metrics:        metrics.Handler(),
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quitCh := make(chan struct{})

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			CatalogService: catalogSvc,
			Runner:         runner,
			Logger:         logger,
			OnQuit:         func() { close(quitCh) },
		})
		go tray.Run(ctx)
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		if tray != nil {
			tray.Quit()
		}
	case <-quitCh:
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
