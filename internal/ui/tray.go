package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/dronetrace/dronetrace/internal/catalog"
	"github.com/dronetrace/dronetrace/internal/logging"
)

const refreshInterval = 5 * time.Second

type Tray struct {
	catalogSvc catalog.CatalogService
	runner     *catalog.Runner
	logger     *slog.Logger

	statusItem  *systray.MenuItem
	sourcesItem *systray.MenuItem
	flightsItem *systray.MenuItem
	pauseItem   *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	CatalogService catalog.CatalogService
	Runner         *catalog.Runner
	Logger         *slog.Logger
	OnQuit         func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tray{
		catalogSvc: cfg.CatalogService,
		runner:     cfg.Runner,
		logger:     logging.WithComponent(logger, "tray"),
		onQuit:     cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(func() { t.onReady(ctx) }, t.onExit)
}

func (t *Tray) onReady(ctx context.Context) {
	systray.SetIcon(iconBytes)
	systray.SetTitle("DroneTrace")
	systray.SetTooltip("DroneTrace flight log converter")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Converter status")
	t.statusItem.Disable()

	t.sourcesItem = systray.AddMenuItem("Sources: 0", "Registered log folders")
	t.sourcesItem.Disable()

	t.flightsItem = systray.AddMenuItem("Flights: 0", "Summarized flights")
	t.flightsItem.Disable()

	systray.AddSeparator()

	convertItem := systray.AddMenuItem("Convert All", "Queue a conversion of every folder")
	t.pauseItem = systray.AddMenuItem("Pause", "Pause conversions")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit DroneTrace")

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		t.refresh(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.refresh(ctx)
			case <-convertItem.ClickedCh:
				t.convertAll(ctx)
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) convertAll(ctx context.Context) {
	jobs, err := t.catalogSvc.ConvertAll(ctx)
	if err != nil {
		t.logger.Error("failed to queue conversions", "error", err)
		return
	}
	t.logger.Info("conversions queued from tray", "jobs", len(jobs))
	t.UpdateStatus(fmt.Sprintf("Queued %d", len(jobs)))
}

func (t *Tray) refresh(ctx context.Context) {
	sources, err := t.catalogSvc.GetSources(ctx)
	if err != nil {
		t.logger.Warn("tray refresh failed", "error", err)
		return
	}
	flights, _ := t.catalogSvc.CountFlights(ctx)

	t.mu.Lock()
	t.sourcesItem.SetTitle(fmt.Sprintf("Sources: %d", len(sources)))
	t.flightsItem.SetTitle(fmt.Sprintf("Flights: %d", flights))
	t.mu.Unlock()

	if t.runner != nil && t.runner.IsBusy() {
		t.UpdateStatus("Converting")
	} else {
		t.UpdateStatus("Idle")
	}
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) Quit() {
	systray.Quit()
}
