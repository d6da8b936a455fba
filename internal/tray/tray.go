package tray

import (
	"context"
	"time"

	"yamichi77/movement-log-agent/internal/sampling"
	"yamichi77/movement-log-agent/internal/store"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

// statusRefreshInterval drives how often the menu mirrors store state
const statusRefreshInterval = 5 * time.Second

// App is the system tray front end: a tracking toggle, the last sync
// status line, a manual sync trigger, and quit. systray.Run must own the
// main goroutine, so the rest of the agent starts from OnReady.
type App struct {
	controller *sampling.Controller
	snapshots  *sampling.SnapshotStore
	settings   *store.SettingsStore
	syncNow    func()
	logger     *zap.Logger

	// OnReady runs once the tray loop is up; main wires agent startup here
	OnReady func()
	// OnQuit runs when the user picks Quit or the tray loop exits
	OnQuit func()
}

func NewApp(
	controller *sampling.Controller,
	snapshots *sampling.SnapshotStore,
	settings *store.SettingsStore,
	syncNow func(),
	logger *zap.Logger,
) *App {
	return &App{
		controller: controller,
		snapshots:  snapshots,
		settings:   settings,
		syncNow:    syncNow,
		logger:     logger,
	}
}

// Run blocks until Quit is chosen or the process is told to exit
func (a *App) Run() {
	systray.Run(a.onReady, a.onExit)
}

// Quit asks the tray loop to exit; callable from any goroutine
func (a *App) Quit() {
	systray.Quit()
}

func (a *App) onReady() {
	systray.SetTitle("Movement Log")
	systray.SetTooltip("Movement log agent")

	statusItem := systray.AddMenuItem("last sync: -", "Last sync result")
	statusItem.Disable()
	systray.AddSeparator()
	toggleItem := systray.AddMenuItem("Pause tracking", "Pause or resume location tracking")
	syncItem := systray.AddMenuItem("Sync now", "Upload pending samples now")
	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit", "Stop the agent")

	if a.OnReady != nil {
		a.OnReady()
	}

	go a.menuLoop(statusItem, toggleItem, syncItem, quitItem)
}

func (a *App) menuLoop(statusItem, toggleItem, syncItem, quitItem *systray.MenuItem) {
	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	a.refreshStatus(statusItem, toggleItem)
	for {
		select {
		case <-toggleItem.ClickedCh:
			if a.snapshots.IsCollecting() {
				a.controller.Stop()
			} else if err := a.controller.Start(true); err != nil {
				a.logger.Error("Failed to resume tracking", zap.Error(err))
			}
			a.refreshStatus(statusItem, toggleItem)
		case <-syncItem.ClickedCh:
			if a.syncNow != nil {
				go a.syncNow()
			}
		case <-ticker.C:
			a.refreshStatus(statusItem, toggleItem)
		case <-quitItem.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (a *App) refreshStatus(statusItem, toggleItem *systray.MenuItem) {
	if a.snapshots.IsCollecting() {
		toggleItem.SetTitle("Pause tracking")
	} else {
		toggleItem.SetTitle("Resume tracking")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := a.settings.SendStatusText(ctx)
	if err != nil {
		a.logger.Error("Failed to read sync status", zap.Error(err))
		return
	}
	if text == "" {
		text = "last sync: -"
	}
	statusItem.SetTitle(text)
}

func (a *App) onExit() {
	if a.OnQuit != nil {
		a.OnQuit()
	}
}
