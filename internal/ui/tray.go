// Package ui provides the optional system-tray menu.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/storyreel/storyreel-agent/internal/stories"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 5 * time.Second

// Runner is the part of the stories runner the tray controls.
type Runner interface {
	Trigger() bool
	Pause()
	Resume()
	IsPaused() bool
	IsBusy() bool
	LastRun() *stories.Run
}

type Tray struct {
	runner      Runner
	communities []string
	logger      *slog.Logger

	statusItem *systray.MenuItem
	lastItem   *systray.MenuItem
	runItem    *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu   sync.Mutex
	done chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Runner      Runner
	Communities []string
	Logger      *slog.Logger
	OnQuit      func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:      cfg.Runner,
		communities: cfg.Communities,
		logger:      cfg.Logger,
		onQuit:      cfg.OnQuit,
		done:        make(chan struct{}),
	}
}

// Run blocks on the platform event loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("StoryReel")
	systray.SetTooltip(fmt.Sprintf("StoryReel Agent (%d communities)", len(t.communities)))

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.lastItem = systray.AddMenuItem("Last run: none", "Most recent run")
	t.lastItem.Disable()

	systray.AddSeparator()

	t.runItem = systray.AddMenuItem("Run Now", "Fetch and render new stories")
	t.pauseItem = systray.AddMenuItem("Pause", "Pause scheduled runs")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit StoryReel Agent")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.runItem.ClickedCh:
				t.runNow()
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
	close(t.done)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		t.refresh()
		select {
		case <-ticker.C:
		case <-t.done:
			return
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}
	t.statusItem.SetTitle("Status: " + statusLabel(t.runner))
	t.lastItem.SetTitle(lastRunLabel(t.runner.LastRun()))
	if t.runner.IsBusy() || t.runner.IsPaused() {
		t.runItem.Disable()
	} else {
		t.runItem.Enable()
	}
}

func (t *Tray) runNow() {
	if t.runner == nil {
		return
	}
	if t.runner.Trigger() {
		t.logger.Info("run requested from tray")
	}
	t.refresh()
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	if t.runner == nil {
		t.mu.Unlock()
		return
	}
	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
	}
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusLabel(r Runner) string {
	switch {
	case r.IsBusy():
		return "Rendering"
	case r.IsPaused():
		return "Paused"
	}
	if last := r.LastRun(); last != nil && last.Status == stories.RunStatusFailed {
		return "Error"
	}
	return "Idle"
}

func lastRunLabel(run *stories.Run) string {
	if run == nil {
		return "Last run: none"
	}
	return fmt.Sprintf("Last run: %s, %d published (%s)",
		run.Status, run.ClipsPublished, run.CreatedAt.Local().Format("Jan 2 15:04"))
}
