package systray

import (
	"log/slog"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"
)

// Controller is the part of the agent the tray menu drives
type Controller interface {
	Pause() error
	Resume() error
	Paused() bool
}

// SystrayManager manages the system tray icon and menu
type SystrayManager struct {
	dashboardURL string // empty when the web UI is disabled
	iconData     []byte
	ctrl         Controller
	quit         chan struct{}
}

// NewSystrayManager creates a new systray manager
func NewSystrayManager(ctrl Controller, dashboardURL string, iconData []byte) *SystrayManager {
	return &SystrayManager{
		dashboardURL: dashboardURL,
		iconData:     iconData,
		ctrl:         ctrl,
		quit:         make(chan struct{}),
	}
}

// Run starts the system tray (blocking call)
func (m *SystrayManager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *SystrayManager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *SystrayManager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// onReady is called when the systray is ready
func (m *SystrayManager) onReady() {
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}

	systray.SetTitle("Pie Menu")
	systray.SetTooltip("Pie Menu")

	var mOpenWebUI *systray.MenuItem
	if m.dashboardURL != "" {
		mOpenWebUI = systray.AddMenuItem("Open Dashboard", "Open the pie menu dashboard")
	} else {
		mOpenWebUI = systray.AddMenuItem("Open Dashboard", "The web dashboard is disabled")
		mOpenWebUI.Disable()
	}
	mPause := systray.AddMenuItemCheckbox("Pause", "Stop listening for triggers", m.ctrl.Paused())
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit Pie Menu")

	go func() {
		for {
			select {
			case <-mOpenWebUI.ClickedCh:
				m.openWebUI()
			case <-mPause.ClickedCh:
				m.togglePause(mPause)
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				close(m.quit)
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the systray is exiting
func (m *SystrayManager) onExit() {
	slog.Info("System tray exited")
}

func (m *SystrayManager) togglePause(item *systray.MenuItem) {
	if m.ctrl.Paused() {
		if err := m.ctrl.Resume(); err != nil {
			slog.Error("Failed to resume", "error", err)
			return
		}
		item.Uncheck()
		systray.SetTooltip("Pie Menu")
		return
	}

	if err := m.ctrl.Pause(); err != nil {
		slog.Error("Failed to pause", "error", err)
		return
	}
	item.Check()
	systray.SetTooltip("Pie Menu (paused)")
}

// openWebUI opens the dashboard in the default browser
func (m *SystrayManager) openWebUI() {
	slog.Info("Opening web UI", "url", m.dashboardURL)
	if err := browser.OpenURL(m.dashboardURL); err != nil {
		slog.Error("Failed to open web UI", "error", err)
	}
}
