package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/pkg/browser"

	"markestedt/piemenu/config"
	"markestedt/piemenu/keys"
	"markestedt/piemenu/platform"
	"markestedt/piemenu/storage"
	"markestedt/piemenu/trigger"
	"markestedt/piemenu/web"
)

// Menu is the pie menu surface. Show must not block. Hide closes the menu and
// returns the index of the selected item, or -1.
type Menu interface {
	Show(p config.Profile)
	Hide() int
}

// EventSink receives status and activation updates for the dashboard
type EventSink interface {
	BroadcastStatus(st web.Status)
	BroadcastActivation(a *storage.Activation)
}

// headlessMenu is used when no menu surface is available. It never selects.
type headlessMenu struct{}

func (headlessMenu) Show(p config.Profile) {
	slog.Debug("No menu surface, ignoring show", "profile", p.Name)
}

func (headlessMenu) Hide() int { return -1 }

// AgentOptions configures a new agent. Only Config is required.
type AgentOptions struct {
	Config   *config.Config
	DB       *storage.DB
	Menu     Menu
	Events   EventSink
	LogLevel *slog.LevelVar
}

// session is one trigger press, from key-down to key-up
type session struct {
	id      string
	trigger string
	profile config.Profile
	start   time.Time
	timer   *time.Timer
	visible bool
}

// Agent coordinates trigger detection, the menu and action execution
type Agent struct {
	engine   *trigger.Engine
	injector platform.Injector
	menu     Menu
	db       *storage.DB
	events   EventSink
	levelVar *slog.LevelVar

	// Replaced in tests.
	foreground func() (platform.WindowInfo, bool)
	openURL    func(url string) error
	startCmd   func(name string, args ...string) error

	mu      sync.Mutex
	cfg     *config.Config
	paused  bool
	session *session
}

// NewAgent creates an agent with the platform keyboard hook and injector
func NewAgent(opts AgentOptions) *Agent {
	return newAgent(opts, platform.NewHook(), platform.NewInjector())
}

func newAgent(opts AgentOptions, hook platform.Hook, injector platform.Injector) *Agent {
	a := &Agent{
		injector:   injector,
		menu:       opts.Menu,
		db:         opts.DB,
		events:     opts.Events,
		levelVar:   opts.LogLevel,
		foreground: platform.ForegroundWindow,
		openURL:    browser.OpenURL,
		startCmd:   startCommand,
		cfg:        opts.Config,
	}
	if a.menu == nil {
		a.menu = headlessMenu{}
	}
	a.engine = trigger.NewEngine(a, injector, hook)
	return a
}

// Run starts the engine and blocks until ctx is done. A hook that fails to
// install is logged; the agent keeps running so the dashboard stays usable.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	triggers := a.cfg.Triggers()
	a.mu.Unlock()

	if err := a.engine.Start(triggers); err != nil {
		slog.Error("Failed to start trigger engine, keys will not be intercepted", "error", err)
	} else if !a.engine.CanSuppress() {
		slog.Warn("Keyboard hook is passive, trigger keys also reach the focused application")
	}
	a.broadcastStatus()

	slog.Info("Pie menu started", "triggers", triggers)

	<-ctx.Done()

	a.closeSession()
	if err := a.engine.Stop(); err != nil {
		return err
	}
	return nil
}

// OnTriggerPress opens a menu session for the profile matching trigger and
// the foreground window.
func (a *Agent) OnTriggerPress(trig string) {
	win, _ := a.foreground()

	a.mu.Lock()
	if a.session != nil {
		open := a.session.trigger
		a.mu.Unlock()
		slog.Debug("Menu already open, ignoring trigger", "trigger", trig, "open", open)
		return
	}

	profile, ok := selectProfile(a.cfg.Profiles, trig, win)
	if !ok {
		a.mu.Unlock()
		slog.Warn("No profile for trigger", "trigger", trig, "exe", win.Exe)
		return
	}

	s := &session{
		id:      uuid.NewString(),
		trigger: trig,
		profile: profile,
		start:   time.Now(),
	}
	a.session = s

	if d := a.cfg.Settings.LongPressDelayMs; d > 0 {
		s.timer = time.AfterFunc(time.Duration(d)*time.Millisecond, func() { a.showPending(s) })
		a.mu.Unlock()
		slog.Debug("Waiting for long press", "trigger", trig, "profile", profile.Name)
		return
	}

	s.visible = true
	a.menu.Show(profile)
	a.mu.Unlock()

	slog.Debug("Menu shown", "trigger", trig, "profile", profile.Name)
	a.broadcastStatus()
}

// showPending shows the menu once the long-press delay has passed, if the
// trigger is still held.
func (a *Agent) showPending(s *session) {
	a.mu.Lock()
	if a.session != s {
		a.mu.Unlock()
		return
	}
	s.visible = true
	a.menu.Show(s.profile)
	a.mu.Unlock()

	slog.Debug("Menu shown after long press", "trigger", s.trigger, "profile", s.profile.Name)
	a.broadcastStatus()
}

// OnTriggerRelease closes the session. It returns true when the key-up was
// consumed, false when the trigger key should be replayed.
func (a *Agent) OnTriggerRelease(trig string) bool {
	a.mu.Lock()
	s := a.session
	if s == nil || trigger.Canonical(s.trigger) != trigger.Canonical(trig) {
		a.mu.Unlock()
		return false
	}
	a.session = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	visible := s.visible
	settings := a.cfg.Settings
	a.mu.Unlock()

	defer a.broadcastStatus()

	act := &storage.Activation{
		ID:      s.id,
		Profile: s.profile.Name,
		Trigger: s.trigger,
		HoldMs:  time.Since(s.start).Milliseconds(),
	}

	if !visible {
		slog.Debug("Trigger released before long press", "trigger", trig)
		return a.unselected(act, settings)
	}

	selected := a.menu.Hide()
	if selected < 0 || selected >= len(s.profile.Items) {
		slog.Debug("Menu closed without selection", "trigger", trig)
		return a.unselected(act, settings)
	}

	item := s.profile.Items[selected]
	act.ItemLabel = item.Label
	act.Action = item.Action
	act.Value = item.Value
	go a.execute(act, item, settings)
	return true
}

// unselected records a session that ended without a selection and reports
// whether the key-up is consumed.
func (a *Agent) unselected(act *storage.Activation, settings config.Settings) bool {
	if settings.ReplayUnselected {
		act.Outcome = storage.OutcomeReplayed
	} else {
		act.Outcome = storage.OutcomeDismissed
	}
	a.record(act, settings)
	return !settings.ReplayUnselected
}

func (a *Agent) execute(act *storage.Activation, item config.Item, settings config.Settings) {
	if d := settings.ActionDelayMs; d > 0 {
		time.Sleep(time.Duration(d) * time.Millisecond)
	}

	slog.Info("Executing action", "profile", act.Profile, "item", item.Label, "action", item.Action)
	if err := a.runAction(item, settings); err != nil {
		slog.Error("Action failed", "item", item.Label, "action", item.Action, "error", err)
		act.Outcome = storage.OutcomeFailed
		act.ErrorMessage = err.Error()
	} else {
		act.Outcome = storage.OutcomeExecuted
	}
	a.record(act, settings)
}

func (a *Agent) runAction(item config.Item, settings config.Settings) error {
	switch item.Action {
	case config.ActionKey:
		return a.sendKeySequence(item.Value, time.Duration(settings.KeySequenceDelayMs)*time.Millisecond)
	case config.ActionURL:
		if err := a.openURL(item.Value); err != nil {
			return fmt.Errorf("failed to open url: %w", err)
		}
		return nil
	case config.ActionCmd:
		args, err := shlex.Split(item.Value)
		if err != nil {
			return fmt.Errorf("failed to parse command: %w", err)
		}
		if len(args) == 0 {
			return errors.New("empty command")
		}
		return a.startCmd(args[0], args[1:]...)
	case config.ActionText:
		a.injector.TypeText(item.Value)
		return nil
	}
	return fmt.Errorf("unknown action %q", item.Action)
}

// sendKeySequence presses the keys of a "ctrl+shift+z" style sequence in
// order and releases them in reverse. Modifiers the user is still holding
// are released first so they do not leak into the sequence.
func (a *Agent) sendKeySequence(value string, delay time.Duration) error {
	seq, err := parseKeySequence(value)
	if err != nil {
		return err
	}

	a.engine.ReleaseAllHeldModifiers()

	pause := func() {
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	for _, d := range seq {
		a.injector.SendKey(d, true)
		pause()
	}
	for _, d := range slices.Backward(seq) {
		a.injector.SendKey(d, false)
		pause()
	}
	return nil
}

func parseKeySequence(value string) ([]keys.Descriptor, error) {
	var seq []keys.Descriptor
	for _, part := range strings.Split(value, "+") {
		d, err := keys.ParseDescriptor(part)
		if err != nil {
			return nil, fmt.Errorf("invalid key sequence %q: %w", value, err)
		}
		seq = append(seq, d)
	}
	return seq, nil
}

func startCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}

func (a *Agent) record(act *storage.Activation, settings config.Settings) {
	if a.db != nil && settings.HistoryEnabled {
		if err := a.db.SaveActivation(act); err != nil {
			slog.Error("Failed to save activation", "error", err)
		}
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = time.Now()
	}
	if a.events != nil {
		a.events.BroadcastActivation(act)
	}
}

// selectProfile returns the first profile for trigger whose target_apps
// names the foreground window, else the first profile for trigger without
// target_apps.
func selectProfile(profiles []config.Profile, trig string, win platform.WindowInfo) (config.Profile, bool) {
	key := trigger.Canonical(trig)
	exe := strings.ToLower(win.Exe)
	title := strings.ToLower(win.Title)

	var global *config.Profile
	for i := range profiles {
		p := &profiles[i]
		if trigger.Canonical(p.Trigger) != key {
			continue
		}
		if len(p.TargetApps) == 0 {
			if global == nil {
				global = p
			}
			continue
		}
		for _, app := range p.TargetApps {
			app = strings.ToLower(strings.TrimSpace(app))
			if app == "" {
				continue
			}
			if (exe != "" && strings.Contains(exe, app)) || (title != "" && strings.Contains(title, app)) {
				return *p, true
			}
		}
	}
	if global != nil {
		return *global, true
	}
	return config.Profile{}, false
}

// closeSession drops an open session and hides its menu
func (a *Agent) closeSession() {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	if s == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.visible {
		a.menu.Hide()
	}
}

// Pause stops intercepting triggers until Resume
func (a *Agent) Pause() error {
	a.mu.Lock()
	if a.paused {
		a.mu.Unlock()
		return nil
	}
	a.paused = true
	a.mu.Unlock()

	a.closeSession()
	err := a.engine.Stop()
	slog.Info("Paused")
	a.broadcastStatus()
	return err
}

// Resume reinstalls the hook with the current triggers
func (a *Agent) Resume() error {
	a.mu.Lock()
	if !a.paused {
		a.mu.Unlock()
		return nil
	}
	a.paused = false
	triggers := a.cfg.Triggers()
	a.mu.Unlock()

	err := a.engine.Start(triggers)
	slog.Info("Resumed")
	a.broadcastStatus()
	return err
}

// Paused reports whether the agent is paused
func (a *Agent) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Reload replaces the configuration and restarts the engine with its
// triggers. An identical configuration is ignored.
func (a *Agent) Reload(cfg *config.Config) error {
	a.mu.Lock()
	if reflect.DeepEqual(a.cfg, cfg) {
		a.mu.Unlock()
		slog.Debug("Configuration unchanged")
		return nil
	}
	a.cfg = cfg
	paused := a.paused
	a.mu.Unlock()

	if a.levelVar != nil {
		if lvl, err := config.ParseLevel(cfg.Settings.LogLevel); err == nil {
			a.levelVar.Set(lvl)
		}
	}

	a.closeSession()
	defer a.broadcastStatus()

	if paused {
		slog.Info("Configuration reloaded while paused")
		return nil
	}
	if err := a.engine.Stop(); err != nil {
		slog.Warn("Failed to stop trigger engine for reload", "error", err)
	}
	if err := a.engine.Start(cfg.Triggers()); err != nil {
		return err
	}
	slog.Info("Configuration reloaded", "triggers", cfg.Triggers())
	return nil
}

// ApplyConfig applies a configuration edited on the dashboard
func (a *Agent) ApplyConfig(cfg *config.Config) error {
	return a.Reload(cfg)
}

// Config returns the active configuration. Callers must not modify it.
func (a *Agent) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Status reports the engine state for the dashboard
func (a *Agent) Status() web.Status {
	a.mu.Lock()
	paused := a.paused
	var menuProfile string
	if a.session != nil && a.session.visible {
		menuProfile = a.session.profile.Name
	}
	a.mu.Unlock()

	var triggers []string
	for _, s := range a.engine.Triggers() {
		triggers = append(triggers, s.Canonical())
	}

	return web.Status{
		State:         a.engine.State().String(),
		Paused:        paused,
		CanSuppress:   a.engine.CanSuppress(),
		Triggers:      triggers,
		HeldModifiers: a.engine.HeldModifiers(),
		Active:        a.engine.ActiveSuppressions(),
		MenuProfile:   menuProfile,
	}
}

func (a *Agent) broadcastStatus() {
	if a.events != nil {
		a.events.BroadcastStatus(a.Status())
	}
}
