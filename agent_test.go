package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/piemenu/config"
	"markestedt/piemenu/keys"
	"markestedt/piemenu/platform"
	"markestedt/piemenu/storage"
	"markestedt/piemenu/web"
)

type fakeHook struct {
	mu     sync.Mutex
	filter platform.KeyFilter
	state  platform.HookState
}

func (h *fakeHook) Start(f platform.KeyFilter) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filter = f
	h.state = platform.HookRunning
	return nil
}

func (h *fakeHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filter = nil
	h.state = platform.HookStopped
	return nil
}

func (h *fakeHook) State() platform.HookState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHook) CanSuppress() bool { return true }

func (h *fakeHook) send(vk uint32, press bool) platform.Decision {
	h.mu.Lock()
	f := h.filter
	h.mu.Unlock()
	return f.FilterKey(platform.KeyEvent{VK: vk, Press: press, Release: !press})
}

type fakeInjector struct {
	mu     sync.Mutex
	events []string
}

func (j *fakeInjector) SendKey(d keys.Descriptor, press bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	dir := "up"
	if press {
		dir = "down"
	}
	j.events = append(j.events, fmt.Sprintf("%s %s", d, dir))
}

func (j *fakeInjector) TypeText(text string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, "type "+text)
}

func (j *fakeInjector) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeMenu struct {
	mu       sync.Mutex
	shown    []string
	hides    int
	selected int
}

func (m *fakeMenu) Show(p config.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = append(m.shown, p.Name)
}

func (m *fakeMenu) Hide() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hides++
	return m.selected
}

func (m *fakeMenu) Shown() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.shown...)
}

func (m *fakeMenu) Hides() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hides
}

func (m *fakeMenu) Select(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = i
}

type fakeEvents struct {
	mu          sync.Mutex
	activations []storage.Activation
}

func (e *fakeEvents) BroadcastStatus(web.Status) {}

func (e *fakeEvents) BroadcastActivation(a *storage.Activation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activations = append(e.activations, *a)
}

func (e *fakeEvents) Activations() []storage.Activation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]storage.Activation(nil), e.activations...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Settings.HistoryEnabled = true
	cfg.Profiles = []config.Profile{
		{
			Name:       "Paint",
			Trigger:    "ctrl+space",
			TargetApps: []string{"mspaint.exe", "Krita"},
			Items: []config.Item{
				{Label: "Undo", Value: "ctrl+z", Action: config.ActionKey},
				{Label: "Pen", Value: "p", Action: config.ActionKey},
			},
		},
		{
			Name:    "Global",
			Trigger: "Control + Space",
			Items: []config.Item{
				{Label: "Docs", Value: "https://example.com/docs", Action: config.ActionURL},
				{Label: "Editor", Value: `code --new-window "my project"`, Action: config.ActionCmd},
				{Label: "Sign", Value: "Regards,\nMe", Action: config.ActionText},
			},
		},
		{
			Name:    "Tab",
			Trigger: "tab",
			Items:   []config.Item{{Label: "Escape", Value: "escape", Action: config.ActionKey}},
		},
	}
	return cfg
}

type testAgent struct {
	*Agent
	hook     *fakeHook
	injector *fakeInjector
	menu     *fakeMenu
	events   *fakeEvents

	mu     sync.Mutex
	urls   []string
	cmds   [][]string
	window platform.WindowInfo
	cmdErr error
}

func newTestAgent(t *testing.T, cfg *config.Config) *testAgent {
	t.Helper()
	ta := &testAgent{
		hook:     &fakeHook{},
		injector: &fakeInjector{},
		menu:     &fakeMenu{selected: -1},
		events:   &fakeEvents{},
	}
	ta.Agent = newAgent(AgentOptions{Config: cfg, Menu: ta.menu, Events: ta.events}, ta.hook, ta.injector)
	ta.foreground = func() (platform.WindowInfo, bool) {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		return ta.window, ta.window.Exe != ""
	}
	ta.openURL = func(url string) error {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		ta.urls = append(ta.urls, url)
		return nil
	}
	ta.startCmd = func(name string, args ...string) error {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		ta.cmds = append(ta.cmds, append([]string{name}, args...))
		return ta.cmdErr
	}
	return ta
}

func (ta *testAgent) setWindow(exe, title string) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.window = platform.WindowInfo{Exe: exe, Title: title}
}

func (ta *testAgent) waitActivations(t *testing.T, n int) []storage.Activation {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ta.events.Activations()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return ta.events.Activations()
}

func TestSelectProfile(t *testing.T) {
	profiles := testConfig().Profiles

	tests := []struct {
		name    string
		trigger string
		win     platform.WindowInfo
		want    string
		found   bool
	}{
		{"exe match", "ctrl+space", platform.WindowInfo{Exe: "mspaint.exe"}, "Paint", true},
		{"title match case insensitive", "ctrl+space", platform.WindowInfo{Exe: "x.exe", Title: "image.kra - KRITA"}, "Paint", true},
		{"global fallback", "ctrl+space", platform.WindowInfo{Exe: "notepad.exe"}, "Global", true},
		{"no window", "ctrl+space", platform.WindowInfo{}, "Global", true},
		{"trigger spelled differently", "space+ctrl", platform.WindowInfo{Exe: "mspaint.exe"}, "Paint", true},
		{"other trigger", "tab", platform.WindowInfo{Exe: "mspaint.exe"}, "Tab", true},
		{"unknown trigger", "alt+x", platform.WindowInfo{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := selectProfile(profiles, tt.trigger, tt.win)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestSelectProfileNoGlobal(t *testing.T) {
	profiles := testConfig().Profiles[:1]
	_, ok := selectProfile(profiles, "ctrl+space", platform.WindowInfo{Exe: "notepad.exe"})
	assert.False(t, ok)
}

func TestParseKeySequence(t *testing.T) {
	seq, err := parseKeySequence("Ctrl + Shift + z")
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.Equal(t, "ctrl", seq[0].String())
	assert.Equal(t, "shift", seq[1].String())
	assert.Equal(t, "z", seq[2].String())

	_, err = parseKeySequence("ctrl+")
	assert.ErrorIs(t, err, keys.ErrUnknownKey)
	_, err = parseKeySequence("ctrl+nosuchkey")
	assert.ErrorIs(t, err, keys.ErrUnknownKey)
}

func TestReleaseWithSelectionExecutesKeys(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.setWindow("mspaint.exe", "")

	ta.OnTriggerPress("ctrl+space")
	assert.Equal(t, []string{"Paint"}, ta.menu.Shown())

	ta.menu.Select(0)
	assert.True(t, ta.OnTriggerRelease("ctrl+space"))

	acts := ta.waitActivations(t, 1)
	assert.Equal(t, storage.OutcomeExecuted, acts[0].Outcome)
	assert.Equal(t, "Undo", acts[0].ItemLabel)
	assert.Equal(t, "Paint", acts[0].Profile)
	assert.NotEmpty(t, acts[0].ID)
	assert.Equal(t, []string{"ctrl down", "z down", "z up", "ctrl up"}, ta.injector.Events())
}

func TestReleaseWithoutSelection(t *testing.T) {
	for _, replay := range []bool{false, true} {
		t.Run(fmt.Sprintf("replay_unselected=%v", replay), func(t *testing.T) {
			cfg := testConfig()
			cfg.Settings.ReplayUnselected = replay
			ta := newTestAgent(t, cfg)

			ta.OnTriggerPress("tab")
			assert.Equal(t, !replay, ta.OnTriggerRelease("tab"))

			acts := ta.waitActivations(t, 1)
			want := storage.OutcomeDismissed
			if replay {
				want = storage.OutcomeReplayed
			}
			assert.Equal(t, want, acts[0].Outcome)
			assert.Empty(t, ta.injector.Events())
		})
	}
}

func TestReleaseWithoutSession(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	assert.False(t, ta.OnTriggerRelease("tab"))

	ta.OnTriggerPress("tab")
	assert.False(t, ta.OnTriggerRelease("ctrl+space"), "release of another trigger")
	assert.True(t, ta.OnTriggerRelease("tab"))
}

func TestSecondPressIgnored(t *testing.T) {
	ta := newTestAgent(t, testConfig())

	ta.OnTriggerPress("tab")
	ta.OnTriggerPress("ctrl+space")
	assert.Equal(t, []string{"Tab"}, ta.menu.Shown())
	assert.Equal(t, "Tab", ta.Status().MenuProfile)
}

func TestUnknownTriggerOpensNothing(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.OnTriggerPress("alt+x")
	assert.Empty(t, ta.menu.Shown())
	assert.False(t, ta.OnTriggerRelease("alt+x"))
}

func TestLongPress(t *testing.T) {
	cfg := testConfig()
	cfg.Settings.LongPressDelayMs = 30
	ta := newTestAgent(t, cfg)

	t.Run("released early", func(t *testing.T) {
		ta.OnTriggerPress("tab")
		assert.True(t, ta.OnTriggerRelease("tab"))
		time.Sleep(60 * time.Millisecond)
		assert.Empty(t, ta.menu.Shown())
		assert.Zero(t, ta.menu.Hides())
	})

	t.Run("held", func(t *testing.T) {
		ta.OnTriggerPress("tab")
		require.Eventually(t, func() bool {
			return len(ta.menu.Shown()) == 1
		}, time.Second, 5*time.Millisecond)
		ta.menu.Select(0)
		assert.True(t, ta.OnTriggerRelease("tab"))

		acts := ta.waitActivations(t, 2)
		assert.Equal(t, storage.OutcomeExecuted, acts[1].Outcome)
		assert.Equal(t, []string{"escape down", "escape up"}, ta.injector.Events())
	})
}

func TestActions(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.setWindow("notepad.exe", "")

	for i := range 3 {
		ta.OnTriggerPress("ctrl+space")
		ta.menu.Select(i)
		require.True(t, ta.OnTriggerRelease("ctrl+space"))
		ta.waitActivations(t, i+1)
	}

	ta.mu.Lock()
	assert.Equal(t, []string{"https://example.com/docs"}, ta.urls)
	assert.Equal(t, [][]string{{"code", "--new-window", "my project"}}, ta.cmds)
	ta.mu.Unlock()
	assert.Equal(t, []string{"type Regards,\nMe"}, ta.injector.Events())

	for _, a := range ta.events.Activations() {
		assert.Equal(t, storage.OutcomeExecuted, a.Outcome, a.ItemLabel)
	}
}

func TestActionFailureRecorded(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ta := newTestAgent(t, testConfig())
	ta.db = db
	ta.cmdErr = errors.New("not found")

	ta.OnTriggerPress("ctrl+space")
	ta.menu.Select(1)
	require.True(t, ta.OnTriggerRelease("ctrl+space"))
	ta.waitActivations(t, 1)

	saved, err := db.GetActivations(10, 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, storage.OutcomeFailed, saved[0].Outcome)
	assert.Equal(t, "not found", saved[0].ErrorMessage)
	assert.Equal(t, "Global", saved[0].Profile)
}

func TestKeystrokesThroughEngine(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.setWindow("mspaint.exe", "")
	require.NoError(t, ta.engine.Start(ta.Config().Triggers()))

	assert.Equal(t, platform.PassThrough, ta.hook.send(keys.VKLControl, true))
	assert.Equal(t, platform.Suppress, ta.hook.send(keys.VKSpace, true))
	require.Eventually(t, func() bool {
		return len(ta.menu.Shown()) == 1
	}, time.Second, 5*time.Millisecond)

	ta.menu.Select(1)
	assert.Equal(t, platform.Suppress, ta.hook.send(keys.VKSpace, false))
	ta.waitActivations(t, 1)

	// The held ctrl is released before the item's keys are sent.
	assert.Equal(t, []string{"ctrl up", "p down", "p up"}, ta.injector.Events())
	assert.Equal(t, platform.PassThrough, ta.hook.send(keys.VKLControl, false))
}

func TestKeystrokesThroughEngineReplay(t *testing.T) {
	cfg := testConfig()
	cfg.Settings.ReplayUnselected = true
	ta := newTestAgent(t, cfg)
	require.NoError(t, ta.engine.Start(ta.Config().Triggers()))

	assert.Equal(t, platform.Suppress, ta.hook.send(keys.VKTab, true))
	assert.Equal(t, platform.Suppress, ta.hook.send(keys.VKTab, false))

	require.Eventually(t, func() bool {
		return strings.Join(ta.injector.Events(), ",") == "tab down,tab up"
	}, time.Second, 5*time.Millisecond)
}

func TestPauseResume(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.engine.Start(ta.Config().Triggers()))

	require.NoError(t, ta.Pause())
	assert.True(t, ta.Paused())
	assert.Equal(t, platform.HookStopped, ta.hook.State())
	assert.Equal(t, "stopped", ta.Status().State)

	require.NoError(t, ta.Resume())
	assert.False(t, ta.Paused())
	assert.Equal(t, platform.HookRunning, ta.hook.State())
	assert.ElementsMatch(t, []string{"ctrl+space", "tab"}, ta.Status().Triggers)
}

func TestReload(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	require.NoError(t, ta.engine.Start(ta.Config().Triggers()))

	next := testConfig()
	next.Profiles = next.Profiles[2:]
	next.Profiles[0].Trigger = "alt+f13"
	require.NoError(t, ta.Reload(next))

	assert.Same(t, next, ta.Config())
	assert.Equal(t, []string{"alt+f13"}, ta.Status().Triggers)
	assert.Equal(t, platform.HookRunning, ta.hook.State())

	require.NoError(t, ta.Pause())
	require.NoError(t, ta.Reload(testConfig()))
	assert.Equal(t, platform.HookStopped, ta.hook.State(), "reload keeps a paused agent paused")
}

func TestReloadClosesOpenMenu(t *testing.T) {
	ta := newTestAgent(t, testConfig())
	ta.OnTriggerPress("tab")

	next := testConfig()
	next.Settings.ActionDelayMs = 10
	require.NoError(t, ta.Reload(next))

	assert.Equal(t, 1, ta.menu.Hides())
	assert.False(t, ta.OnTriggerRelease("tab"))
}
