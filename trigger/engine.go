package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"markestedt/piemenu/keys"
	"markestedt/piemenu/platform"
)

// Handler receives trigger notifications. Both methods run on their own
// goroutine, never on the hook thread.
type Handler interface {
	OnTriggerPress(trigger string)
	// OnTriggerRelease returns true when the release was consumed. On false
	// the engine replays the suppressed key.
	OnTriggerRelease(trigger string) bool
}

// Injector is the subset of platform.Injector the engine needs.
type Injector interface {
	SendKey(d keys.Descriptor, press bool)
}

// activation is one matched key-down awaiting its key-up.
type activation struct {
	trigger string
	pressed chan struct{} // closed once OnTriggerPress has returned
}

// Engine matches physical keystrokes against registered triggers.
type Engine struct {
	handler  Handler
	injector Injector
	hook     platform.Hook

	// lifecycle serialises Start and Stop. It is never held together with mu
	// while calling into the hook, because the hook thread takes mu.
	lifecycle sync.Mutex

	mu     sync.Mutex
	specs  []Spec            // registration order
	table  map[string][]Spec // primary key -> specs
	held   heldSet
	active map[string]*activation
}

// heldSet maps a modifier name to the sided virtual-key codes holding it down.
type heldSet map[string]map[uint32]struct{}

func (h heldSet) press(mod string, vk uint32) {
	if h[mod] == nil {
		h[mod] = make(map[uint32]struct{})
	}
	h[mod][vk] = struct{}{}
}

func (h heldSet) release(mod string, vk uint32) {
	delete(h[mod], vk)
	if len(h[mod]) == 0 {
		delete(h, mod)
	}
}

// NewEngine creates an engine. The hook is driven by Start and Stop.
func NewEngine(handler Handler, injector Injector, hook platform.Hook) *Engine {
	return &Engine{
		handler:  handler,
		injector: injector,
		hook:     hook,
		table:    make(map[string][]Spec),
		held:     make(heldSet),
		active:   make(map[string]*activation),
	}
}

// Configure replaces every registered trigger. Strings that do not parse are
// skipped and reported in the returned error; the rest are still applied.
// When two triggers share a primary key and modifier set, the first one wins.
func (e *Engine) Configure(triggers []string) error {
	var (
		errs  []error
		specs []Spec
		table = make(map[string][]Spec)
		seen  = make(map[string]string)
	)
	for _, t := range triggers {
		spec, err := ParseTrigger(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		key := spec.Canonical()
		if first, ok := seen[key]; ok {
			slog.Warn("Duplicate trigger ignored", "trigger", spec.Trigger, "registered", first)
			continue
		}
		seen[key] = spec.Trigger
		specs = append(specs, spec)
		table[spec.Primary] = append(table[spec.Primary], spec)
	}

	e.mu.Lock()
	e.specs = specs
	e.table = table
	clear(e.held)
	clear(e.active)
	e.mu.Unlock()

	slog.Debug("Triggers configured", "count", len(specs))
	return errors.Join(errs...)
}

// FilterKey is the hook callback. It runs on the hook thread for every
// physical keystroke and must not block.
func (e *Engine) FilterKey(ev platform.KeyEvent) platform.Decision {
	e.mu.Lock()
	decision, key, pressed, released := e.decideLocked(ev)
	e.mu.Unlock()

	if pressed != nil {
		e.dispatchPress(pressed)
	}
	if released != nil {
		e.dispatchRelease(key, released)
	}
	return decision
}

func (e *Engine) decideLocked(ev platform.KeyEvent) (d platform.Decision, key string, pressed, released *activation) {
	if mod, ok := keys.ModifierForVK(ev.VK); ok {
		if ev.Press {
			e.held.press(mod, ev.VK)
		} else if ev.Release {
			e.held.release(mod, ev.VK)
		}
		if _, primary := e.table[mod]; !primary {
			return platform.PassThrough, "", nil, nil
		}
	}

	key = keys.NameForVK(ev.VK)
	if key == "" {
		return platform.PassThrough, "", nil, nil
	}

	if ev.Release {
		act, ok := e.active[key]
		if !ok {
			return platform.PassThrough, "", nil, nil
		}
		delete(e.active, key)
		return platform.Suppress, key, nil, act
	}
	if !ev.Press {
		return platform.PassThrough, "", nil, nil
	}

	if _, ok := e.active[key]; ok {
		// Auto-repeat.
		return platform.Suppress, key, nil, nil
	}

	for _, spec := range e.table[key] {
		if spec.matches(e.held) {
			act := &activation{trigger: spec.Trigger, pressed: make(chan struct{})}
			e.active[key] = act
			return platform.Suppress, key, act, nil
		}
	}
	return platform.PassThrough, "", nil, nil
}

func (e *Engine) dispatchPress(act *activation) {
	go func() {
		defer close(act.pressed)
		defer recoverCallback("press", act.trigger)
		if e.handler != nil {
			e.handler.OnTriggerPress(act.trigger)
		}
	}()
}

func (e *Engine) dispatchRelease(key string, act *activation) {
	go func() {
		defer recoverCallback("release", act.trigger)
		<-act.pressed

		consumed := e.handler == nil || e.handler.OnTriggerRelease(act.trigger)
		if consumed {
			return
		}
		if !e.CanSuppress() {
			slog.Debug("Skipping replay, key was never suppressed", "key", key)
			return
		}
		e.Replay(key)
	}()
}

func recoverCallback(kind, trigger string) {
	if r := recover(); r != nil {
		slog.Error("Trigger callback panicked",
			"callback", kind,
			"trigger", trigger,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}

// Replay sends a press and a release of keyName through the injector.
func (e *Engine) Replay(keyName string) {
	d, err := keys.ParseDescriptor(keyName)
	if err != nil {
		slog.Warn("Cannot replay key", "key", keyName, "error", err)
		return
	}
	slog.Debug("Replaying key", "key", d)
	e.injector.SendKey(d, true)
	e.injector.SendKey(d, false)
}

// ReleaseAllHeldModifiers sends a key-up for every modifier currently held
// and clears the held set. A later physical key-up for the same modifier is
// then a no-op.
func (e *Engine) ReleaseAllHeldModifiers() {
	e.mu.Lock()
	mods := slices.Sorted(maps.Keys(e.held))
	clear(e.held)
	e.mu.Unlock()

	for _, m := range mods {
		d, err := keys.ParseDescriptor(m)
		if err != nil {
			continue
		}
		e.injector.SendKey(d, false)
	}
	if len(mods) > 0 {
		slog.Debug("Released held modifiers", "modifiers", mods)
	}
}

// Start configures triggers and installs the hook. On error the engine stays
// usable but nothing is suppressed.
func (e *Engine) Start(triggers []string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := e.Configure(triggers); err != nil {
		slog.Warn("Some triggers were skipped", "error", err)
	}
	if err := e.hook.Start(e); err != nil {
		return fmt.Errorf("start keyboard hook: %w", err)
	}
	slog.Info("Trigger engine started",
		"triggers", len(e.Triggers()),
		"suppress", e.hook.CanSuppress(),
	)
	return nil
}

// Stop removes the hook and forgets held and active keys. Safe to call more
// than once.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	err := e.hook.Stop()

	e.mu.Lock()
	clear(e.held)
	clear(e.active)
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop keyboard hook: %w", err)
	}
	return nil
}

// State returns the hook lifecycle state.
func (e *Engine) State() platform.HookState {
	if e.hook == nil {
		return platform.HookStopped
	}
	return e.hook.State()
}

// CanSuppress reports whether matched keys are actually swallowed.
func (e *Engine) CanSuppress() bool {
	return e.hook != nil && e.hook.CanSuppress()
}

// HeldModifiers returns the held modifier names, sorted.
func (e *Engine) HeldModifiers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.held))
}

// ActiveSuppressions returns primary key -> trigger for keys held down after
// a match.
func (e *Engine) ActiveSuppressions() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.active))
	for k, act := range e.active {
		out[k] = act.trigger
	}
	return out
}

// Triggers returns the registered specs in registration order.
func (e *Engine) Triggers() []Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.specs)
}
