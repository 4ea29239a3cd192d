//go:build !windows

package platform

import (
	"log/slog"
	"sync"
	"sync/atomic"

	hook "github.com/robotn/gohook"

	"markestedt/piemenu/keys"
)

// PassiveListener observes global key events through libuiohook. It cannot
// swallow keys, so filter decisions are computed but not honoured.
type PassiveListener struct {
	mu    sync.Mutex
	state atomic.Int32
	stop  chan struct{}
	done  chan struct{}
}

// NewHook creates the best-effort listener used outside Windows
func NewHook() Hook {
	return &PassiveListener{}
}

// CanSuppress always reports false.
func (l *PassiveListener) CanSuppress() bool { return false }

// State returns the current lifecycle state.
func (l *PassiveListener) State() HookState { return HookState(l.state.Load()) }

// Start begins listening for key events.
func (l *PassiveListener) Start(filter KeyFilter) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.state.Store(int32(HookStarting))

	slog.Warn("Keyboard suppression is unavailable on this platform; triggers are observed only and keys are never replayed")

	events := hook.Start()
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(filter, events, l.stop, l.done)

	l.state.Store(int32(HookRunning))
	return nil
}

// Stop ends the listener. Safe to call when never started.
func (l *PassiveListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	return nil
}

func (l *PassiveListener) stopLocked() {
	if l.done == nil {
		l.state.Store(int32(HookStopped))
		return
	}
	l.state.Store(int32(HookStopping))

	close(l.stop)
	hook.End()
	<-l.done

	l.stop = nil
	l.done = nil
	l.state.Store(int32(HookStopped))
}

func (l *PassiveListener) run(filter KeyFilter, events chan hook.Event, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if kev, ok := keyEventFromHook(ev); ok {
				safeFilter(filter, kev)
			}
		}
	}
}

// keyEventFromHook converts a libuiohook event to a KeyEvent. Typed events
// carry no key code and are dropped by the lookup.
func keyEventFromHook(ev hook.Event) (KeyEvent, bool) {
	var press, release bool
	switch ev.Kind {
	case hook.KeyHold, hook.KeyDown:
		press = true
	case hook.KeyUp:
		release = true
	default:
		return KeyEvent{}, false
	}

	vk, ok := keys.VKFromUiohook(ev.Keycode)
	if !ok {
		return KeyEvent{}, false
	}
	return KeyEvent{VK: vk, Press: press, Release: release}, true
}
