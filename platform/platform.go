package platform

import (
	"fmt"

	"markestedt/piemenu/keys"
)

// KeyEvent is a single physical keystroke delivered by a hook.
type KeyEvent struct {
	VK      uint32
	Press   bool
	Release bool
}

// Decision tells the hook what to do with a keystroke.
type Decision int

const (
	// PassThrough lets the OS deliver the key normally.
	PassThrough Decision = iota
	// Suppress swallows the key.
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "pass"
}

// KeyFilter is called synchronously from the hook thread for every physical
// keystroke. It must return quickly.
type KeyFilter interface {
	FilterKey(ev KeyEvent) Decision
}

// HookState is the lifecycle state of a keyboard hook.
type HookState int32

const (
	HookStopped HookState = iota
	HookStarting
	HookRunning
	HookStopping
)

func (s HookState) String() string {
	switch s {
	case HookStopped:
		return "stopped"
	case HookStarting:
		return "starting"
	case HookRunning:
		return "running"
	case HookStopping:
		return "stopping"
	default:
		return fmt.Sprintf("HookState(%d)", int32(s))
	}
}

// Hook provides system-wide keyboard interception
type Hook interface {
	Start(filter KeyFilter) error
	Stop() error
	State() HookState
	// CanSuppress is false for passive listeners that only observe keys.
	CanSuppress() bool
}

// Injector sends synthetic keyboard input tagged with InjectedMarker
type Injector interface {
	SendKey(d keys.Descriptor, press bool)
	TypeText(text string)
}

// WindowInfo describes the foreground window
type WindowInfo struct {
	Exe   string // lower-cased executable base name
	Title string
}
