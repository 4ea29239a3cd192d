package platform

import (
	"log/slog"
)

// InjectedMarker is written to the extra-info field of every event the
// injector sends. The hook passes such events on without filtering them.
const InjectedMarker uintptr = 0x31415926

const (
	hcAction     = 0
	wmKeydown    = 0x0100
	wmKeyup      = 0x0101
	wmSyskeydown = 0x0104
	wmSyskeyup   = 0x0105
)

// eventFromMessage converts a low-level hook message into a KeyEvent.
func eventFromMessage(wParam uintptr, vk uint32) KeyEvent {
	return KeyEvent{
		VK:      vk,
		Press:   wParam == wmKeydown || wParam == wmSyskeydown,
		Release: wParam == wmKeyup || wParam == wmSyskeyup,
	}
}

// filterMessage runs the filter for one raw hook message and reports whether
// the hook should swallow it. Self-injected events never reach the filter.
func filterMessage(f KeyFilter, wParam uintptr, vk uint32, extraInfo uintptr) bool {
	if extraInfo == InjectedMarker {
		return false
	}
	return safeFilter(f, eventFromMessage(wParam, vk)) == Suppress
}

// safeFilter calls f and fails open: a nil filter or a panic lets the key through.
func safeFilter(f KeyFilter, ev KeyEvent) (d Decision) {
	if f == nil {
		return PassThrough
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Key filter panicked, passing key through", "vk", ev.VK, "panic", r)
			d = PassThrough
		}
	}()
	return f.FilterKey(ev)
}
