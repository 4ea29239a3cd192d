package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingFilter struct {
	events   []KeyEvent
	decision Decision
}

func (f *recordingFilter) FilterKey(ev KeyEvent) Decision {
	f.events = append(f.events, ev)
	return f.decision
}

type panickingFilter struct{}

func (panickingFilter) FilterKey(KeyEvent) Decision { panic("boom") }

func TestEventFromMessage(t *testing.T) {
	tests := []struct {
		wParam  uintptr
		press   bool
		release bool
	}{
		{wmKeydown, true, false},
		{wmSyskeydown, true, false},
		{wmKeyup, false, true},
		{wmSyskeyup, false, true},
		{0x0200, false, false},
	}
	for _, tt := range tests {
		ev := eventFromMessage(tt.wParam, 0x41)
		assert.Equal(t, uint32(0x41), ev.VK)
		assert.Equal(t, tt.press, ev.Press, "wParam 0x%X", tt.wParam)
		assert.Equal(t, tt.release, ev.Release, "wParam 0x%X", tt.wParam)
	}
}

func TestFilterMessageSkipsInjectedEvents(t *testing.T) {
	f := &recordingFilter{decision: Suppress}

	assert.False(t, filterMessage(f, wmKeydown, 0x20, InjectedMarker))
	assert.False(t, filterMessage(f, wmKeyup, 0x20, InjectedMarker))
	assert.Empty(t, f.events, "marked events must not reach the filter")

	assert.True(t, filterMessage(f, wmKeydown, 0x20, 0))
	assert.Len(t, f.events, 1)
}

func TestFilterMessageTranslatesDecision(t *testing.T) {
	f := &recordingFilter{decision: PassThrough}
	assert.False(t, filterMessage(f, wmKeydown, 0x41, 0))

	f.decision = Suppress
	assert.True(t, filterMessage(f, wmKeyup, 0x41, 0))
	assert.Equal(t, KeyEvent{VK: 0x41, Release: true}, f.events[1])
}

func TestSafeFilterFailsOpen(t *testing.T) {
	assert.Equal(t, PassThrough, safeFilter(nil, KeyEvent{VK: 0x41, Press: true}))
	assert.Equal(t, PassThrough, safeFilter(panickingFilter{}, KeyEvent{VK: 0x41, Press: true}))
}

func TestHookStateString(t *testing.T) {
	assert.Equal(t, "stopped", HookStopped.String())
	assert.Equal(t, "starting", HookStarting.String())
	assert.Equal(t, "running", HookRunning.String())
	assert.Equal(t, "stopping", HookStopping.String())
	assert.Equal(t, "HookState(9)", HookState(9).String())
	assert.Equal(t, "suppress", Suppress.String())
	assert.Equal(t, "pass", PassThrough.String())
}
