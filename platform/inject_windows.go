//go:build windows

package platform

import (
	"log/slog"
	"unsafe"

	"markestedt/piemenu/keys"
)

var (
	sendInput      = user32.NewProc("SendInput")
	mapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
	vkKeyScanW     = user32.NewProc("VkKeyScanW")
)

const (
	inputKeyboard = 1
	mapvkVkToVsc  = 0
)

type input struct {
	inputType uint32
	ki        keyboardInput
	padding   [8]byte // Padding to match C struct size
}

// WindowsInjector implements the Injector interface with SendInput
type WindowsInjector struct {
	layout keyLayout
}

// NewInjector creates a new Windows injector
func NewInjector() Injector {
	return &WindowsInjector{layout: windowsLayout{}}
}

// SendKey sends one key transition. Failures are logged, never returned:
// SendInput is routinely blocked by UIPI when an elevated window has focus.
func (j *WindowsInjector) SendKey(d keys.Descriptor, press bool) {
	j.send(buildKeyInputs(d, press, j.layout), d.String())
}

// TypeText types text as Unicode characters.
func (j *WindowsInjector) TypeText(text string) {
	j.send(buildTextInputs(text), "text")
}

func (j *WindowsInjector) send(kis []keyboardInput, what string) {
	if len(kis) == 0 {
		return
	}

	inputs := make([]input, len(kis))
	for i, ki := range kis {
		inputs[i] = input{inputType: inputKeyboard, ki: ki}
	}

	// Send all inputs at once so they are not interleaved with user input
	ret, _, err := sendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if ret == 0 {
		first := kis[0]
		slog.Error("SendInput failed",
			"key", what,
			"vk", first.wVk,
			"scan", first.wScan,
			"flags", first.dwFlags,
			"events", len(inputs),
			"error", err,
		)
		return
	}
	slog.Debug("SendInput sent", "key", what, "events", ret)
}

type windowsLayout struct{}

func (windowsLayout) ScanCode(vk uint16) uint16 {
	scan, _, _ := mapVirtualKeyW.Call(uintptr(vk), mapvkVkToVsc)
	return uint16(scan)
}

func (windowsLayout) VKForChar(r rune) (uint16, bool) {
	if r > 0xFFFF {
		return 0, false
	}
	res, _, _ := vkKeyScanW.Call(uintptr(r))
	code := int16(res)
	if code == -1 {
		return 0, false
	}
	// A non-zero high byte means shift/ctrl/alt is needed; type it as Unicode instead.
	if (code>>8)&0xFF != 0 {
		return 0, false
	}
	return uint16(code & 0xFF), true
}
