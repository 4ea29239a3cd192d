package platform

import (
	"unicode/utf16"

	"markestedt/piemenu/keys"
)

const (
	keyeventfExtendedKey = 0x0001
	keyeventfKeyup       = 0x0002
	keyeventfUnicode     = 0x0004
)

// keyboardInput mirrors the Win32 KEYBDINPUT struct.
type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// keyLayout resolves layout-dependent codes. The Windows implementation wraps
// MapVirtualKeyW and VkKeyScanW.
type keyLayout interface {
	ScanCode(vk uint16) uint16
	// VKForChar returns the virtual key producing r without modifiers.
	VKForChar(r rune) (uint16, bool)
}

// buildKeyInputs builds the events for one key transition. Every event carries
// InjectedMarker.
func buildKeyInputs(d keys.Descriptor, press bool, layout keyLayout) []keyboardInput {
	var state uint32
	if !press {
		state = keyeventfKeyup
	}

	switch d.Kind {
	case keys.KindVirtualKey:
		return []keyboardInput{virtualKeyInput(d.VK, state, layout)}
	case keys.KindChar:
		if vk, ok := layout.VKForChar(d.Char); ok {
			return []keyboardInput{virtualKeyInput(vk, state, layout)}
		}
		return unicodeInputs(d.Char, state)
	case keys.KindUnicode:
		return unicodeInputs(d.Char, state)
	}
	return nil
}

func virtualKeyInput(vk uint16, state uint32, layout keyLayout) keyboardInput {
	flags := state
	if keys.IsExtended(vk) {
		flags |= keyeventfExtendedKey
	}
	return keyboardInput{
		wVk:         vk,
		wScan:       layout.ScanCode(vk),
		dwFlags:     flags,
		dwExtraInfo: InjectedMarker,
	}
}

// unicodeInputs emits one event per UTF-16 code unit of r.
func unicodeInputs(r rune, state uint32) []keyboardInput {
	units := utf16.Encode([]rune{r})
	inputs := make([]keyboardInput, 0, len(units))
	for _, u := range units {
		inputs = append(inputs, keyboardInput{
			wScan:       u,
			dwFlags:     keyeventfUnicode | state,
			dwExtraInfo: InjectedMarker,
		})
	}
	return inputs
}

// buildTextInputs types text as Unicode press/release pairs.
func buildTextInputs(text string) []keyboardInput {
	var inputs []keyboardInput
	for _, r := range text {
		if r == '\n' {
			r = '\r'
		}
		inputs = append(inputs, unicodeInputs(r, 0)...)
		inputs = append(inputs, unicodeInputs(r, keyeventfKeyup)...)
	}
	return inputs
}
