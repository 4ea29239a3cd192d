// Package keys holds the static key vocabulary shared by the hook, the trigger
// engine and the injector: Windows virtual-key codes, canonical key names and
// modifier names.
package keys

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Modifier names, independent of the left/right physical key.
const (
	Ctrl    = "ctrl"
	Alt     = "alt"
	Shift   = "shift"
	Windows = "windows"
)

// ErrUnknownKey is returned when a key name cannot be resolved.
var ErrUnknownKey = errors.New("unknown key")

// Windows virtual-key codes used outside the generated ranges below.
const (
	VKBack     = 0x08
	VKTab      = 0x09
	VKReturn   = 0x0D
	VKShift    = 0x10
	VKControl  = 0x11
	VKMenu     = 0x12
	VKPause    = 0x13
	VKCapital  = 0x14
	VKEscape   = 0x1B
	VKSpace    = 0x20
	VKPrior    = 0x21
	VKNext     = 0x22
	VKEnd      = 0x23
	VKHome     = 0x24
	VKLeft     = 0x25
	VKUp       = 0x26
	VKRight    = 0x27
	VKDown     = 0x28
	VKSnapshot = 0x2C
	VKInsert   = 0x2D
	VKDelete   = 0x2E
	VKLWin     = 0x5B
	VKRWin     = 0x5C
	VKApps     = 0x5D
	VKNumpad0  = 0x60
	VKF1       = 0x70
	VKNumLock  = 0x90
	VKScroll   = 0x91
	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5
)

// modifierVKs maps every virtual-key code that belongs to a modifier onto the
// modifier name. The low-level hook reports the sided codes; the generic ones
// show up from other listeners.
var modifierVKs = map[uint32]string{
	VKShift:    Shift,
	VKLShift:   Shift,
	VKRShift:   Shift,
	VKControl:  Ctrl,
	VKLControl: Ctrl,
	VKRControl: Ctrl,
	VKMenu:     Alt,
	VKLMenu:    Alt,
	VKRMenu:    Alt,
	VKLWin:     Windows,
	VKRWin:     Windows,
}

// modifierSendVK is the code sent when a modifier has to be synthesised.
var modifierSendVK = map[string]uint16{
	Ctrl:    VKControl,
	Alt:     VKMenu,
	Shift:   VKShift,
	Windows: VKLWin,
}

var vkNames = buildVKNames()

var nameVKs = func() map[string]uint16 {
	m := make(map[string]uint16, len(vkNames))
	for vk, name := range vkNames {
		m[name] = uint16(vk)
	}
	return m
}()

func buildVKNames() map[uint32]string {
	m := map[uint32]string{
		VKSpace:    "space",
		VKReturn:   "enter",
		VKTab:      "tab",
		VKEscape:   "escape",
		VKBack:     "backspace",
		VKDelete:   "delete",
		VKInsert:   "insert",
		VKHome:     "home",
		VKEnd:      "end",
		VKPrior:    "page_up",
		VKNext:     "page_down",
		VKUp:       "up",
		VKDown:     "down",
		VKLeft:     "left",
		VKRight:    "right",
		VKCapital:  "caps_lock",
		VKSnapshot: "print_screen",
		VKPause:    "pause",
		VKScroll:   "scroll_lock",
		VKNumLock:  "num_lock",
		VKApps:     "menu",
	}
	for i := uint32(0); i < 24; i++ {
		m[VKF1+i] = fmt.Sprintf("f%d", i+1)
	}
	for i := uint32(0); i < 26; i++ {
		m[0x41+i] = string(rune('a' + i))
	}
	for i := uint32(0); i < 10; i++ {
		m[0x30+i] = string(rune('0' + i))
		m[VKNumpad0+i] = fmt.Sprintf("numpad%d", i)
	}
	return m
}

// aliases maps alternative spellings onto canonical names.
var aliases = map[string]string{
	"control":  Ctrl,
	"lctrl":    Ctrl,
	"rctrl":    Ctrl,
	"win":      Windows,
	"cmd":      Windows,
	"super":    Windows,
	"meta":     Windows,
	"menu_key": "menu",
	"esc":      "escape",
	"return":   "enter",
	"del":      "delete",
	"ins":      "insert",
	"pageup":   "page_up",
	"pgup":     "page_up",
	"pagedown": "page_down",
	"pgdn":     "page_down",
	"capslock": "caps_lock",
	"prtsc":    "print_screen",
	"bksp":     "backspace",
}

// extendedVKs need KEYEVENTF_EXTENDEDKEY when injected.
var extendedVKs = map[uint16]bool{
	VKPrior: true, VKNext: true, VKEnd: true, VKHome: true,
	VKLeft: true, VKUp: true, VKRight: true, VKDown: true,
	VKInsert: true, VKDelete: true, VKLWin: true, VKRWin: true,
	VKApps: true, VKRControl: true, VKRMenu: true, VKSnapshot: true,
}

// Canonical lower-cases and trims name and resolves aliases. Names that are
// not known are returned lower-cased so callers can still compare them.
func Canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// ModifierForVK reports the modifier name for a modifier virtual-key code.
func ModifierForVK(vk uint32) (string, bool) {
	name, ok := modifierVKs[vk]
	return name, ok
}

// IsModifier reports whether name (after Canonical) is a modifier name.
func IsModifier(name string) bool {
	_, ok := modifierSendVK[Canonical(name)]
	return ok
}

// NameForVK returns the KeyName for a virtual-key code. Modifier codes resolve
// to the modifier name. Unknown codes return "".
func NameForVK(vk uint32) string {
	if name, ok := vkNames[vk]; ok {
		return name
	}
	return modifierVKs[vk]
}

// VKForName returns the virtual-key code for a canonical key or modifier name.
func VKForName(name string) (uint16, bool) {
	n := Canonical(name)
	if vk, ok := modifierSendVK[n]; ok {
		return vk, true
	}
	vk, ok := nameVKs[n]
	return vk, ok
}

// IsExtended reports whether vk is an extended key.
func IsExtended(vk uint16) bool {
	return extendedVKs[vk]
}

// Names returns every canonical key name in the vocabulary, sorted.
func Names() []string {
	names := make([]string, 0, len(nameVKs)+len(modifierSendVK))
	for n := range nameVKs {
		names = append(names, n)
	}
	for n := range modifierSendVK {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Kind classifies how a key descriptor is injected.
type Kind int

const (
	// KindVirtualKey is a key from the virtual-key table.
	KindVirtualKey Kind = iota
	// KindChar is a single character whose virtual key comes from the
	// active keyboard layout.
	KindChar
	// KindUnicode is a character sent as UTF-16 code units in Unicode mode.
	KindUnicode
)

func (k Kind) String() string {
	switch k {
	case KindVirtualKey:
		return "vk"
	case KindChar:
		return "char"
	case KindUnicode:
		return "unicode"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Descriptor identifies a key to inject.
type Descriptor struct {
	Kind Kind
	Name string // canonical name for KindVirtualKey
	VK   uint16 // set for KindVirtualKey
	Char rune   // set for KindChar and KindUnicode
}

// VirtualKey returns a descriptor for a raw virtual-key code.
func VirtualKey(vk uint16) Descriptor {
	return Descriptor{Kind: KindVirtualKey, VK: vk, Name: NameForVK(uint32(vk))}
}

// Char returns a descriptor for a single character. Characters outside the
// basic multilingual plane always need Unicode mode.
func Char(r rune) Descriptor {
	if r > 0xFFFF {
		return Descriptor{Kind: KindUnicode, Char: r}
	}
	return Descriptor{Kind: KindChar, Char: r}
}

// ParseDescriptor parses a canonical key name (or a single character) into a
// descriptor.
func ParseDescriptor(name string) (Descriptor, error) {
	n := Canonical(name)
	if n == "" {
		return Descriptor{}, fmt.Errorf("%w: empty name", ErrUnknownKey)
	}
	if vk, ok := VKForName(n); ok {
		return Descriptor{Kind: KindVirtualKey, Name: n, VK: vk}, nil
	}
	raw := strings.TrimSpace(name)
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		return Char(r), nil
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// String renders the descriptor for logs.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindVirtualKey:
		if d.Name != "" {
			return d.Name
		}
		return fmt.Sprintf("vk:0x%02X", d.VK)
	default:
		return fmt.Sprintf("%s:%q", d.Kind, d.Char)
	}
}
