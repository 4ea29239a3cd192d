//go:build !windows

package platform

import (
	"log/slog"
	"os/exec"
	"strings"

	"markestedt/piemenu/keys"
)

var xdotoolNames = map[string]string{
	"space":        "space",
	"enter":        "Return",
	"tab":          "Tab",
	"escape":       "Escape",
	"backspace":    "BackSpace",
	"delete":       "Delete",
	"insert":       "Insert",
	"home":         "Home",
	"end":          "End",
	"page_up":      "Prior",
	"page_down":    "Next",
	"up":           "Up",
	"down":         "Down",
	"left":         "Left",
	"right":        "Right",
	"caps_lock":    "Caps_Lock",
	"print_screen": "Print",
	"pause":        "Pause",
	"scroll_lock":  "Scroll_Lock",
	"num_lock":     "Num_Lock",
	"menu":         "Menu",
	keys.Ctrl:      "ctrl",
	keys.Alt:       "alt",
	keys.Shift:     "shift",
	keys.Windows:   "super",
}

// XdotoolInjector sends keys through xdotool when it is installed. Events
// sent this way carry no marker, which is harmless because the passive
// listener never suppresses or replays.
type XdotoolInjector struct {
	path string
}

// NewInjector creates the fallback injector used outside Windows
func NewInjector() Injector {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		slog.Debug("xdotool not found, synthetic input disabled")
	}
	return &XdotoolInjector{path: path}
}

// SendKey presses or releases one key.
func (j *XdotoolInjector) SendKey(d keys.Descriptor, press bool) {
	verb := "keyup"
	if press {
		verb = "keydown"
	}
	j.run(verb, xdotoolKeysym(d))
}

// TypeText types text with the current layout.
func (j *XdotoolInjector) TypeText(text string) {
	j.run("type", "--", text)
}

func (j *XdotoolInjector) run(args ...string) {
	if j.path == "" {
		slog.Debug("Dropping synthetic input", "args", args)
		return
	}
	if out, err := exec.Command(j.path, args...).CombinedOutput(); err != nil {
		slog.Error("xdotool failed", "args", args, "output", strings.TrimSpace(string(out)), "error", err)
	}
}

func xdotoolKeysym(d keys.Descriptor) string {
	if d.Kind != keys.KindVirtualKey {
		return string(d.Char)
	}
	if name, ok := xdotoolNames[d.Name]; ok {
		return name
	}
	if strings.HasPrefix(d.Name, "f") && len(d.Name) > 1 {
		return "F" + d.Name[1:]
	}
	if strings.HasPrefix(d.Name, "numpad") {
		return "KP_" + strings.TrimPrefix(d.Name, "numpad")
	}
	return d.Name
}
