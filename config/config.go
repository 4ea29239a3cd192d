package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"markestedt/piemenu/trigger"
)

// ErrNoProfiles is returned by Validate when no profile is configured.
var ErrNoProfiles = errors.New("no profiles configured")

// ErrCorrupt is returned by Read when the file is not valid TOML.
var ErrCorrupt = errors.New("config cannot be decoded")

// Action types for menu items.
const (
	ActionKey  = "key"
	ActionURL  = "url"
	ActionCmd  = "cmd"
	ActionText = "text"
)

const fileName = "config.toml"

type Config struct {
	Settings Settings  `toml:"settings" json:"settings"`
	Profiles []Profile `toml:"profiles" json:"profiles"`
}

type Settings struct {
	ActionDelayMs      int    `toml:"action_delay_ms" json:"action_delay_ms"`
	ReplayUnselected   bool   `toml:"replay_unselected" json:"replay_unselected"`
	LongPressDelayMs   int    `toml:"long_press_delay_ms" json:"long_press_delay_ms"`
	KeySequenceDelayMs int    `toml:"key_sequence_delay_ms" json:"key_sequence_delay_ms"`
	LogLevel           string `toml:"log_level" json:"log_level"`
	LogFile            bool   `toml:"log_file" json:"log_file"`
	WebEnabled         bool   `toml:"web_enabled" json:"web_enabled"`
	WebPort            int    `toml:"web_port" json:"web_port"`
	HistoryEnabled     bool   `toml:"history_enabled" json:"history_enabled"`
}

// Profile is a set of menu items shown for one trigger. Empty TargetApps
// makes the profile global.
type Profile struct {
	Name       string   `toml:"name" json:"name"`
	Trigger    string   `toml:"trigger" json:"trigger"`
	TargetApps []string `toml:"target_apps" json:"target_apps"`
	Items      []Item   `toml:"items" json:"items"`
}

type Item struct {
	Label  string `toml:"label" json:"label"`
	Value  string `toml:"value" json:"value"`
	Color  string `toml:"color" json:"color"`
	Action string `toml:"action" json:"action"`
	Icon   string `toml:"icon,omitempty" json:"icon,omitempty"`
}

// Default configuration
func Default() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:       "INFO",
			WebEnabled:     true,
			WebPort:        7373,
			HistoryEnabled: true,
		},
		Profiles: []Profile{
			{
				Name:    "Default",
				Trigger: "ctrl+space",
				Items: []Item{
					{Label: "Undo", Value: "ctrl+z", Color: "#FF5252", Action: ActionKey},
					{Label: "Redo", Value: "ctrl+y", Color: "#448AFF", Action: ActionKey},
					{Label: "Pen", Value: "p", Color: "#69F0AE", Action: ActionKey},
					{Label: "Eraser", Value: "e", Color: "#FFD740", Action: ActionKey},
					{Label: "Save", Value: "ctrl+s", Color: "#40C4FF", Action: ActionKey},
					{Label: "Deselect", Value: "ctrl+d", Color: "#B0BEC5", Action: ActionKey},
				},
			},
		},
	}
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		var err error
		base, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
	}

	dir := filepath.Join(base, "piemenu")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the path to the configuration file
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load loads the configuration from the default location.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads the configuration at path. A missing file is created with
// defaults. A file that cannot be decoded is moved aside to path+".bak" and
// defaults are used instead.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := Read(path)
	if errors.Is(err, ErrCorrupt) {
		backup := path + ".bak"
		slog.Warn("Config is corrupt, using defaults", "path", path, "backup", backup, "error", err)
		if err := os.Rename(path, backup); err != nil {
			return nil, fmt.Errorf("failed to back up corrupt config: %w", err)
		}
		cfg = Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

// Read decodes and validates the file at path. It never modifies the file.
func Read(path string) (*Config, error) {
	cfg := Default()
	cfg.Profiles = nil
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path through a temporary file.
func Save(path string, cfg *Config) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks triggers, actions and settings.
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return ErrNoProfiles
	}

	var errs []error
	for i, p := range c.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("profile %d: name is required", i))
		}
		spec, err := trigger.ParseTrigger(p.Trigger)
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", p.Name, err))
		} else if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", p.Name, err))
		}
		for _, item := range p.Items {
			switch item.Action {
			case ActionKey, ActionURL, ActionCmd, ActionText:
			default:
				errs = append(errs, fmt.Errorf("profile %q item %q: unknown action %q", p.Name, item.Label, item.Action))
			}
		}
	}

	s := c.Settings
	if s.ActionDelayMs < 0 || s.LongPressDelayMs < 0 || s.KeySequenceDelayMs < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if s.WebPort < 0 || s.WebPort > 65535 {
		errs = append(errs, fmt.Errorf("web_port %d out of range", s.WebPort))
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Triggers returns the distinct trigger strings in profile order.
func (c *Config) Triggers() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range c.Profiles {
		key := trigger.Canonical(p.Trigger)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.Trigger)
	}
	return out
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := &Config{Settings: c.Settings, Profiles: make([]Profile, len(c.Profiles))}
	for i, p := range c.Profiles {
		p.TargetApps = slices.Clone(p.TargetApps)
		p.Items = slices.Clone(p.Items)
		out.Profiles[i] = p
	}
	return out
}

// ParseLevel maps a log_level setting onto a slog level. WARNING is accepted
// as an alias of WARN.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}
