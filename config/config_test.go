package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[settings]
action_delay_ms = 50
replay_unselected = true
long_press_delay_ms = 200
log_level = "debug"
web_port = 9000

[[profiles]]
name = "Paint"
trigger = "ctrl+space"
target_apps = ["mspaint.exe"]

  [[profiles.items]]
  label = "Pen"
  value = "p"
  color = "#69F0AE"
  action = "key"

[[profiles]]
name = "Global"
trigger = "Ctrl+Space"

  [[profiles.items]]
  label = "Docs"
  value = "https://example.com"
  color = "#448AFF"
  action = "url"

[[profiles]]
name = "Tools"
trigger = "alt+f13"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadFromCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.FileExists(t, path)

	again, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFromParsesProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, sampleConfig)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Settings.ActionDelayMs)
	assert.True(t, cfg.Settings.ReplayUnselected)
	assert.Equal(t, 200, cfg.Settings.LongPressDelayMs)
	assert.Equal(t, 9000, cfg.Settings.WebPort)
	assert.True(t, cfg.Settings.HistoryEnabled, "unset keys keep their defaults")

	require.Len(t, cfg.Profiles, 3)
	assert.Equal(t, []string{"mspaint.exe"}, cfg.Profiles[0].TargetApps)
	assert.Equal(t, ActionURL, cfg.Profiles[1].Items[0].Action)
	assert.Empty(t, cfg.Profiles[2].Items)
}

func TestLoadFromCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[[profiles]\nname = ")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "[[profiles]\nname = ", string(backup))
}

func TestLoadFromInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[[profiles]]
name = "Broken"
trigger = "ctrl+space"

  [[profiles.items]]
  label = "Bad"
  action = "teleport"
`)
	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "unknown action")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Settings.KeySequenceDelayMs = 30
	cfg.Profiles[0].TargetApps = []string{"krita.exe"}

	require.NoError(t, Save(path, cfg))
	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.NoFileExists(t, path+".tmp")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"no profiles", func(c *Config) { c.Profiles = nil }, ErrNoProfiles.Error()},
		{"empty trigger", func(c *Config) { c.Profiles[0].Trigger = " " }, "empty trigger"},
		{"unknown key", func(c *Config) { c.Profiles[0].Trigger = "ctrl+bogus" }, "unknown key"},
		{"not a modifier", func(c *Config) { c.Profiles[0].Trigger = "a+b" }, "not a modifier"},
		{"missing name", func(c *Config) { c.Profiles[0].Name = "" }, "name is required"},
		{"negative delay", func(c *Config) { c.Settings.ActionDelayMs = -1 }, "negative"},
		{"bad port", func(c *Config) { c.Settings.WebPort = 70000 }, "out of range"},
		{"bad level", func(c *Config) { c.Settings.LogLevel = "LOUD" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestTriggersAreDistinct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, sampleConfig)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ctrl+space", "alt+f13"}, cfg.Triggers())
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.Profiles[0].TargetApps = []string{"a.exe"}
	c := cfg.Clone()

	c.Profiles[0].TargetApps[0] = "b.exe"
	c.Profiles[0].Items[0].Label = "changed"
	c.Settings.WebPort = 1

	assert.Equal(t, "a.exe", cfg.Profiles[0].TargetApps[0])
	assert.Equal(t, "Undo", cfg.Profiles[0].Items[0].Label)
	assert.Equal(t, 7373, cfg.Settings.WebPort)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"WARN":    slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Save(path, Default()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, sampleConfig)

	select {
	case cfg := <-changes:
		assert.Len(t, cfg.Profiles, 3)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config change")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestReadLeavesCorruptFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, sampleConfig+"\n[[profiles")

	_, err := Read(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig+"\n[[profiles", string(data))
	assert.NoFileExists(t, path+".bak")
}

func TestWatchIgnoresInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, sampleConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	time.Sleep(100 * time.Millisecond)
	broken := sampleConfig + "\n[[profiles"
	writeFile(t, path, broken)

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload with %d profiles", len(cfg.Profiles))
	case <-time.After(time.Second):
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, broken, string(data))
	assert.NoFileExists(t, path+".bak")

	// Fixing the file reloads it.
	writeFile(t, path, sampleConfig)
	select {
	case cfg := <-changes:
		assert.Len(t, cfg.Profiles, 3)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config was fixed")
	}

	cancel()
	require.NoError(t, <-done)
}
