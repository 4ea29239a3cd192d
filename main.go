package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"markestedt/piemenu/config"
	"markestedt/piemenu/storage"
	"markestedt/piemenu/systray"
	"markestedt/piemenu/web"
)

func main() {
	// Setup logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	configPath, err := config.Path()
	if err != nil {
		slog.Error("Failed to locate config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		slog.Error("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	slog.Info("Configuration loaded", "path", configPath)

	if lvl, err := config.ParseLevel(cfg.Settings.LogLevel); err != nil {
		slog.Warn("Invalid log level, using INFO", "error", err)
	} else {
		level.Set(lvl)
	}

	if cfg.Settings.LogFile {
		logPath := filepath.Join(filepath.Dir(configPath), "piemenu.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			slog.Warn("Failed to open log file", "path", logPath, "error", err)
		} else {
			defer f.Close()
			slog.SetDefault(slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{
				Level: level,
			})))
		}
	}

	// Open history database
	var db *storage.DB
	if cfg.Settings.HistoryEnabled {
		db, err = storage.Open(filepath.Dir(configPath))
		if err != nil {
			slog.Error("Failed to open history database, history disabled", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := AgentOptions{Config: cfg, DB: db, LogLevel: level}

	var server *web.Server
	if cfg.Settings.WebEnabled {
		server = web.NewServer(db, configPath, cfg.Settings.WebPort)
		opts.Menu = server.Menu()
		opts.Events = server
	}

	agent := NewAgent(opts)

	var wg sync.WaitGroup
	if server != nil {
		server.SetController(agent)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				slog.Error("Web server error", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			if err := agent.Reload(next); err != nil {
				slog.Error("Failed to apply reloaded config", "error", err)
			}
		})
		if err != nil {
			slog.Warn("Config watcher stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := agent.Run(ctx); err != nil {
			slog.Error("Agent error", "error", err)
		}
	}()

	// Run system tray on the main goroutine
	var dashboardURL string
	if server != nil {
		dashboardURL = server.URL()
	}
	tray := systray.NewSystrayManager(agent, dashboardURL, nil)
	go func() {
		select {
		case <-tray.WaitForQuit():
			cancel()
		case <-ctx.Done():
			tray.Stop()
		}
	}()
	tray.Run()

	cancel()
	wg.Wait()
	slog.Info("Pie menu stopped")
}
