package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"markestedt/piemenu/config"
	"markestedt/piemenu/storage"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// handleConfig handles GET and PUT requests for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller()
	if ctrl == nil {
		http.Error(w, "Agent not ready", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, ctrl.Config())
	case http.MethodPut:
		s.handlePutConfig(w, r, ctrl)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePutConfig updates the fields present in the request, saves the file
// and applies the result to the running agent
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request, ctrl Controller) {
	var req struct {
		ActionDelayMs      *int              `json:"action_delay_ms"`
		ReplayUnselected   *bool             `json:"replay_unselected"`
		LongPressDelayMs   *int              `json:"long_press_delay_ms"`
		KeySequenceDelayMs *int              `json:"key_sequence_delay_ms"`
		LogLevel           *string           `json:"log_level"`
		HistoryEnabled     *bool             `json:"history_enabled"`
		Profiles           *[]config.Profile `json:"profiles"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg := ctrl.Config().Clone()

	// Update fields if provided
	if req.ActionDelayMs != nil {
		cfg.Settings.ActionDelayMs = *req.ActionDelayMs
	}
	if req.ReplayUnselected != nil {
		cfg.Settings.ReplayUnselected = *req.ReplayUnselected
	}
	if req.LongPressDelayMs != nil {
		cfg.Settings.LongPressDelayMs = *req.LongPressDelayMs
	}
	if req.KeySequenceDelayMs != nil {
		cfg.Settings.KeySequenceDelayMs = *req.KeySequenceDelayMs
	}
	if req.LogLevel != nil {
		cfg.Settings.LogLevel = *req.LogLevel
	}
	if req.HistoryEnabled != nil {
		cfg.Settings.HistoryEnabled = *req.HistoryEnabled
	}
	if req.Profiles != nil {
		cfg.Profiles = *req.Profiles
	}

	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.configPath != "" {
		if err := config.Save(s.configPath, cfg); err != nil {
			slog.Error("Failed to save config", "error", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
	}

	if err := ctrl.ApplyConfig(cfg); err != nil {
		slog.Error("Failed to apply config", "error", err)
		http.Error(w, "Failed to apply configuration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "success"})
}

// handleStats returns statistics for the specified time range
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	days := 7
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	overall, err := s.db.GetOverallStats(days)
	if err != nil {
		slog.Error("Failed to get overall stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	daily, err := s.db.GetDailyStats(days)
	if err != nil {
		slog.Error("Failed to get daily stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	profiles, err := s.db.GetProfileStats(days)
	if err != nil {
		slog.Error("Failed to get profile stats", "error", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"overall":  overall,
		"daily":    daily,
		"profiles": profiles,
	})
}

// handleHistory handles GET and DELETE requests for activation history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetHistory(w, r)
	case http.MethodDelete:
		s.handleDeleteHistory(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetHistory returns paginated activation history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 500)
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	activations, err := s.db.GetActivations(limit, offset)
	if err != nil {
		slog.Error("Failed to get activations", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	total, err := s.db.GetActivationCount()
	if err != nil {
		slog.Error("Failed to get activation count", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	if activations == nil {
		activations = []storage.Activation{}
	}
	writeJSON(w, map[string]any{
		"activations": activations,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// handleDeleteHistory deletes an activation by ID (/api/history/{id})
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" || id == r.URL.Path || strings.Contains(id, "/") {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	if err := s.db.DeleteActivation(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Activation not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to delete activation", "error", err, "id", id)
		http.Error(w, "Failed to delete activation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "success"})
}

// handleStatus returns the current agent status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctrl := s.controller()
	if ctrl == nil {
		writeJSON(w, Status{State: "starting"})
		return
	}
	writeJSON(w, ctrl.Status())
}
