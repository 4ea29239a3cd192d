package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/piemenu/config"
	"markestedt/piemenu/storage"
)

//go:embed static/*
var staticFiles embed.FS

// upgrader uses the default origin check: only pages served from this host,
// or clients that send no Origin, may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Status is the agent state shown on the dashboard
type Status struct {
	State         string            `json:"state"`
	Paused        bool              `json:"paused"`
	CanSuppress   bool              `json:"canSuppress"`
	Triggers      []string          `json:"triggers"`
	HeldModifiers []string          `json:"heldModifiers"`
	Active        map[string]string `json:"active"`
	MenuProfile   string            `json:"menuProfile,omitempty"`
}

// Controller is the agent as seen by the dashboard
type Controller interface {
	Status() Status
	Config() *config.Config
	ApplyConfig(cfg *config.Config) error
}

// Server represents the web server
type Server struct {
	db         *storage.DB // nil when history is disabled
	configPath string
	port       int
	hub        *Hub
	menu       *RemoteMenu

	mu   sync.RWMutex
	ctrl Controller
}

// NewServer creates a new web server. db may be nil.
func NewServer(db *storage.DB, configPath string, port int) *Server {
	s := &Server{
		db:         db,
		configPath: configPath,
		port:       port,
	}
	s.hub = NewHub(func(msg ClientMessage) { s.menu.handleClientMessage(msg) })
	s.menu = newRemoteMenu(s.hub)
	return s
}

// SetController attaches the agent. Handlers that need it answer 503 until then.
func (s *Server) SetController(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = c
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// Menu returns the pie menu rendered by dashboard clients
func (s *Server) Menu() *RemoteMenu {
	return s.menu
}

// Handler returns the HTTP routes
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	return mux, nil
}

// URL returns the dashboard address
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/", s.port)
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", fmt.Sprint(s.port)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting web server", "url", s.URL())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	slog.Info("Web server stopped")
	return nil
}

// BroadcastStatus broadcasts a status update to all connected clients
func (s *Server) BroadcastStatus(st Status) {
	s.hub.BroadcastMessage(Message{Type: MessageTypeStatus, Data: st})
}

// BroadcastActivation broadcasts a new activation to all connected clients
func (s *Server) BroadcastActivation(a *storage.Activation) {
	s.hub.BroadcastMessage(Message{
		Type: MessageTypeActivation,
		Data: ActivationMessage{
			ID:        a.ID,
			Profile:   a.Profile,
			ItemLabel: a.ItemLabel,
			Outcome:   a.Outcome,
			Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
		},
	})
}

// ActivationMessage is the websocket payload for a finished activation
type ActivationMessage struct {
	ID        string `json:"id"`
	Profile   string `json:"profile"`
	ItemLabel string `json:"itemLabel"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	if ctrl := s.controller(); ctrl != nil {
		s.BroadcastStatus(ctrl.Status())
	}
}
