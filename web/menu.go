package web

import (
	"log/slog"
	"sync"

	"markestedt/piemenu/config"
)

// MenuItem is one slice as shown by the dashboard
type MenuItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// MenuMessage opens the menu on dashboard clients
type MenuMessage struct {
	Profile string     `json:"profile"`
	Items   []MenuItem `json:"items"`
}

// RemoteMenu shows the pie menu in connected dashboard pages. A page selects
// a slice by sending {"type":"select","index":n} while the menu is open.
type RemoteMenu struct {
	hub *Hub

	mu       sync.Mutex
	open     bool
	count    int
	selected int
}

func newRemoteMenu(hub *Hub) *RemoteMenu {
	return &RemoteMenu{hub: hub, selected: -1}
}

// Show opens the menu for p.
func (m *RemoteMenu) Show(p config.Profile) {
	items := make([]MenuItem, len(p.Items))
	for i, it := range p.Items {
		items[i] = MenuItem{Label: it.Label, Color: it.Color, Icon: it.Icon}
	}

	m.mu.Lock()
	m.open = true
	m.count = len(items)
	m.selected = -1
	m.mu.Unlock()

	m.hub.BroadcastMessage(Message{
		Type: MessageTypeMenu,
		Data: MenuMessage{Profile: p.Name, Items: items},
	})
}

// Hide closes the menu and returns the selected index, or -1.
func (m *RemoteMenu) Hide() int {
	m.mu.Lock()
	selected := m.selected
	wasOpen := m.open
	m.open = false
	m.selected = -1
	m.mu.Unlock()

	if wasOpen {
		m.hub.BroadcastMessage(Message{Type: MessageTypeMenuClosed, Data: map[string]int{"selected": selected}})
	}
	return selected
}

// Select records a selection. It is ignored when the menu is closed or the
// index is out of range.
func (m *RemoteMenu) Select(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || index < 0 || index >= m.count {
		slog.Debug("Ignoring menu selection", "index", index, "open", m.open)
		return
	}
	m.selected = index
}

func (m *RemoteMenu) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "select":
		m.Select(msg.Index)
	default:
		slog.Debug("Unknown client message", "type", msg.Type)
	}
}
