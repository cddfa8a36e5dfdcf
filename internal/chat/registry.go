package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Closer is the part of a WebSocket connection the registry needs.
type Closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// Registry tracks open chat connections per principal.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]Closer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]Closer),
	}
}

// Get returns the connection registered for principal and connID.
func (m *Registry) Get(principal, connID string) Closer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conns, ok := m.active[principal]; ok {
		return conns[connID]
	}
	return nil
}

// Register adds a connection.
func (m *Registry) Register(principal, connID string, conn Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[principal]; !exists {
		m.active[principal] = make(map[string]Closer)
	}
	m.active[principal][connID] = conn
	slog.Info("Chat connection registered", "principal", principal, "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (m *Registry) Unregister(principal, connID string, conn Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[principal]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.active, principal)
			}
			slog.Info("Chat connection unregistered", "principal", principal, "conn_id", connID)
		}
	}
}

// Count returns the number of open connections.
func (m *Registry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.active {
		n += len(conns)
	}
	return n
}

// ClosePrincipal closes every connection of principal.
func (m *Registry) ClosePrincipal(principal string, reason string) {
	m.mu.Lock()
	conns := m.active[principal]
	delete(m.active, principal)
	m.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(websocket.StatusNormalClosure, reason); err != nil {
			slog.Debug("Failed to close chat connection", "conn_id", id, "error", err)
		}
	}
}

// CloseAll closes every registered connection with a going-away status.
func (m *Registry) CloseAll(reason string) {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]map[string]Closer)
	m.mu.Unlock()

	for principal, conns := range all {
		for id, conn := range conns {
			if err := conn.Close(websocket.StatusGoingAway, reason); err != nil {
				slog.Debug("Failed to close chat connection", "principal", principal, "conn_id", id, "error", err)
			}
		}
	}
}
