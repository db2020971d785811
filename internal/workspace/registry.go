package workspace

import (
	"log/slog"
	"sync"
)

// Registry tracks open workspace connections per identity and tab.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*Conn),
	}
}

// GetActive returns the open connection for a user and tab.
func (m *Registry) GetActive(userID, tabID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[userID]; ok {
		return tabs[tabID]
	}
	return nil
}

// Register adds conn, closing any previous connection of the same tab.
func (m *Registry) Register(userID, tabID string, conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*Conn)
	}

	if existing, exists := m.active[userID][tabID]; exists && existing != conn {
		existing.Close("workspace replaced")
	}

	m.active[userID][tabID] = conn
	slog.Info("Workspace registered", "user_id", userID, "tab_id", tabID)
}

// Unregister removes conn if it is still the tab's current connection.
func (m *Registry) Unregister(userID, tabID string, conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[userID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Workspace unregistered", "user_id", userID, "tab_id", tabID)
		}
	}
}

// CloseAll closes every open connection.
func (m *Registry) CloseAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, tabs := range m.active {
		for _, conn := range tabs {
			conn.Close(reason)
		}
		delete(m.active, userID)
	}
}

// Count returns the number of open connections.
func (m *Registry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}
