package storeserver

import (
	"sync"

	"github.com/golang/glog"
)

// Registry tracks live connections by id
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds conn; ids are unique per connection
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes conn; idempotent
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[id]
	return conn, exists
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated, watches := 0, 0
	for _, conn := range r.connections {
		if conn.IsAuthenticated() {
			authenticated++
		}
		watches += conn.WatchCount()
	}
	return map[string]int{
		"total_connections":         len(r.connections),
		"authenticated_connections": authenticated,
		"active_watches":            watches,
	}
}

// CloseAll closes and forgets every connection
func (r *Registry) CloseAll() {
	r.mu.Lock()
	connections := r.connections
	r.connections = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range connections {
		if err := conn.Close(); err != nil {
			glog.V(1).Infof("[registry] closing %s: %v", conn.ID(), err)
		}
	}
}
