package services

import (
	"log"
	"sync"

	"lumichat/internal/models"
)

// ConnectionManager manages all active WebSocket connections
type ConnectionManager struct {
	connections map[string]*models.ClientConnection
	metrics     *Metrics
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(metrics *Metrics) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.ClientConnection),
		metrics:     metrics,
	}
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *models.ClientConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	if cm.metrics != nil {
		cm.metrics.RecordWebSocketConnect()
	}
	log.Printf("✅ Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove removes a connection
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		close(conn.WriteChan)
		close(conn.StopChan)
		delete(cm.connections, connID)
		if cm.metrics != nil {
			cm.metrics.RecordWebSocketDisconnect()
		}
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Get retrieves a connection by ID
func (cm *ConnectionManager) Get(connID string) (*models.ClientConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	conn, exists := cm.connections[connID]
	return conn, exists
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}
