package services

import (
	"log"
	"sync"

	"genslides/internal/models"
)

// ConnectionManager tracks all active WebSocket connections, indexed both by
// connection ID and by the project they are viewing.
type ConnectionManager struct {
	connections map[string]*models.ProjectConnection
	byProject   map[string]map[string]*models.ProjectConnection
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.ProjectConnection),
		byProject:   make(map[string]map[string]*models.ProjectConnection),
	}
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *models.ProjectConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	if cm.byProject[conn.Slug] == nil {
		cm.byProject[conn.Slug] = make(map[string]*models.ProjectConnection)
	}
	cm.byProject[conn.Slug][conn.ConnID] = conn
	log.Printf("✅ Connection added: %s → %s (Total: %d)", conn.ConnID, conn.Slug, len(cm.connections))
}

// Remove removes a connection
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		conn.MarkClosed()
		close(conn.WriteChan)
		delete(cm.connections, connID)
		if project := cm.byProject[conn.Slug]; project != nil {
			delete(project, connID)
			if len(project) == 0 {
				delete(cm.byProject, conn.Slug)
			}
		}
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// CountForProject returns the number of connections viewing a project
func (cm *ConnectionManager) CountForProject(slug string) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.byProject[slug])
}

// GetForProject returns all connections viewing a project
func (cm *ConnectionManager) GetForProject(slug string) []*models.ProjectConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	project := cm.byProject[slug]
	conns := make([]*models.ProjectConnection, 0, len(project))
	for _, conn := range project {
		conns = append(conns, conn)
	}
	return conns
}

// Broadcast sends an event to every connection viewing the project. Slow or
// closed connections are skipped rather than blocking the caller.
func (cm *ConnectionManager) Broadcast(slug string, msg models.Envelope) int {
	sent := 0
	for _, conn := range cm.GetForProject(slug) {
		if conn.SafeSend(msg) {
			sent++
		}
	}
	return sent
}
