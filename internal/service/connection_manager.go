package service

import (
	"sort"
	"sync"
)

// ConnWriter 抽象 WebSocket 连接的 JSON 写入能力，便于测试替换。
type ConnWriter interface {
	WriteJSON(v interface{}) error
}

// ConnectionManager 记录当前订阅事件流的 WebSocket 客户端。
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]ConnWriter
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{conns: make(map[string]ConnWriter)}
}

func (m *ConnectionManager) Add(clientID string, conn ConnWriter) {
	m.mu.Lock()
	m.conns[clientID] = conn
	m.mu.Unlock()
}

func (m *ConnectionManager) Remove(clientID string) {
	m.mu.Lock()
	delete(m.conns, clientID)
	m.mu.Unlock()
}

func (m *ConnectionManager) Get(clientID string) ConnWriter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[clientID]
}

// ListIDs 返回排序后的客户端 ID。
func (m *ConnectionManager) ListIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (m *ConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
