package server

import (
	"sync"

	"github.com/stardustagi/ChatRelay/libs/metrics"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

// 客户端管理器
type ClientManager struct {
	mu        sync.RWMutex
	clients   map[string]IClient
	userIdMap map[string]map[string]struct{} // 用户ID到会话ID
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type IClientManager interface {
	ClientCount() int
	KickClientByUserId(userId string)
	KickClientBySessionId(sessionId string)
	RegisterClient(client IClient)
	UnregisterClient(client IClient)
	BroadcastMessage(message protocol.IMessage)
	SendToUser(userId string, message protocol.IMessage) int
	Stop()
}

func NewClientManager(logger *zap.Logger, m *metrics.Metrics) IClientManager {
	return &ClientManager{
		clients:   make(map[string]IClient),
		userIdMap: make(map[string]map[string]struct{}),
		logger:    logger,
		metrics:   m,
	}
}

func (m *ClientManager) RegisterClient(client IClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("Registering new client", zap.String("sessionId", client.GetSessionID()), zap.String("userId", client.GetUserID()))
	m.clients[client.GetSessionID()] = client
	sessions, ok := m.userIdMap[client.GetUserID()]
	if !ok {
		sessions = make(map[string]struct{})
		m.userIdMap[client.GetUserID()] = sessions
	}
	sessions[client.GetSessionID()] = struct{}{}
	m.metrics.ClientConnected()
}

// UnregisterClient 删除客户端, 并关闭连接; 重复调用无副作用
func (m *ClientManager) UnregisterClient(client IClient) {
	m.mu.Lock()
	removed := m.removeLocked(client.GetSessionID())
	m.mu.Unlock()
	if removed != nil {
		m.logger.Info("Unregistering client", zap.String("sessionId", client.GetSessionID()), zap.String("userId", client.GetUserID()))
		_ = removed.Close()
	}
}

func (m *ClientManager) removeLocked(sessionId string) IClient {
	client, ok := m.clients[sessionId]
	if !ok {
		return nil
	}
	delete(m.clients, sessionId)
	if sessions, ok := m.userIdMap[client.GetUserID()]; ok {
		delete(sessions, sessionId)
		if len(sessions) == 0 {
			delete(m.userIdMap, client.GetUserID())
		}
	}
	m.metrics.ClientDisconnected()
	return client
}

func (m *ClientManager) snapshot() []IClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]IClient, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}

// BroadcastMessage 所有消息广播
func (m *ClientManager) BroadcastMessage(message protocol.IMessage) {
	for _, client := range m.snapshot() {
		m.logger.Debug("Broadcasting message to client", zap.String("sessionId", client.GetSessionID()))
		_ = client.Send(message)
	}
}

// SendToUser 推送给某个用户的全部连接, 返回成功的数量
func (m *ClientManager) SendToUser(userId string, message protocol.IMessage) int {
	m.mu.RLock()
	targets := make([]IClient, 0)
	for sid := range m.userIdMap[userId] {
		if c, ok := m.clients[sid]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	n := 0
	for _, c := range targets {
		if c.Send(message) == nil {
			n++
		}
	}
	return n
}

func (m *ClientManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *ClientManager) KickClientByUserId(userId string) {
	m.mu.Lock()
	var kicked []IClient
	for sid := range m.userIdMap[userId] {
		if c := m.removeLocked(sid); c != nil {
			kicked = append(kicked, c)
		}
	}
	m.mu.Unlock()
	for _, c := range kicked {
		_ = c.Close()
	}
}

func (m *ClientManager) KickClientBySessionId(sessionId string) {
	m.mu.Lock()
	c := m.removeLocked(sessionId)
	m.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Stop 关闭所有连接
func (m *ClientManager) Stop() {
	m.mu.Lock()
	all := make([]IClient, 0, len(m.clients))
	for sid := range m.clients {
		all = append(all, m.removeLocked(sid))
	}
	m.mu.Unlock()
	for _, c := range all {
		m.logger.Debug("Shutting down client", zap.String("sessionId", c.GetSessionID()), zap.String("userId", c.GetUserID()))
		_ = c.Close()
	}
	m.logger.Info("All clients have been kicked")
}
