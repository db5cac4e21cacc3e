package auth

import (
	"sort"
	"sync"
)

type AuthEvent string

const (
	SignedIn  AuthEvent = "SIGNED_IN"
	SignedOut AuthEvent = "SIGNED_OUT"
)

// AuthState 退出时 User 为 nil
type AuthState struct {
	Event AuthEvent `json:"event"`
	User  *User     `json:"user"`
}

// Sessions 登录状态变化的订阅表, 由调用方创建并传给 Service
type Sessions struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(AuthState)
}

func NewSessions() *Sessions {
	return &Sessions{listeners: make(map[int]func(AuthState))}
}

// OnAuthStateChange 返回的取消函数可以重复调用
func (m *Sessions) OnAuthStateChange(cb func(AuthState)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.listeners[id] = cb
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Emit 按订阅顺序同步回调, 回调里可以取消订阅
func (m *Sessions) Emit(state AuthState) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cbs := make([]func(AuthState), 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, m.listeners[id])
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(state)
	}
}

func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
