//go:build !production

package testutil

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/quiz-rooms/internal/types"
)

// MockServer 实现 types.ServerInterface 的 mock
type MockServer struct {
	mock.Mock
}

func (m *MockServer) GetOnlineCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockServer) GetClientByID(id string) types.ClientInterface {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(types.ClientInterface)
}

func (m *MockServer) RebindClient(client types.ClientInterface, playerID, playerName string) {
	m.Called(client, playerID, playerName)
}

// ClientHub 内存中的服务器替身：按 ID 登记客户端
type ClientHub struct {
	mu      sync.RWMutex
	clients map[string]types.ClientInterface
}

// NewClientHub 创建服务器替身
func NewClientHub() *ClientHub {
	return &ClientHub{clients: make(map[string]types.ClientInterface)}
}

// Add 登记客户端
func (h *ClientHub) Add(c types.ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.GetID()] = c
}

func (h *ClientHub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *ClientHub) GetClientByID(id string) types.ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	return c
}

func (h *ClientHub) RebindClient(c types.ClientInterface, playerID, playerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.GetID()]; ok && cur == c {
		delete(h.clients, c.GetID())
	}
	c.SetIdentity(playerID, playerName)
	h.clients[playerID] = c
}
