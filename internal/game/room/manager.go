package room

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// Registry 进程内所有常驻房间。启动时创建一次，显式传给调度器与服务端
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	order    []string
	memberOf map[string]string // 连接 ID -> 房间 ID
}

// NewRegistry 由配置创建房间，配置中的顺序即列表顺序
func NewRegistry(cfgs []config.RoomConfig) *Registry {
	reg := &Registry{
		rooms:    make(map[string]*Room, len(cfgs)),
		memberOf: make(map[string]string),
	}
	for _, cfg := range cfgs {
		if _, dup := reg.rooms[cfg.ID]; dup {
			log.Warn().Str("room_id", cfg.ID).Msg("重复的房间配置，已忽略")
			continue
		}
		reg.rooms[cfg.ID] = newRoom(cfg)
		reg.order = append(reg.order, cfg.ID)
	}
	log.Info().Int("rooms", len(reg.order)).Msg("🏠 房间注册完成")
	return reg
}

// Get 获取房间
func (reg *Registry) Get(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return r, nil
}

// Rooms 所有房间（按配置顺序）
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.rooms[id])
	}
	return out
}

// ActiveRooms 未停用的房间
func (reg *Registry) ActiveRooms() []*Room {
	var out []*Room
	for _, r := range reg.Rooms() {
		if !r.Config.Inactive {
			out = append(out, r)
		}
	}
	return out
}

// RoomOf 连接所在的房间
func (reg *Registry) RoomOf(memberID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	id, ok := reg.memberOf[memberID]
	if !ok {
		return nil
	}
	return reg.rooms[id]
}

// List 房间列表
func (reg *Registry) List() []protocol.RoomListItem {
	rooms := reg.Rooms()
	out := make([]protocol.RoomListItem, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Status())
	}
	return out
}

func (reg *Registry) bind(memberID, roomID string) (previous string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	previous = reg.memberOf[memberID]
	reg.memberOf[memberID] = roomID
	return previous
}

func (reg *Registry) unbind(memberID, roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.memberOf[memberID] == roomID {
		delete(reg.memberOf, memberID)
	}
}
