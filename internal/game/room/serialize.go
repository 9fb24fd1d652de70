package room

import (
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// Status 房间当前状态，用于列表与缓存
func (r *Room) Status() protocol.RoomListItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item := protocol.RoomListItem{
		RoomID:          r.Config.ID,
		Name:            r.Config.Name,
		Category:        r.Config.Category,
		State:           string(r.state),
		Queued:          len(r.queue),
		MaxParticipants: r.Config.MaxParticipants,
	}
	if r.active != nil {
		item.Phase = string(r.active.Phase())
	}
	return item
}
