package room

import (
	"sync"
	"time"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/session"
)

// Member 房间中的连接（排队、入座或观战）
type Member struct {
	ID   string
	Name string
}

// Room 常驻房间。配置只读，可变状态由 mu 保护
type Room struct {
	Config config.RoomConfig

	mu               sync.RWMutex
	state            State
	members          map[string]Member
	queue            []string
	active           *session.Orchestrator
	sessions         int
	intermissionEnds time.Time
	lastOutcome      session.Outcome
}

func newRoom(cfg config.RoomConfig) *Room {
	r := &Room{
		Config:  cfg,
		state:   StateIntermission,
		members: make(map[string]Member),
	}
	if cfg.Inactive {
		r.state = StateInactive
	}
	return r
}

// ID 房间 ID
func (r *Room) ID() string { return r.Config.ID }

// State 当前状态
func (r *Room) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Active 当前对局，间歇期为 nil
func (r *Room) Active() *session.Orchestrator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Sessions 已创建的对局数
func (r *Room) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions
}

// QueueLen 排队人数
func (r *Room) QueueLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queue)
}

// MemberIDs 房间内所有连接的 ID
func (r *Room) MemberIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// HasMember 是否在房间中
func (r *Room) HasMember(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// IntermissionEnds 间歇期结束时间
func (r *Room) IntermissionEnds() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.intermissionEnds
}

// BeginIntermission 进入间歇期
func (r *Room) BeginIntermission(until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateInactive {
		return
	}
	r.state = StateIntermission
	r.intermissionEnds = until
}

// TakeQueue 取出排队者作为下一局的座位，最多 MaxParticipants 人
func (r *Room) TakeQueue() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(r.queue), r.Config.MaxParticipants)
	out := make([]Member, 0, n)
	for _, id := range r.queue[:n] {
		out = append(out, r.members[id])
	}
	r.queue = append([]string(nil), r.queue[n:]...)
	return out
}

// Requeue 把未能开局的排队者放回队首
func (r *Room) Requeue(members []Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, m := range members {
		if _, still := r.members[m.ID]; still && !r.queuedLocked(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	r.queue = append(ids, r.queue...)
}

// Attach 绑定新对局；同一房间最多只有一个未结束的对局
func (r *Room) Attach(o *session.Orchestrator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !r.active.Phase().Terminal() {
		return apperrors.ErrGameStarted
	}
	r.active = o
	r.state = StateActive
	r.sessions++
	return nil
}

// Detach 对局结束后解除绑定
func (r *Room) Detach(o *session.Orchestrator, outcome session.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != o {
		return
	}
	r.active = nil
	r.lastOutcome = outcome
	if r.state != StateInactive {
		r.state = StateIntermission
	}
}

func (r *Room) queuedLocked(id string) bool {
	for _, q := range r.queue {
		if q == id {
			return true
		}
	}
	return false
}

func (r *Room) removeLocked(id string) {
	delete(r.members, id)
	for i, q := range r.queue {
		if q == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
}
