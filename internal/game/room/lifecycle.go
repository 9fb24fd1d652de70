package room

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/game/session"
)

// JoinResult 加入房间的结果
type JoinResult struct {
	Room      *Room
	Session   *session.Orchestrator // 入座或观战的对局
	Seated    bool                  // 已在大厅阶段入座
	Queued    bool                  // 排队等待下一局
	Spectator bool                  // 观战当前对局
}

// Join 加入房间：大厅阶段直接入座，间歇期排队，对局进行中则观战并排队等待下一局。
// 已在其他房间时先离开原房间。
func (reg *Registry) Join(roomID string, m Member) (JoinResult, error) {
	r, err := reg.Get(roomID)
	if err != nil {
		return JoinResult{}, err
	}
	if r.Config.Inactive {
		return JoinResult{}, apperrors.ErrRoomNotFound
	}

	if prev := reg.bind(m.ID, roomID); prev != "" && prev != roomID {
		if old, err := reg.Get(prev); err == nil {
			old.leave(m.ID)
		}
	}

	r.mu.Lock()
	r.members[m.ID] = m
	active := r.active
	r.mu.Unlock()

	res := JoinResult{Room: r}
	live := active != nil && !active.Phase().Terminal()

	// 调用对局前必须释放房间锁：对局的广播会读取房间成员
	if live {
		res.Session = active
		if active.HasSeat(m.ID) {
			res.Seated = true
			return res, nil
		}
		if active.Phase() == session.PhaseLobby {
			err := active.Join(session.Seat{ID: m.ID, Name: m.Name, Kind: session.KindHuman})
			switch {
			case err == nil:
				res.Seated = true
				log.Info().Str("room_id", roomID).Str("member_id", m.ID).Msg("👤 玩家入座")
				return res, nil
			case errors.Is(err, apperrors.ErrGameStarted), errors.Is(err, apperrors.ErrRoomFull), errors.Is(err, apperrors.ErrSessionClosed):
			default:
				return res, err
			}
		}
		res.Spectator = true
	}

	r.mu.Lock()
	if !r.queuedLocked(m.ID) && len(r.queue) < r.Config.MaxParticipants {
		r.queue = append(r.queue, m.ID)
	}
	res.Queued = r.queuedLocked(m.ID)
	r.mu.Unlock()

	if !res.Queued {
		res.Spectator = true
	}

	log.Info().
		Str("room_id", roomID).
		Str("member_id", m.ID).
		Bool("queued", res.Queued).
		Bool("spectator", res.Spectator).
		Msg("👤 玩家进入房间")
	return res, nil
}

// Leave 离开所在房间；在对局中有座位时交由对局处理（大厅离座或立即接管）
func (reg *Registry) Leave(memberID string) (*Room, error) {
	r := reg.RoomOf(memberID)
	if r == nil {
		return nil, apperrors.ErrNotInRoom
	}
	reg.unbind(memberID, r.ID())
	r.leave(memberID)
	return r, nil
}

// Forget 连接断开且不在任何对局座位中时调用，只移除排队与观战记录
func (reg *Registry) Forget(memberID string) {
	r := reg.RoomOf(memberID)
	if r == nil {
		return
	}
	if active := r.Active(); active != nil && active.HasSeat(memberID) && !active.Phase().Terminal() {
		return
	}
	reg.unbind(memberID, r.ID())
	r.mu.Lock()
	r.removeLocked(memberID)
	r.mu.Unlock()
}

func (r *Room) leave(memberID string) {
	r.mu.Lock()
	r.removeLocked(memberID)
	active := r.active
	r.mu.Unlock()

	if active != nil && active.HasSeat(memberID) {
		if err := active.Leave(memberID); err != nil && !errors.Is(err, apperrors.ErrSessionClosed) {
			log.Warn().Err(err).Str("room_id", r.ID()).Str("member_id", memberID).Msg("离开对局失败")
		}
	}
	log.Info().Str("room_id", r.ID()).Str("member_id", memberID).Msg("👋 玩家离开房间")
}
