package presence

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/game/timer"
)

// Listener 接收状态变化。实现方不得阻塞（Handler 在持锁状态下回调以保证顺序）。
type Listener interface {
	// ParticipantStatusChanged 状态已变化；Replaced 表示需要托管玩家接管该座位
	ParticipantStatusChanged(participantID string, status Status)
	// ParticipantRecovered 宽限期内重连成功，需要补发 lastSequence 之后的事件
	ParticipantRecovered(participantID string, lastSequence uint64)
}

// Handler 断线处理：宽限期计时、重连取消、超时接管
type Handler struct {
	reg      *Registry
	clock    clockwork.Clock
	grace    time.Duration
	listener Listener

	mu     sync.Mutex
	timers map[string]*timer.OneShot
	closed bool
}

// NewHandler 创建断线处理器
func NewHandler(reg *Registry, clock clockwork.Clock, grace time.Duration, listener Listener) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		reg:      reg,
		clock:    clock,
		grace:    grace,
		listener: listener,
		timers:   make(map[string]*timer.OneShot),
	}
}

// Registry 返回底层登记表
func (h *Handler) Registry() *Registry {
	return h.reg
}

// OnConnectionLost 进入宽限期并启动计时；非已连接状态时返回 false
func (h *Handler) OnConnectionLost(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || !h.reg.Transition(participantID, Connected, GracePeriod) {
		return false
	}

	h.timers[participantID] = timer.NewOneShot(h.clock, h.grace, func() {
		h.expire(participantID)
	})

	log.Info().
		Str("participant_id", participantID).
		Dur("grace", h.grace).
		Msg("📴 玩家掉线，进入宽限期")

	h.notifyStatus(participantID, GracePeriod)
	return true
}

// OnConnectionRecovered 宽限期内重连：取消计时并恢复为已连接。
// 宽限期已结束（已被接管）时返回 false。
func (h *Handler) OnConnectionRecovered(participantID string, lastSequence uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	shot, ok := h.timers[participantID]
	if !ok || !shot.Cancel() {
		return false
	}
	delete(h.timers, participantID)

	if !h.reg.Transition(participantID, GracePeriod, Connected) {
		return false
	}

	log.Info().
		Str("participant_id", participantID).
		Uint64("last_sequence", lastSequence).
		Msg("📶 玩家在宽限期内重连")

	h.notifyStatus(participantID, Connected)
	if h.listener != nil {
		h.listener.ParticipantRecovered(participantID, lastSequence)
	}
	return true
}

// ReplaceNow 立即接管（主动离开时使用），会取消进行中的宽限期
func (h *Handler) ReplaceNow(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if shot, ok := h.timers[participantID]; ok {
		shot.Cancel()
		delete(h.timers, participantID)
	}

	if !h.reg.Transition(participantID, Connected, Replaced) &&
		!h.reg.Transition(participantID, GracePeriod, Replaced) {
		return false
	}
	h.notifyStatus(participantID, Replaced)
	return true
}

// expire 宽限期到期
func (h *Handler) expire(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.timers, participantID)
	if h.closed || !h.reg.Transition(participantID, GracePeriod, Replaced) {
		return
	}

	log.Info().
		Str("participant_id", participantID).
		Msg("⏰ 宽限期结束，座位交由托管玩家")

	h.notifyStatus(participantID, Replaced)
}

// GraceDeadline 返回宽限期截止时间
func (h *Handler) GraceDeadline(participantID string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	shot, ok := h.timers[participantID]
	if !ok {
		return time.Time{}, false
	}
	return shot.Deadline(), true
}

// PendingCount 进行中的宽限期数量
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Close 取消所有宽限期计时，之后的掉线事件被忽略
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, shot := range h.timers {
		shot.Cancel()
		delete(h.timers, id)
	}
}

func (h *Handler) notifyStatus(participantID string, s Status) {
	if h.listener != nil {
		h.listener.ParticipantStatusChanged(participantID, s)
	}
}
