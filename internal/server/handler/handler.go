package handler

import (
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/game/clock"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/server/reconnect"
	"github.com/palemoky/quiz-rooms/internal/types"
)

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Server    types.ServerInterface
	Rooms     *room.Registry
	Reconnect *reconnect.Manager
	ClockSync *clock.ClockSync
	Clock     clockwork.Clock
	Snapshots types.SnapshotStore // 可选
}

// Handler 消息处理器
type Handler struct {
	server    types.ServerInterface
	rooms     *room.Registry
	reconnect *reconnect.Manager
	clockSync *clock.ClockSync
	clock     clockwork.Clock
	snapshots types.SnapshotStore
	handlers  map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(client types.ClientInterface, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.ClockSync == nil {
		deps.ClockSync = clock.NewClockSync(0)
	}
	h := &Handler{
		server:    deps.Server,
		rooms:     deps.Rooms,
		reconnect: deps.Reconnect,
		clockSync: deps.ClockSync,
		clock:     deps.Clock,
		snapshots: deps.Snapshots,
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接操作
		protocol.MsgPing:        h.handlePing,
		protocol.MsgClockReport: h.handleClockReport,
		protocol.MsgReconnect:   h.handleReconnect,

		// 房间操作
		protocol.MsgJoinRoom:  h.handleJoinRoom,
		protocol.MsgLeaveRoom: func(c types.ClientInterface, _ *protocol.Message) { h.handleLeaveRoom(c) },
		protocol.MsgListRooms: func(c types.ClientInterface, _ *protocol.Message) { h.handleListRooms(c) },

		// 游戏操作
		protocol.MsgSubmitAnswer: h.handleSubmitAnswer,
		protocol.MsgResync:       h.handleResync,
	}
}

// Handle 处理消息
func (h *Handler) Handle(client types.ClientInterface, msg *protocol.Message) {
	if handler, ok := h.handlers[msg.Type]; ok {
		handler(client, msg)
		return
	}

	log.Warn().
		Str("type", string(msg.Type)).
		Str("player_id", client.GetID()).
		Int("payload_bytes", len(msg.Payload)).
		Msg("⚠️ 未知消息类型")
	client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
}

// sendError 把错误转换为错误消息
func sendError(client types.ClientInterface, err error) {
	var gameErr *apperrors.GameError
	if errors.As(err, &gameErr) {
		client.SendMessage(codec.NewErrorMessageWithText(gameErr.Code, gameErr.Message))
		return
	}
	log.Error().Err(err).Str("player_id", client.GetID()).Msg("处理请求失败")
	client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnknown))
}
