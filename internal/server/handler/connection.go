package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/server/reconnect"
	"github.com/palemoky/quiz-rooms/internal/types"
)

// handlePing 处理心跳消息
func (h *Handler) handlePing(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		return
	}

	// 立即回复 pong
	client.SendMessage(codec.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: h.clock.Now().UnixMilli(),
	}))
}

// handleClockReport 客户端上报一次 ping/pong 采样，回复当前的偏移估计
func (h *Handler) handleClockReport(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.ClockReportPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	est, ok := h.clockSync.Sample(client.GetID(),
		time.UnixMilli(payload.PingSentAt),
		time.UnixMilli(payload.PongReceivedAt),
		time.UnixMilli(payload.ServerTime))
	if !ok {
		return
	}
	client.SendMessage(codec.MustNewMessage(protocol.MsgClockSync, protocol.ClockSyncPayload{
		OffsetMs: est.Offset.Milliseconds(),
		RTTMs:    est.RTT.Milliseconds(),
		Samples:  est.Samples,
	}))
}

// handleReconnect 处理断线重连
func (h *Handler) handleReconnect(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.ReconnectPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	// 验证重连令牌
	rec, err := h.reconnect.Validate(context.Background(), payload.Token, payload.PlayerID)
	if err != nil {
		sendError(client, err)
		return
	}

	// 新连接换回原玩家 ID
	if oldID := client.GetID(); oldID != rec.PlayerID {
		h.reconnect.Delete(oldID)
		h.clockSync.Forget(oldID)
	}
	h.server.RebindClient(client, rec.PlayerID, rec.PlayerName)
	h.reconnect.SetOnline(rec.PlayerID)

	out := protocol.ReconnectedPayload{
		PlayerID:   rec.PlayerID,
		PlayerName: rec.PlayerName,
	}
	r := h.restoreRoom(rec)
	if r != nil {
		out.RoomID = r.ID()
		if o := r.Active(); o != nil {
			st, ok := o.Registry().Status(rec.PlayerID)
			out.Seated = ok && st != presence.Replaced
		}
	}

	// 先确认重连，再补发事件
	client.SendMessage(codec.MustNewMessage(protocol.MsgReconnected, out))

	if r != nil {
		// 宽限期内恢复时由对局自己补发
		if o := r.Active(); o == nil || !o.ConnectionRecovered(rec.PlayerID, payload.LastSequence) {
			h.sendResync(client, r, payload.LastSequence)
		}
	}

	log.Info().
		Str("player_id", rec.PlayerID).
		Str("room_id", out.RoomID).
		Bool("seated", out.Seated).
		Msg("🔄 玩家重连成功")
}

// restoreRoom 找回玩家所在房间；断线时已被移出的观众重新加入
func (h *Handler) restoreRoom(rec reconnect.Record) *room.Room {
	if rec.RoomID == "" {
		return nil
	}
	if r := h.rooms.RoomOf(rec.PlayerID); r != nil && r.ID() == rec.RoomID {
		return r
	}

	res, err := h.rooms.Join(rec.RoomID, room.Member{ID: rec.PlayerID, Name: rec.PlayerName})
	if err != nil {
		log.Warn().Err(err).Str("player_id", rec.PlayerID).Str("room_id", rec.RoomID).Msg("重连后回到房间失败")
		h.reconnect.SetRoom(rec.PlayerID, "")
		return nil
	}
	return res.Room
}

// Disconnected 连接断开。持有座位时进入宽限期，否则移出房间
func (h *Handler) Disconnected(client types.ClientInterface) {
	id := client.GetID()
	h.reconnect.SetOffline(id)
	h.clockSync.Forget(id)

	r := h.rooms.RoomOf(id)
	if r == nil {
		return
	}
	if o := r.Active(); o != nil && o.HasSeat(id) && !o.Phase().Terminal() {
		o.ConnectionLost(id)
		return
	}
	h.rooms.Forget(id)
}
