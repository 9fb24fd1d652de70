package handler

import (
	"strings"

	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/types"
)

const maxNameLength = 24

// handleJoinRoom 处理加入房间
func (h *Handler) handleJoinRoom(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.JoinRoomPayload](msg)
	if err != nil || payload.RoomID == "" {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	if name := strings.TrimSpace(payload.Name); name != "" {
		if r := []rune(name); len(r) > maxNameLength {
			name = string(r[:maxNameLength])
		}
		client.SetIdentity(client.GetID(), name)
	}

	res, err := h.rooms.Join(payload.RoomID, room.Member{ID: client.GetID(), Name: client.GetName()})
	if err != nil {
		sendError(client, err)
		return
	}
	h.reconnect.SetRoom(client.GetID(), res.Room.ID())

	joined := protocol.RoomJoinedPayload{
		RoomID:    res.Room.ID(),
		RoomName:  res.Room.Config.Name,
		Seated:    res.Seated,
		Queued:    res.Queued,
		Spectator: res.Spectator,
	}
	if res.Session != nil {
		joined.SessionID = res.Session.ID()
	}
	client.SendMessage(codec.MustNewMessage(protocol.MsgRoomJoined, joined))

	// 对局进行中：补发当前状态
	if res.Session != nil {
		h.sendResync(client, res.Room, 0)
	}
}

// handleLeaveRoom 处理离开房间
func (h *Handler) handleLeaveRoom(client types.ClientInterface) {
	r, err := h.rooms.Leave(client.GetID())
	if err != nil {
		sendError(client, err)
		return
	}
	h.reconnect.SetRoom(client.GetID(), "")
	client.SendMessage(codec.MustNewMessage(protocol.MsgRoomLeft, protocol.RoomLeftPayload{RoomID: r.ID()}))
}

// handleListRooms 房间列表
func (h *Handler) handleListRooms(client types.ClientInterface) {
	client.SendMessage(codec.MustNewMessage(protocol.MsgRoomList, protocol.RoomListPayload{
		Rooms: h.rooms.List(),
	}))
}
