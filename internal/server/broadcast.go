package server

import (
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
)

// GetOnlineCount 获取在线人数（按需调用）
func (s *Server) GetOnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast 广播消息给所有客户端
func (s *Server) Broadcast(msg *protocol.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("广播消息编码失败")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		client.sendRaw(data)
	}
}

// Publish 把会话事件推送给房间内所有在线连接（入座、排队、观战）。
// 由对局协程调用，只做非阻塞写入。
func (s *Server) Publish(roomID string, ev session.Event) {
	r, err := s.rooms.Get(roomID)
	if err != nil {
		return
	}
	wire, err := ev.Wire()
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event", string(ev.Type)).Msg("事件序列化失败")
		return
	}
	msg, err := codec.NewMessage(protocol.MsgEvent, wire)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("事件消息创建失败")
		return
	}
	data, err := codec.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("事件消息编码失败")
		return
	}

	for _, id := range r.MemberIDs() {
		if c := s.client(id); c != nil {
			c.sendRaw(data)
		}
	}
}

// SendResync 把补发结果发给单个玩家
func (s *Server) SendResync(roomID, participantID string, res session.ResyncResult) {
	c := s.client(participantID)
	if c == nil {
		return
	}
	wire, err := res.Wire()
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("player_id", participantID).Msg("补发结果序列化失败")
		return
	}
	c.SendMessage(codec.MustNewMessage(protocol.MsgResyncResult, wire))
}
