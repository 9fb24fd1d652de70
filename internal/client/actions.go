package client

import (
	"strings"

	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
)

// --- 便捷方法 ---

// JoinRoom 加入房间，name 为空时沿用服务器分配的昵称
func (c *Client) JoinRoom(roomID, name string) error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgJoinRoom, protocol.JoinRoomPayload{
		RoomID: roomID,
		Name:   strings.TrimSpace(name),
	}))
}

// LeaveRoom 离开房间
func (c *Client) LeaveRoom() error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgLeaveRoom, nil))
}

// ListRooms 获取房间列表
func (c *Client) ListRooms() error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgListRooms, nil))
}

// SubmitAnswer 提交答案。客户端时间戳仅供参考，判定以服务器接收时间为准
func (c *Client) SubmitAnswer(answer string) error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgSubmitAnswer, protocol.SubmitAnswerPayload{
		Answer:          answer,
		ClientTimestamp: c.clock.Now().UnixMilli(),
	}))
}

// Resync 请求补发已应用序号之后的事件
func (c *Client) Resync() error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgResync, protocol.ResyncPayload{
		LastSequence: c.state.Sequence(),
	}))
}

// Ping 发送心跳，pong 回来后更新时钟估计
func (c *Client) Ping() error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgPing, protocol.PingPayload{
		Timestamp: c.clock.Now().UnixMilli(),
	}))
}

// heartbeat 定期 ping，直到客户端关闭
func (c *Client) heartbeat() {
	ticker := c.clock.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if c.IsConnected() {
				_ = c.Ping()
			}
		case <-c.ctx.Done():
			return
		}
	}
}
