package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	// 连接操作
	MsgReconnect   MessageType = "reconnect"    // 断线重连
	MsgPing        MessageType = "ping"         // 心跳 ping
	MsgClockReport MessageType = "clock_report" // 时钟同步采样上报

	// 房间操作
	MsgJoinRoom  MessageType = "join_room"  // 加入房间
	MsgLeaveRoom MessageType = "leave_room" // 离开房间
	MsgListRooms MessageType = "list_rooms" // 房间列表

	// 游戏操作
	MsgSubmitAnswer MessageType = "submit_answer" // 提交答案
	MsgResync       MessageType = "resync"        // 请求补发事件
)

// 服务端 → 客户端 消息类型
const (
	// 连接相关
	MsgConnected   MessageType = "connected"   // 连接成功
	MsgReconnected MessageType = "reconnected" // 重连成功
	MsgPong        MessageType = "pong"        // 心跳 pong
	MsgClockSync   MessageType = "clock_sync"  // 时钟偏移估计

	// 房间相关
	MsgRoomJoined MessageType = "room_joined" // 加入房间成功
	MsgRoomLeft   MessageType = "room_left"   // 已离开房间
	MsgRoomList   MessageType = "room_list"   // 房间列表结果

	// 游戏流程
	MsgEvent        MessageType = "event"         // 会话事件（带序号）
	MsgResyncResult MessageType = "resync_result" // 补发结果
	MsgAnswerResult MessageType = "answer_result" // 答案受理结果

	// 错误
	MsgError MessageType = "error" // 错误消息
)
