package protocol

import "encoding/json"

// --- 客户端请求 Payloads ---

// ReconnectPayload 断线重连请求
type ReconnectPayload struct {
	Token        string `json:"token"`         // 重连令牌
	PlayerID     string `json:"player_id"`     // 玩家 ID
	LastSequence uint64 `json:"last_sequence"` // 客户端已应用的最后事件序号
}

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// ClockReportPayload 客户端完成一次 ping/pong 后上报的采样
type ClockReportPayload struct {
	PingSentAt     int64 `json:"ping_sent_at"`     // 客户端时钟，毫秒
	PongReceivedAt int64 `json:"pong_received_at"` // 客户端时钟，毫秒
	ServerTime     int64 `json:"server_time"`      // pong 中携带的服务器时间，毫秒
}

// JoinRoomPayload 加入房间请求
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name,omitempty"`
}

// SubmitAnswerPayload 提交答案请求
type SubmitAnswerPayload struct {
	Answer          string `json:"answer"`
	ClientTimestamp int64  `json:"client_timestamp"` // 仅供参考，不参与计分
}

// ResyncPayload 补发请求
type ResyncPayload struct {
	LastSequence uint64 `json:"last_sequence"`
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	PlayerID       string `json:"player_id"`
	PlayerName     string `json:"player_name"`
	ReconnectToken string `json:"reconnect_token"` // 重连令牌
	ServerTime     int64  `json:"server_time"`
}

// ReconnectedPayload 重连成功响应
type ReconnectedPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	RoomID     string `json:"room_id,omitempty"`
	Seated     bool   `json:"seated"` // 仍持有本局座位
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// ClockSyncPayload 服务器当前对该连接的时钟估计
type ClockSyncPayload struct {
	OffsetMs int64 `json:"offset_ms"`
	RTTMs    int64 `json:"rtt_ms"`
	Samples  int   `json:"samples"`
}

// RoomJoinedPayload 加入房间成功
type RoomJoinedPayload struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	SessionID   string `json:"session_id,omitempty"`
	Seated      bool   `json:"seated"`    // false 表示以观众身份加入
	Queued      bool   `json:"queued"`    // 在间歇期排队等待下一局
	Spectator   bool   `json:"spectator"` // 观战
	LastSeqHint uint64 `json:"last_sequence,omitempty"`
}

// RoomLeftPayload 离开房间
type RoomLeftPayload struct {
	RoomID string `json:"room_id"`
}

// RoomListItem 房间列表项
type RoomListItem struct {
	RoomID          string `json:"room_id"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	State           string `json:"state"`
	Phase           string `json:"phase,omitempty"`
	Queued          int    `json:"queued"`
	MaxParticipants int    `json:"max_participants"`
}

// RoomListPayload 房间列表
type RoomListPayload struct {
	Rooms []RoomListItem `json:"rooms"`
}

// EventPayload 会话事件
type EventPayload struct {
	SessionID       string          `json:"session_id"`
	Sequence        uint64          `json:"sequence"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	ServerTimestamp int64           `json:"server_timestamp"`
}

// ParticipantDTO 快照中的座位
type ParticipantDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Score    int    `json:"score"`
	Answered bool   `json:"answered"` // 当前轮是否已作答
}

// SnapshotDTO 全量状态快照（事件超出保留窗口时使用）
type SnapshotDTO struct {
	SessionID   string           `json:"session_id"`
	RoomID      string           `json:"room_id"`
	Phase       string           `json:"phase"`
	Sequence    uint64           `json:"sequence"`
	Round       int              `json:"round"`
	TotalRounds int              `json:"total_rounds"`
	DeadlineMs  int64            `json:"deadline_ms,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	Options     []string         `json:"options,omitempty"`
	Players     []ParticipantDTO `json:"players"`
}

// ResyncResult 补发结果：要么是事件列表，要么是快照
type ResyncResult struct {
	Events   []EventPayload `json:"events,omitempty"`
	Snapshot *SnapshotDTO   `json:"snapshot,omitempty"`
}

// AnswerResultPayload 答案受理结果
type AnswerResultPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"` // too-late/already-answered/not-accepting
	Round    int    `json:"round"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
