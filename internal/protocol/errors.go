package protocol

// 错误码
const (
	ErrCodeUnknown           = 1000
	ErrCodeInvalidMsg        = 1001
	ErrCodeRateLimit         = 1002 // 速率限制
	ErrCodeRoomNotFound      = 2001
	ErrCodeRoomFull          = 2002
	ErrCodeNotInRoom         = 2003
	ErrCodeGameStarted       = 2004 // 游戏已开始
	ErrCodeNotAccepting      = 3001 // 当前阶段不接受答案
	ErrCodeTooLate           = 3002 // 超过截止时间
	ErrCodeAlreadyAnswered   = 3003 // 本轮已作答
	ErrCodeSeatReplaced      = 3004 // 座位已被接管
	ErrCodeSessionClosed     = 3005 // 会话已结束
	ErrCodeReconnectInvalid  = 4001 // 重连令牌无效
	ErrCodeServerMaintenance = 5003 // 服务器维护中
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:           "未知错误",
	ErrCodeInvalidMsg:        "无效的消息格式",
	ErrCodeRateLimit:         "请求过于频繁",
	ErrCodeRoomNotFound:      "房间不存在",
	ErrCodeRoomFull:          "房间已满",
	ErrCodeNotInRoom:         "您不在房间中",
	ErrCodeGameStarted:       "游戏已开始",
	ErrCodeNotAccepting:      "not-accepting",
	ErrCodeTooLate:           "too-late",
	ErrCodeAlreadyAnswered:   "already-answered",
	ErrCodeSeatReplaced:      "座位已由托管玩家接管",
	ErrCodeSessionClosed:     "本局已结束",
	ErrCodeReconnectInvalid:  "重连令牌无效或已过期",
	ErrCodeServerMaintenance: "服务器维护中",
}
