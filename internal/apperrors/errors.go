package apperrors

import (
	"errors"

	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// GameError 游戏错误（房间、会话与传输层共享）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrRoomNotFound     = &GameError{Code: protocol.ErrCodeRoomNotFound, Message: "房间不存在"}
	ErrRoomFull         = &GameError{Code: protocol.ErrCodeRoomFull, Message: "房间已满"}
	ErrNotInRoom        = &GameError{Code: protocol.ErrCodeNotInRoom, Message: "您不在房间中"}
	ErrGameStarted      = &GameError{Code: protocol.ErrCodeGameStarted, Message: "游戏已开始"}
	ErrNotInSession     = &GameError{Code: protocol.ErrCodeNotInRoom, Message: "您不在本局中"}
	ErrSeatReplaced     = &GameError{Code: protocol.ErrCodeSeatReplaced, Message: "座位已由托管玩家接管"}
	ErrSessionClosed    = &GameError{Code: protocol.ErrCodeSessionClosed, Message: "本局已结束"}
	ErrReconnectInvalid = &GameError{Code: protocol.ErrCodeReconnectInvalid, Message: "重连令牌无效或已过期"}

	// 答案拒绝原因，Message 即线上 reason 字符串
	ErrNotAccepting    = &GameError{Code: protocol.ErrCodeNotAccepting, Message: "not-accepting"}
	ErrTooLate         = &GameError{Code: protocol.ErrCodeTooLate, Message: "too-late"}
	ErrAlreadyAnswered = &GameError{Code: protocol.ErrCodeAlreadyAnswered, Message: "already-answered"}
)

// Code 提取错误码，非 GameError 返回 ErrCodeUnknown
func Code(err error) int {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return protocol.ErrCodeUnknown
}
