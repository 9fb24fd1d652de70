package session

import (
	"time"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/retry"
)

// Settings 一局的参数，取自房间配置与全局游戏配置
type Settings struct {
	RoomID             string
	Category           string
	Rounds             int
	RoundTime          time.Duration
	MinParticipants    int
	MaxParticipants    int
	AllowSyntheticFill bool
	// TakeoverOnGrace 宽限期结束后是否由托管玩家接管座位，nil 时与 AllowSyntheticFill 一致
	TakeoverOnGrace    *bool

	Lobby          time.Duration
	Countdown      time.Duration
	Results        time.Duration
	SessionResults time.Duration
	GracePeriod    time.Duration
	GracePolicy    string

	EventBuffer int
	BaseScore   int
	SpeedBonus  int
	Retry       retry.Policy

	// QuestionIDs 非空时直接使用，不再向题库挑题
	QuestionIDs []string
}

// NewSettings 由配置生成
func NewSettings(room config.RoomConfig, game config.GameConfig) Settings {
	return Settings{
		RoomID:             room.ID,
		Category:           room.Category,
		Rounds:             room.Rounds,
		RoundTime:          room.RoundDuration(),
		MinParticipants:    room.MinParticipants,
		MaxParticipants:    room.MaxParticipants,
		AllowSyntheticFill: room.AllowSyntheticFill,
		TakeoverOnGrace:    game.TakeoverOnGrace,
		Lobby:              game.LobbyDuration(),
		Countdown:          game.CountdownDuration(),
		Results:            game.ResultsDuration(),
		SessionResults:     game.SessionResultsDuration(),
		GracePeriod:        game.GracePeriodDuration(),
		GracePolicy:        game.GracePolicy,
		EventBuffer:        game.EventBuffer,
		BaseScore:          game.BaseScore,
		SpeedBonus:         game.SpeedBonus,
		Retry: retry.Policy{
			Attempts: game.RetryAttempts,
			Backoff:  game.RetryBackoffDuration(),
			MaxDelay: 5 * time.Second,
		},
	}
}

func (s *Settings) takeoverOnGrace() bool {
	if s.TakeoverOnGrace != nil {
		return *s.TakeoverOnGrace
	}
	return s.AllowSyntheticFill
}

func (s *Settings) normalize() {
	s.Rounds = max(s.Rounds, 1)
	s.MinParticipants = max(s.MinParticipants, 1)
	if s.MaxParticipants <= 0 || s.MaxParticipants > config.MaxSeats {
		s.MaxParticipants = config.MaxSeats
	}
	if s.EventBuffer <= 0 {
		s.EventBuffer = 256
	}
	if s.GracePolicy == "" {
		s.GracePolicy = config.GracePolicyZero
	}
}
