package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// EventType 会话事件类型
type EventType string

const (
	EventPhaseChanged             EventType = "phase_changed"
	EventAnswerAccepted           EventType = "answer_accepted"
	EventRoundGraded              EventType = "round_graded"
	EventParticipantStatusChanged EventType = "participant_status_changed"
	EventParticipantJoined        EventType = "participant_joined"
	EventParticipantLeft          EventType = "participant_left"
	EventSessionArchived          EventType = "session_archived"
)

// Event 会话事件，序号在会话内严格递增且无间隙
type Event struct {
	SessionID       string
	Sequence        uint64
	Type            EventType
	Data            any
	ServerTimestamp time.Time
}

// Wire 转换为线上格式
func (e Event) Wire() (protocol.EventPayload, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return protocol.EventPayload{}, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return protocol.EventPayload{
		SessionID:       e.SessionID,
		Sequence:        e.Sequence,
		Type:            string(e.Type),
		Payload:         raw,
		ServerTimestamp: e.ServerTimestamp.UnixMilli(),
	}, nil
}

// PhaseChanged 阶段切换
type PhaseChanged struct {
	Phase       Phase       `json:"phase"`
	Round       int         `json:"round,omitempty"`
	TotalRounds int         `json:"total_rounds"`
	DeadlineMs  int64       `json:"deadline_ms,omitempty"`
	QuestionID  string      `json:"question_id,omitempty"`
	Prompt      string      `json:"prompt,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Reason      AbortReason `json:"reason,omitempty"`
	Standings   []Standing  `json:"standings,omitempty"`
}

// AnswerAccepted 某座位本轮作答已受理（不公开答案）
type AnswerAccepted struct {
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
	Synthetic     bool   `json:"synthetic,omitempty"`
}

// RoundResult 单个座位的本轮结果
type RoundResult struct {
	ParticipantID string `json:"participant_id"`
	Answer        string `json:"answer,omitempty"`
	Correct       bool   `json:"correct"`
	Delta         int    `json:"delta"`
	Score         int    `json:"score"`
	NoAnswer      bool   `json:"no_answer,omitempty"`
	Excluded      bool   `json:"excluded,omitempty"`
	Synthetic     bool   `json:"synthetic,omitempty"`
}

// RoundGraded 本轮判分
type RoundGraded struct {
	Round         int           `json:"round"`
	QuestionID    string        `json:"question_id"`
	CorrectAnswer string        `json:"correct_answer"`
	Results       []RoundResult `json:"results"`
}

// ParticipantStatusChanged 座位连接状态变化
type ParticipantStatusChanged struct {
	ParticipantID string          `json:"participant_id"`
	Status        presence.Status `json:"status"`
	Kind          Kind            `json:"kind"`
	GraceUntilMs  int64           `json:"grace_until_ms,omitempty"`
}

// ParticipantJoined 大厅阶段入座（含补位托管玩家）
type ParticipantJoined struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Kind          Kind   `json:"kind"`
}

// ParticipantLeft 大厅阶段离座
type ParticipantLeft struct {
	ParticipantID string `json:"participant_id"`
}

// SessionArchived 会话归档
type SessionArchived struct {
	Outcome   Outcome     `json:"outcome"`
	Reason    AbortReason `json:"reason,omitempty"`
	Standings []Standing  `json:"standings,omitempty"`
}
