package session

import (
	"time"

	"github.com/palemoky/quiz-rooms/internal/game/presence"
)

// Phase 会话阶段
type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseCountdown       Phase = "countdown"
	PhaseQuestionActive  Phase = "question_active"
	PhaseQuestionGrading Phase = "question_grading"
	PhaseQuestionResults Phase = "question_results"
	PhaseSessionResults  Phase = "session_results"
	PhaseArchived        Phase = "archived"
	PhaseAborted         Phase = "aborted"
)

// Terminal 是否为终态
func (p Phase) Terminal() bool {
	return p == PhaseArchived || p == PhaseAborted
}

// Kind 座位类型
type Kind string

const (
	KindHuman     Kind = "human"
	KindSynthetic Kind = "synthetic"
)

// AbortReason 中止原因
type AbortReason string

const (
	ReasonInsufficientParticipants AbortReason = "insufficient_participants"
	ReasonQuestionSourceFailed     AbortReason = "question_source_unavailable"
	ReasonSyntheticFailed          AbortReason = "synthetic_unavailable"
	ReasonShutdown                 AbortReason = "shutdown"
	ReasonInternalError            AbortReason = "internal_error"
)

// Outcome 会话结局
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
)

// Seat 开局时的座位
type Seat struct {
	ID   string
	Name string
	Kind Kind
}

// Stats 单个座位的统计
type Stats struct {
	RoundsPlayed int `json:"rounds_played"`
	Answered     int `json:"answered"`
	Correct      int `json:"correct"`
}

// AnswerRecord 每轮作答记录
type AnswerRecord struct {
	Round      int       `json:"round"`
	Answer     string    `json:"answer,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Correct    bool      `json:"correct"`
	Delta      int       `json:"delta"`
	NoAnswer   bool      `json:"no_answer,omitempty"`
	Excluded   bool      `json:"excluded,omitempty"`
}

// Participant 会话中的座位
type Participant struct {
	ID        string
	Name      string
	Kind      Kind
	Status    presence.Status
	Score     int
	TakenOver bool // 真人座位已由托管玩家接管
	JoinedAt  time.Time
	Answers   []AnswerRecord
	Stats     Stats
}

// holdsSeat 是否仍计入在场人数：已连接的真人或托管座位，宽限期内不计
func (p *Participant) holdsSeat() bool {
	if p.Kind == KindSynthetic {
		return true
	}
	return p.Status == presence.Connected
}

// Submission 一次被受理的作答
type Submission struct {
	ParticipantID string
	Answer        string
	ReceivedAt    time.Time
	Order         int
	Synthetic     bool
}

// Round 一轮题目
type Round struct {
	Index       int
	QuestionID  string
	StartedAt   time.Time
	Deadline    time.Time
	Submissions map[string]*Submission
	NoMove      map[string]bool // 托管玩家明确放弃本轮
	Graded      bool
	nextOrder   int
}

func newRound(index int, questionID string, startedAt, deadline time.Time) *Round {
	return &Round{
		Index:       index,
		QuestionID:  questionID,
		StartedAt:   startedAt,
		Deadline:    deadline,
		Submissions: make(map[string]*Submission),
		NoMove:      make(map[string]bool),
	}
}

// Standing 排名
type Standing struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Kind          Kind   `json:"kind"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
	Stats         Stats  `json:"stats"`
}

// Summary Run 的返回值
type Summary struct {
	SessionID string
	RoomID    string
	Outcome   Outcome
	Reason    AbortReason
	Standings []Standing
	Sequence  uint64
}
