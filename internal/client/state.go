package client

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// ApplyResult 应用一个事件的结果
type ApplyResult int

const (
	Applied   ApplyResult = iota // 按序应用
	Duplicate                    // 已应用过的序号，忽略
	Gap                          // 序号不连续，需要补发
)

// View 某一时刻的对局视图
type View struct {
	SessionID   string
	Sequence    uint64
	Phase       session.Phase
	Round       int
	TotalRounds int
	Deadline    time.Time // 服务器时间，零值表示当前阶段没有截止时间
	Prompt      string
	Options     []string
	Scores      map[string]int
	Answered    bool // 本轮已收到自己的作答受理
}

// State 客户端视角的当前对局，严格按序号应用事件
type State struct {
	mu             sync.RWMutex
	self           string
	view           View
	awaitingResync bool
}

// NewState 创建空状态
func NewState() *State {
	return &State{view: View{Scores: map[string]int{}}}
}

// SetSelf 设置自己的参与者 ID，用于识别本轮是否已作答
func (s *State) SetSelf(id string) {
	s.mu.Lock()
	s.self = id
	s.mu.Unlock()
}

// Reset 丢弃当前对局视图
func (s *State) Reset() {
	s.mu.Lock()
	s.reset("")
	s.mu.Unlock()
}

// Sequence 已应用的最后一个序号
func (s *State) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Sequence
}

// View 返回当前视图的副本
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.view
	v.Options = slices.Clone(s.view.Options)
	v.Scores = maps.Clone(s.view.Scores)
	return v
}

// Apply 应用一个实时事件。出现新的会话 ID 时从序号 0 重新开始
func (s *State) Apply(ev protocol.EventPayload) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ev)
}

// BeginResync 标记已请求补发；已在等待补发时返回 false
func (s *State) BeginResync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingResync {
		return false
	}
	s.awaitingResync = true
	return true
}

// ApplyResync 应用补发结果，返回其中新应用的事件
func (s *State) ApplyResync(res protocol.ResyncResult) []protocol.EventPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.awaitingResync = false
	if res.Snapshot != nil {
		s.load(res.Snapshot)
	}

	var applied []protocol.EventPayload
	for _, ev := range res.Events {
		if s.apply(ev) == Applied {
			applied = append(applied, ev)
		}
	}
	return applied
}

func (s *State) apply(ev protocol.EventPayload) ApplyResult {
	if ev.SessionID != s.view.SessionID {
		s.reset(ev.SessionID)
	}
	switch {
	case ev.Sequence <= s.view.Sequence:
		return Duplicate
	case ev.Sequence > s.view.Sequence+1:
		return Gap
	}

	s.view.Sequence = ev.Sequence
	s.fold(ev)
	return Applied
}

func (s *State) reset(sessionID string) {
	s.view = View{SessionID: sessionID, Scores: map[string]int{}}
	s.awaitingResync = false
}

func (s *State) fold(ev protocol.EventPayload) {
	switch session.EventType(ev.Type) {
	case session.EventPhaseChanged:
		var p session.PhaseChanged
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		s.view.Phase = p.Phase
		s.view.Round = p.Round
		s.view.TotalRounds = p.TotalRounds
		s.view.Deadline = time.Time{}
		if p.DeadlineMs > 0 {
			s.view.Deadline = time.UnixMilli(p.DeadlineMs)
		}
		if p.Phase == session.PhaseQuestionActive {
			s.view.Prompt = p.Prompt
			s.view.Options = p.Options
			s.view.Answered = false
		}
		for _, st := range p.Standings {
			s.view.Scores[st.ParticipantID] = st.Score
		}

	case session.EventAnswerAccepted:
		var p session.AnswerAccepted
		if json.Unmarshal(ev.Payload, &p) == nil && p.ParticipantID == s.self && p.Round == s.view.Round {
			s.view.Answered = true
		}

	case session.EventRoundGraded:
		var p session.RoundGraded
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		for _, r := range p.Results {
			s.view.Scores[r.ParticipantID] = r.Score
		}

	case session.EventParticipantJoined:
		var p session.ParticipantJoined
		if json.Unmarshal(ev.Payload, &p) == nil {
			if _, ok := s.view.Scores[p.ParticipantID]; !ok {
				s.view.Scores[p.ParticipantID] = 0
			}
		}

	case session.EventParticipantLeft:
		var p session.ParticipantLeft
		if json.Unmarshal(ev.Payload, &p) == nil {
			delete(s.view.Scores, p.ParticipantID)
		}

	case session.EventSessionArchived:
		var p session.SessionArchived
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		s.view.Phase = session.PhaseArchived
		if p.Outcome == session.OutcomeAborted {
			s.view.Phase = session.PhaseAborted
		}
		s.view.Deadline = time.Time{}
		for _, st := range p.Standings {
			s.view.Scores[st.ParticipantID] = st.Score
		}
	}
}

func (s *State) load(snap *protocol.SnapshotDTO) {
	s.view = View{
		SessionID:   snap.SessionID,
		Sequence:    snap.Sequence,
		Phase:       session.Phase(snap.Phase),
		Round:       snap.Round,
		TotalRounds: snap.TotalRounds,
		Prompt:      snap.Prompt,
		Options:     slices.Clone(snap.Options),
		Scores:      make(map[string]int, len(snap.Players)),
	}
	if snap.DeadlineMs > 0 {
		s.view.Deadline = time.UnixMilli(snap.DeadlineMs)
	}
	for _, p := range snap.Players {
		s.view.Scores[p.ID] = p.Score
		if p.ID == s.self {
			s.view.Answered = p.Answered
		}
	}
}
