package session

import (
	"time"

	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// ParticipantView 快照中的座位
type ParticipantView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Status   string `json:"status"`
	Score    int    `json:"score"`
	Answered bool   `json:"answered"`
	Stats    Stats  `json:"stats"`
}

// Snapshot 会话全量状态
type Snapshot struct {
	SessionID    string            `json:"session_id"`
	RoomID       string            `json:"room_id"`
	Phase        Phase             `json:"phase"`
	Sequence     uint64            `json:"sequence"`
	Round        int               `json:"round"`
	TotalRounds  int               `json:"total_rounds"`
	Deadline     time.Time         `json:"deadline"`
	QuestionID   string            `json:"question_id,omitempty"`
	Prompt       string            `json:"prompt,omitempty"`
	Options      []string          `json:"options,omitempty"`
	Participants []ParticipantView `json:"participants"`
	CreatedAt    time.Time         `json:"created_at"`
	Reason       AbortReason       `json:"reason,omitempty"`
}

// DTO 转换为线上格式
func (s *Snapshot) DTO() *protocol.SnapshotDTO {
	dto := &protocol.SnapshotDTO{
		SessionID:   s.SessionID,
		RoomID:      s.RoomID,
		Phase:       string(s.Phase),
		Sequence:    s.Sequence,
		Round:       s.Round,
		TotalRounds: s.TotalRounds,
		Prompt:      s.Prompt,
		Options:     s.Options,
		Players:     make([]protocol.ParticipantDTO, 0, len(s.Participants)),
	}
	if !s.Deadline.IsZero() {
		dto.DeadlineMs = s.Deadline.UnixMilli()
	}
	for _, p := range s.Participants {
		dto.Players = append(dto.Players, protocol.ParticipantDTO{
			ID:       p.ID,
			Name:     p.Name,
			Kind:     string(p.Kind),
			Status:   p.Status,
			Score:    p.Score,
			Answered: p.Answered,
		})
	}
	return dto
}

// ResyncResult 补发结果：事件列表或快照，二选一
type ResyncResult struct {
	Events   []Event
	Snapshot *Snapshot
}

// Wire 转换为线上格式
func (r ResyncResult) Wire() (protocol.ResyncResult, error) {
	var out protocol.ResyncResult
	if r.Snapshot != nil {
		out.Snapshot = r.Snapshot.DTO()
		return out, nil
	}
	out.Events = make([]protocol.EventPayload, 0, len(r.Events))
	for _, ev := range r.Events {
		w, err := ev.Wire()
		if err != nil {
			return protocol.ResyncResult{}, err
		}
		out.Events = append(out.Events, w)
	}
	return out, nil
}

// Publisher 事件出口。实现方不得阻塞：调用发生在会话的 actor 内
type Publisher interface {
	// Publish 向本局所有在线座位与观众广播
	Publish(roomID string, ev Event)
	// SendResync 只发给某个参与者
	SendResync(roomID, participantID string, res ResyncResult)
}

// SnapshotSink 每次阶段切换后接收快照（例如持久化到缓存）
type SnapshotSink interface {
	SaveSnapshot(snap Snapshot)
}
