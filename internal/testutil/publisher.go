//go:build !production

package testutil

import (
	"sync"

	"github.com/palemoky/quiz-rooms/internal/game/session"
)

// RecordingPublisher 记录所有发布的事件与补发结果
type RecordingPublisher struct {
	mu      sync.Mutex
	events  []session.Event
	resyncs map[string][]session.ResyncResult
	snaps   []session.Snapshot
}

// NewRecordingPublisher 创建记录器
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{resyncs: make(map[string][]session.ResyncResult)}
}

// Publish 实现 session.Publisher
func (p *RecordingPublisher) Publish(_ string, ev session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// SendResync 实现 session.Publisher
func (p *RecordingPublisher) SendResync(_, participantID string, res session.ResyncResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resyncs[participantID] = append(p.resyncs[participantID], res)
}

// SaveSnapshot 实现 session.SnapshotSink
func (p *RecordingPublisher) SaveSnapshot(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
}

// Events 全部事件副本
func (p *RecordingPublisher) Events() []session.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Event(nil), p.events...)
}

// OfType 某类型的事件
func (p *RecordingPublisher) OfType(t session.EventType) []session.Event {
	var out []session.Event
	for _, ev := range p.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Phases 依次经历的阶段
func (p *RecordingPublisher) Phases() []session.Phase {
	var out []session.Phase
	for _, ev := range p.OfType(session.EventPhaseChanged) {
		out = append(out, ev.Data.(session.PhaseChanged).Phase)
	}
	return out
}

// LastPhase 最近一次阶段
func (p *RecordingPublisher) LastPhase() session.Phase {
	phases := p.Phases()
	if len(phases) == 0 {
		return ""
	}
	return phases[len(phases)-1]
}

// Statuses 某座位的状态变化序列
func (p *RecordingPublisher) Statuses(participantID string) []session.ParticipantStatusChanged {
	var out []session.ParticipantStatusChanged
	for _, ev := range p.OfType(session.EventParticipantStatusChanged) {
		if sc := ev.Data.(session.ParticipantStatusChanged); sc.ParticipantID == participantID {
			out = append(out, sc)
		}
	}
	return out
}

// Resyncs 发给某参与者的补发结果
func (p *RecordingPublisher) Resyncs(participantID string) []session.ResyncResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.ResyncResult(nil), p.resyncs[participantID]...)
}

// Snapshots 收到的快照
func (p *RecordingPublisher) Snapshots() []session.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Snapshot(nil), p.snaps...)
}
