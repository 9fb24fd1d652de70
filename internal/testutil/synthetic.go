//go:build !production

package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/palemoky/quiz-rooms/internal/game/question"
	"github.com/palemoky/quiz-rooms/internal/game/synthetic"
)

// ScriptedPlayer 托管玩家替身：立即作答，可配置答错、放弃或故障
type ScriptedPlayer struct {
	mu sync.Mutex
	// Wrong 中的座位总是答错
	Wrong map[string]bool
	// Pass 中的座位总是放弃（ErrNoMove）
	Pass map[string]bool
	// Err 非 nil 时所有请求返回该错误
	Err   error
	calls map[string]int
	block chan struct{}
}

// NewScriptedPlayer 创建替身
func NewScriptedPlayer() *ScriptedPlayer {
	return &ScriptedPlayer{
		Wrong: make(map[string]bool),
		Pass:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

// Block 之后的请求阻塞直到 Release 或 ctx 结束
func (p *ScriptedPlayer) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = make(chan struct{})
}

// Release 放行被阻塞的请求
func (p *ScriptedPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.block != nil {
		close(p.block)
		p.block = nil
	}
}

// SetErr 设置注入的错误
func (p *ScriptedPlayer) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

// Calls 某座位被请求作答的次数
func (p *ScriptedPlayer) Calls(participantID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[participantID]
}

// RequestMove 实现 synthetic.Player
func (p *ScriptedPlayer) RequestMove(ctx context.Context, participantID string, q *question.Question, _ time.Time) (synthetic.Move, error) {
	p.mu.Lock()
	p.calls[participantID]++
	block, err := p.block, p.Err
	wrong, pass := p.Wrong[participantID], p.Pass[participantID]
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return synthetic.Move{}, ctx.Err()
		}
	}
	if err != nil {
		return synthetic.Move{}, err
	}
	if pass {
		return synthetic.Move{}, synthetic.ErrNoMove
	}
	answer := q.CorrectAnswer
	if wrong {
		answer = "wrong"
	}
	return synthetic.Move{Answer: answer, SubmittedAt: time.Now()}, nil
}
