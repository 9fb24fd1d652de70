// Package synthetic 托管（AI）玩家：补位与断线接管时代替真人作答
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/palemoky/quiz-rooms/internal/game/question"
)

// ErrNoMove 截止前没有给出答案（不是故障）
var ErrNoMove = errors.New("no move before deadline")

// Move 托管玩家的作答
type Move struct {
	Answer      string
	SubmittedAt time.Time
}

// Player 托管玩家接口
type Player interface {
	RequestMove(ctx context.Context, participantID string, q *question.Question, deadline time.Time) (Move, error)
}

// Options 默认托管玩家参数
type Options struct {
	MinThink time.Duration
	MaxThink time.Duration
	HitPct   int // 答对概率（百分比）
}

// Bot 默认托管玩家：随机思考一段时间后按命中率作答
type Bot struct {
	clock clockwork.Clock
	opts  Options

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBot 创建托管玩家
func NewBot(clock clockwork.Clock, opts Options, seed uint64) *Bot {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.MaxThink < opts.MinThink {
		opts.MaxThink = opts.MinThink
	}
	opts.HitPct = min(max(opts.HitPct, 0), 100)
	return &Bot{
		clock: clock,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// RequestMove 思考后作答；思考时间超过截止时间时在截止时返回 ErrNoMove
func (b *Bot) RequestMove(ctx context.Context, participantID string, q *question.Question, deadline time.Time) (Move, error) {
	if q == nil {
		return Move{}, fmt.Errorf("synthetic player %s: nil question", participantID)
	}

	think, answer := b.decide(q)
	wait := think
	late := false
	if remaining := deadline.Sub(b.clock.Now()); remaining <= think {
		wait, late = max(remaining, 0), true
	}

	t := b.clock.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Move{}, ctx.Err()
	case <-t.Chan():
	}

	if late {
		return Move{}, ErrNoMove
	}
	return Move{Answer: answer, SubmittedAt: b.clock.Now()}, nil
}

func (b *Bot) decide(q *question.Question) (time.Duration, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	think := b.opts.MinThink
	if span := b.opts.MaxThink - b.opts.MinThink; span > 0 {
		think += time.Duration(b.rng.Int64N(int64(span)))
	}

	if b.rng.IntN(100) < b.opts.HitPct {
		return think, q.CorrectAnswer
	}

	var wrong []string
	for _, opt := range q.Options {
		if opt != q.CorrectAnswer {
			wrong = append(wrong, opt)
		}
	}
	if len(wrong) == 0 {
		return think, "?"
	}
	return think, wrong[b.rng.IntN(len(wrong))]
}

var botNames = []string{"Ada", "Turing", "Hopper", "Lovelace", "Knuth", "Dijkstra", "Ritchie", "Pike", "Thompson", "Liskov"}

// Identity 托管玩家身份
type Identity struct {
	ID   string
	Name string
}

// NewIdentity 生成托管玩家 ID 与昵称
func NewIdentity() Identity {
	id := uuid.NewString()
	return Identity{
		ID:   "bot-" + id[:8],
		Name: botNames[rand.IntN(len(botNames))] + "🤖",
	}
}
