//go:build !production

package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/palemoky/quiz-rooms/internal/game/question"
)

// ErrSourceDown 注入的题库故障
var ErrSourceDown = errors.New("question source down")

// StaticQuestions 固定题目的题库，可注入故障
type StaticQuestions struct {
	mu        sync.Mutex
	questions map[string]*question.Question
	ids       []string

	// 前 FailResolve 次 ResolveQuestion 返回 ErrSourceDown；小于 0 表示一直失败
	FailResolve  atomic.Int32
	ResolveCalls atomic.Int32
}

// NewStaticQuestions 生成 n 道题：id 为 q1..qn，正确答案为 "a1".."an"
func NewStaticQuestions(n int) *StaticQuestions {
	s := &StaticQuestions{questions: make(map[string]*question.Question, n)}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("q%d", i)
		answer := fmt.Sprintf("a%d", i)
		s.questions[id] = &question.Question{
			ID:            id,
			Category:      "test",
			Prompt:        "prompt " + id,
			Options:       []string{answer, "wrong"},
			CorrectAnswer: answer,
		}
		s.ids = append(s.ids, id)
	}
	return s
}

// Answer 返回某题的正确答案
func (s *StaticQuestions) Answer(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questions[id]; ok {
		return q.CorrectAnswer
	}
	return ""
}

// IDs 全部题目 ID
func (s *StaticQuestions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// ResolveQuestion 实现 question.Source
func (s *StaticQuestions) ResolveQuestion(ctx context.Context, id string) (*question.Question, error) {
	s.ResolveCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := s.FailResolve.Load(); n != 0 {
		if n > 0 {
			s.FailResolve.Add(-1)
		}
		return nil, ErrSourceDown
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, question.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

// GradeAnswer 实现 question.Source
func (s *StaticQuestions) GradeAnswer(q *question.Question, answer string) bool {
	return q != nil && strings.EqualFold(answer, q.CorrectAnswer)
}

// PickQuestions 实现 question.Picker：按顺序循环返回
func (s *StaticQuestions) PickQuestions(ctx context.Context, _ string, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := s.IDs()
	if len(ids) == 0 {
		return nil, question.ErrEmptyCategory
	}
	out := make([]string, n)
	for i := range out {
		out[i] = ids[i%len(ids)]
	}
	return out, nil
}
