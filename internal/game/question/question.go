package question

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound 题目不存在
var ErrNotFound = errors.New("question not found")

// ErrEmptyCategory 分类下没有题目
var ErrEmptyCategory = errors.New("no questions in category")

// Question 题目
type Question struct {
	ID            string   `yaml:"id" json:"id"`
	Category      string   `yaml:"category" json:"category"`
	Prompt        string   `yaml:"prompt" json:"prompt"`
	Options       []string `yaml:"options" json:"options"`
	CorrectAnswer string   `yaml:"answer" json:"-"`
}

// Source 题目来源。引擎只通过该接口解析与判题，不关心题目内容
type Source interface {
	ResolveQuestion(ctx context.Context, id string) (*Question, error)
	GradeAnswer(q *Question, answer string) bool
}

// Picker 为一局挑选题目
type Picker interface {
	PickQuestions(ctx context.Context, category string, n int) ([]string, error)
}

// Bank 内存题库，实现 Source 与 Picker
type Bank struct {
	mu         sync.RWMutex
	byID       map[string]*Question
	byCategory map[string][]string
}

// NewBank 由题目列表创建题库
func NewBank(questions []Question) (*Bank, error) {
	b := &Bank{
		byID:       make(map[string]*Question, len(questions)),
		byCategory: make(map[string][]string),
	}
	var errs []error
	for i := range questions {
		q := questions[i]
		if err := validate(&q); err != nil {
			errs = append(errs, fmt.Errorf("question %d: %w", i, err))
			continue
		}
		if _, dup := b.byID[q.ID]; dup {
			errs = append(errs, fmt.Errorf("question %d: duplicate id %q", i, q.ID))
			continue
		}
		b.byID[q.ID] = &q
		b.byCategory[q.Category] = append(b.byCategory[q.Category], q.ID)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadBank 从 YAML 文件加载题库
func LoadBank(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question file: %w", err)
	}

	var file struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse question file: %w", err)
	}
	return NewBank(file.Questions)
}

func validate(q *Question) error {
	switch {
	case q.ID == "":
		return errors.New("missing id")
	case q.Prompt == "":
		return errors.New("missing prompt")
	case q.CorrectAnswer == "":
		return errors.New("missing answer")
	}
	if len(q.Options) > 0 {
		for _, opt := range q.Options {
			if strings.EqualFold(opt, q.CorrectAnswer) {
				return nil
			}
		}
		return fmt.Errorf("answer %q is not one of the options", q.CorrectAnswer)
	}
	return nil
}

// ResolveQuestion 按 ID 查询题目
func (b *Bank) ResolveQuestion(ctx context.Context, id string) (*Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	return &cp, nil
}

// GradeAnswer 判题：忽略首尾空白与大小写
func (b *Bank) GradeAnswer(q *Question, answer string) bool {
	if q == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}

// PickQuestions 在分类内随机挑选 n 道题；题量不足时循环补齐。
// 分类为空时从全部题目中挑选。
func (b *Bank) PickQuestions(ctx context.Context, category string, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var pool []string
	if category == "" {
		for id := range b.byID {
			pool = append(pool, id)
		}
	} else {
		pool = append(pool, b.byCategory[category]...)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyCategory, category)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	ids := make([]string, n)
	for i := range ids {
		ids[i] = pool[i%len(pool)]
	}
	return ids, nil
}

// Len 题目总数
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Categories 返回所有分类
func (b *Bank) Categories() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.byCategory))
	for c := range b.byCategory {
		out = append(out, c)
	}
	return out
}
