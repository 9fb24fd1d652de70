package question

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuestions() []Question {
	return []Question{
		{ID: "q1", Category: "science", Prompt: "H2O?", Options: []string{"Water", "Salt"}, CorrectAnswer: "Water"},
		{ID: "q2", Category: "science", Prompt: "Closest star?", Options: []string{"Sun", "Sirius"}, CorrectAnswer: "Sun"},
		{ID: "q3", Category: "history", Prompt: "Year 1 + 1?", CorrectAnswer: "2"},
	}
}

func TestNewBank_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		q    Question
	}{
		{"missing id", Question{Prompt: "p", CorrectAnswer: "a"}},
		{"missing prompt", Question{ID: "x", CorrectAnswer: "a"}},
		{"missing answer", Question{ID: "x", Prompt: "p"}},
		{"answer not in options", Question{ID: "x", Prompt: "p", Options: []string{"b"}, CorrectAnswer: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewBank([]Question{tt.q})
			assert.Error(t, err)
		})
	}

	_, err := NewBank([]Question{sampleQuestions()[0], sampleQuestions()[0]})
	assert.ErrorContains(t, err, "duplicate id")
}

func TestBank_ResolveAndGrade(t *testing.T) {
	t.Parallel()

	b, err := NewBank(sampleQuestions())
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.ElementsMatch(t, []string{"science", "history"}, b.Categories())

	q, err := b.ResolveQuestion(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "H2O?", q.Prompt)
	assert.True(t, b.GradeAnswer(q, " water "))
	assert.False(t, b.GradeAnswer(q, "Salt"))
	assert.False(t, b.GradeAnswer(nil, "Water"))

	q.Options[0] = "mutated"
	again, _ := b.ResolveQuestion(context.Background(), "q1")
	assert.Equal(t, "Water", again.Options[0], "resolved questions are copies")

	_, err = b.ResolveQuestion(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.ResolveQuestion(ctx, "q1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBank_PickQuestions(t *testing.T) {
	t.Parallel()

	b, err := NewBank(sampleQuestions())
	require.NoError(t, err)

	ids, err := b.PickQuestions(context.Background(), "science", 5)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	for _, id := range ids {
		assert.Contains(t, []string{"q1", "q2"}, id)
	}

	ids, err = b.PickQuestions(context.Background(), "", 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q1", "q2", "q3"}, ids)

	_, err = b.PickQuestions(context.Background(), "sports", 1)
	assert.ErrorIs(t, err, ErrEmptyCategory)
}

func TestLoadBank(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "questions.yaml")
	data := `
questions:
  - id: geo-1
    category: geography
    prompt: "Capital of France?"
    options: [Paris, Lyon]
    answer: Paris
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	b, err := LoadBank(path)
	require.NoError(t, err)
	q, err := b.ResolveQuestion(context.Background(), "geo-1")
	require.NoError(t, err)
	assert.Equal(t, "Paris", q.CorrectAnswer)

	_, err = LoadBank(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
