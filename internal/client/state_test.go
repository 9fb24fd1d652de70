package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

func event(t *testing.T, sessionID string, seq uint64, typ session.EventType, data any) protocol.EventPayload {
	t.Helper()
	ev, err := session.Event{
		SessionID:       sessionID,
		Sequence:        seq,
		Type:            typ,
		Data:            data,
		ServerTimestamp: time.UnixMilli(1_000),
	}.Wire()
	require.NoError(t, err)
	return ev
}

func questionActive(t *testing.T, sessionID string, seq uint64, round int, deadlineMs int64) protocol.EventPayload {
	t.Helper()
	return event(t, sessionID, seq, session.EventPhaseChanged, session.PhaseChanged{
		Phase:       session.PhaseQuestionActive,
		Round:       round,
		TotalRounds: 3,
		DeadlineMs:  deadlineMs,
		QuestionID:  "q1",
		Prompt:      "2 + 2 = ?",
		Options:     []string{"3", "4", "5"},
	})
}

func TestState_AppliesInOrder(t *testing.T) {
	t.Parallel()
	s := NewState()

	countdown := event(t, "s1", 1, session.EventPhaseChanged, session.PhaseChanged{
		Phase: session.PhaseCountdown, TotalRounds: 3, DeadlineMs: 5_000,
	})
	assert.Equal(t, Applied, s.Apply(countdown))
	v := s.View()
	assert.Equal(t, "s1", v.SessionID)
	assert.Equal(t, session.PhaseCountdown, v.Phase)
	assert.Equal(t, time.UnixMilli(5_000), v.Deadline)

	assert.Equal(t, Applied, s.Apply(questionActive(t, "s1", 2, 1, 20_000)))
	v = s.View()
	assert.Equal(t, uint64(2), v.Sequence)
	assert.Equal(t, session.PhaseQuestionActive, v.Phase)
	assert.Equal(t, 1, v.Round)
	assert.Equal(t, 3, v.TotalRounds)
	assert.Equal(t, "2 + 2 = ?", v.Prompt)
	assert.Equal(t, []string{"3", "4", "5"}, v.Options)

	assert.Equal(t, Duplicate, s.Apply(questionActive(t, "s1", 2, 1, 20_000)))
	assert.Equal(t, Duplicate, s.Apply(countdown))
	assert.Equal(t, Gap, s.Apply(event(t, "s1", 4, session.EventParticipantLeft, session.ParticipantLeft{ParticipantID: "p2"})))
	assert.Equal(t, uint64(2), s.Sequence())
}

func TestState_BeginResyncOnce(t *testing.T) {
	t.Parallel()
	s := NewState()

	assert.True(t, s.BeginResync())
	assert.False(t, s.BeginResync())

	s.ApplyResync(protocol.ResyncResult{})
	assert.True(t, s.BeginResync())
}

func TestState_ApplyResyncFillsGap(t *testing.T) {
	t.Parallel()
	s := NewState()

	first := event(t, "s1", 1, session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p1", Name: "One", Kind: session.KindHuman})
	require.Equal(t, Applied, s.Apply(first))
	require.Equal(t, Gap, s.Apply(questionActive(t, "s1", 3, 1, 20_000)))
	require.True(t, s.BeginResync())

	applied := s.ApplyResync(protocol.ResyncResult{Events: []protocol.EventPayload{
		first,
		event(t, "s1", 2, session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p2", Name: "Two", Kind: session.KindSynthetic}),
		questionActive(t, "s1", 3, 1, 20_000),
	}})

	require.Len(t, applied, 2)
	assert.Equal(t, uint64(2), applied[0].Sequence)
	assert.Equal(t, uint64(3), applied[1].Sequence)

	v := s.View()
	assert.Equal(t, uint64(3), v.Sequence)
	assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, v.Scores)
	assert.True(t, s.BeginResync(), "resync result clears the pending flag")
}

func TestState_SnapshotReplacesView(t *testing.T) {
	t.Parallel()
	s := NewState()
	s.SetSelf("p1")
	require.Equal(t, Applied, s.Apply(event(t, "old", 1, session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "x"})))

	s.ApplyResync(protocol.ResyncResult{Snapshot: &protocol.SnapshotDTO{
		SessionID:   "s2",
		Phase:       string(session.PhaseQuestionActive),
		Sequence:    7,
		Round:       2,
		TotalRounds: 3,
		DeadlineMs:  30_000,
		Prompt:      "Capital of France?",
		Options:     []string{"Paris", "Rome"},
		Players: []protocol.ParticipantDTO{
			{ID: "p1", Name: "One", Kind: string(session.KindHuman), Status: string(presence.Connected), Score: 10, Answered: true},
			{ID: "p2", Name: "Two", Kind: string(session.KindHuman), Status: string(presence.Connected), Score: 4},
		},
	}})

	v := s.View()
	assert.Equal(t, "s2", v.SessionID)
	assert.Equal(t, uint64(7), v.Sequence)
	assert.Equal(t, session.PhaseQuestionActive, v.Phase)
	assert.Equal(t, time.UnixMilli(30_000), v.Deadline)
	assert.Equal(t, "Capital of France?", v.Prompt)
	assert.True(t, v.Answered)
	assert.Equal(t, map[string]int{"p1": 10, "p2": 4}, v.Scores)

	// 快照之后的事件照常按序应用
	assert.Equal(t, Applied, s.Apply(event(t, "s2", 8, session.EventParticipantLeft, session.ParticipantLeft{ParticipantID: "p2"})))
	assert.NotContains(t, s.View().Scores, "p2")
}

func TestState_NewSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		first   uint64
		want    ApplyResult
		wantSeq uint64
	}{
		{"from the start", 1, Applied, 1},
		{"joined midway", 5, Gap, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewState()
			require.Equal(t, Applied, s.Apply(event(t, "s1", 1, session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p1"})))

			got := s.Apply(event(t, "s2", tt.first, session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p9"}))
			assert.Equal(t, tt.want, got)

			v := s.View()
			assert.Equal(t, "s2", v.SessionID)
			assert.Equal(t, tt.wantSeq, v.Sequence)
			assert.NotContains(t, v.Scores, "p1")
		})
	}
}

func TestState_TracksScoresAndOwnAnswer(t *testing.T) {
	t.Parallel()
	s := NewState()
	s.SetSelf("p1")

	seq := uint64(0)
	next := func(typ session.EventType, data any) ApplyResult {
		seq++
		return s.Apply(event(t, "s1", seq, typ, data))
	}

	require.Equal(t, Applied, next(session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p1"}))
	require.Equal(t, Applied, next(session.EventParticipantJoined, session.ParticipantJoined{ParticipantID: "p2"}))
	seq++
	require.Equal(t, Applied, s.Apply(questionActive(t, "s1", seq, 1, 20_000)))
	assert.False(t, s.View().Answered)

	// 别人的作答不影响自己的状态
	require.Equal(t, Applied, next(session.EventAnswerAccepted, session.AnswerAccepted{ParticipantID: "p2", Round: 1}))
	assert.False(t, s.View().Answered)
	require.Equal(t, Applied, next(session.EventAnswerAccepted, session.AnswerAccepted{ParticipantID: "p1", Round: 1}))
	assert.True(t, s.View().Answered)

	require.Equal(t, Applied, next(session.EventRoundGraded, session.RoundGraded{
		Round: 1,
		Results: []session.RoundResult{
			{ParticipantID: "p1", Correct: true, Delta: 12, Score: 12},
			{ParticipantID: "p2", NoAnswer: true},
		},
	}))
	assert.Equal(t, map[string]int{"p1": 12, "p2": 0}, s.View().Scores)

	// 新一轮重置作答标记
	seq++
	require.Equal(t, Applied, s.Apply(questionActive(t, "s1", seq, 2, 40_000)))
	assert.False(t, s.View().Answered)

	require.Equal(t, Applied, next(session.EventSessionArchived, session.SessionArchived{
		Outcome: session.OutcomeAborted,
		Reason:  session.ReasonInsufficientParticipants,
	}))
	v := s.View()
	assert.Equal(t, session.PhaseAborted, v.Phase)
	assert.True(t, v.Deadline.IsZero())
}

func TestState_ViewIsCopy(t *testing.T) {
	t.Parallel()
	s := NewState()
	require.Equal(t, Applied, s.Apply(questionActive(t, "s1", 1, 1, 20_000)))

	v := s.View()
	v.Options[0] = "changed"
	v.Scores["intruder"] = 99

	again := s.View()
	assert.Equal(t, "3", again.Options[0])
	assert.NotContains(t, again.Scores, "intruder")
}
