package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(l *EventLog, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		l.Append(Event{SessionID: "s", Sequence: seq, Type: EventPhaseChanged})
	}
}

func seqs(evs []Event) []uint64 {
	out := make([]uint64, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Sequence)
	}
	return out
}

func TestEventLog_Since(t *testing.T) {
	t.Parallel()

	l := NewEventLog(4)
	evs, ok := l.Since(0)
	assert.True(t, ok)
	assert.Empty(t, evs)

	appendN(l, 1, 3)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(1), l.Oldest())
	assert.Equal(t, uint64(3), l.Latest())

	evs, ok = l.Since(0)
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2, 3}, seqs(evs))

	evs, ok = l.Since(2)
	require.True(t, ok)
	assert.Equal(t, []uint64{3}, seqs(evs))

	evs, ok = l.Since(9)
	assert.True(t, ok)
	assert.Empty(t, evs)
}

func TestEventLog_WrapsAndReportsGap(t *testing.T) {
	t.Parallel()

	l := NewEventLog(3)
	appendN(l, 1, 7)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(5), l.Oldest())
	assert.Equal(t, uint64(7), l.Latest())

	tests := []struct {
		last uint64
		ok   bool
		want []uint64
	}{
		{last: 0, ok: false},
		{last: 3, ok: false},
		{last: 4, ok: true, want: []uint64{5, 6, 7}},
		{last: 6, ok: true, want: []uint64{7}},
		{last: 7, ok: true},
	}
	for _, tt := range tests {
		evs, ok := l.Since(tt.last)
		assert.Equal(t, tt.ok, ok, "last=%d", tt.last)
		if tt.ok {
			assert.Equal(t, len(tt.want), len(evs), "last=%d", tt.last)
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, seqs(evs))
			}
		}
	}
}

func TestScoring_FasterScoresStrictlyMore(t *testing.T) {
	t.Parallel()

	s := Scoring{Base: 500, SpeedBonus: 500, Limit: 10 * time.Second}

	tests := []struct {
		name    string
		latency time.Duration
		rank    int
		correct int
		want    int
	}{
		{"instant", 0, 0, 1, 1001},
		{"half time", 5 * time.Second, 0, 1, 751},
		{"at limit", 10 * time.Second, 0, 1, 501},
		{"past limit clamps bonus", 12 * time.Second, 0, 1, 501},
		{"second of two", 5 * time.Second, 1, 2, 751},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.Score(tt.latency, tt.rank, tt.correct))
		})
	}

	// 同一时刻收到的答案按提交顺序区分
	first := s.Score(3*time.Second, 0, 3)
	second := s.Score(3*time.Second, 1, 3)
	third := s.Score(3*time.Second, 2, 3)
	assert.Greater(t, first, second)
	assert.Greater(t, second, third)

	// 速度差异小于 1 分时名次项仍保证严格大于
	assert.Greater(t, s.Score(3*time.Second, 0, 2), s.Score(3*time.Second+time.Millisecond, 1, 2))
}

func TestEvent_Wire(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1_700_000_000_000)
	ev := Event{
		SessionID:       "s1",
		Sequence:        4,
		Type:            EventAnswerAccepted,
		Data:            AnswerAccepted{ParticipantID: "a", Round: 2},
		ServerTimestamp: ts,
	}
	w, err := ev.Wire()
	require.NoError(t, err)
	assert.Equal(t, "answer_accepted", w.Type)
	assert.Equal(t, uint64(4), w.Sequence)
	assert.Equal(t, ts.UnixMilli(), w.ServerTimestamp)
	assert.JSONEq(t, `{"participant_id":"a","round":2}`, string(w.Payload))

	_, err = Event{Type: EventPhaseChanged, Data: make(chan int)}.Wire()
	assert.Error(t, err)
}
