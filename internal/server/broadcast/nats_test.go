package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/testutil"
)

type captureConn struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (c *captureConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func phaseEvent(seq uint64) session.Event {
	return session.Event{
		SessionID:       "s1",
		Sequence:        seq,
		Type:            session.EventPhaseChanged,
		Data:            session.PhaseChanged{Phase: session.PhaseQuestionActive, Round: 1, TotalRounds: 3, QuestionID: "q1"},
		ServerTimestamp: time.UnixMilli(1_700_000_000_000),
	}
}

func TestNATSPublisher_Subject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		want   string
	}{
		{"quiz.rooms", "quiz.rooms.general.events"},
		{"", "quiz.rooms.general.events"},
		{"staging.quiz", "staging.quiz.general.events"},
	}
	for _, tt := range tests {
		p := NewNATSPublisher(&captureConn{}, tt.prefix)
		assert.Equal(t, tt.want, p.Subject("general"))
	}
}

func TestNATSPublisher_PublishEnvelope(t *testing.T) {
	t.Parallel()

	conn := &captureConn{}
	p := NewNATSPublisher(conn, "quiz.rooms")
	p.Publish("general", phaseEvent(7))

	require.Len(t, conn.msgs, 1)
	msg := conn.msgs[0]
	assert.Equal(t, "quiz.rooms.general.events", msg.Subject)
	assert.Equal(t, "phase_changed", msg.Header.Get("Event-Type"))
	assert.Equal(t, "s1", msg.Header.Get("Session-ID"))
	assert.Equal(t, "7", msg.Header.Get("Sequence"))

	ev, err := codec.DecodeEnvelope(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, uint64(7), ev.Sequence)
	assert.Equal(t, int64(1_700_000_000_000), ev.ServerTimestamp)

	var pc session.PhaseChanged
	require.NoError(t, json.Unmarshal(ev.Payload, &pc))
	assert.Equal(t, session.PhaseQuestionActive, pc.Phase)
	assert.Equal(t, "q1", pc.QuestionID)
	assert.Equal(t, int64(1), p.Published())
}

func TestNATSPublisher_FailureIsCounted(t *testing.T) {
	t.Parallel()

	conn := &captureConn{err: errors.New("nats: connection closed")}
	p := NewNATSPublisher(conn, "")
	p.Publish("general", phaseEvent(1))

	assert.Equal(t, int64(0), p.Published())
	assert.Equal(t, int64(1), p.Failed())
	assert.NoError(t, p.Close())
}

func TestFanout(t *testing.T) {
	t.Parallel()

	a := testutil.NewRecordingPublisher()
	b := testutil.NewRecordingPublisher()
	f := Fanout{a, nil, b}

	f.Publish("general", phaseEvent(1))
	f.SendResync("general", "p1", session.ResyncResult{Events: []session.Event{phaseEvent(1)}})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Len(t, a.Resyncs("p1"), 1)
	assert.Len(t, b.Resyncs("p1"), 1)
}
