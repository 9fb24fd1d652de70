package codec

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quiz-rooms/internal/protocol"
)

func TestBufferPool_PutNil(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { putBuffer(nil) })
}

func TestBufferPool_Concurrent(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := getBuffer()
			buf.WriteString("hello")
			putBuffer(buf)
		}()
	}
	wg.Wait()
}

func TestBufferPool_ReturnsResetBuffers(t *testing.T) {
	t.Parallel()

	buf := getBuffer()
	buf.WriteString("stale")
	putBuffer(buf)

	// 池可能返回任意缓冲，但一定是空的
	for range 10 {
		b := getBuffer()
		assert.Zero(t, b.Len())
		putBuffer(b)
	}
}

func TestEncode_LargeMessageAfterSmall(t *testing.T) {
	t.Parallel()

	small := MustNewMessage(protocol.MsgPing, protocol.PingPayload{Timestamp: 1})
	large := MustNewMessage(protocol.MsgSubmitAnswer, protocol.SubmitAnswerPayload{
		Answer: strings.Repeat("x", 2*maxPooledBuffer),
	})

	for _, m := range []*protocol.Message{small, large, small} {
		data, err := Encode(m)
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, m.Type, decoded.Type)
		assert.JSONEq(t, string(m.Payload), string(decoded.Payload))
	}
}

func TestDecode_MessagesAreIndependent(t *testing.T) {
	t.Parallel()

	first, err := Decode([]byte(`{"type":"ping","payload":{"timestamp":1}}`))
	require.NoError(t, err)
	second, err := Decode([]byte(`{"type":"leave_room"}`))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, protocol.MsgPing, first.Type)
	assert.JSONEq(t, `{"timestamp":1}`, string(first.Payload))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	msg := MustNewMessage(protocol.MsgSubmitAnswer, protocol.SubmitAnswerPayload{
		Answer:          "B",
		ClientTimestamp: 1234,
	})

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgSubmitAnswer, decoded.Type)

	payload, err := ParsePayload[protocol.SubmitAnswerPayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "B", payload.Answer)
	assert.Equal(t, int64(1234), payload.ClientTimestamp)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "{oops"},
		{"missing type", `{"payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParsePayload_Empty(t *testing.T) {
	t.Parallel()

	msg := &protocol.Message{Type: protocol.MsgListRooms}
	payload, err := ParsePayload[protocol.ResyncPayload](msg)
	require.NoError(t, err)
	assert.Zero(t, payload.LastSequence)
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()

	msg := NewErrorMessage(protocol.ErrCodeAlreadyAnswered)
	payload, err := ParsePayload[protocol.ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeAlreadyAnswered, payload.Code)
	assert.Equal(t, "already-answered", payload.Message)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	ev := protocol.EventPayload{
		SessionID:       "s-1",
		Sequence:        42,
		Type:            "RoundGraded",
		Payload:         json.RawMessage(`{"round":2,"correct_answer":"Paris"}`),
		ServerTimestamp: 1700000000123,
	}

	data, err := EncodeEnvelope(ev)
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, ev.SessionID, got.SessionID)
	assert.Equal(t, ev.Sequence, got.Sequence)
	assert.Equal(t, ev.Type, got.Type)
	assert.Equal(t, ev.ServerTimestamp, got.ServerTimestamp)
	assert.JSONEq(t, string(ev.Payload), string(got.Payload))
}
