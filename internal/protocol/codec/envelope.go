package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// EncodeEnvelope 将会话事件编码为 Protobuf 字节（structpb.Struct），用于消息总线
func EncodeEnvelope(ev protocol.EventPayload) ([]byte, error) {
	var body any
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &body); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
	}
	payload, err := structpb.NewValue(body)
	if err != nil {
		return nil, fmt.Errorf("convert event payload: %w", err)
	}

	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id":       structpb.NewStringValue(ev.SessionID),
		"sequence":         structpb.NewNumberValue(float64(ev.Sequence)),
		"type":             structpb.NewStringValue(ev.Type),
		"server_timestamp": structpb.NewNumberValue(float64(ev.ServerTimestamp)),
		"payload":          payload,
	}}
	return proto.Marshal(st)
}

// DecodeEnvelope 从 Protobuf 字节还原会话事件
func DecodeEnvelope(data []byte) (protocol.EventPayload, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return protocol.EventPayload{}, err
	}

	fields := st.GetFields()
	ev := protocol.EventPayload{
		SessionID:       fields["session_id"].GetStringValue(),
		Sequence:        uint64(fields["sequence"].GetNumberValue()),
		Type:            fields["type"].GetStringValue(),
		ServerTimestamp: int64(fields["server_timestamp"].GetNumberValue()),
	}
	if p, ok := fields["payload"]; ok {
		raw, err := p.MarshalJSON()
		if err != nil {
			return protocol.EventPayload{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}
