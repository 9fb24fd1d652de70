// Package broadcast 把会话事件流转发到外部消息总线
package broadcast

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
)

// MsgPublisher *nats.Conn 满足该接口
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher 将每个会话事件以 Protobuf 信封发布到 <prefix>.<room>.events
type NATSPublisher struct {
	conn      MsgPublisher
	nc        *nats.Conn
	prefix    string
	published atomic.Int64
	failed    atomic.Int64
}

// Connect 连接 NATS 并创建发布器
func Connect(cfg config.NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("quiz-rooms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS 连接断开")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS 已重连")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS 错误")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := NewNATSPublisher(nc, cfg.SubjectPrefix)
	p.nc = nc
	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", p.prefix).Msg("📡 NATS 事件总线已连接")
	return p, nil
}

// NewNATSPublisher 使用已有连接创建发布器
func NewNATSPublisher(conn MsgPublisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "quiz.rooms"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject 房间事件主题
func (p *NATSPublisher) Subject(roomID string) string {
	return p.prefix + "." + roomID + ".events"
}

// Publish 实现 session.Publisher。发布失败只记录日志，不影响对局
func (p *NATSPublisher) Publish(roomID string, ev session.Event) {
	msg, err := p.message(roomID, ev)
	if err == nil {
		err = p.conn.PublishMsg(msg)
	}
	if err != nil {
		p.failed.Add(1)
		log.Warn().Err(err).
			Str("room_id", roomID).
			Str("session_id", ev.SessionID).
			Uint64("sequence", ev.Sequence).
			Msg("发布会话事件失败")
		return
	}
	p.published.Add(1)
}

// SendResync 补发是点对点的，不经过总线
func (p *NATSPublisher) SendResync(string, string, session.ResyncResult) {}

func (p *NATSPublisher) message(roomID string, ev session.Event) (*nats.Msg, error) {
	wire, err := ev.Wire()
	if err != nil {
		return nil, err
	}
	data, err := codec.EncodeEnvelope(wire)
	if err != nil {
		return nil, err
	}
	return &nats.Msg{
		Subject: p.Subject(roomID),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(ev.Type)},
			"Session-ID": []string{ev.SessionID},
			"Sequence":   []string{strconv.FormatUint(ev.Sequence, 10)},
		},
	}, nil
}

// Published 成功发布的事件数
func (p *NATSPublisher) Published() int64 { return p.published.Load() }

// Failed 发布失败的事件数
func (p *NATSPublisher) Failed() int64 { return p.failed.Load() }

// Close 发送缓冲中的消息后关闭连接
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
