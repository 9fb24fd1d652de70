package client

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
)

// readPump 从服务器读取消息
func (c *Client) readPump(l *link) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Error().Interface("panic", r).Msg("readPump panic recovered")
		}
		l.close()
		c.linkLost(l)
	}()

	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("连接异常断开")
			}
			return
		}

		msg, err := codec.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("消息解析错误")
			continue
		}
		c.handle(l, msg)
	}
}

// writePump 向服务器写入消息
func (c *Client) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Error().Interface("panic", r).Msg("writePump panic recovered")
		}
		ticker.Stop()
		l.close()
	}()

	for {
		select {
		case data := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-l.done:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// sendOn 向指定连接写入消息，不阻塞
func (c *Client) sendOn(l *link, msg *protocol.Message) error {
	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return ErrNotConnected
	default:
	}
	select {
	case l.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// handle 处理一条服务器消息，然后交给回调和接收队列
func (c *Client) handle(l *link, msg *protocol.Message) {
	reconnected := false

	switch msg.Type {
	case protocol.MsgConnected:
		if p, err := codec.ParsePayload[protocol.ConnectedPayload](msg); err == nil {
			c.onConnected(l, p)
		}

	case protocol.MsgReconnected:
		if p, err := codec.ParsePayload[protocol.ReconnectedPayload](msg); err == nil {
			c.setIdentity(p.PlayerID, p.PlayerName, "")
			c.setRoom(p.RoomID)
			c.mu.Lock()
			c.pending = nil
			c.mu.Unlock()
			c.reconnecting.Store(false)
			reconnected = true
			log.Info().Str("player_id", p.PlayerID).Str("room_id", p.RoomID).Bool("seated", p.Seated).Msg("✅ 重连成功")
		}

	case protocol.MsgPong:
		if p, err := codec.ParsePayload[protocol.PongPayload](msg); err == nil {
			c.onPong(l, p)
		}

	case protocol.MsgRoomJoined:
		if p, err := codec.ParsePayload[protocol.RoomJoinedPayload](msg); err == nil {
			c.setRoom(p.RoomID)
		}

	case protocol.MsgRoomLeft:
		c.setRoom("")

	case protocol.MsgEvent:
		if ev, err := codec.ParsePayload[protocol.EventPayload](msg); err == nil {
			c.onEvent(l, *ev)
		}

	case protocol.MsgResyncResult:
		if res, err := codec.ParsePayload[protocol.ResyncResult](msg); err == nil {
			for _, ev := range c.state.ApplyResync(*res) {
				c.emit(ev)
			}
		}

	case protocol.MsgError:
		if p, err := codec.ParsePayload[protocol.ErrorPayload](msg); err == nil {
			c.onError(p)
		}
	}

	if c.OnMessage != nil {
		c.OnMessage(msg)
	}
	select {
	case c.receive <- msg:
	default:
	}

	// 重连回调放在最后，确保消息已经进入接收队列
	if reconnected && c.OnReconnect != nil {
		c.OnReconnect()
	}
}

// onConnected 首次连接时记录身份；重连中的新连接带的是临时身份，先保留并发送重连请求
func (c *Client) onConnected(l *link, p *protocol.ConnectedPayload) {
	if c.reconnecting.Load() && c.ReconnectToken() != "" {
		c.mu.Lock()
		c.pending = p
		c.mu.Unlock()
		if err := c.sendOn(l, c.reconnectMessage()); err != nil {
			log.Warn().Err(err).Msg("发送重连请求失败")
		}
		return
	}
	c.setIdentity(p.PlayerID, p.PlayerName, p.ReconnectToken)
	log.Info().Str("player_id", p.PlayerID).Str("name", p.PlayerName).Msg("🔗 已连接服务器")
}

// onPong 用一次 ping/pong 往返更新本地时钟估计，并把样本上报服务器
func (c *Client) onPong(l *link, p *protocol.PongPayload) {
	received := c.clock.Now()
	if _, ok := c.clockSync.Sample(serverClockKey, time.UnixMilli(p.ClientTimestamp), received, time.UnixMilli(p.ServerTimestamp)); !ok {
		return
	}
	_ = c.sendOn(l, codec.MustNewMessage(protocol.MsgClockReport, protocol.ClockReportPayload{
		PingSentAt:     p.ClientTimestamp,
		PongReceivedAt: received.UnixMilli(),
		ServerTime:     p.ServerTimestamp,
	}))
}

// onEvent 按序应用事件；出现缺口时请求补发
func (c *Client) onEvent(l *link, ev protocol.EventPayload) {
	switch c.state.Apply(ev) {
	case Applied:
		c.emit(ev)
	case Gap:
		if !c.state.BeginResync() {
			return
		}
		last := c.state.Sequence()
		log.Debug().Uint64("last_sequence", last).Uint64("got", ev.Sequence).Msg("事件序号不连续，请求补发")
		_ = c.sendOn(l, codec.MustNewMessage(protocol.MsgResync, protocol.ResyncPayload{LastSequence: last}))
	}
}

// onError 重连令牌失效时放弃旧身份，沿用新连接分配的身份
func (c *Client) onError(p *protocol.ErrorPayload) {
	if p.Code != protocol.ErrCodeReconnectInvalid || !c.reconnecting.Load() {
		return
	}
	c.mu.Lock()
	fresh := c.pending
	c.pending = nil
	c.roomID = ""
	c.mu.Unlock()
	if fresh == nil {
		return
	}

	c.state.Reset()
	c.setIdentity(fresh.PlayerID, fresh.PlayerName, fresh.ReconnectToken)
	c.reconnecting.Store(false)
	log.Warn().Str("player_id", fresh.PlayerID).Msg("重连令牌已失效，以新身份继续")
}

func (c *Client) emit(ev protocol.EventPayload) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

// linkLost 连接断开后决定重连还是关闭
func (c *Client) linkLost(l *link) {
	c.mu.RLock()
	closed, current, token := c.closed, c.link == l, c.token
	c.mu.RUnlock()
	if closed || !current {
		return
	}

	if token == "" || c.opts.ReconnectAttempts < 0 {
		c.Close()
		return
	}
	if c.looping.CompareAndSwap(false, true) {
		c.reconnecting.Store(true)
		go c.reconnectLoop()
	}
}
