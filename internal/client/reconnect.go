package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/retry"
)

// Reconnect 在当前连接上手动发送重连请求
func (c *Client) Reconnect() error {
	if c.ReconnectToken() == "" || c.PlayerID() == "" {
		return ErrNoReconnect
	}
	return c.SendMessage(c.reconnectMessage())
}

// reconnectMessage 带上原玩家 ID 与已应用的最后序号，服务器据此补发
func (c *Client) reconnectMessage() *protocol.Message {
	c.mu.RLock()
	payload := protocol.ReconnectPayload{
		Token:    c.token,
		PlayerID: c.playerID,
	}
	c.mu.RUnlock()
	payload.LastSequence = c.state.Sequence()
	return codec.MustNewMessage(protocol.MsgReconnect, payload)
}

// reconnectLoop 指数退避重新建立连接。新连接收到 connected 后发送重连请求，
// 服务器回复 reconnected 才算重连完成
func (c *Client) reconnectLoop() {
	defer c.looping.Store(false)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			log.Error().Interface("panic", r).Msg("reconnectLoop panic recovered")
			c.reconnecting.Store(false)
		}
	}()

	attempts := c.opts.ReconnectAttempts
	attempt := 0
	policy := retry.Policy{
		Attempts: attempts,
		Backoff:  c.opts.ReconnectBackoff,
		MaxDelay: maxReconnectBackoff,
	}
	err := retry.Do(c.ctx, c.clock, policy, func(ctx context.Context) error {
		attempt++
		if c.OnReconnecting != nil {
			c.OnReconnecting(attempt, attempts)
		}
		log.Info().Int("attempt", attempt).Int("max", attempts).Msg("🔄 尝试重连")

		l, err := c.dial(ctx)
		if err != nil {
			return err
		}
		if !c.attach(l) {
			return retry.Permanent(ErrClosed)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("重连失败")
		c.reconnecting.Store(false)
		c.Close()
	}
}
