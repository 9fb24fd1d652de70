// 命令行答题机器人：连接服务器、加入房间并自动作答，用于联调与压测
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/palemoky/quiz-rooms/internal/client"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

type botOptions struct {
	url      string
	room     string
	name     string
	minDelay time.Duration
	maxDelay time.Duration
}

func main() {
	serverAddr := flag.String("server", "localhost:1780", "服务器地址")
	roomID := flag.String("room", "general", "加入的房间")
	name := flag.String("name", "", "昵称，为空时由服务器分配")
	count := flag.Int("count", 1, "同时运行的玩家数量")
	minDelay := flag.Duration("min-delay", 500*time.Millisecond, "作答最短延迟")
	maxDelay := flag.Duration("max-delay", 4*time.Second, "作答最长延迟")
	level := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	if err := logger.Init(logger.Options{Level: *level, Pretty: true}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := botOptions{
		url:      fmt.Sprintf("ws://%s/ws", *serverAddr),
		room:     *roomID,
		minDelay: *minDelay,
		maxDelay: max(*maxDelay, *minDelay),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range max(*count, 1) {
		o := opts
		if *name != "" {
			o.name = *name
			if *count > 1 {
				o.name = fmt.Sprintf("%s-%d", *name, i+1)
			}
		}
		g.Go(func() error { return runBot(ctx, o) })
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("❌ 机器人异常退出")
		logger.Close()
		os.Exit(1)
	}
}

// runBot 运行一个玩家直到 ctx 结束或连接彻底断开
func runBot(ctx context.Context, o botOptions) error {
	c := client.NewClient(o.url, client.Options{})
	bl := log.With().Str("room_id", o.room).Logger()

	c.OnEvent = func(ev protocol.EventPayload) {
		onEvent(ctx, c, bl, o, ev)
	}
	c.OnReconnect = func() {
		bl.Info().Str("player_id", c.PlayerID()).Msg("🔄 已重连")
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	for c.PlayerID() == "" {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return client.ErrClosed
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := c.JoinRoom(o.room, o.name); err != nil {
		return err
	}
	bl.Info().Str("player_id", c.PlayerID()).Str("name", c.PlayerName()).Msg("🙋 已加入房间")

	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return client.ErrClosed
	}
}

func onEvent(ctx context.Context, c *client.Client, bl zerolog.Logger, o botOptions, ev protocol.EventPayload) {
	v := c.State()
	switch session.EventType(ev.Type) {
	case session.EventPhaseChanged:
		switch v.Phase {
		case session.PhaseQuestionActive:
			bl.Info().Int("round", v.Round).Int("total", v.TotalRounds).Dur("countdown", c.Countdown()).Str("prompt", v.Prompt).Msg("❓ 新题目")
			go answerLater(ctx, c, o, v)
		case session.PhaseSessionResults:
			bl.Info().Int("score", v.Scores[c.PlayerID()]).Msg("🏁 本局结束")
		}
	case session.EventRoundGraded:
		bl.Info().Int("round", v.Round).Int("score", v.Scores[c.PlayerID()]).Msg("📊 本轮判分")
	case session.EventSessionArchived:
		bl.Info().Str("phase", string(v.Phase)).Msg("📦 对局归档")
	}
}

// answerLater 在截止时间前随机挑一个选项作答
func answerLater(ctx context.Context, c *client.Client, o botOptions, v client.View) {
	if len(v.Options) == 0 {
		return
	}
	delay := o.minDelay
	if spread := o.maxDelay - o.minDelay; spread > 0 {
		delay += rand.N(spread)
	}
	if left := c.Countdown(); left > 0 && delay >= left {
		delay = left / 2
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}
	if cur := c.State(); cur.SessionID != v.SessionID || cur.Round != v.Round || cur.Answered {
		return
	}
	if err := c.SubmitAnswer(v.Options[rand.IntN(len(v.Options))]); err != nil {
		log.Warn().Err(err).Msg("提交答案失败")
	}
}
