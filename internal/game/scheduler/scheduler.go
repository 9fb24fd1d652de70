// Package scheduler 让每个常驻房间在间歇期与对局之间循环
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/question"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/game/synthetic"
	"github.com/palemoky/quiz-rooms/internal/game/timer"
	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// ErrStopTimeout Stop 等待房间循环退出超时
var ErrStopTimeout = errors.New("scheduler: room loops did not exit in time")

const statusWriteTimeout = 2 * time.Second

// StatusSink 房间状态的外部存储
type StatusSink interface {
	SaveRoomStatus(ctx context.Context, item protocol.RoomListItem) error
}

// Deps 调度器创建对局时传入的协作者
type Deps struct {
	Clock     clockwork.Clock
	Timer     *timer.ServerTimer
	Questions question.Source
	Picker    question.Picker
	Synthetic synthetic.Player
	Publisher session.Publisher
	Snapshots session.SnapshotSink
	Status    StatusSink

	// NewSessionID 默认 uuid
	NewSessionID func() string
}

// Scheduler 为每个未停用的房间运行一个独立循环
type Scheduler struct {
	registry *room.Registry
	game     config.GameConfig
	deps     Deps
	clock    clockwork.Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New 创建调度器
func New(registry *room.Registry, game config.GameConfig, deps Deps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Timer == nil {
		deps.Timer = timer.NewServerTimer(deps.Clock)
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	return &Scheduler{
		registry: registry,
		game:     game,
		deps:     deps,
		clock:    deps.Clock,
	}
}

// Start 启动所有房间循环，重复调用无效果
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	rooms := s.registry.ActiveRooms()
	for _, r := range rooms {
		s.wg.Add(1)
		go s.runRoom(ctx, r)
	}
	log.Info().Int("rooms", len(rooms)).Msg("🗓️ 房间调度器已启动")
}

// Stop 通知所有房间循环退出并等待，最长等待 game.stop_timeout。
// 进行中的对局会以 shutdown 原因中止。
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.game.StopTimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
		log.Info().Msg("🛑 房间调度器已停止")
		return nil
	case <-s.clock.After(timeout):
		log.Error().Dur("timeout", timeout).Msg("⚠️ 房间调度器关闭超时")
		return ErrStopTimeout
	}
}

func (s *Scheduler) runRoom(ctx context.Context, r *room.Room) {
	defer s.wg.Done()

	rl := log.With().Str("room_id", r.ID()).Logger()
	for ctx.Err() == nil {
		s.cycleSafely(ctx, r, rl)
	}
	rl.Debug().Msg("房间循环退出")
}

// cycleSafely 一次循环中的 panic 只影响本房间，房间随后重新进入间歇期
func (s *Scheduler) cycleSafely(ctx context.Context, r *room.Room, rl zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec)
			rl.Error().Interface("panic", rec).Msg("💥 房间循环异常，重新进入间歇期")
		}
	}()
	s.cycle(ctx, r, rl)
}

// cycle 间歇期 -> 凑人 -> 对局 -> 归档
func (s *Scheduler) cycle(ctx context.Context, r *room.Room, rl zerolog.Logger) {
	if !s.intermission(ctx, r) {
		return
	}

	minHumans := max(r.Config.MinHumans, 1)
	fill := r.Config.AllowSyntheticFill && s.deps.Synthetic != nil

	if r.QueueLen() < minHumans && !fill {
		rl.Info().Int("queued", r.QueueLen()).Int("min_humans", minHumans).Msg("⏳ 人数不足，延长间歇期")
		if !s.intermission(ctx, r) {
			return
		}
		if r.QueueLen() == 0 {
			rl.Info().Msg("💤 房间空闲，重新进入间歇期")
			return
		}
	}

	members := r.TakeQueue()
	seats := make([]session.Seat, 0, r.Config.MaxParticipants)
	for _, m := range members {
		seats = append(seats, session.Seat{ID: m.ID, Name: m.Name, Kind: session.KindHuman})
	}
	if fill && len(seats) < minHumans {
		for len(seats) < r.Config.MaxParticipants {
			bot := synthetic.NewIdentity()
			seats = append(seats, session.Seat{ID: bot.ID, Name: bot.Name, Kind: session.KindSynthetic})
		}
		rl.Info().Int("humans", len(members)).Int("seats", len(seats)).Msg("🤖 托管玩家补位")
	}

	o := session.New(s.deps.NewSessionID(), session.NewSettings(r.Config, s.game), seats, session.Deps{
		Clock:     s.clock,
		Timer:     s.deps.Timer,
		Questions: s.deps.Questions,
		Picker:    s.deps.Picker,
		Synthetic: s.deps.Synthetic,
		Publisher: s.deps.Publisher,
		Snapshots: s.deps.Snapshots,
	})
	if err := r.Attach(o); err != nil {
		r.Requeue(members)
		rl.Warn().Err(err).Msg("房间已有进行中的对局")
		return
	}
	s.saveStatus(ctx, r)

	sum := o.Run(ctx)
	r.Detach(o, sum.Outcome)
	s.saveStatus(ctx, r)

	rl.Info().
		Str("session_id", sum.SessionID).
		Str("outcome", string(sum.Outcome)).
		Str("reason", string(sum.Reason)).
		Int("sessions", r.Sessions()).
		Msg("🔁 对局结束")
}

// intermission 进入间歇期并等待其结束；ctx 取消时返回 false
func (s *Scheduler) intermission(ctx context.Context, r *room.Room) bool {
	d := r.Config.IntermissionDuration()
	r.BeginIntermission(s.clock.Now().Add(d))
	s.saveStatus(ctx, r)

	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

func (s *Scheduler) saveStatus(ctx context.Context, r *room.Room) {
	if s.deps.Status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := s.deps.Status.SaveRoomStatus(ctx, r.Status()); err != nil {
		log.Warn().Err(err).Str("room_id", r.ID()).Msg("保存房间状态失败")
	}
}
