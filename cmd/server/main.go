package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/clock"
	"github.com/palemoky/quiz-rooms/internal/game/question"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/game/scheduler"
	"github.com/palemoky/quiz-rooms/internal/game/synthetic"
	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/server"
	"github.com/palemoky/quiz-rooms/internal/server/broadcast"
	"github.com/palemoky/quiz-rooms/internal/server/reconnect"
	"github.com/palemoky/quiz-rooms/internal/server/storage"
)

const snapshotBuffer = 64

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", *envFile, err)
	}

	// 加载配置
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	if loadErr != nil {
		log.Warn().Err(loadErr).Str("path", *configPath).Msg("加载配置文件失败，使用默认配置")
	}

	log.Info().Int("rooms", len(cfg.Rooms)).Msg("🎮 答题房间服务器启动中...")
	err := run(cfg)
	if err != nil {
		log.Error().Err(err).Msg("服务器异常退出")
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bank, err := question.LoadBank(cfg.Questions.File)
	if err != nil {
		return fmt.Errorf("加载题库失败: %w", err)
	}
	log.Info().Int("questions", bank.Len()).Strs("categories", bank.Categories()).Msg("📚 题库已加载")

	// Redis：房间状态、对局快照、重连信息
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	store := storage.NewRedisStore(rdb)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis 连接失败: %w", err)
	}

	clk := clockwork.NewRealClock()
	rooms := room.NewRegistry(cfg.Rooms)
	tokens := reconnect.NewManager(clk, cfg.Game.ReconnectWindowDuration(), store)
	snapshots := storage.NewSnapshotWriter(store, snapshotBuffer)

	srv := server.NewServer(cfg, server.Deps{
		Rooms:     rooms,
		Reconnect: tokens,
		ClockSync: clock.NewClockSync(cfg.Game.ClockSyncAlpha),
		Clock:     clk,
		Snapshots: store,
		Health:    store,
	})

	// 事件发布：WebSocket 连接，NATS 可选
	publishers := broadcast.Fanout{srv}
	if cfg.NATS.URL != "" {
		bus, err := broadcast.Connect(cfg.NATS)
		if err != nil {
			return err
		}
		defer func() { _ = bus.Close() }()
		publishers = append(publishers, bus)
	}

	bot := synthetic.NewBot(clk, synthetic.Options{
		MinThink: time.Duration(cfg.Game.SyntheticMinMs) * time.Millisecond,
		MaxThink: time.Duration(cfg.Game.SyntheticMaxMs) * time.Millisecond,
		HitPct:   cfg.Game.SyntheticHitPct,
	}, uint64(clk.Now().UnixNano()))

	sched := scheduler.New(rooms, cfg.Game, scheduler.Deps{
		Clock:     clk,
		Questions: bank,
		Picker:    bank,
		Synthetic: bot,
		Publisher: publishers,
		Snapshots: snapshots,
		Status:    store,
	})

	// 快照写入在调度器停止后才结束，以便保存因关闭而中止的对局
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return tokens.Run(gctx) })
	g.Go(func() error { return snapshots.Run(writerCtx) })
	g.Go(func() error {
		defer stopWriter()
		sched.Start(gctx)
		<-gctx.Done()
		log.Info().Msg("正在关闭服务器...")
		return sched.Stop()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().
		Int64("snapshots_written", snapshots.Written()).
		Int64("snapshots_dropped", snapshots.Dropped()).
		Msg("👋 服务器已退出")
	return nil
}
