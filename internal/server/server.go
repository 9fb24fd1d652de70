package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/clock"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/server/handler"
	"github.com/palemoky/quiz-rooms/internal/server/reconnect"
	"github.com/palemoky/quiz-rooms/internal/types"
)

const shutdownTimeout = 5 * time.Second

// HealthChecker 健康检查依赖（Redis 等）
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps 服务器依赖
type Deps struct {
	Rooms     *room.Registry
	Reconnect *reconnect.Manager
	ClockSync *clock.ClockSync
	Clock     clockwork.Clock
	Snapshots types.SnapshotStore // 可选
	Health    HealthChecker       // 可选
}

// Server WebSocket 服务器
type Server struct {
	config    *config.Config
	clock     clockwork.Clock
	rooms     *room.Registry
	reconnect *reconnect.Manager
	handler   *handler.Handler
	health    HealthChecker
	upgrader  websocket.Upgrader

	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 安全组件
	rateLimiter    *RateLimiter
	originChecker  *OriginChecker
	messageLimiter *MessageRateLimiter
	ipFilter       *IPFilter

	// 连接控制
	maxConnections int
	semaphore      chan struct{} // 信号量控制并发连接数

	// 维护模式
	maintenanceMode bool
	maintenanceMu   sync.RWMutex
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.ClockSync == nil {
		deps.ClockSync = clock.NewClockSync(cfg.Game.ClockSyncAlpha)
	}
	if deps.Reconnect == nil {
		deps.Reconnect = reconnect.NewManager(deps.Clock, cfg.Game.ReconnectWindowDuration(), nil)
	}

	s := &Server{
		config:    cfg,
		clock:     deps.Clock,
		rooms:     deps.Rooms,
		reconnect: deps.Reconnect,
		health:    deps.Health,
		clients:   make(map[string]*Client),
		// 初始化安全组件
		rateLimiter: NewRateLimiter(
			deps.Clock,
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  NewOriginChecker(cfg.Security.AllowedOrigins),
		messageLimiter: NewMessageRateLimiter(deps.Clock, cfg.Security.MessageLimit.MaxPerSecond),
		ipFilter:       NewIPFilter(),
		// 初始化连接控制
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, max(cfg.Server.MaxConnections, 1)),
	}
	for _, ip := range cfg.Security.AllowedIPs {
		s.ipFilter.AddToWhitelist(ip)
	}
	for _, ip := range cfg.Security.BlockedIPs {
		s.ipFilter.AddToBlacklist(ip)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	// 初始化消息处理器
	s.handler = handler.NewHandler(handler.HandlerDeps{
		Server:    s,
		Rooms:     deps.Rooms,
		Reconnect: deps.Reconnect,
		ClockSync: deps.ClockSync,
		Clock:     deps.Clock,
		Snapshots: deps.Snapshots,
	})

	log.Info().
		Int("conn_per_second", cfg.Security.RateLimit.MaxPerSecond).
		Int("msg_per_second", cfg.Security.MessageLimit.MaxPerSecond).
		Int("max_connections", cfg.Server.MaxConnections).
		Strs("allowed_origins", cfg.Security.AllowedOrigins).
		Msg("🔒 安全配置")

	return s
}

// Routes HTTP 路由：/ws、/health、/rooms，外层套 CORS
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/rooms", s.handleRooms)

	origins := s.config.Security.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

// Start 启动服务器，ctx 取消后关闭监听并断开所有连接
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 启动监控 goroutine
	go s.monitorStats(ctx)

	go func() {
		<-ctx.Done()
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP 服务关闭失败")
		}
	}()

	log.Info().Str("addr", addr).Int("cpus", runtime.NumCPU()).Msgf("🚀 服务器启动在 ws://%s/ws", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
