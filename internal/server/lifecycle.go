package server

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
)

const statsInterval = 30 * time.Second

// monitorStats 定期监控服务器状态，顺带清理限流记录
func (s *Server) monitorStats(ctx context.Context) {
	ticker := s.clock.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		active := 0
		for _, r := range s.rooms.Rooms() {
			if r.Active() != nil {
				active++
			}
		}

		log.Info().
			Int("online", s.GetOnlineCount()).
			Int("goroutines", runtime.NumGoroutine()).
			Int("connections", len(s.semaphore)).
			Int("max_connections", s.maxConnections).
			Int("active_sessions", active).
			Float64("mem_mb", float64(m.Alloc)/1024/1024).
			Int("rate_entries_purged", s.rateLimiter.Cleanup()).
			Msg("📊 [监控]")
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接并通知在线玩家
func (s *Server) EnterMaintenanceMode() {
	s.maintenanceMu.Lock()
	already := s.maintenanceMode
	s.maintenanceMode = true
	s.maintenanceMu.Unlock()
	if already {
		return
	}

	s.Broadcast(codec.MustNewMessage(protocol.MsgError, protocol.ErrorPayload{
		Code:    protocol.ErrCodeServerMaintenance,
		Message: "👷🏻‍♂️ 服务器维护中，不再接受新连接",
	}))
	log.Info().Msg("🔧 进入维护模式：停止新连接")
}

// IsMaintenanceMode 检查是否在维护模式
func (s *Server) IsMaintenanceMode() bool {
	s.maintenanceMu.RLock()
	defer s.maintenanceMu.RUnlock()
	return s.maintenanceMode
}

// Shutdown 进入维护模式并关闭所有客户端连接
func (s *Server) Shutdown() {
	s.EnterMaintenanceMode()

	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	log.Info().Int("clients", len(clients)).Msg("服务器已关闭")
}
