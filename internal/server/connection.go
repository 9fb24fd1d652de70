package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/types"
)

const healthTimeout = 2 * time.Second

// handleWebSocket 处理 WebSocket 连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// 获取真实客户端IP
	clientIP := GetClientIP(r)

	// 维护模式检查（最优先）
	if s.IsMaintenanceMode() {
		log.Info().Str("ip", clientIP).Msg("🔧 维护模式，拒绝新连接")
		http.Error(w, "Server is under maintenance, please try again later", http.StatusServiceUnavailable)
		return
	}

	// IP 过滤检查
	if !s.ipFilter.IsAllowed(clientIP) {
		log.Warn().Str("ip", clientIP).Msg("🚫 IP 被过滤器拒绝")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// 速率限制检查
	if !s.rateLimiter.Allow(clientIP) {
		log.Warn().Str("ip", clientIP).Msg("🚫 IP 请求过于频繁")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	// 连接数限制检查，名额在连接断开时归还
	select {
	case s.semaphore <- struct{}{}:
	default:
		log.Warn().Int("max", s.maxConnections).Str("ip", clientIP).Msg("🚫 达到最大连接数限制")
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}
	release := func() { <-s.semaphore }

	// 来源验证在升级时由 upgrader.CheckOrigin 完成
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		log.Warn().Err(err).Str("ip", clientIP).Str("origin", r.Header.Get("Origin")).Msg("WebSocket 升级失败")
		return
	}

	client := NewClient(s, conn)
	client.IP = clientIP
	client.release = release
	s.registerClient(client)

	// 签发重连令牌
	rec := s.reconnect.Create(client.GetID(), client.GetName())

	client.SendMessage(codec.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		PlayerID:       rec.PlayerID,
		PlayerName:     rec.PlayerName,
		ReconnectToken: rec.Token,
		ServerTime:     s.clock.Now().UnixMilli(),
	}))

	log.Info().Str("player_id", rec.PlayerID).Str("name", rec.PlayerName).Str("ip", clientIP).Msg("✅ 玩家已连接")

	// 启动客户端读写协程
	go client.WritePump()
	go client.ReadPump()
}

// handleHealth 健康检查接口
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("健康检查失败")
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"online": s.GetOnlineCount(),
	})
}

// handleRooms 房间列表
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RoomListPayload{Rooms: s.rooms.List()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("写入响应失败")
	}
}

// registerClient 注册客户端
func (s *Server) registerClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[client.GetID()] = client
}

// unregisterClient 注销客户端；该 ID 已被新连接接管时返回 false
func (s *Server) unregisterClient(client *Client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	id := client.GetID()
	if cur, ok := s.clients[id]; !ok || cur != client {
		return false
	}
	delete(s.clients, id)
	return true
}

// handleDisconnect 处理断开连接。被重连取代的旧连接不影响玩家状态
func (s *Server) handleDisconnect(c *Client) {
	c.Close()
	s.messageLimiter.RemoveClient(c.GetID())
	if !s.unregisterClient(c) {
		return
	}
	s.handler.Disconnected(c)
	log.Info().Str("player_id", c.GetID()).Str("name", c.GetName()).Msg("❌ 玩家已断开")
}

// GetClientByID 按玩家 ID 查找连接
func (s *Server) GetClientByID(id string) types.ClientInterface {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if c, ok := s.clients[id]; ok {
		return c
	}
	return nil
}

// client 按 ID 查找具体连接
func (s *Server) client(id string) *Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clients[id]
}

// RebindClient 重连成功后把连接登记到原玩家 ID 下，并关闭仍挂在该 ID 上的旧连接
func (s *Server) RebindClient(client types.ClientInterface, playerID, playerName string) {
	c, ok := client.(*Client)
	if !ok {
		return
	}

	s.clientsMu.Lock()
	if cur, ok := s.clients[c.GetID()]; ok && cur == c {
		delete(s.clients, c.GetID())
	}
	stale := s.clients[playerID]
	c.SetIdentity(playerID, playerName)
	s.clients[playerID] = c
	s.clientsMu.Unlock()

	if stale != nil && stale != c {
		stale.Close()
	}
}
