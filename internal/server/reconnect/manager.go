// Package reconnect 管理重连令牌：断线的连接凭令牌回到原来的玩家 ID 与房间
package reconnect

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/server/storage"
)

const (
	// 离线超过该时长的记录被清理
	expireAfter  = 10 * time.Minute
	storeTimeout = 2 * time.Second
)

// Store 重连记录的外部存储（可选），进程重启后令牌仍可用于回到房间
type Store interface {
	SavePlayer(ctx context.Context, p *storage.PlayerData, ttl time.Duration) error
	LoadPlayer(ctx context.Context, playerID string) (*storage.PlayerData, error)
	DeletePlayer(ctx context.Context, playerID string) error
}

// Record 玩家重连记录
type Record struct {
	PlayerID       string
	PlayerName     string
	Token          string
	RoomID         string
	Online         bool
	DisconnectedAt time.Time
}

// Manager 重连令牌管理器
type Manager struct {
	clock  clockwork.Clock
	window time.Duration
	store  Store

	mu      sync.RWMutex
	records map[string]*Record // playerID -> record
	tokens  map[string]string  // token -> playerID
}

// NewManager 创建管理器，window 为断线后令牌的有效期
func NewManager(clock clockwork.Clock, window time.Duration, store Store) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &Manager{
		clock:   clock,
		window:  window,
		store:   store,
		records: make(map[string]*Record),
		tokens:  make(map[string]string),
	}
}

// Create 为新连接生成令牌
func (m *Manager) Create(playerID, playerName string) Record {
	m.mu.Lock()
	rec := &Record{
		PlayerID:   playerID,
		PlayerName: playerName,
		Token:      generateToken(),
		Online:     true,
	}
	m.records[playerID] = rec
	m.tokens[rec.Token] = playerID
	out := *rec
	m.mu.Unlock()

	m.persist(out)
	return out
}

// Get 获取记录
func (m *Manager) Get(playerID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[playerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Validate 校验令牌。内存中没有时尝试从外部存储恢复
func (m *Manager) Validate(ctx context.Context, token, playerID string) (Record, error) {
	if token == "" || playerID == "" {
		return Record{}, apperrors.ErrReconnectInvalid
	}

	m.mu.RLock()
	rec, ok := m.records[playerID]
	var out Record
	if ok {
		out = *rec
	}
	m.mu.RUnlock()

	if !ok {
		restored, err := m.restore(ctx, playerID)
		if err != nil || restored == nil {
			return Record{}, apperrors.ErrReconnectInvalid
		}
		out = *restored
	}

	if out.Token != token {
		return Record{}, apperrors.ErrReconnectInvalid
	}
	if !out.Online && m.clock.Since(out.DisconnectedAt) > m.window {
		return Record{}, apperrors.ErrReconnectInvalid
	}
	return out, nil
}

func (m *Manager) restore(ctx context.Context, playerID string) (*Record, error) {
	if m.store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	data, err := m.store.LoadPlayer(ctx, playerID)
	if err != nil || data == nil {
		return nil, err
	}
	rec := &Record{
		PlayerID:   data.PlayerID,
		PlayerName: data.PlayerName,
		Token:      data.ReconnectToken,
		RoomID:     data.RoomID,
		Online:     data.IsOnline,
	}
	if data.DisconnectedAt != 0 {
		rec.DisconnectedAt = time.UnixMilli(data.DisconnectedAt)
	}

	m.mu.Lock()
	if existing, ok := m.records[playerID]; ok {
		rec = existing
	} else {
		m.records[playerID] = rec
		m.tokens[rec.Token] = playerID
	}
	out := *rec
	m.mu.Unlock()

	log.Info().Str("player_id", playerID).Msg("♻️ 从缓存恢复重连记录")
	return &out, nil
}

// SetOffline 标记离线
func (m *Manager) SetOffline(playerID string) {
	m.update(playerID, func(r *Record) {
		r.Online = false
		r.DisconnectedAt = m.clock.Now()
	})
}

// SetOnline 标记上线
func (m *Manager) SetOnline(playerID string) {
	m.update(playerID, func(r *Record) {
		r.Online = true
		r.DisconnectedAt = time.Time{}
	})
}

// SetRoom 记录玩家所在房间，空字符串表示不在房间
func (m *Manager) SetRoom(playerID, roomID string) {
	m.update(playerID, func(r *Record) { r.RoomID = roomID })
}

func (m *Manager) update(playerID string, fn func(r *Record)) {
	m.mu.Lock()
	rec, ok := m.records[playerID]
	if !ok {
		m.mu.Unlock()
		return
	}
	fn(rec)
	out := *rec
	m.mu.Unlock()

	m.persist(out)
}

// Delete 删除记录
func (m *Manager) Delete(playerID string) {
	m.mu.Lock()
	rec, ok := m.records[playerID]
	if ok {
		delete(m.tokens, rec.Token)
		delete(m.records, playerID)
	}
	m.mu.Unlock()

	if ok && m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.store.DeletePlayer(ctx, playerID); err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("删除重连记录失败")
		}
	}
}

// Len 记录数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Cleanup 清理离线过久的记录，返回清理数量
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := m.clock.Now()
	for id, rec := range m.records {
		if !rec.Online && now.Sub(rec.DisconnectedAt) > expireAfter {
			delete(m.tokens, rec.Token)
			delete(m.records, id)
			n++
		}
	}
	return n
}

// Run 定期清理，直到 ctx 取消
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := m.Cleanup(); n > 0 {
				log.Debug().Int("removed", n).Msg("清理过期重连记录")
			}
		}
	}
}

func (m *Manager) persist(rec Record) {
	if m.store == nil {
		return
	}
	data := &storage.PlayerData{
		PlayerID:       rec.PlayerID,
		PlayerName:     rec.PlayerName,
		ReconnectToken: rec.Token,
		RoomID:         rec.RoomID,
		IsOnline:       rec.Online,
	}
	if !rec.DisconnectedAt.IsZero() {
		data.DisconnectedAt = rec.DisconnectedAt.UnixMilli()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.SavePlayer(ctx, data, m.window+expireAfter); err != nil {
		log.Warn().Err(err).Str("player_id", rec.PlayerID).Msg("保存重连记录失败")
	}
}

// generateToken 生成随机 token
func generateToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
