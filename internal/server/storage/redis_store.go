package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

const (
	// Redis key 前缀
	roomKeyPrefix     = "room:"
	snapshotKeyPrefix = "snapshot:"
	latestKeySuffix   = ":latest"
	playerKeyPrefix   = "player:"

	// 过期时间
	roomExpiration     = 2 * time.Hour
	snapshotExpiration = 30 * time.Minute
)

// RedisStore Redis 存储：房间状态、对局快照、玩家重连信息
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping 检查连接
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// --- 房间状态 ---

// SaveRoomStatus 保存房间状态
func (rs *RedisStore) SaveRoomStatus(ctx context.Context, item protocol.RoomListItem) error {
	jsonData, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("序列化房间状态失败: %w", err)
	}
	return rs.client.Set(ctx, roomKeyPrefix+item.RoomID, jsonData, roomExpiration).Err()
}

// LoadRoomStatus 加载房间状态，不存在时返回 nil
func (rs *RedisStore) LoadRoomStatus(ctx context.Context, roomID string) (*protocol.RoomListItem, error) {
	data, err := rs.client.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var item protocol.RoomListItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("反序列化房间状态失败: %w", err)
	}
	return &item, nil
}

// RoomIDs 已保存状态的房间 ID
func (rs *RedisStore) RoomIDs(ctx context.Context) ([]string, error) {
	keys, err := rs.client.Keys(ctx, roomKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key[len(roomKeyPrefix):]
	}
	return ids, nil
}

// --- 对局快照 ---

// SaveSnapshot 保存对局快照，并记录为该房间最近一局
func (rs *RedisStore) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化对局快照失败: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKeyPrefix+snap.SessionID, jsonData, snapshotExpiration)
		pipe.Set(ctx, roomKeyPrefix+snap.RoomID+latestKeySuffix, snap.SessionID, snapshotExpiration)
		return nil
	})
	return err
}

// LoadSnapshot 加载对局快照，不存在时返回 nil
func (rs *RedisStore) LoadSnapshot(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	data, err := rs.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("反序列化对局快照失败: %w", err)
	}
	return &snap, nil
}

// LatestSnapshot 房间最近一局的快照
func (rs *RedisStore) LatestSnapshot(ctx context.Context, roomID string) (*session.Snapshot, error) {
	id, err := rs.client.Get(ctx, roomKeyPrefix+roomID+latestKeySuffix).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return rs.LoadSnapshot(ctx, id)
}

// --- 玩家重连信息 ---

// PlayerData 玩家重连数据（用于 Redis 序列化）
type PlayerData struct {
	PlayerID       string `json:"player_id"`
	PlayerName     string `json:"player_name"`
	ReconnectToken string `json:"token"`
	RoomID         string `json:"room_id"`
	IsOnline       bool   `json:"is_online"`
	DisconnectedAt int64  `json:"disconnected_at,omitempty"`
}

// SavePlayer 保存玩家重连信息
func (rs *RedisStore) SavePlayer(ctx context.Context, p *PlayerData, ttl time.Duration) error {
	data := map[string]any{
		"player_id":   p.PlayerID,
		"player_name": p.PlayerName,
		"token":       p.ReconnectToken,
		"room_id":     p.RoomID,
		"is_online":   p.IsOnline,
	}
	if p.DisconnectedAt != 0 {
		data["disconnected_at"] = p.DisconnectedAt
	}

	key := playerKeyPrefix + p.PlayerID
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// LoadPlayer 加载玩家重连信息，不存在时返回 nil
func (rs *RedisStore) LoadPlayer(ctx context.Context, playerID string) (*PlayerData, error) {
	data, err := rs.client.HGetAll(ctx, playerKeyPrefix+playerID).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	p := &PlayerData{
		PlayerID:       data["player_id"],
		PlayerName:     data["player_name"],
		ReconnectToken: data["token"],
		RoomID:         data["room_id"],
		IsOnline:       data["is_online"] == "1",
	}
	if v, ok := data["disconnected_at"]; ok {
		p.DisconnectedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	return p, nil
}

// DeletePlayer 删除玩家重连信息
func (rs *RedisStore) DeletePlayer(ctx context.Context, playerID string) error {
	return rs.client.Del(ctx, playerKeyPrefix+playerID).Err()
}
