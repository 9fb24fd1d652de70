package types

import (
	"context"

	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

// ServerInterface 定义服务器接口（用于打破循环依赖）
type ServerInterface interface {
	GetOnlineCount() int
	GetClientByID(id string) ClientInterface
	// RebindClient 重连成功后把连接登记到原玩家 ID 下
	RebindClient(client ClientInterface, playerID, playerName string)
}

// ClientInterface 定义客户端接口
type ClientInterface interface {
	GetID() string
	GetName() string
	SetIdentity(id, name string)
	SendMessage(msg *protocol.Message)
	Close()
}

// SnapshotStore 读取房间最近一局的快照（对局已结束时用于补发）
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, roomID string) (*session.Snapshot, error)
}
