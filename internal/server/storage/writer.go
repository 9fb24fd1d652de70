package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/game/session"
)

const writeTimeout = 2 * time.Second

// SnapshotStore 快照的持久化端
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap session.Snapshot) error
}

// SnapshotWriter 异步写快照。对局 actor 调用 SaveSnapshot 不会阻塞，缓冲满时丢弃
type SnapshotWriter struct {
	store   SnapshotStore
	queue   chan session.Snapshot
	dropped atomic.Int64
	written atomic.Int64
}

// NewSnapshotWriter 创建异步写入器
func NewSnapshotWriter(store SnapshotStore, buffer int) *SnapshotWriter {
	if buffer <= 0 {
		buffer = 256
	}
	return &SnapshotWriter{
		store: store,
		queue: make(chan session.Snapshot, buffer),
	}
}

// SaveSnapshot 实现 session.SnapshotSink
func (w *SnapshotWriter) SaveSnapshot(snap session.Snapshot) {
	select {
	case w.queue <- snap:
	default:
		w.dropped.Add(1)
		log.Warn().Str("room_id", snap.RoomID).Str("session_id", snap.SessionID).Msg("快照写入队列已满，丢弃")
	}
}

// Run 持续写入直到 ctx 取消，退出前写完已排队的快照
func (w *SnapshotWriter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case snap := <-w.queue:
			w.write(ctx, snap)
		}
	}
}

func (w *SnapshotWriter) flush() {
	ctx := context.Background()
	for {
		select {
		case snap := <-w.queue:
			w.write(ctx, snap)
		default:
			return
		}
	}
}

func (w *SnapshotWriter) write(ctx context.Context, snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := w.store.SaveSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Str("room_id", snap.RoomID).Str("session_id", snap.SessionID).Msg("保存对局快照失败")
		return
	}
	w.written.Add(1)
}

// Dropped 因队列满被丢弃的快照数
func (w *SnapshotWriter) Dropped() int64 { return w.dropped.Load() }

// Written 成功写入的快照数
func (w *SnapshotWriter) Written() int64 { return w.written.Load() }
