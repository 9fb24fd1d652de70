//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/quiz-rooms/internal/game/session"
)

// MockSnapshotStore 快照读取 mock
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) LatestSnapshot(ctx context.Context, roomID string) (*session.Snapshot, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Snapshot), args.Error(1)
}
