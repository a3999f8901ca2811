package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// SnapshotRepository 定义了房间文档快照在数据库中的操作。
type SnapshotRepository interface {
	// GetLatestSnapshot 获取指定房间的最新快照记录。
	// 没有快照时返回 ErrSnapshotNotFound。
	GetLatestSnapshot(ctx context.Context, roomID string) (*domain.Snapshot, error)

	// SaveSnapshot 保存快照记录到数据库。
	SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) error
}
