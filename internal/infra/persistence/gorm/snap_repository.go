package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormSnapshotRepository 是 SnapshotRepository 接口的 GORM 实现
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository 创建 GormSnapshotRepository 实例
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSnapshotRepository")
	}
	return &GormSnapshotRepository{db: db}
}

// GetLatestSnapshot 获取指定房间最近创建的快照
func (r *GormSnapshotRepository) GetLatestSnapshot(ctx context.Context, roomID string) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(mapError(err), repository.ErrNotFound) {
			return nil, repository.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("gorm: failed to get latest snapshot for room %s: %w", roomID, err)
	}
	return &snapshot, nil
}

// SaveSnapshot 插入一条新快照；快照只写不改
func (r *GormSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("gorm: failed to save snapshot (room %s, version %d): %w", snapshot.RoomID, snapshot.Version, mapError(err))
	}
	return nil
}
