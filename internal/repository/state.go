package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// StateRepository 定义了与房间实时状态相关的操作，由 Redis 实现。
// 文档本身保存在各实例的内存 store 中，这里只放跨实例共享的计数和缓存。
type StateRepository interface {
	// === Counters ===

	// IncrementOpCount 原子地增加房间的操作计数器。
	IncrementOpCount(ctx context.Context, roomID string) error

	// GetOpCount 读取自上次快照以来的操作数，key 不存在时为 0。
	GetOpCount(ctx context.Context, roomID string) (int64, error)

	// ResetOpCount 重置房间的操作计数器（通常在生成快照后调用）。
	ResetOpCount(ctx context.Context, roomID string) error

	// CleanupRoomState 清理房间相关的 Redis key
	CleanupRoomState(ctx context.Context, roomID string) error

	// === Snapshot Caching ===

	// GetSnapshotCache 尝试从缓存中获取快照，未命中返回 ErrCacheMiss。
	GetSnapshotCache(ctx context.Context, roomID string) (*domain.Snapshot, error)

	// SetSnapshotCache 将快照存入缓存，ttl 为 0 表示不过期。
	SetSnapshotCache(ctx context.Context, roomID string, snapshot *domain.Snapshot, ttl time.Duration) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。超限时返回 true。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)

	// === Snapshot Worker State ===

	// GetLastSnapshotTime 获取房间上次快照的时间，没有记录时返回零值。
	GetLastSnapshotTime(ctx context.Context, roomID string) (time.Time, error)

	// SetLastSnapshotTime 记录房间上次快照的时间。
	SetLastSnapshotTime(ctx context.Context, roomID string, timestamp time.Time, ttl time.Duration) error
}
