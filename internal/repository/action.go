package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// ActionRepository 定义了操作归档的存储和查询。
type ActionRepository interface {
	// SaveBatch 批量保存归档记录。已存在的 ActionID 被跳过。
	SaveBatch(ctx context.Context, records []domain.ActionRecord) error

	// GetCountSince 获取指定房间在某个时间点之后归档的操作数量，用于判断是否需要生成快照。
	GetCountSince(ctx context.Context, roomID string, since time.Time) (int64, error)

	// ListSince 按时间戳升序返回房间在 afterTimestamp (毫秒) 之后的操作，最多 limit 条。
	ListSince(ctx context.Context, roomID string, afterTimestamp int64, limit int) ([]domain.Action, error)
}
