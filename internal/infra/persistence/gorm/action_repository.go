package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-whiteboard/internal/domain"
)

// saveBatchSize 是单条 INSERT 语句的最大行数
const saveBatchSize = 200

// GormActionRepository 是 ActionRepository 接口的 GORM 实现
type GormActionRepository struct {
	db *gorm.DB
}

// NewGormActionRepository 创建 GormActionRepository 实例
func NewGormActionRepository(db *gorm.DB) *GormActionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormActionRepository")
	}
	return &GormActionRepository{db: db}
}

// SaveBatch 批量归档操作。action_id 上有唯一索引，重复的记录直接跳过，
// 这样 asynq 重试同一个任务不会产生重复行。
func (r *GormActionRepository) SaveBatch(ctx context.Context, records []domain.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "action_id"}}, DoNothing: true}).
		CreateInBatches(&records, saveBatchSize).Error
	if err != nil {
		return fmt.Errorf("gorm: failed to save action batch (size %d): %w", len(records), mapError(err))
	}
	return nil
}

// GetCountSince 获取指定房间在某个时间点之后归档的操作数量
func (r *GormActionRepository) GetCountSince(ctx context.Context, roomID string, since time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&domain.ActionRecord{}).Where("room_id = ?", roomID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("gorm: failed to count actions for room %s since %v: %w", roomID, since, err)
	}
	return count, nil
}

// ListSince 按操作时间戳升序返回归档操作；无法解码的记录被跳过
func (r *GormActionRepository) ListSince(ctx context.Context, roomID string, afterTimestamp int64, limit int) ([]domain.Action, error) {
	if limit <= 0 {
		limit = 1000
	}
	var records []domain.ActionRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND timestamp > ?", roomID, afterTimestamp).
		Order("timestamp ASC").
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to list actions for room %s after %d: %w", roomID, afterTimestamp, err)
	}
	out := make([]domain.Action, 0, len(records))
	for _, rec := range records {
		a, err := rec.Action()
		if err != nil {
			logrus.WithFields(logrus.Fields{"room_id": roomID, "action_id": rec.ActionID}).WithError(err).Warn("Skipping undecodable archived action")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
