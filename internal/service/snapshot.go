package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// 快照缓存和时间记录的过期时间
const (
	snapshotCacheTTL    = 10 * time.Minute
	lastSnapshotTimeTTL = 72 * time.Hour
	maxReplayedActions  = 5000
)

// RoomDocument 是打开一个房间时需要的全部内容：最近的快照以及之后归档的操作
type RoomDocument struct {
	State   *domain.WhiteboardState
	Version uint64
	// Tail 是快照之后归档的操作，按时间戳升序，需要在 State 之上重放
	Tail []domain.Action
}

// RoomStateSource 提供房间当前的内存文档
type RoomStateSource interface {
	RoomState(roomID string) (*domain.WhiteboardState, uint64, bool)
}

// SnapshotService 负责房间文档快照的加载、保存和定期生成。
type SnapshotService struct {
	snapshotRepo repository.SnapshotRepository
	stateRepo    repository.StateRepository
	actionRepo   repository.ActionRepository
	now          func() time.Time
}

// NewSnapshotService 创建 SnapshotService 实例。
func NewSnapshotService(
	snapshotRepo repository.SnapshotRepository,
	stateRepo repository.StateRepository,
	actionRepo repository.ActionRepository,
) *SnapshotService {
	if snapshotRepo == nil || stateRepo == nil || actionRepo == nil {
		panic("All repositories must be non-nil for SnapshotService")
	}
	return &SnapshotService{
		snapshotRepo: snapshotRepo,
		stateRepo:    stateRepo,
		actionRepo:   actionRepo,
		now:          time.Now,
	}
}

// LoadLatest 加载房间的最新文档。
// 实现 "缓存优先，数据库备用，回填缓存"；都没有时返回空文档。
func (s *SnapshotService) LoadLatest(ctx context.Context, roomID string) (*RoomDocument, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "LoadLatest"})

	snapshot, err := s.stateRepo.GetSnapshotCache(ctx, roomID)
	switch {
	case err == nil && snapshot != nil:
		logCtx.Debug("Snapshot cache hit")
	case err != nil && !errors.Is(err, repository.ErrCacheMiss):
		logCtx.WithError(err).Warn("Failed to get snapshot from cache")
		snapshot = nil
	default:
		snapshot = nil
	}

	if snapshot == nil {
		snapshot, err = s.snapshotRepo.GetLatestSnapshot(ctx, roomID)
		if err != nil && !errors.Is(err, repository.ErrSnapshotNotFound) {
			logCtx.WithError(err).Error("Failed to get latest snapshot from database")
			return nil, ErrInternalServer
		}
		if snapshot != nil {
			if err := s.stateRepo.SetSnapshotCache(ctx, roomID, snapshot, snapshotCacheTTL); err != nil {
				logCtx.WithError(err).Warn("Failed to warm snapshot cache after DB load")
			}
		}
	}

	doc := &RoomDocument{State: domain.NewState()}
	var after int64
	if snapshot != nil {
		state, err := snapshot.ParseState()
		if err != nil {
			logCtx.WithError(err).Error("Failed to parse snapshot state")
			return nil, ErrInternalServer
		}
		doc.State, doc.Version = state, snapshot.Version
		after = snapshot.CreatedAt.UnixMilli()
	}

	tail, err := s.actionRepo.ListSince(ctx, roomID, after, maxReplayedActions)
	if err != nil {
		// 快照本身可用，缺少尾部时仍然打开房间
		logCtx.WithError(err).Warn("Failed to load archived actions after snapshot")
	}
	doc.Tail = tail

	logCtx.WithFields(logrus.Fields{
		"version":      doc.Version,
		"objects":      len(doc.State.Objects),
		"tail_actions": len(doc.Tail),
	}).Info("Room document loaded")
	return doc, nil
}

// Save 保存房间文档快照，更新缓存并重置操作计数。
func (s *SnapshotService) Save(ctx context.Context, roomID string, version uint64, state *domain.WhiteboardState) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "version": version})

	now := s.now()
	snapshot := &domain.Snapshot{RoomID: roomID, Version: version, CreatedAt: now.UTC()}
	if err := snapshot.SetState(state); err != nil {
		logCtx.WithError(err).Error("Snapshot: Failed to set snapshot state")
		return fmt.Errorf("failed to set snapshot state: %w", err)
	}
	if err := s.snapshotRepo.SaveSnapshot(ctx, snapshot); err != nil {
		logCtx.WithError(err).Error("Snapshot: Failed to save snapshot to database")
		return err
	}

	if err := s.stateRepo.SetSnapshotCache(ctx, roomID, snapshot, snapshotCacheTTL); err != nil {
		logCtx.WithError(err).Warn("Snapshot: Failed to update snapshot cache")
	}
	if err := s.stateRepo.ResetOpCount(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Snapshot: Failed to reset op count")
	}
	if err := s.stateRepo.SetLastSnapshotTime(ctx, roomID, now, lastSnapshotTimeTTL); err != nil {
		logCtx.WithError(err).Warn("Snapshot: Failed to record last snapshot time")
	}

	logCtx.Info("Snapshot saved")
	return nil
}

// CheckAndGenerateSnapshot 检查房间是否需要快照，需要时从 source 取当前文档保存。
// 返回是否生成了快照。
func (s *SnapshotService) CheckAndGenerateSnapshot(ctx context.Context, roomID string, source RoomStateSource) (bool, error) {
	logCtx := logrus.WithField("room_id", roomID)

	lastSnapshotTime, err := s.stateRepo.GetLastSnapshotTime(ctx, roomID)
	if err != nil {
		// 读不到时间时按从未快照处理
		logCtx.WithError(err).Warn("Failed to get last snapshot time")
		lastSnapshotTime = time.Time{}
	}

	opCount, err := s.actionRepo.GetCountSince(ctx, roomID, lastSnapshotTime)
	if err != nil {
		logCtx.WithError(err).Error("Failed to get action count since last snapshot")
		return false, ErrInternalServer
	}
	if opCount == 0 {
		return false, nil
	}

	interval := calculateSnapshotInterval(int(opCount))
	if !shouldGenerateSnapshot(lastSnapshotTime, interval, s.now()) {
		logCtx.Debugf("Snapshot condition not met (Last: %s, Interval: %s, OpsSince: %d)",
			lastSnapshotTime.Format(time.RFC3339), interval, opCount)
		return false, nil
	}

	state, version, ok := source.RoomState(roomID)
	if !ok {
		logCtx.Debug("Room is no longer open on this instance, skipping snapshot")
		return false, nil
	}
	logCtx.WithField("ops_since", opCount).Info("Snapshot condition met, generating snapshot")
	if err := s.Save(ctx, roomID, version, state); err != nil {
		return false, err
	}
	return true, nil
}

// --- 快照间隔 ---

// calculateSnapshotInterval 编辑越频繁，快照间隔越短
func calculateSnapshotInterval(opCountSinceLast int) time.Duration {
	if opCountSinceLast > 100 {
		return 30 * time.Second
	} else if opCountSinceLast > 20 {
		return 2 * time.Minute
	} else {
		return 10 * time.Minute
	}
}

func shouldGenerateSnapshot(lastSnapshotTime time.Time, interval time.Duration, now time.Time) bool {
	return lastSnapshotTime.IsZero() || now.Sub(lastSnapshotTime) >= interval
}
