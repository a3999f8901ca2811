package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
)

// roomCheckTimeout 是单个房间快照检查的超时
const roomCheckTimeout = 30 * time.Second

// SnapshotSaver 保存一份房间文档
type SnapshotSaver interface {
	Save(ctx context.Context, roomID string, version uint64, state *domain.WhiteboardState) error
}

// SnapshotChecker 按操作量决定是否为房间生成快照
type SnapshotChecker interface {
	CheckAndGenerateSnapshot(ctx context.Context, roomID string, source service.RoomStateSource) (bool, error)
}

// ActiveRooms 列出本实例打开的房间并提供它们的文档，由 hub.Hub 实现
type ActiveRooms interface {
	service.RoomStateSource
	GetActiveRoomIDs() []string
}

// SnapshotSaveHandler 处理房间关闭时投递的快照保存任务
type SnapshotSaveHandler struct {
	saver SnapshotSaver
}

// NewSnapshotSaveHandler 创建 Handler 实例
func NewSnapshotSaveHandler(saver SnapshotSaver) *SnapshotSaveHandler {
	if saver == nil {
		panic("SnapshotSaver cannot be nil for SnapshotSaveHandler")
	}
	return &SnapshotSaveHandler{saver: saver}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SnapshotSaveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseSnapshotSave(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "version": payload.Version})

	if err := h.saver.Save(ctx, payload.RoomID, payload.Version, payload.State); err != nil {
		logCtx.WithError(err).Error("Failed to save room snapshot")
		return fmt.Errorf("save snapshot for room %s: %w", payload.RoomID, err)
	}
	logCtx.Info("Snapshot save task processed successfully")
	return nil
}

// SnapshotCheckHandler 处理周期性的快照检查任务
type SnapshotCheckHandler struct {
	rooms   ActiveRooms
	checker SnapshotChecker
}

// NewSnapshotCheckHandler 创建 Handler 实例
func NewSnapshotCheckHandler(rooms ActiveRooms, checker SnapshotChecker) *SnapshotCheckHandler {
	if rooms == nil {
		panic("ActiveRooms cannot be nil for SnapshotCheckHandler")
	}
	if checker == nil {
		panic("SnapshotChecker cannot be nil for SnapshotCheckHandler")
	}
	return &SnapshotCheckHandler{rooms: rooms, checker: checker}
}

// ProcessTask 检查本实例所有打开的房间。单个房间失败只记录日志，周期任务本身视为完成。
func (h *SnapshotCheckHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Info("Processing periodic snapshot check task...")

	activeRoomIDs := h.rooms.GetActiveRoomIDs()
	if len(activeRoomIDs) == 0 {
		logCtx.Info("No active rooms found, skipping snapshot check.")
		return nil
	}
	logCtx.Infof("Found %d active rooms to check.", len(activeRoomIDs))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failed    int
		generated int
	)
	for _, roomID := range activeRoomIDs {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			roomLogCtx := logCtx.WithField("room_id", roomID)

			checkCtx, cancel := context.WithTimeout(ctx, roomCheckTimeout)
			defer cancel()
			ok, err := h.checker.CheckAndGenerateSnapshot(checkCtx, roomID, h.rooms)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				roomLogCtx.WithError(err).Error("Snapshot check/generation failed for room")
				failed++
			case ok:
				generated++
			default:
				roomLogCtx.Debug("Snapshot check complete, no generation needed.")
			}
		}(roomID)
	}
	wg.Wait()

	logCtx = logCtx.WithFields(logrus.Fields{"generated": generated, "failed": failed})
	if failed > 0 {
		logCtx.Error("Snapshot check completed with errors for some rooms.")
		return nil
	}
	logCtx.Info("Periodic snapshot check task completed successfully.")
	return nil
}
