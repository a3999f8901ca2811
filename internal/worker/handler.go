package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/tasks"
)

// taskLogger 返回带任务信息的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// ActionArchiveHandler 把已应用的操作写入归档表
type ActionArchiveHandler struct {
	actionRepo repository.ActionRepository
}

// NewActionArchiveHandler 创建 Handler 实例
func NewActionArchiveHandler(actionRepo repository.ActionRepository) *ActionArchiveHandler {
	if actionRepo == nil {
		panic("ActionRepository cannot be nil for ActionArchiveHandler")
	}
	return &ActionArchiveHandler{actionRepo: actionRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ActionArchiveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseActionArchive(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "action_id": payload.Action.ID})

	rec, err := domain.NewActionRecord(payload.RoomID, payload.Action)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build action record")
		return fmt.Errorf("build record for action %s: %v: %w", payload.Action.ID, err, asynq.SkipRetry)
	}
	if err := h.actionRepo.SaveBatch(ctx, []domain.ActionRecord{rec}); err != nil {
		logCtx.WithError(err).Error("Failed to archive action")
		return fmt.Errorf("failed to archive action %s: %w", payload.Action.ID, err)
	}

	logCtx.Debug("Action archive task processed successfully")
	return nil
}
