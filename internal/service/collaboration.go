package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/actions"
	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/syncbridge"
	"collaborative-whiteboard/internal/tasks"
)

// TaskEnqueuer 是 asynq.Client 中用到的部分
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RateLimit 是每个用户在每个房间的操作频率上限
type RateLimit struct {
	Max    int
	Window time.Duration
}

// CollaborationService 处理客户端发来的协作消息：检查作者、校验结构、限流，
// 以及应用之后的计数和归档。应用本身由房间的 store 完成。
type CollaborationService struct {
	stateRepo repository.StateRepository
	tasks     TaskEnqueuer
	limit     RateLimit
}

// NewCollaborationService 创建 CollaborationService 实例。tasks 为 nil 时不归档。
func NewCollaborationService(stateRepo repository.StateRepository, tasks TaskEnqueuer, limit RateLimit) *CollaborationService {
	if stateRepo == nil {
		panic("StateRepository cannot be nil for CollaborationService")
	}
	return &CollaborationService{stateRepo: stateRepo, tasks: tasks, limit: limit}
}

// ProcessIncomingMessage 解析客户端消息。只接受 action 类型，且作者必须是连接的用户。
func (s *CollaborationService) ProcessIncomingMessage(ctx context.Context, roomID, userID string, raw []byte) (domain.Action, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	env, err := syncbridge.Decode(raw)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to decode client message")
		return domain.Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if env.Type != syncbridge.EnvelopeAction {
		logCtx.WithField("envelope_type", env.Type).Warn("Client sent a non-action envelope")
		return domain.Action{}, fmt.Errorf("%w: clients may only send actions", ErrInvalidAction)
	}
	a := *env.Action
	logCtx = logCtx.WithFields(logrus.Fields{"action_id": a.ID, "action_type": a.Type()})

	if a.UserID != userID {
		logCtx.WithField("claimed_user", a.UserID).Warn("Rejected action with foreign author")
		return domain.Action{}, ErrForbiddenAction
	}
	if err := actions.Validate(a); err != nil {
		logCtx.WithError(err).Warn("Rejected invalid action")
		return domain.Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	if s.limit.Max > 0 {
		key := fmt.Sprintf("room:%s:user:%s", roomID, userID)
		exceeded, err := s.stateRepo.CheckRateLimit(ctx, key, s.limit.Max, s.limit.Window)
		if err != nil {
			// Redis 不可用时放行
			logCtx.WithError(err).Warn("Rate limit check failed, allowing action")
		} else if exceeded {
			logCtx.Warn("Action rate limit exceeded")
			return domain.Action{}, ErrRateLimited
		}
	}
	return a, nil
}

// RecordApplied 增加房间操作计数并投递归档任务。失败只记日志，不影响实时协作。
func (s *CollaborationService) RecordApplied(ctx context.Context, roomID string, a domain.Action) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "action_id": a.ID})

	if err := s.stateRepo.IncrementOpCount(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to increment op count")
	}
	if s.tasks == nil {
		return
	}
	task, err := tasks.NewActionArchiveTask(roomID, a)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build archive task")
		return
	}
	if _, err := s.tasks.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return
		}
		logCtx.WithError(err).Warn("Failed to enqueue archive task")
	}
}
