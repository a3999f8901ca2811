// Package undo 实现每个用户独立的撤销/重做：直接把补丁写入 store，并把同一份补丁同步给其他协作者。
package undo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUndoUnavailable 表示操作没有捕获旧状态，无法撤销
	ErrUndoUnavailable = errors.New("undo: previous state unavailable")
	// ErrNothingToUndo 用户没有可以撤销的操作
	ErrNothingToUndo = errors.New("undo: nothing to undo")
	// ErrNothingToRedo 用户没有可以重做的操作
	ErrNothingToRedo = errors.New("undo: nothing to redo")
)

// Broadcaster 是撤销结果的出口，通常由同步桥实现。
type Broadcaster interface {
	Connected() bool
	SendAction(ctx context.Context, a domain.Action) error
}

// Manager 负责某个 store 上所有用户的撤销与重做。
type Manager struct {
	store *store.Store
	out   Broadcaster
	log   *logrus.Entry
	now   func() time.Time
}

// Option 配置 Manager
type Option func(*Manager)

// WithBroadcaster 设置同步出口
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) { m.out = b }
}

// WithLogger 指定日志
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock 指定时间来源
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建撤销管理器
func NewManager(s *store.Store, opts ...Option) *Manager {
	if s == nil {
		panic("Store cannot be nil for undo Manager")
	}
	m := &Manager{
		store: s,
		log:   logrus.WithField("component", "undo"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetBroadcaster 在构造之后接上同步出口（桥和管理器互相引用时使用）
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.out = b
}

// CanUndo 游标 >= 0
func (m *Manager) CanUndo(userID string) bool { return m.store.CanUndo(userID) }

// CanRedo 游标 < len-1
func (m *Manager) CanRedo(userID string) bool { return m.store.CanRedo(userID) }

// Undo 撤销用户游标处的操作。
// 补丁由旧状态得出并直接写入 store，游标后退；连接可用时发出 SYNC_UNDO。
func (m *Manager) Undo(ctx context.Context, userID string) error {
	a, patch, err := m.store.StepHistory(userID, -1, func(_ *domain.WhiteboardState, a domain.Action) (domain.Patch, error) {
		return Inverse(a)
	})
	if errors.Is(err, store.ErrNoHistoryStep) {
		return ErrNothingToUndo
	}
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "action_id": a.ID}).Warn("Undo refused")
		return err
	}
	m.emit(ctx, userID, domain.SyncUndoPayload{SyncChange: domain.SyncChange{OriginalActionID: a.ID, StateChange: patch}})
	return nil
}

// Redo 重做用户游标之后的操作。补丁由操作自己的负载在当前文档上重新推导。
func (m *Manager) Redo(ctx context.Context, userID string) error {
	a, patch, err := m.store.StepHistory(userID, 1, forward)
	if errors.Is(err, store.ErrNoHistoryStep) {
		return ErrNothingToRedo
	}
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "action_id": a.ID}).Warn("Redo refused")
		return err
	}
	m.emit(ctx, userID, domain.SyncRedoPayload{SyncChange: domain.SyncChange{OriginalActionID: a.ID, StateChange: patch}})
	return nil
}

// forward 在当前文档上重放操作；部分过期的操作仍然执行能执行的部分
func forward(state *domain.WhiteboardState, a domain.Action) (domain.Patch, error) {
	p, err := store.Reduce(state, a)
	if err != nil && p.IsEmpty() {
		return p, fmt.Errorf("redo of %s: %w", a.ID, err)
	}
	return p, nil
}

func (m *Manager) emit(ctx context.Context, userID string, payload domain.Payload) {
	if m.out == nil || !m.out.Connected() {
		return
	}
	sync := domain.Action{
		ID:        domain.NewID(),
		Payload:   payload,
		Timestamp: m.now().UnixMilli(),
		UserID:    userID,
	}
	if err := m.out.SendAction(ctx, sync); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"user_id":     userID,
			"action_type": sync.Type(),
		}).Warn("Failed to send sync action")
	}
}
