package store

import (
	"time"

	"collaborative-whiteboard/internal/domain"
)

// State 返回文档的深拷贝
func (s *Store) State() *domain.WhiteboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Snapshot 返回文档副本及其对应的版本号，二者一致
func (s *Store) Snapshot() (*domain.WhiteboardState, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.version
}

// Object 返回单个对象的副本
func (s *Store) Object(id string) *domain.WhiteboardObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Object(id)
}

// View 在锁内以只读方式访问文档，fn 不能保留 state 的引用，也不能回调 Store。
func (s *Store) View(fn func(state *domain.WhiteboardState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Version 每次文档变化都会递增
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// ChangedSince 判断版本 v 之后是否有过变化
func (s *Store) ChangedSince(v uint64) bool {
	return s.Version() > v
}

// LastUpdate 返回最近一次变化的时间
func (s *Store) LastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

// LastAction 返回最近一次应用的操作
func (s *Store) LastAction() (domain.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAction == nil {
		return domain.Action{}, false
	}
	return *s.lastAction, true
}

// Actions 返回全局操作日志的副本
func (s *Store) Actions() []domain.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Action(nil), s.actionLog...)
}

// History 返回用户的个人历史和游标（-1 表示在第一条之前）
func (s *Store) History(userID string) ([]domain.Action, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Action(nil), s.histories[userID]...), s.cursorLocked(userID)
}

// CanUndo 游标 >= 0
func (s *Store) CanUndo(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorLocked(userID) >= 0
}

// CanRedo 游标 < len-1
func (s *Store) CanRedo(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorLocked(userID) < len(s.histories[userID])-1
}

// ClearHistory 清空某个用户的历史；userID 为空时清空全部历史和全局日志。
// 去重窗口保留，已经应用过的操作仍然不会被重复应用。
func (s *Store) ClearHistory(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == "" {
		s.actionLog = nil
		s.histories = make(map[string][]domain.Action)
		s.cursors = make(map[string]int)
		return
	}
	delete(s.histories, userID)
	delete(s.cursors, userID)
}
