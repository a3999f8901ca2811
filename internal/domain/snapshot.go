package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Snapshot 存储某个房间文档在某个版本的完整状态。
type Snapshot struct {
	ID        uint           `gorm:"primaryKey"`
	RoomID    string         `gorm:"size:191;index;not null"` // 房间 ID
	Version   uint64         `gorm:"index"`                   // 快照对应的 store 版本号
	Data      datatypes.JSON `gorm:"not null"`                // WhiteboardState 的 JSON
	CreatedAt time.Time      `gorm:"autoCreateTime;index"`
}

// ParseState 将 Data 解析为文档状态，空数据返回空文档。
func (s *Snapshot) ParseState() (*WhiteboardState, error) {
	state := NewState()
	if len(s.Data) == 0 || string(s.Data) == "null" {
		return state, nil
	}
	if err := json.Unmarshal(s.Data, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot data: %w", err)
	}
	if state.Objects == nil {
		state.Objects = make(map[string]*WhiteboardObject)
	}
	// 旧快照可能违反选区不变式，这里顺手整理
	state.SelectedObjectIDs = state.FilterSelection(state.SelectedObjectIDs)
	return state, nil
}

// SetState 将文档状态序列化到 Data。
func (s *Snapshot) SetState(state *WhiteboardState) error {
	if state == nil {
		state = NewState()
	}
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal board state: %w", err)
	}
	s.Data = datatypes.JSON(bytes)
	return nil
}

// ActionRecord 是归档到数据库的一条操作。
type ActionRecord struct {
	ID         uint           `gorm:"primaryKey"`
	ActionID   string         `gorm:"size:64;uniqueIndex;not null"` // Action.ID，重复归档由唯一索引挡住
	RoomID     string         `gorm:"size:191;index;not null"`
	UserID     string         `gorm:"size:191;index"`
	ActionType string         `gorm:"size:50;not null"`
	Data       datatypes.JSON `gorm:"not null"` // 完整的 Action JSON
	Timestamp  int64          `gorm:"index;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index"`
}

// NewActionRecord 把操作编码成归档记录
func NewActionRecord(roomID string, a Action) (ActionRecord, error) {
	bytes, err := json.Marshal(a)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("failed to marshal action %s: %w", a.ID, err)
	}
	return ActionRecord{
		ActionID:   a.ID,
		RoomID:     roomID,
		UserID:     a.UserID,
		ActionType: string(a.Type()),
		Data:       datatypes.JSON(bytes),
		Timestamp:  a.Timestamp,
	}, nil
}

// Action 解码归档记录
func (r ActionRecord) Action() (Action, error) {
	var a Action
	if err := json.Unmarshal(r.Data, &a); err != nil {
		return Action{}, fmt.Errorf("failed to unmarshal archived action %s: %w", r.ActionID, err)
	}
	return a, nil
}
