package domain

import (
	"encoding/json"
	"fmt"

	"collaborative-whiteboard/internal/eraser"
)

// ActionType 是操作的类型标签。
type ActionType string

const (
	ActionAddObject           ActionType = "ADD_OBJECT"
	ActionUpdateObject        ActionType = "UPDATE_OBJECT"
	ActionDeleteObject        ActionType = "DELETE_OBJECT"
	ActionSelectObjects       ActionType = "SELECT_OBJECTS"
	ActionUpdateViewport      ActionType = "UPDATE_VIEWPORT"
	ActionUpdateSettings      ActionType = "UPDATE_SETTINGS"
	ActionClearCanvas         ActionType = "CLEAR_CANVAS"
	ActionBatchUpdate         ActionType = "BATCH_UPDATE"
	ActionErasePath           ActionType = "ERASE_PATH"
	ActionDeleteObjectsInArea ActionType = "DELETE_OBJECTS_IN_AREA"
	ActionSyncUndo            ActionType = "SYNC_UNDO"
	ActionSyncRedo            ActionType = "SYNC_REDO"
)

// IsSync 判断是否是携带现成补丁的同步操作
func (t ActionType) IsSync() bool {
	return t == ActionSyncUndo || t == ActionSyncRedo
}

// Payload 是操作负载的封闭集合，只有本包内的类型能实现它。
type Payload interface {
	ActionType() ActionType
	isPayload()
}

// AddObjectPayload 新增一个对象
type AddObjectPayload struct {
	Object WhiteboardObject `json:"object"`
}

// UpdateObjectPayload 把增量合并进已有对象
type UpdateObjectPayload struct {
	ID      string        `json:"id"`
	Updates ObjectUpdates `json:"updates"`
}

// DeleteObjectPayload 删除一个对象
type DeleteObjectPayload struct {
	ID string `json:"id"`
}

// SelectObjectsPayload 整体替换选区
type SelectObjectsPayload struct {
	IDs []string `json:"ids"`
}

// UpdateViewportPayload 浅合并视口
type UpdateViewportPayload struct {
	Viewport ViewportUpdate `json:"viewport"`
}

// UpdateSettingsPayload 浅合并设置
type UpdateSettingsPayload struct {
	Settings SettingsUpdate `json:"settings"`
}

// ClearCanvasPayload 清空画布
type ClearCanvasPayload struct{}

// BatchUpdatePayload 把同一手势的多个操作折叠成一条历史记录
type BatchUpdatePayload struct {
	Actions []Action `json:"actions"`
}

// ErasePathPayload 把一条笔画替换成擦除后存活的若干段。
// 段内的点是画布绝对坐标，段 id 直接作为新对象的 id，保证各端生成相同的对象。
type ErasePathPayload struct {
	OriginalID string               `json:"originalId"`
	Segments   []eraser.PathSegment `json:"segments"`
}

// DeleteObjectsInAreaPayload 删除框选区域内的对象。
// ObjectIDs 由发起端按自己的文档解析一次，对端只按 id 删除。
type DeleteObjectsInAreaPayload struct {
	Area      Rect     `json:"area"`
	ObjectIDs []string `json:"objectIds"`
}

// SyncChange 是撤销/重做在发起端计算好的补丁。
type SyncChange struct {
	OriginalActionID string `json:"originalActionId"`
	StateChange      Patch  `json:"stateChange"`
}

// SyncUndoPayload 对端原样应用撤销补丁
type SyncUndoPayload struct {
	SyncChange
}

// SyncRedoPayload 对端原样应用重做补丁
type SyncRedoPayload struct {
	SyncChange
}

func (AddObjectPayload) ActionType() ActionType           { return ActionAddObject }
func (UpdateObjectPayload) ActionType() ActionType        { return ActionUpdateObject }
func (DeleteObjectPayload) ActionType() ActionType        { return ActionDeleteObject }
func (SelectObjectsPayload) ActionType() ActionType       { return ActionSelectObjects }
func (UpdateViewportPayload) ActionType() ActionType      { return ActionUpdateViewport }
func (UpdateSettingsPayload) ActionType() ActionType      { return ActionUpdateSettings }
func (ClearCanvasPayload) ActionType() ActionType         { return ActionClearCanvas }
func (BatchUpdatePayload) ActionType() ActionType         { return ActionBatchUpdate }
func (ErasePathPayload) ActionType() ActionType           { return ActionErasePath }
func (DeleteObjectsInAreaPayload) ActionType() ActionType { return ActionDeleteObjectsInArea }
func (SyncUndoPayload) ActionType() ActionType            { return ActionSyncUndo }
func (SyncRedoPayload) ActionType() ActionType            { return ActionSyncRedo }

func (AddObjectPayload) isPayload()           {}
func (UpdateObjectPayload) isPayload()        {}
func (DeleteObjectPayload) isPayload()        {}
func (SelectObjectsPayload) isPayload()       {}
func (UpdateViewportPayload) isPayload()      {}
func (UpdateSettingsPayload) isPayload()      {}
func (ClearCanvasPayload) isPayload()         {}
func (BatchUpdatePayload) isPayload()         {}
func (ErasePathPayload) isPayload()           {}
func (DeleteObjectsInAreaPayload) isPayload() {}
func (SyncUndoPayload) isPayload()            {}
func (SyncRedoPayload) isPayload()            {}

// PreviousState 只保存该操作会覆盖的那部分旧状态，撤销时使用。
type PreviousState struct {
	Object            *WhiteboardObject            `json:"object,omitempty"`
	Objects           map[string]*WhiteboardObject `json:"objects,omitempty"`
	SelectedObjectIDs *[]string                    `json:"selectedObjectIds,omitempty"`
	Viewport          *Viewport                    `json:"viewport,omitempty"`
	Settings          *Settings                    `json:"settings,omitempty"`
}

// Action 是一次状态变更的不可变记录，也是历史和同步的基本单位。
// 创建之后不再修改；ID 在系统生命周期内唯一，用于回声抑制和去重。
type Action struct {
	ID            string
	Payload       Payload
	Timestamp     int64
	UserID        string
	PreviousState *PreviousState
}

// Type 返回负载对应的类型标签
func (a Action) Type() ActionType {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.ActionType()
}

type wireAction struct {
	ID            string          `json:"id"`
	Type          ActionType      `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     int64           `json:"timestamp"`
	UserID        string          `json:"userId"`
	PreviousState *PreviousState  `json:"previousState,omitempty"`
}

// MarshalJSON 编码为 {"id","type","payload",...}
func (a Action) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("%w: action %s has no payload", ErrInvalidAction, a.ID)
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", a.Type(), err)
	}
	return json.Marshal(wireAction{
		ID:            a.ID,
		Type:          a.Type(),
		Payload:       payload,
		Timestamp:     a.Timestamp,
		UserID:        a.UserID,
		PreviousState: a.PreviousState,
	})
}

// UnmarshalJSON 按 type 标签选择负载类型；未知标签返回 ErrUnknownActionType。
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*a = Action{
		ID:            w.ID,
		Payload:       payload,
		Timestamp:     w.Timestamp,
		UserID:        w.UserID,
		PreviousState: w.PreviousState,
	}
	return nil
}

func decodePayload(t ActionType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	var (
		p   Payload
		err error
	)
	switch t {
	case ActionAddObject:
		p, err = decodeAs[AddObjectPayload](raw)
	case ActionUpdateObject:
		p, err = decodeAs[UpdateObjectPayload](raw)
	case ActionDeleteObject:
		p, err = decodeAs[DeleteObjectPayload](raw)
	case ActionSelectObjects:
		p, err = decodeAs[SelectObjectsPayload](raw)
	case ActionUpdateViewport:
		p, err = decodeAs[UpdateViewportPayload](raw)
	case ActionUpdateSettings:
		p, err = decodeAs[UpdateSettingsPayload](raw)
	case ActionClearCanvas:
		p, err = decodeAs[ClearCanvasPayload](raw)
	case ActionBatchUpdate:
		p, err = decodeAs[BatchUpdatePayload](raw)
	case ActionErasePath:
		p, err = decodeAs[ErasePathPayload](raw)
	case ActionDeleteObjectsInArea:
		p, err = decodeAs[DeleteObjectsInAreaPayload](raw)
	case ActionSyncUndo:
		p, err = decodeAs[SyncUndoPayload](raw)
	case ActionSyncRedo:
		p, err = decodeAs[SyncRedoPayload](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", t, err)
	}
	return p, nil
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
