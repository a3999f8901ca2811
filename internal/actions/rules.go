// Package actions 定义操作的结构校验、历史/广播策略，以及统一捕获旧状态的操作工厂。
package actions

import (
	"fmt"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidAction, fmt.Sprintf(format, args...))
}

// Validate 做结构校验：必填字段存在，负载形状与类型匹配。
// 返回的错误都包裹 domain.ErrInvalidAction。
func Validate(a domain.Action) error {
	if a.ID == "" {
		return invalid("missing id")
	}
	if a.UserID == "" {
		return invalid("action %s missing userId", a.ID)
	}
	if a.Payload == nil {
		return invalid("action %s missing payload", a.ID)
	}
	return validatePayload(a.ID, a.Payload, false)
}

func validatePayload(id string, payload domain.Payload, nested bool) error {
	switch p := payload.(type) {
	case domain.AddObjectPayload:
		return validateObject(id, &p.Object)
	case domain.UpdateObjectPayload:
		if p.ID == "" {
			return invalid("action %s: update without object id", id)
		}
		if p.Updates.IsEmpty() {
			return invalid("action %s: update of %s carries no fields", id, p.ID)
		}
	case domain.DeleteObjectPayload:
		if p.ID == "" {
			return invalid("action %s: delete without object id", id)
		}
	case domain.SelectObjectsPayload:
		for _, oid := range p.IDs {
			if oid == "" {
				return invalid("action %s: empty id in selection", id)
			}
		}
	case domain.UpdateViewportPayload:
		if p.Viewport.Zoom != nil && *p.Viewport.Zoom <= 0 {
			return invalid("action %s: zoom must be positive", id)
		}
	case domain.UpdateSettingsPayload:
		if p.Settings.GridSize != nil && *p.Settings.GridSize < 0 {
			return invalid("action %s: negative grid size", id)
		}
	case domain.ClearCanvasPayload:
	case domain.BatchUpdatePayload:
		if nested {
			return invalid("action %s: nested batch", id)
		}
		if len(p.Actions) == 0 {
			return invalid("action %s: empty batch", id)
		}
		for _, child := range p.Actions {
			if child.ID == "" || child.Payload == nil {
				return invalid("action %s: malformed batch child", id)
			}
			if child.Type().IsSync() {
				return invalid("action %s: sync action inside batch", id)
			}
			if err := validatePayload(child.ID, child.Payload, true); err != nil {
				return err
			}
		}
	case domain.ErasePathPayload:
		if p.OriginalID == "" {
			return invalid("action %s: erase without original id", id)
		}
		for _, seg := range p.Segments {
			if seg.ID == "" {
				return invalid("action %s: segment without id", id)
			}
		}
	case domain.DeleteObjectsInAreaPayload:
		for _, oid := range p.ObjectIDs {
			if oid == "" {
				return invalid("action %s: empty id in area delete", id)
			}
		}
	case domain.SyncUndoPayload:
		return validateSync(id, p.SyncChange)
	case domain.SyncRedoPayload:
		return validateSync(id, p.SyncChange)
	default:
		return invalid("action %s: unsupported payload %T", id, payload)
	}
	return nil
}

func validateObject(id string, o *domain.WhiteboardObject) error {
	if o.ID == "" {
		return invalid("action %s: object without id", id)
	}
	if !o.Type.Valid() {
		return invalid("action %s: unknown object type %q", id, o.Type)
	}
	if o.Type == domain.ObjectPath {
		if o.Data == nil {
			return invalid("action %s: path %s without data", id, o.ID)
		}
		if _, err := eraser.ParsePath(o.Data.Path); err != nil {
			return invalid("action %s: path %s: %v", id, o.ID, err)
		}
	}
	return nil
}

func validateSync(id string, c domain.SyncChange) error {
	if c.OriginalActionID == "" {
		return invalid("action %s: sync without original action id", id)
	}
	for oid, o := range c.StateChange.Objects {
		if o != nil && o.ID != oid {
			return invalid("action %s: patch key %s does not match object id %s", id, oid, o.ID)
		}
	}
	return nil
}

// ShouldRecordInHistory 同步操作不进入任何历史，避免撤销记录无限递归。
func ShouldRecordInHistory(a domain.Action) bool {
	return !a.Type().IsSync()
}

// BroadcastPolicy 决定哪些本地操作需要发给其他协作者。
type BroadcastPolicy struct {
	// LocalSelection 为 true 时选区变化只留在本地
	LocalSelection bool
}

// ShouldBroadcast 是纯函数，便于脱离传输层测试。
func (p BroadcastPolicy) ShouldBroadcast(a domain.Action) bool {
	if p.LocalSelection && a.Type() == domain.ActionSelectObjects {
		return false
	}
	return true
}

// ObjectIDOf 返回操作涉及的主对象 id；不针对单个对象的操作返回空串。
func ObjectIDOf(a domain.Action) string {
	switch p := a.Payload.(type) {
	case domain.AddObjectPayload:
		return p.Object.ID
	case domain.UpdateObjectPayload:
		return p.ID
	case domain.DeleteObjectPayload:
		return p.ID
	case domain.ErasePathPayload:
		return p.OriginalID
	}
	return ""
}
