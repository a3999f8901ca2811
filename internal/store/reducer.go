package store

import (
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
)

// Reduce 是纯函数：根据当前文档和操作计算补丁，不修改 state。
//
// 过期引用（对象已被删除）或重复新增时返回 ErrStaleReference / ErrDuplicateObject，
// 补丁中只包含仍然可以执行的部分。调用方记录诊断后继续，不中断会话。
// 把 path 对象的路径改成无法解析的内容时返回 domain.ErrInvalidAction 和空补丁。
func Reduce(state *domain.WhiteboardState, a domain.Action) (domain.Patch, error) {
	var p domain.Patch
	switch pl := a.Payload.(type) {
	case domain.AddObjectPayload:
		if _, exists := state.Objects[pl.Object.ID]; exists {
			return p, fmt.Errorf("%w: %s", ErrDuplicateObject, pl.Object.ID)
		}
		p.SetObject(pl.Object.Clone())

	case domain.UpdateObjectPayload:
		obj := state.Object(pl.ID)
		if obj == nil {
			return p, fmt.Errorf("%w: update of %s", ErrStaleReference, pl.ID)
		}
		pl.Updates.ApplyTo(obj, a.Timestamp)
		if obj.Type == domain.ObjectPath && pl.Updates.Data != nil {
			if err := checkPathData(obj); err != nil {
				return domain.Patch{}, fmt.Errorf("%w: update of %s: %v", domain.ErrInvalidAction, pl.ID, err)
			}
		}
		p.SetObject(obj)

	case domain.DeleteObjectPayload:
		if _, exists := state.Objects[pl.ID]; !exists {
			return p, fmt.Errorf("%w: delete of %s", ErrStaleReference, pl.ID)
		}
		p.DeleteObject(pl.ID)
		deselect(&p, state, pl.ID)

	case domain.SelectObjectsPayload:
		p.SetSelection(state.FilterSelection(pl.IDs))

	case domain.UpdateViewportPayload:
		v := pl.Viewport.ApplyTo(state.Viewport)
		p.Viewport = &v

	case domain.UpdateSettingsPayload:
		s := pl.Settings.ApplyTo(state.Settings)
		p.Settings = &s

	case domain.ClearCanvasPayload:
		p.ReplaceObjects = true
		p.SetSelection(nil)

	case domain.BatchUpdatePayload:
		return reduceBatch(state, pl.Actions)

	case domain.ErasePathPayload:
		return reduceErase(state, a, pl)

	case domain.DeleteObjectsInAreaPayload:
		removed := 0
		for _, id := range pl.ObjectIDs {
			if _, exists := state.Objects[id]; !exists {
				continue
			}
			p.DeleteObject(id)
			removed++
		}
		if removed == 0 && len(pl.ObjectIDs) > 0 {
			return p, fmt.Errorf("%w: none of %d objects in area exist", ErrStaleReference, len(pl.ObjectIDs))
		}
		deselect(&p, state, pl.ObjectIDs...)

	case domain.SyncUndoPayload:
		return pl.StateChange.Clone(), nil
	case domain.SyncRedoPayload:
		return pl.StateChange.Clone(), nil

	default:
		return p, fmt.Errorf("%w: unsupported payload %T", domain.ErrInvalidAction, a.Payload)
	}
	return p, nil
}

// checkPathData 更新后的 path 对象必须仍然带有可解析的路径
func checkPathData(obj *domain.WhiteboardObject) error {
	if obj.Data == nil {
		return fmt.Errorf("%w: missing path data", eraser.ErrInvalidPath)
	}
	_, err := eraser.ParsePath(obj.Data.Path)
	return err
}

// reduceBatch 依次折叠子操作，每一步都基于前一步的结果。
func reduceBatch(state *domain.WhiteboardState, children []domain.Action) (domain.Patch, error) {
	working := state.Clone()
	var (
		acc  domain.Patch
		errs []error
	)
	for _, child := range children {
		cp, err := Reduce(working, child)
		if err != nil {
			errs = append(errs, err)
		}
		working.Apply(cp)
		acc = acc.Merge(cp)
	}
	return acc, errors.Join(errs...)
}

// reduceErase 删除原对象，用每个至少两点的段生成新的 path。
// 新对象继承原对象的样式和定位点，id 和时间戳来自操作本身，各端结果一致。
func reduceErase(state *domain.WhiteboardState, a domain.Action, pl domain.ErasePathPayload) (domain.Patch, error) {
	var p domain.Patch
	orig := state.Object(pl.OriginalID)
	if orig == nil {
		return p, fmt.Errorf("%w: erase of %s", ErrStaleReference, pl.OriginalID)
	}
	if orig.Type != domain.ObjectPath || orig.Data == nil {
		return p, fmt.Errorf("%w: erase of %s (%s)", domain.ErrNotAPath, orig.ID, orig.Type)
	}
	p.DeleteObject(orig.ID)

	var errs []error
	for _, seg := range pl.Segments {
		if len(seg.Points) < 2 {
			continue
		}
		if _, exists := state.Objects[seg.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: segment %s", ErrDuplicateObject, seg.ID))
			continue
		}
		obj := orig.Clone()
		obj.ID = seg.ID
		obj.Data.Path = eraser.BuildPath(seg.Points, orig.Origin())
		obj.CreatedAt = a.Timestamp
		obj.UpdatedAt = a.Timestamp
		obj.CreatedBy = a.UserID
		p.SetObject(obj)
	}
	deselect(&p, state, orig.ID)
	return p, errors.Join(errs...)
}

// deselect 在补丁里把 ids 从选区中去掉（选区未包含时不写）
func deselect(p *domain.Patch, state *domain.WhiteboardState, ids ...string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	current := state.SelectedObjectIDs
	if p.SelectedObjectIDs != nil {
		current = *p.SelectedObjectIDs
	}
	kept := make([]string, 0, len(current))
	for _, id := range current {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	if len(kept) != len(current) {
		p.SetSelection(kept)
	}
}
