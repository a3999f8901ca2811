package undo

import (
	"fmt"

	"collaborative-whiteboard/internal/domain"
)

// Inverse 根据操作捕获的旧状态计算撤销补丁。没有旧状态就无法撤销，绝不猜测。
func Inverse(a domain.Action) (domain.Patch, error) {
	if b, ok := a.Payload.(domain.BatchUpdatePayload); ok {
		return inverseBatch(a, b)
	}
	prev := a.PreviousState
	if prev == nil {
		return domain.Patch{}, fmt.Errorf("%w: %s %s has no previous state", ErrUndoUnavailable, a.Type(), a.ID)
	}

	var p domain.Patch
	switch pl := a.Payload.(type) {
	case domain.AddObjectPayload:
		p.DeleteObject(pl.Object.ID)

	case domain.UpdateObjectPayload:
		if prev.Object == nil {
			return p, unavailable(a, "object snapshot")
		}
		p.SetObject(prev.Object.Clone())

	case domain.DeleteObjectPayload:
		if prev.Object == nil {
			return p, unavailable(a, "object snapshot")
		}
		p.SetObject(prev.Object.Clone())
		restoreSelection(&p, prev)

	case domain.SelectObjectsPayload:
		if prev.SelectedObjectIDs == nil {
			return p, unavailable(a, "selection")
		}
		restoreSelection(&p, prev)

	case domain.UpdateViewportPayload:
		if prev.Viewport == nil {
			return p, unavailable(a, "viewport")
		}
		v := *prev.Viewport
		p.Viewport = &v

	case domain.UpdateSettingsPayload:
		if prev.Settings == nil {
			return p, unavailable(a, "settings")
		}
		s := *prev.Settings
		p.Settings = &s

	case domain.ClearCanvasPayload, domain.DeleteObjectsInAreaPayload:
		// 只把被删除的对象放回去，清空之后别人新加的对象保留
		for _, o := range prev.Objects {
			p.SetObject(o.Clone())
		}
		restoreSelection(&p, prev)

	case domain.ErasePathPayload:
		if prev.Object == nil {
			return p, unavailable(a, "original stroke")
		}
		for _, seg := range pl.Segments {
			if len(seg.Points) >= 2 {
				p.DeleteObject(seg.ID)
			}
		}
		p.SetObject(prev.Object.Clone())
		restoreSelection(&p, prev)

	default:
		return p, fmt.Errorf("%w: %s cannot be undone", ErrUndoUnavailable, a.Type())
	}
	return p, nil
}

// inverseBatch 逆序叠加各子操作的撤销补丁
func inverseBatch(a domain.Action, b domain.BatchUpdatePayload) (domain.Patch, error) {
	if len(b.Actions) == 0 {
		return domain.Patch{}, unavailable(a, "batch children")
	}
	var acc domain.Patch
	for i := len(b.Actions) - 1; i >= 0; i-- {
		inv, err := Inverse(b.Actions[i])
		if err != nil {
			return domain.Patch{}, fmt.Errorf("batch %s: %w", a.ID, err)
		}
		acc = acc.Merge(inv)
	}
	return acc, nil
}

func restoreSelection(p *domain.Patch, prev *domain.PreviousState) {
	if prev.SelectedObjectIDs != nil {
		p.SetSelection(*prev.SelectedObjectIDs)
	}
}

func unavailable(a domain.Action, what string) error {
	return fmt.Errorf("%w: %s %s is missing the captured %s", ErrUndoUnavailable, a.Type(), a.ID, what)
}
