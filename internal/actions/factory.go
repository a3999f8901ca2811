package actions

import (
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/eraser"
)

// Factory 是创建操作的唯一入口。它按操作类型捕获撤销所需的那一小片旧状态，
// 调用方不需要（也不能）自己拼 PreviousState。
type Factory struct {
	UserID string
	// Now 为空时使用 time.Now
	Now func() time.Time
}

// NewFactory 创建绑定到某个用户的工厂
func NewFactory(userID string) Factory {
	return Factory{UserID: userID, Now: time.Now}
}

func (f Factory) now() int64 {
	if f.Now == nil {
		return time.Now().UnixMilli()
	}
	return f.Now().UnixMilli()
}

// New 根据当前文档创建一条操作并做结构校验。state 只读。
// 校验失败时在构造阶段同步返回错误，操作不会到达 store。
func (f Factory) New(state *domain.WhiteboardState, payload domain.Payload) (domain.Action, error) {
	ts := f.now()
	if add, ok := payload.(domain.AddObjectPayload); ok {
		add.Object = *add.Object.Clone()
		if add.Object.CreatedAt == 0 {
			add.Object.CreatedAt = ts
		}
		if add.Object.UpdatedAt == 0 {
			add.Object.UpdatedAt = add.Object.CreatedAt
		}
		if add.Object.CreatedBy == "" {
			add.Object.CreatedBy = f.UserID
		}
		payload = add
	}
	a := domain.Action{
		ID:            domain.NewID(),
		Payload:       payload,
		Timestamp:     ts,
		UserID:        f.UserID,
		PreviousState: CapturePrevious(state, payload),
	}
	if err := Validate(a); err != nil {
		return domain.Action{}, err
	}
	return a, nil
}

// Batch 把若干已创建的操作包装成一条 BATCH_UPDATE，撤销快照取第一条的旧状态。
func (f Factory) Batch(children []domain.Action) (domain.Action, error) {
	a := domain.Action{
		ID:        domain.NewID(),
		Payload:   domain.BatchUpdatePayload{Actions: children},
		Timestamp: f.now(),
		UserID:    f.UserID,
	}
	if len(children) > 0 {
		a.PreviousState = children[0].PreviousState
	}
	if err := Validate(a); err != nil {
		return domain.Action{}, err
	}
	return a, nil
}

// CapturePrevious 返回 payload 将要覆盖的旧状态。
// 被引用的对象不存在时返回 nil：这种操作在 store 里会成为过期引用，没有可撤销的内容。
func CapturePrevious(state *domain.WhiteboardState, payload domain.Payload) *domain.PreviousState {
	selection := func() *[]string {
		ids := append([]string{}, state.SelectedObjectIDs...)
		return &ids
	}
	switch p := payload.(type) {
	case domain.AddObjectPayload:
		// 撤销新增只需要对象 id，已在负载里
		return &domain.PreviousState{}
	case domain.UpdateObjectPayload:
		obj := state.Object(p.ID)
		if obj == nil {
			return nil
		}
		return &domain.PreviousState{Object: obj}
	case domain.DeleteObjectPayload:
		obj := state.Object(p.ID)
		if obj == nil {
			return nil
		}
		return &domain.PreviousState{Object: obj, SelectedObjectIDs: selection()}
	case domain.SelectObjectsPayload:
		return &domain.PreviousState{SelectedObjectIDs: selection()}
	case domain.UpdateViewportPayload:
		v := state.Viewport
		return &domain.PreviousState{Viewport: &v}
	case domain.UpdateSettingsPayload:
		s := state.Settings
		return &domain.PreviousState{Settings: &s}
	case domain.ClearCanvasPayload:
		return &domain.PreviousState{Objects: cloneAll(state), SelectedObjectIDs: selection()}
	case domain.ErasePathPayload:
		obj := state.Object(p.OriginalID)
		if obj == nil {
			return nil
		}
		return &domain.PreviousState{Object: obj, SelectedObjectIDs: selection()}
	case domain.DeleteObjectsInAreaPayload:
		return &domain.PreviousState{Objects: cloneObjects(state, p.ObjectIDs), SelectedObjectIDs: selection()}
	case domain.BatchUpdatePayload:
		if len(p.Actions) > 0 {
			return p.Actions[0].PreviousState
		}
	}
	return nil
}

func cloneAll(state *domain.WhiteboardState) map[string]*domain.WhiteboardObject {
	out := make(map[string]*domain.WhiteboardObject, len(state.Objects))
	for id, o := range state.Objects {
		out[id] = o.Clone()
	}
	return out
}

// cloneObjects 拷贝 ids 中现存的对象
func cloneObjects(state *domain.WhiteboardState, ids []string) map[string]*domain.WhiteboardObject {
	out := make(map[string]*domain.WhiteboardObject, len(ids))
	for _, id := range ids {
		if o := state.Object(id); o != nil {
			out[id] = o
		}
	}
	return out
}

// AreaPayload 按发起端文档解析框选区域内的对象
func AreaPayload(state *domain.WhiteboardState, area domain.Rect) domain.DeleteObjectsInAreaPayload {
	area = area.Normalize()
	return domain.DeleteObjectsInAreaPayload{Area: area, ObjectIDs: state.ObjectsIn(area)}
}

// ErasePayloads 对文档里每条被橡皮擦触及的 path 计算擦除结果。
// 一个对象的多个子路径分别切分，结果合并到同一条 ERASE_PATH。
func ErasePayloads(state *domain.WhiteboardState, erasers []eraser.Eraser) []domain.ErasePathPayload {
	var out []domain.ErasePathPayload
	for _, id := range state.IDs() {
		obj := state.Objects[id]
		if obj.Type != domain.ObjectPath {
			continue
		}
		subpaths, err := obj.PathPoints()
		if err != nil {
			continue
		}
		width := obj.StrokeWidthOr(0)
		touched := false
		for _, sp := range subpaths {
			if eraser.Intersects(sp, erasers, width) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		payload := domain.ErasePathPayload{OriginalID: id, Segments: []eraser.PathSegment{}}
		for _, sp := range subpaths {
			payload.Segments = append(payload.Segments, eraser.Erase(sp, erasers, width)...)
		}
		out = append(out, payload)
	}
	return out
}
