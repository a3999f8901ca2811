package domain

// Patch 是 reducer 的输出：一次状态变更只包含被覆盖的部分。
// Objects 中值为 nil 表示删除该 id；ReplaceObjects 为 true 时先清空全部对象再写入。
// Patch 可以 JSON 序列化，SYNC_UNDO / SYNC_REDO 原样携带它。
type Patch struct {
	Objects           map[string]*WhiteboardObject `json:"objects,omitempty"`
	ReplaceObjects    bool                         `json:"replaceObjects,omitempty"`
	SelectedObjectIDs *[]string                    `json:"selectedObjectIds,omitempty"`
	Viewport          *Viewport                    `json:"viewport,omitempty"`
	Settings          *Settings                    `json:"settings,omitempty"`
}

// IsEmpty 判断补丁是否不会改变任何东西
func (p Patch) IsEmpty() bool {
	return len(p.Objects) == 0 && !p.ReplaceObjects && p.SelectedObjectIDs == nil &&
		p.Viewport == nil && p.Settings == nil
}

// SetObject 记录一次对象写入
func (p *Patch) SetObject(o *WhiteboardObject) {
	if p.Objects == nil {
		p.Objects = make(map[string]*WhiteboardObject)
	}
	p.Objects[o.ID] = o
}

// DeleteObject 记录一次对象删除
func (p *Patch) DeleteObject(id string) {
	if p.Objects == nil {
		p.Objects = make(map[string]*WhiteboardObject)
	}
	p.Objects[id] = nil
}

// SetSelection 记录选区替换
func (p *Patch) SetSelection(ids []string) {
	cp := append([]string{}, ids...)
	p.SelectedObjectIDs = &cp
}

// Merge 把 next 叠加到 p 之后，结果等价于先应用 p 再应用 next。
func (p Patch) Merge(next Patch) Patch {
	out := Patch{
		ReplaceObjects:    p.ReplaceObjects,
		SelectedObjectIDs: p.SelectedObjectIDs,
		Viewport:          p.Viewport,
		Settings:          p.Settings,
	}
	if !next.ReplaceObjects {
		for id, o := range p.Objects {
			out.setRaw(id, o)
		}
	} else {
		out.ReplaceObjects = true
	}
	for id, o := range next.Objects {
		out.setRaw(id, o)
	}
	if next.SelectedObjectIDs != nil {
		out.SelectedObjectIDs = next.SelectedObjectIDs
	}
	if next.Viewport != nil {
		out.Viewport = next.Viewport
	}
	if next.Settings != nil {
		out.Settings = next.Settings
	}
	return out
}

func (p *Patch) setRaw(id string, o *WhiteboardObject) {
	if p.Objects == nil {
		p.Objects = make(map[string]*WhiteboardObject)
	}
	p.Objects[id] = o
}

// Clone 深拷贝补丁，避免与调用方共享对象指针
func (p Patch) Clone() Patch {
	out := Patch{ReplaceObjects: p.ReplaceObjects}
	for id, o := range p.Objects {
		out.setRaw(id, o.Clone())
	}
	if p.SelectedObjectIDs != nil {
		out.SetSelection(*p.SelectedObjectIDs)
	}
	if p.Viewport != nil {
		v := *p.Viewport
		out.Viewport = &v
	}
	if p.Settings != nil {
		s := *p.Settings
		out.Settings = &s
	}
	return out
}
