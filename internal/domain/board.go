package domain

import "sort"

// Viewport 是画布的平移和缩放。
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ViewportUpdate 是 UPDATE_VIEWPORT 的浅合并负载，nil 表示不变。
type ViewportUpdate struct {
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
	Zoom *float64 `json:"zoom,omitempty"`
}

// ApplyTo 返回合并后的视口
func (u ViewportUpdate) ApplyTo(v Viewport) Viewport {
	if u.X != nil {
		v.X = *u.X
	}
	if u.Y != nil {
		v.Y = *u.Y
	}
	if u.Zoom != nil {
		v.Zoom = *u.Zoom
	}
	return v
}

// Settings 是画板级别的显示设置。
type Settings struct {
	BackgroundColor string  `json:"backgroundColor"`
	ShowGrid        bool    `json:"showGrid"`
	SnapToGrid      bool    `json:"snapToGrid"`
	GridSize        float64 `json:"gridSize"`
}

// SettingsUpdate 是 UPDATE_SETTINGS 的浅合并负载。
type SettingsUpdate struct {
	BackgroundColor *string  `json:"backgroundColor,omitempty"`
	ShowGrid        *bool    `json:"showGrid,omitempty"`
	SnapToGrid      *bool    `json:"snapToGrid,omitempty"`
	GridSize        *float64 `json:"gridSize,omitempty"`
}

// ApplyTo 返回合并后的设置
func (u SettingsUpdate) ApplyTo(s Settings) Settings {
	if u.BackgroundColor != nil {
		s.BackgroundColor = *u.BackgroundColor
	}
	if u.ShowGrid != nil {
		s.ShowGrid = *u.ShowGrid
	}
	if u.SnapToGrid != nil {
		s.SnapToGrid = *u.SnapToGrid
	}
	if u.GridSize != nil {
		s.GridSize = *u.GridSize
	}
	return s
}

// DefaultViewport 返回初始视口
func DefaultViewport() Viewport { return Viewport{Zoom: 1} }

// DefaultSettings 返回初始设置
func DefaultSettings() Settings {
	return Settings{BackgroundColor: "#ffffff", GridSize: 20}
}

// WhiteboardState 是画板文档本身，也是加入房间或重新同步时发送的快照形状。
// 不变式: SelectedObjectIDs 中的每个 id 都存在于 Objects。
type WhiteboardState struct {
	Objects           map[string]*WhiteboardObject `json:"objects"`
	SelectedObjectIDs []string                     `json:"selectedObjectIds"`
	Viewport          Viewport                     `json:"viewport"`
	Settings          Settings                     `json:"settings"`
}

// NewState 创建一个空文档
func NewState() *WhiteboardState {
	return &WhiteboardState{
		Objects:           make(map[string]*WhiteboardObject),
		SelectedObjectIDs: []string{},
		Viewport:          DefaultViewport(),
		Settings:          DefaultSettings(),
	}
}

// Clone 深拷贝整个文档
func (s *WhiteboardState) Clone() *WhiteboardState {
	cp := &WhiteboardState{
		Objects:           make(map[string]*WhiteboardObject, len(s.Objects)),
		SelectedObjectIDs: append([]string{}, s.SelectedObjectIDs...),
		Viewport:          s.Viewport,
		Settings:          s.Settings,
	}
	for id, o := range s.Objects {
		cp.Objects[id] = o.Clone()
	}
	return cp
}

// Object 返回对象副本，不存在时返回 nil
func (s *WhiteboardState) Object(id string) *WhiteboardObject {
	return s.Objects[id].Clone()
}

// Apply 把补丁写入文档。补丁里的对象会被拷贝，调用方之后修改补丁不会影响文档。
// 写入完成后重新整理选区，保证选区只包含现存对象。
func (s *WhiteboardState) Apply(p Patch) {
	if p.ReplaceObjects || s.Objects == nil {
		s.Objects = make(map[string]*WhiteboardObject, len(p.Objects))
	}
	for id, o := range p.Objects {
		if o == nil {
			delete(s.Objects, id)
			continue
		}
		s.Objects[id] = o.Clone()
	}
	if p.SelectedObjectIDs != nil {
		s.SelectedObjectIDs = append([]string{}, (*p.SelectedObjectIDs)...)
	}
	if p.Viewport != nil {
		s.Viewport = *p.Viewport
	}
	if p.Settings != nil {
		s.Settings = *p.Settings
	}
	s.SelectedObjectIDs = s.existing(s.SelectedObjectIDs)
}

// existing 过滤掉不存在或重复的 id，保持原有顺序
func (s *WhiteboardState) existing(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.Objects[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FilterSelection 返回 ids 中现存对象组成的有序集合
func (s *WhiteboardState) FilterSelection(ids []string) []string {
	return s.existing(ids)
}

// IDs 返回按字典序排列的全部对象 id
func (s *WhiteboardState) IDs() []string {
	ids := make([]string, 0, len(s.Objects))
	for id := range s.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ObjectsIn 返回包围盒与 area 相交的对象 id。
func (s *WhiteboardState) ObjectsIn(area Rect) []string {
	ids := []string{}
	for _, id := range s.IDs() {
		if s.Objects[id].Bounds().Intersects(area) {
			ids = append(ids, id)
		}
	}
	return ids
}
