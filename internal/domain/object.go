package domain

import (
	"math"

	"collaborative-whiteboard/internal/eraser"
	"collaborative-whiteboard/internal/geometry"
)

// ObjectType 是白板对象的类型标签，取值是封闭集合。
type ObjectType string

const (
	ObjectPath      ObjectType = "path"
	ObjectRectangle ObjectType = "rectangle"
	ObjectCircle    ObjectType = "circle"
	ObjectText      ObjectType = "text"
	ObjectImage     ObjectType = "image"
	ObjectPolygon   ObjectType = "polygon"
	ObjectTriangle  ObjectType = "triangle"
	ObjectStar      ObjectType = "star"
	ObjectHexagon   ObjectType = "hexagon"
	ObjectDiamond   ObjectType = "diamond"
)

// Valid 判断类型标签是否属于已知集合
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectPath, ObjectRectangle, ObjectCircle, ObjectText, ObjectImage,
		ObjectPolygon, ObjectTriangle, ObjectStar, ObjectHexagon, ObjectDiamond:
		return true
	}
	return false
}

// ObjectData 存放与类型相关的负载：路径命令、文字排版或图片引用。
type ObjectData struct {
	Path        string   `json:"path,omitempty"`
	Text        string   `json:"text,omitempty"`
	FontSize    *float64 `json:"fontSize,omitempty"`
	FontFamily  string   `json:"fontFamily,omitempty"`
	FontWeight  string   `json:"fontWeight,omitempty"`
	TextAlign   string   `json:"textAlign,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Sides       *int     `json:"sides,omitempty"`
	InnerRadius *float64 `json:"innerRadius,omitempty"`
}

// Clone 深拷贝
func (d *ObjectData) Clone() *ObjectData {
	if d == nil {
		return nil
	}
	cp := *d
	cp.FontSize = clonePtr(d.FontSize)
	cp.Sides = clonePtr(d.Sides)
	cp.InnerRadius = clonePtr(d.InnerRadius)
	return &cp
}

// WhiteboardObject 是画布上的一个可绘制实体。
// ID 在对象整个生命周期内不变；path 类型的 Data.Path 是相对 (X, Y) 的 move/line 命令序列。
type WhiteboardObject struct {
	ID          string      `json:"id"`
	Type        ObjectType  `json:"type"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       *float64    `json:"width,omitempty"`
	Height      *float64    `json:"height,omitempty"`
	Rotation    *float64    `json:"rotation,omitempty"`
	Fill        *string     `json:"fill,omitempty"`
	Stroke      *string     `json:"stroke,omitempty"`
	StrokeWidth *float64    `json:"strokeWidth,omitempty"`
	Opacity     *float64    `json:"opacity,omitempty"`
	Data        *ObjectData `json:"data,omitempty"`
	CreatedAt   int64       `json:"createdAt"`
	UpdatedAt   int64       `json:"updatedAt"`
	CreatedBy   string      `json:"createdBy,omitempty"`
}

// Clone 返回一个不共享任何指针的副本。store 对外只交出副本。
func (o *WhiteboardObject) Clone() *WhiteboardObject {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Width = clonePtr(o.Width)
	cp.Height = clonePtr(o.Height)
	cp.Rotation = clonePtr(o.Rotation)
	cp.Fill = clonePtr(o.Fill)
	cp.Stroke = clonePtr(o.Stroke)
	cp.StrokeWidth = clonePtr(o.StrokeWidth)
	cp.Opacity = clonePtr(o.Opacity)
	cp.Data = o.Data.Clone()
	return &cp
}

// StrokeWidthOr 返回笔画宽度，未设置时返回 def
func (o *WhiteboardObject) StrokeWidthOr(def float64) float64 {
	if o.StrokeWidth == nil {
		return def
	}
	return *o.StrokeWidth
}

// Origin 返回对象的定位点
func (o *WhiteboardObject) Origin() geometry.Point {
	return geometry.Point{X: o.X, Y: o.Y}
}

// PathPoints 解析 path 对象的路径，返回每个子路径的画布绝对坐标。
func (o *WhiteboardObject) PathPoints() ([][]geometry.Point, error) {
	if o.Type != ObjectPath || o.Data == nil {
		return nil, ErrNotAPath
	}
	subpaths, err := eraser.ParsePath(o.Data.Path)
	if err != nil {
		return nil, err
	}
	origin := o.Origin()
	for i, sp := range subpaths {
		subpaths[i] = eraser.Offset(sp, origin)
	}
	return subpaths, nil
}

// ObjectUpdates 是 UPDATE_OBJECT 携带的增量；nil 字段表示不修改。
// Data 非空时整体替换。
type ObjectUpdates struct {
	X           *float64    `json:"x,omitempty"`
	Y           *float64    `json:"y,omitempty"`
	Width       *float64    `json:"width,omitempty"`
	Height      *float64    `json:"height,omitempty"`
	Rotation    *float64    `json:"rotation,omitempty"`
	Fill        *string     `json:"fill,omitempty"`
	Stroke      *string     `json:"stroke,omitempty"`
	StrokeWidth *float64    `json:"strokeWidth,omitempty"`
	Opacity     *float64    `json:"opacity,omitempty"`
	Data        *ObjectData `json:"data,omitempty"`
}

// IsEmpty 判断增量是否没有任何字段
func (u ObjectUpdates) IsEmpty() bool {
	return u.X == nil && u.Y == nil && u.Width == nil && u.Height == nil && u.Rotation == nil &&
		u.Fill == nil && u.Stroke == nil && u.StrokeWidth == nil && u.Opacity == nil && u.Data == nil
}

// ApplyTo 把增量合并进 o，并把 UpdatedAt 设为 ts。
func (u ObjectUpdates) ApplyTo(o *WhiteboardObject, ts int64) {
	if u.X != nil {
		o.X = *u.X
	}
	if u.Y != nil {
		o.Y = *u.Y
	}
	if u.Width != nil {
		o.Width = clonePtr(u.Width)
	}
	if u.Height != nil {
		o.Height = clonePtr(u.Height)
	}
	if u.Rotation != nil {
		o.Rotation = clonePtr(u.Rotation)
	}
	if u.Fill != nil {
		o.Fill = clonePtr(u.Fill)
	}
	if u.Stroke != nil {
		o.Stroke = clonePtr(u.Stroke)
	}
	if u.StrokeWidth != nil {
		o.StrokeWidth = clonePtr(u.StrokeWidth)
	}
	if u.Opacity != nil {
		o.Opacity = clonePtr(u.Opacity)
	}
	if u.Data != nil {
		o.Data = u.Data.Clone()
	}
	o.UpdatedAt = ts
}

// Rect 是一个轴对齐矩形，用于区域删除。
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize 把负宽高（从右下往左上拖出的框）转成正的
func (r Rect) Normalize() Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Intersects 判断两个矩形是否相交（边界接触也算）
func (r Rect) Intersects(o Rect) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.X <= b.X+b.Width && b.X <= a.X+a.Width &&
		a.Y <= b.Y+b.Height && b.Y <= a.Y+a.Height
}

// Bounds 返回对象的包围盒。path 对象按路径点计算并向外扩半个笔画宽度；
// 其他对象使用 (X, Y, Width, Height)，忽略旋转。
func (o *WhiteboardObject) Bounds() Rect {
	if o.Type == ObjectPath {
		if subpaths, err := o.PathPoints(); err == nil {
			minX, minY := math.Inf(1), math.Inf(1)
			maxX, maxY := math.Inf(-1), math.Inf(-1)
			for _, sp := range subpaths {
				for _, p := range sp {
					minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
					minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
				}
			}
			if !math.IsInf(minX, 1) {
				pad := o.StrokeWidthOr(0) / 2
				return Rect{X: minX - pad, Y: minY - pad, Width: maxX - minX + 2*pad, Height: maxY - minY + 2*pad}
			}
		}
	}
	r := Rect{X: o.X, Y: o.Y}
	if o.Width != nil {
		r.Width = *o.Width
	}
	if o.Height != nil {
		r.Height = *o.Height
	}
	return r.Normalize()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
