// Package eraser 把一条自由笔画按橡皮擦轨迹切分成若干条存活的子路径。
package eraser

import (
	"math"

	"collaborative-whiteboard/internal/geometry"

	"github.com/google/uuid"
)

// Eraser 是一次橡皮擦"落笔"：圆心 + 半径。
type Eraser struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Center 返回橡皮擦圆心。
func (e Eraser) Center() geometry.Point { return geometry.Point{X: e.X, Y: e.Y} }

func (e Eraser) valid() bool {
	return e.Radius > 0 && !math.IsInf(e.Radius, 0) && !math.IsNaN(e.Radius) &&
		!math.IsNaN(e.X) && !math.IsNaN(e.Y)
}

// PathSegment 是擦除后存活下来的一段连续子路径，点使用画布绝对坐标。
type PathSegment struct {
	ID     string           `json:"id"`
	Points []geometry.Point `json:"points"`
}

// 分段引擎的可调参数。这些值是经验值，单独命名以便独立调整。
const (
	// SmallEraserRadius 以下的橡皮擦需要预加密线段
	SmallEraserRadius = 15.0
	// VerySmallEraserRadius 以下的橡皮擦才会启用线级回退扫描
	VerySmallEraserRadius = 10.0

	// PreDensifyDivisor: 预加密时线段最长 minRadius / PreDensifyDivisor
	PreDensifyDivisor = 3.0

	// 插值间距 = minRadius / divisor
	DefaultSpacingDivisor   = 2.0
	SmallSpacingDivisor     = 3.0
	VerySmallSpacingDivisor = 4.0
	MatchedSpacingDivisor   = 3.0
	MinSpacing              = 0.5

	// 线段邻近测试允许的点距离 = radius * multiplier + 补偿
	BaseMultiplier    = 1.5
	SmallMultiplier   = 1.25
	MatchedMultiplier = 1.1
)

// profile 是第 1 步得到的橡皮擦尺寸分类。
type profile struct {
	minRadius  float64
	small      bool
	verySmall  bool
	matched    bool
	spacing    float64
	multiplier float64
}

func newProfile(erasers []Eraser, strokeWidth float64) profile {
	p := profile{minRadius: math.Inf(1)}
	for _, e := range erasers {
		p.minRadius = math.Min(p.minRadius, e.Radius)
	}
	p.small = p.minRadius < SmallEraserRadius
	p.verySmall = p.minRadius < VerySmallEraserRadius
	// 与笔画等宽的橡皮擦走保守分支，不能落入为极小橡皮擦准备的启发式
	p.matched = geometry.SizeRatio(strokeWidth, p.minRadius) > geometry.MatchedSizeRatio

	divisor, multiplier := DefaultSpacingDivisor, BaseMultiplier
	switch {
	case p.matched:
		divisor, multiplier = MatchedSpacingDivisor, MatchedMultiplier
	case p.verySmall:
		divisor, multiplier = VerySmallSpacingDivisor, SmallMultiplier
	case p.small:
		divisor, multiplier = SmallSpacingDivisor, SmallMultiplier
	}
	p.spacing = math.Max(p.minRadius/divisor, MinSpacing)
	p.multiplier = multiplier
	return p
}

// tracedPoint 记录插值点以及它所在的原始线段下标，供线级回退扫描使用。
// orig 标记笔画本来的顶点，插值点只用于判定，输出时大多被丢弃。
type tracedPoint struct {
	geometry.Point
	line int
	orig bool
}

// trace 按 maxSpacing 加密点列，同时保留每个点所属的原始线段。
func trace(points []tracedPoint, maxSpacing float64) []tracedPoint {
	out := make([]tracedPoint, 0, len(points))
	out = append(out, points[0])
	for i := 1; i < len(points); i++ {
		line := points[i-1].line
		geometry.Interpolate(points[i-1].Point, points[i].Point, maxSpacing, func(p geometry.Point) bool {
			out = append(out, tracedPoint{Point: p, line: line})
			return true
		})
		out = append(out, points[i])
	}
	return out
}

func initialTrace(points []geometry.Point) []tracedPoint {
	out := make([]tracedPoint, len(points))
	last := len(points) - 2
	if last < 0 {
		last = 0
	}
	for i, p := range points {
		line := i
		if line > last {
			line = last
		}
		out[i] = tracedPoint{Point: p, line: line, orig: true}
	}
	return out
}

// classify 完成第 1-4 步：分类、预加密、插值并逐点判定。
func classify(points []geometry.Point, erasers []Eraser, strokeWidth float64) ([]tracedPoint, []bool, bool) {
	prof := newProfile(erasers, strokeWidth)

	pts := initialTrace(points)
	if prof.small && !prof.matched {
		pts = trace(pts, math.Max(prof.minRadius/PreDensifyDivisor, MinSpacing))
	}
	pts = trace(pts, prof.spacing)

	var hitLines map[int]bool
	if prof.verySmall && !prof.matched {
		hitLines = linesTouched(points, erasers, strokeWidth)
	}

	erase := make([]bool, len(pts))
	hit := false
	for i, p := range pts {
		var prev, next *geometry.Point
		if i > 0 {
			prev = &pts[i-1].Point
		}
		if i+1 < len(pts) {
			next = &pts[i+1].Point
		}
		for _, e := range erasers {
			if shouldErase(p, prev, next, e, strokeWidth, prof, hitLines) {
				erase[i] = true
				hit = true
				break
			}
		}
	}
	return pts, erase, hit
}

// shouldErase 依次执行三个级联测试。
func shouldErase(p tracedPoint, prev, next *geometry.Point, e Eraser, strokeWidth float64, prof profile, hitLines map[int]bool) bool {
	center := e.Center()
	comp := geometry.Compensation(strokeWidth, e.Radius)
	dist := geometry.Distance(p.Point, center)

	// (a) 点在圆内
	if dist <= e.Radius+comp {
		return true
	}

	// (b) 相邻插值线段穿过圆，且点本身足够近
	if dist <= e.Radius*prof.multiplier+comp {
		if prev != nil && geometry.SegmentIntersectsCircle(*prev, p.Point, center, e.Radius, strokeWidth) {
			return true
		}
		if next != nil && geometry.SegmentIntersectsCircle(p.Point, *next, center, e.Radius, strokeWidth) {
			return true
		}
	}

	// (c) 极小且非等宽橡皮擦的线级回退；等宽时跳过以免擦掉过多
	if hitLines != nil && hitLines[p.line] && dist <= e.Radius+comp+prof.spacing {
		return true
	}
	return false
}

// linesTouched 返回被任一橡皮擦触及的原始线段下标。
func linesTouched(points []geometry.Point, erasers []Eraser, strokeWidth float64) map[int]bool {
	hit := make(map[int]bool)
	for j := 0; j+1 < len(points); j++ {
		for _, e := range erasers {
			if geometry.SegmentIntersectsCircle(points[j], points[j+1], e.Center(), e.Radius, strokeWidth) {
				hit[j] = true
				break
			}
		}
	}
	if len(points) == 1 {
		for _, e := range erasers {
			if geometry.PointInCircle(points[0], e.Center(), e.Radius, strokeWidth) {
				hit[0] = true
			}
		}
	}
	return hit
}

// Intersects 判断橡皮擦是否会擦到这条笔画的任何部分。
func Intersects(points []geometry.Point, erasers []Eraser, strokeWidth float64) bool {
	valid := validErasers(erasers)
	if len(points) == 0 || len(valid) == 0 {
		return false
	}
	_, _, hit := classify(points, valid, strokeWidth)
	return hit
}

// Erase 用一组橡皮擦（可以是一次拖动的连续采样）擦除笔画，返回存活的子路径。
//
// 没有橡皮擦时原样返回一段；空点列或全部橡皮擦半径非法时返回空结果。
// 少于 2 个点的片段无法形成可见笔画，直接丢弃。
// 输出点数不超过原始顶点数加上每个切口两侧各一个边界点。
func Erase(points []geometry.Point, erasers []Eraser, strokeWidth float64) []PathSegment {
	if len(points) == 0 {
		return nil
	}
	if len(erasers) == 0 {
		return wholeStroke(points)
	}
	valid := validErasers(erasers)
	if len(valid) == 0 {
		return nil
	}

	pts, erase, hit := classify(points, valid, strokeWidth)
	if !hit {
		return wholeStroke(points)
	}

	var segments []PathSegment
	var current []geometry.Point
	flush := func() {
		if len(current) >= 2 {
			segments = append(segments, PathSegment{ID: uuid.NewString(), Points: current})
		}
		current = nil
	}
	for i, p := range pts {
		if erase[i] {
			flush()
			continue
		}
		// 段内只保留原始顶点和切口两侧的边界点
		edge := len(current) == 0 || i+1 == len(pts) || erase[i+1]
		if p.orig || edge {
			current = append(current, p.Point)
		}
	}
	flush()
	return segments
}

func wholeStroke(points []geometry.Point) []PathSegment {
	if len(points) < 2 {
		return nil
	}
	cp := make([]geometry.Point, len(points))
	copy(cp, points)
	return []PathSegment{{ID: uuid.NewString(), Points: cp}}
}

func validErasers(erasers []Eraser) []Eraser {
	out := make([]Eraser, 0, len(erasers))
	for _, e := range erasers {
		if e.valid() {
			out = append(out, e)
		}
	}
	return out
}
