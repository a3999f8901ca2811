// Package geometry 提供橡皮擦命中检测所需的纯几何函数，不持有任何状态。
package geometry

import "math"

// Point 是画布坐标系中的一个二维点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// 笔画宽度补偿的分档参数。
// 橡皮擦直径与笔画宽度越接近，补偿越小，避免小橡皮擦在粗笔画上"显得过大"（反之亦然）。
const (
	// MatchedSizeRatio 以上视为橡皮擦与笔画等宽
	MatchedSizeRatio = 0.7
	// CloseSizeRatio 以上视为尺寸接近
	CloseSizeRatio = 0.4

	MatchedCompensation = 0.1
	CloseCompensation   = 0.2
	DefaultCompensation = 0.3
)

// SizeRatio 返回 min(strokeWidth, 2r) / max(strokeWidth, 2r)，取值 [0,1]。
func SizeRatio(strokeWidth, radius float64) float64 {
	diameter := 2 * radius
	hi := math.Max(strokeWidth, diameter)
	if hi <= 0 {
		return 0
	}
	return math.Min(strokeWidth, diameter) / hi
}

// Compensation 计算命中半径需要额外加上的笔画宽度补偿。
func Compensation(strokeWidth, radius float64) float64 {
	if strokeWidth <= 0 {
		return 0
	}
	ratio := SizeRatio(strokeWidth, radius)
	switch {
	case ratio > MatchedSizeRatio:
		return MatchedCompensation * strokeWidth
	case ratio > CloseSizeRatio:
		return CloseCompensation * strokeWidth
	default:
		return DefaultCompensation * strokeWidth
	}
}

// Distance 返回两点间的欧氏距离。
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// PointInCircle 判断点是否落在 radius + 补偿 的范围内。
func PointInCircle(p, center Point, radius, strokeWidth float64) bool {
	return Distance(p, center) <= radius+Compensation(strokeWidth, radius)
}

// DistancePointToSegment 返回点到线段 ab 的最短距离（投影被夹在端点之间）。
func DistancePointToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// SegmentIntersectsCircle 判断线段 ab 是否进入圆（半径含补偿）。
func SegmentIntersectsCircle(a, b, center Point, radius, strokeWidth float64) bool {
	return DistancePointToSegment(center, a, b) <= radius+Compensation(strokeWidth, radius)
}

// Interpolate 依次产出 a、b 之间（不含端点）的插值点，使相邻点间距不超过 maxSpacing。
// yield 返回 false 时提前结束。
func Interpolate(a, b Point, maxSpacing float64, yield func(Point) bool) {
	if maxSpacing <= 0 {
		return
	}
	d := Distance(a, b)
	if d <= maxSpacing {
		return
	}
	steps := int(math.Ceil(d / maxSpacing))
	for i := 1; i < steps; i++ {
		t := float64(i) / float64(steps)
		if !yield(Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}) {
			return
		}
	}
}
